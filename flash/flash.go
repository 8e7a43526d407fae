// Package flash drives the external serial NOR flash of the N0110 board.
//
// A chip goes through three regimes, each with its own Go type:
//
//	Uninitialized --Init--> Indirect --IntoMemoryMapped--> MemoryMapped
//
// Commands, programs and erases are methods of Indirect only. A transition
// moves the chip out of the receiver; the old value is left empty and
// returns ErrConsumed from then on. There is no way back from
// MemoryMapped short of a reset.
//
// Busy waits poll without a deadline unless one is configured with
// WithTimeouts, so a chip that never finishes hangs the caller. Callers on
// time-sensitive paths supply a deadline or a watchdog of their own.
package flash

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gentam/n0110/qspi"
)

// Bus executes indirect transactions. *qspi.Controller implements it, and
// so does the SPI link of the host adapter.
type Bus interface {
	Exec(tx *qspi.Transaction, data []byte) error
}

// Mapper is implemented by buses that support memory-mapped mode.
type Mapper interface {
	MemoryMap(tx *qspi.Transaction) (io.ReaderAt, error)
}

var (
	ErrConsumed    = errors.New("flash: handle already moved to another state")
	ErrTimeout     = errors.New("flash: timed out waiting for chip")
	ErrUnsupported = errors.New("flash: bus does not support memory-mapped mode")
)

// Option configures a chip handle.
type Option func(*handle)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *handle) { h.log = l }
}

// WithProfile selects the phase widths. The default is QuadProfile.
func WithProfile(p Profile) Option {
	return func(h *handle) { h.profile = p }
}

// WithGeometry replaces the N0110 sector layout.
func WithGeometry(g Geometry) Option {
	return func(h *handle) { h.geometry = g }
}

// WithTimeouts bounds chip-level busy waits. Use Params.Timeouts for
// datasheet limits or Uniform for a single deadline.
func WithTimeouts(t Timeouts) Option {
	return func(h *handle) { h.timeouts = t }
}

// WithPollInterval sleeps between status register polls instead of
// spinning.
func WithPollInterval(d time.Duration) Option {
	return func(h *handle) { h.pollInterval = d }
}

type handle struct {
	bus          Bus
	profile      Profile
	geometry     Geometry
	timeouts     Timeouts
	pollInterval time.Duration
	log          logrus.FieldLogger
}

// Uninitialized is a chip on a configured bus that has not been woken up.
type Uninitialized struct {
	h *handle
}

// New returns the chip attached to bus. The bus must already be brought
// up (clock, pins, controller configuration).
func New(bus Bus, opts ...Option) (*Uninitialized, error) {
	if bus == nil {
		return nil, errors.New("flash: nil bus")
	}
	h := &handle{
		bus:      bus,
		profile:  QuadProfile,
		geometry: N0110,
	}
	for _, opt := range opts {
		opt(h)
	}
	if err := h.geometry.Validate(); err != nil {
		return nil, err
	}
	if h.log == nil {
		l := logrus.New()
		l.Out = io.Discard
		h.log = l
	}
	return &Uninitialized{h: h}, nil
}

// Init wakes the chip from deep power-down and sets the quad enable bit.
// delay is used once for the wake-up settle time; nil means time.Sleep.
func (u *Uninitialized) Init(delay func(time.Duration)) (*Indirect, error) {
	h := u.h
	if h == nil {
		return nil, ErrConsumed
	}
	if delay == nil {
		delay = time.Sleep
	}
	p := &h.profile

	wake := p.command(CmdReleaseDeepPowerDown)
	if err := h.exec(&wake, nil); err != nil {
		return nil, errors.Wrap(err, "flash: release deep power-down")
	}
	delay(settleTime)

	// The volatile write enable lets the status register change without
	// wearing the non-volatile copy.
	wev := p.command(CmdWriteEnableVolatile)
	if err := h.exec(&wev, nil); err != nil {
		return nil, errors.Wrap(err, "flash: volatile write enable")
	}
	qe := p.commandWithByte(CmdWriteStatusRegister2, byte(QuadEnable))
	if err := h.exec(&qe, nil); err != nil {
		return nil, errors.Wrap(err, "flash: set quad enable")
	}

	u.h = nil
	h.log.WithField("profile", p.Name).Debug("flash: initialized")
	return &Indirect{h: h}, nil
}

// Indirect is an initialised chip accepting explicit commands.
type Indirect struct {
	h *handle
}

// IntoMemoryMapped switches the bus to memory-mapped mode. The chip can
// then only be read, through the returned value.
func (f *Indirect) IntoMemoryMapped() (*MemoryMapped, error) {
	h := f.h
	if h == nil {
		return nil, ErrConsumed
	}
	m, ok := h.bus.(Mapper)
	if !ok {
		return nil, ErrUnsupported
	}
	tx := h.profile.memoryMapped()
	mem, err := m.MemoryMap(&tx)
	if err != nil {
		return nil, errors.Wrap(err, "flash: memory map")
	}
	f.h = nil
	h.log.Debug("flash: memory-mapped")
	return &MemoryMapped{h: h, mem: mem}, nil
}

// Geometry returns the sector layout of the chip.
func (f *Indirect) Geometry() Geometry {
	if f.h == nil {
		return Geometry{}
	}
	return f.h.geometry
}

// MemoryMapped is a chip whose contents are read by plain loads.
type MemoryMapped struct {
	h   *handle
	mem io.ReaderAt
}

// ReadAt reads from the mapped region at chip offset off.
func (m *MemoryMapped) ReadAt(p []byte, off int64) (int, error) {
	return m.mem.ReadAt(p, off)
}

// Geometry returns the sector layout of the chip.
func (m *MemoryMapped) Geometry() Geometry { return m.h.geometry }

func (h *handle) exec(tx *qspi.Transaction, data []byte) error {
	return h.bus.Exec(tx, data)
}
