package qspi

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/physic"

	"github.com/gentam/n0110/internal/reg"
)

// ClockGate switches the peripheral clock and reset lines of the
// controller. It is usually a thin wrapper around the RCC enable and reset
// bits.
type ClockGate interface {
	EnableClock()
	Reset()
}

// Config is the bus configuration applied at bring-up.
type Config struct {
	// Prescaler divides the kernel clock: bus clock = kernel / (Prescaler+1).
	Prescaler uint8
	// AddressBits is log2 of the flash size. The controller decodes that
	// many address bits in memory-mapped mode.
	AddressBits uint8
	// CSHighTime is the minimum number of cycles chip select stays high
	// between commands, minus one.
	CSHighTime uint8
	// ClockMode3 idles the clock high between commands.
	ClockMode3 bool
	// FIFOThreshold is the FIFO level that raises FTF, minus one.
	FIFOThreshold uint8

	// Gate is optional; without it the clock is assumed to be running.
	Gate ClockGate
	// Window exposes the memory-mapped region once MemoryMap has been
	// called.
	Window io.ReaderAt

	Logger logrus.FieldLogger
}

// DefaultConfig is the configuration used on the N0110 board: 8 MiB chip,
// prescaler 3 (54 MHz from a 216 MHz AHB), three cycles of chip select high
// time, clock mode 3.
func DefaultConfig() Config {
	return Config{
		Prescaler:   3,
		AddressBits: 23,
		CSHighTime:  2,
		ClockMode3:  true,
	}
}

// BusClock returns the serial clock generated from the kernel clock.
func (c Config) BusClock(kernel physic.Frequency) physic.Frequency {
	return kernel / physic.Frequency(c.Prescaler+1)
}

var (
	ErrMapped   = errors.New("qspi: controller is in memory-mapped mode")
	ErrNoWindow = errors.New("qspi: no memory-mapped window configured")
)

// Controller drives transactions through the QUADSPI registers. There is
// exactly one per peripheral; it is not safe for concurrent use.
type Controller struct {
	r      *Registers
	cfg    Config
	log    logrus.FieldLogger
	mapped bool
}

// NewController brings the bus up: clock on, peripheral reset, device
// configuration, then enable.
func NewController(r *Registers, cfg Config) (*Controller, error) {
	if cfg.AddressBits == 0 || cfg.AddressBits > 32 {
		return nil, errors.Errorf("qspi: invalid address bits %d", cfg.AddressBits)
	}
	if cfg.CSHighTime > 7 {
		return nil, errors.Errorf("qspi: invalid chip select high time %d", cfg.CSHighTime)
	}
	if cfg.FIFOThreshold > 31 {
		return nil, errors.Errorf("qspi: invalid FIFO threshold %d", cfg.FIFOThreshold)
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}

	if cfg.Gate != nil {
		cfg.Gate.EnableClock()
		cfg.Gate.Reset()
	}

	var dcr uint32
	dcr = dcrFSize.Put(dcr, uint32(cfg.AddressBits-1))
	dcr = dcrCSHT.Put(dcr, uint32(cfg.CSHighTime))
	if cfg.ClockMode3 {
		dcr = dcrCKMode.Put(dcr, 1)
	}
	r.DCR.Set(dcr)

	var cr uint32
	cr = crPrescaler.Put(cr, uint32(cfg.Prescaler))
	cr = crFThres.Put(cr, uint32(cfg.FIFOThreshold))
	cr = crEN.Put(cr, 1)
	r.CR.Set(cr)

	log.WithFields(logrus.Fields{
		"prescaler": cfg.Prescaler,
		"fsize":     cfg.AddressBits - 1,
	}).Debug("qspi: bus configured")

	return &Controller{r: r, cfg: cfg, log: log}, nil
}

// Config returns the configuration the controller was brought up with.
func (c *Controller) Config() Config { return c.cfg }

// Exec runs one indirect transaction. For IndirectWrite the bytes of data
// are shifted out, for IndirectRead data is filled with the bytes clocked
// in. Exec returns once the controller reports the transaction complete; it
// polls without a deadline.
func (c *Controller) Exec(tx *Transaction, data []byte) error {
	if c.mapped {
		return ErrMapped
	}
	if err := tx.Validate(); err != nil {
		return err
	}
	if tx.Mode != IndirectWrite && tx.Mode != IndirectRead {
		return errors.Wrapf(ErrMode, "%s", tx.Mode)
	}
	if tx.HasData() != (len(data) > 0) {
		return errors.Wrapf(ErrDataPhase, "%s with %d data bytes", tx, len(data))
	}

	c.waitIdle()

	if tx.LateSample {
		reg.SetBits(c.r.CR, crSShift.Mask())
		defer reg.ClearBits(c.r.CR, crSShift.Mask())
	}

	if len(data) > 0 {
		c.r.DLR.Set(uint32(len(data) - 1))
	} else {
		c.r.DLR.Set(0)
	}
	if tx.HasAlternate() {
		c.r.ABR.Set(tx.Alternate)
	}
	c.r.CCR.Set(tx.CCR())
	if tx.HasAddress() {
		c.r.AR.Set(tx.Address)
	}

	switch tx.Mode {
	case IndirectWrite:
		for _, b := range data {
			c.r.DR.Set(b)
		}
	case IndirectRead:
		for i := range data {
			data[i] = c.r.DR.Get()
		}
	}

	c.waitIdle()
	c.r.FCR.Set(fcrCTCF.Mask())
	return nil
}

// MemoryMap switches the controller to memory-mapped mode with tx as the
// template for the read transactions the hardware generates. There is no
// way back: leaving memory-mapped mode needs an abort that races any CPU
// fetch from the mapped region.
func (c *Controller) MemoryMap(tx *Transaction) (io.ReaderAt, error) {
	if c.mapped {
		return nil, ErrMapped
	}
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if tx.Mode != MemoryMapped {
		return nil, errors.Wrapf(ErrMode, "%s", tx.Mode)
	}
	if c.cfg.Window == nil {
		return nil, ErrNoWindow
	}

	c.waitIdle()
	c.r.ABR.Set(tx.Alternate)
	c.r.CCR.Set(tx.CCR())
	c.mapped = true

	c.log.WithField("tx", tx.String()).Debug("qspi: memory-mapped")
	return c.cfg.Window, nil
}

func (c *Controller) waitIdle() {
	for reg.HasBits(c.r.SR, srBusy.Mask()) {
	}
}
