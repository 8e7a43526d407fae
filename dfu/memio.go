// Package dfu exposes the external flash as the memory of a DfuSe
// alternate setting. The USB class itself lives elsewhere; MemIO is the
// backend it calls for each upload, download and erase request.
package dfu

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/snksoft/crc"

	"github.com/gentam/n0110/flash"
)

// Advertised in the DFU functional descriptor and the memory layout string.
const (
	InitialAddress = flash.Base
	TransferSize   = 128

	ProgramTime       = 5 * time.Millisecond
	EraseTime         = 60 * time.Millisecond
	FullEraseTime     = 30000 * time.Millisecond
	ManifestationTime = 1 * time.Millisecond
	DetachTimeout     = 250 * time.Millisecond

	HasDownload           = true
	HasUpload             = true
	ManifestationTolerant = true

	MemoryName = "ExternalFlash"
)

var (
	ErrAddress  = errors.New("dfu: address outside external flash")
	ErrTransfer = errors.New("dfu: length exceeds transfer size")
)

// Flash is the part of *flash.Indirect the backend uses.
type Flash interface {
	ReadBytes(addr uint32, buf []byte) error
	ProgramPage(addr uint32, data []byte) error
	EraseSector(addr uint32) (flash.Sector, error)
	ChipErase() error
	Geometry() flash.Geometry
}

// Indicator shows progress on the status LED. *led.RGB implements it.
type Indicator interface {
	Red() error
	Green() error
	Blue() error
	Off() error
}

// Option configures a MemIO.
type Option func(*MemIO)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *MemIO) { m.log = l }
}

// WithIndicator shows erases in blue, a completed download in green and
// failures in red.
func WithIndicator(i Indicator) Option {
	return func(m *MemIO) { m.led = i }
}

// MemIO is the DFU memory backend for the external flash. Addresses are
// absolute, as seen by the host: InitialAddress is chip offset 0.
type MemIO struct {
	buf    [TransferSize]byte
	stored int
	chip   Flash
	geo    flash.Geometry
	log    logrus.FieldLogger
	led    Indicator

	sum        *crc.Hash
	programmed int
	first      uint32
	last       uint32
}

// New returns a backend for chip.
func New(chip Flash, opts ...Option) *MemIO {
	m := &MemIO{
		chip: chip,
		geo:  chip.Geometry(),
		sum:  crc.NewHash(crc.CRC32),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		l := logrus.New()
		l.Out = io.Discard
		m.log = l
	}
	return m
}

// MemInfo returns the DfuSe memory layout string.
func (m *MemIO) MemInfo() string {
	return m.geo.Descriptor(MemoryName)
}

// StoreWriteBuffer keeps src for the next Program call.
func (m *MemIO) StoreWriteBuffer(src []byte) error {
	if len(src) > TransferSize {
		return errors.Wrapf(ErrTransfer, "%d bytes", len(src))
	}
	m.stored = copy(m.buf[:], src)
	return nil
}

// Read reads n bytes at addr. The returned slice is the transfer buffer
// and is only valid until the next call; it also discards any stored
// write data.
func (m *MemIO) Read(addr uint32, n int) ([]byte, error) {
	off, err := m.offset(addr, n)
	if err != nil {
		return nil, err
	}
	m.stored = 0
	if err := m.chip.ReadBytes(off, m.buf[:n]); err != nil {
		return nil, m.fail(err, "read")
	}
	return m.buf[:n], nil
}

// Program writes the first n bytes of the stored buffer at addr. n may
// not exceed what the last StoreWriteBuffer stored.
func (m *MemIO) Program(addr uint32, n int) error {
	off, err := m.offset(addr, n)
	if err != nil {
		return err
	}
	if n > m.stored {
		return errors.Wrapf(ErrTransfer, "program %d bytes, %d stored", n, m.stored)
	}
	data := m.buf[:n]
	if err := m.chip.ProgramPage(off, data); err != nil {
		return m.fail(err, "program")
	}

	if m.programmed == 0 || addr < m.first {
		m.first = addr
	}
	if end := addr + uint32(n); end > m.last {
		m.last = end
	}
	m.programmed += n
	m.sum.Update(data)
	return nil
}

// Erase erases the sector containing addr. The sector is the one
// advertised by MemInfo, so a host walking the layout erases each exactly
// once.
func (m *MemIO) Erase(addr uint32) error {
	off, err := m.offset(addr, 0)
	if err != nil {
		return err
	}
	m.indicate(Indicator.Blue)
	s, err := m.chip.EraseSector(off)
	if err != nil {
		return m.fail(err, "erase")
	}
	m.indicate(Indicator.Off)
	m.log.WithFields(logrus.Fields{"addr": addr, "size": s.Size}).Debug("dfu: sector erased")
	return nil
}

// EraseAll erases the whole chip.
func (m *MemIO) EraseAll() error {
	m.indicate(Indicator.Blue)
	if err := m.chip.ChipErase(); err != nil {
		return m.fail(err, "mass erase")
	}
	m.indicate(Indicator.Off)
	m.reset()
	return nil
}

// Manifestation ends a download. It logs the CRC-32 of everything
// programmed since the previous manifestation, in programming order.
func (m *MemIO) Manifestation() error {
	m.log.WithFields(logrus.Fields{
		"bytes": m.programmed,
		"first": m.first,
		"last":  m.last,
		"crc32": m.Checksum(),
	}).Info("dfu: download complete")
	m.indicate(Indicator.Green)
	m.reset()
	return nil
}

// Checksum returns the running CRC-32 of the programmed data.
func (m *MemIO) Checksum() uint32 { return m.sum.CRC32() }

func (m *MemIO) reset() {
	m.sum = crc.NewHash(crc.CRC32)
	m.programmed, m.first, m.last = 0, 0, 0
}

// offset converts an absolute address to a chip offset and checks that
// [addr, addr+n) lies on the chip.
func (m *MemIO) offset(addr uint32, n int) (uint32, error) {
	if n < 0 || n > TransferSize {
		return 0, errors.Wrapf(ErrTransfer, "%d bytes", n)
	}
	if !m.geo.Contains(addr) || (n > 0 && !m.geo.Contains(addr+uint32(n)-1)) {
		return 0, errors.Wrapf(ErrAddress, "%#08x+%d", addr, n)
	}
	return addr - m.geo.Base, nil
}

func (m *MemIO) fail(err error, op string) error {
	m.indicate(Indicator.Red)
	m.log.WithError(err).Warnf("dfu: %s failed", op)
	return errors.Wrapf(err, "dfu: %s", op)
}

func (m *MemIO) indicate(fn func(Indicator) error) {
	if m.led == nil {
		return
	}
	if err := fn(m.led); err != nil {
		m.log.WithError(err).Debug("dfu: status LED")
	}
}
