package flash

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReadIDs returns the manufacturer and device IDs.
func (f *Indirect) ReadIDs() (manufacturer, device byte, err error) {
	h := f.h
	if h == nil {
		return 0, 0, ErrConsumed
	}
	tx := h.profile.readIDs()
	var buf [2]byte
	if err := h.exec(&tx, buf[:]); err != nil {
		return 0, 0, err
	}
	return buf[0], buf[1], nil
}

// ReadJEDECID returns the manufacturer, memory type and capacity bytes.
func (f *Indirect) ReadJEDECID() (id [3]byte, err error) {
	h := f.h
	if h == nil {
		return id, ErrConsumed
	}
	tx := h.profile.registerRead(CmdReadJEDECID)
	err = h.exec(&tx, id[:])
	return id, err
}

// Identify reads the JEDEC ID and looks it up in the known chip table.
func (f *Indirect) Identify() (Params, [3]byte, bool, error) {
	id, err := f.ReadJEDECID()
	if err != nil {
		return Params{}, id, false, err
	}
	p, ok := LookupChip(id)
	return p, id, ok, nil
}

func (f *Indirect) ReadStatusRegister1() (StatusRegister1, error) {
	b, err := f.readStatusRegister(CmdReadStatusRegister1)
	return StatusRegister1(b), err
}

func (f *Indirect) ReadStatusRegister2() (StatusRegister2, error) {
	b, err := f.readStatusRegister(CmdReadStatusRegister2)
	return StatusRegister2(b), err
}

func (f *Indirect) readStatusRegister(c Command) (byte, error) {
	h := f.h
	if h == nil {
		return 0, ErrConsumed
	}
	tx := h.profile.registerRead(c)
	var b [1]byte
	err := h.exec(&tx, b[:])
	return b[0], err
}

// ReadBytes fills buf starting at chip offset addr. The address is not
// checked against the chip size.
func (f *Indirect) ReadBytes(addr uint32, buf []byte) error {
	h := f.h
	if h == nil {
		return ErrConsumed
	}
	if len(buf) == 0 {
		return nil
	}
	tx := h.profile.fastRead(addr)
	return h.exec(&tx, buf)
}

// ProgramPage programs data starting at chip offset addr. Data spanning
// several pages is split so that no program command crosses a page
// boundary; every chunk gets its own write enable and busy wait.
func (f *Indirect) ProgramPage(addr uint32, data []byte) error {
	h := f.h
	if h == nil {
		return ErrConsumed
	}
	for _, c := range splitPages(addr, len(data)) {
		if err := f.WriteEnable(); err != nil {
			return err
		}
		tx := h.profile.addressed(CmdPageProgram, c.addr, true)
		if err := h.exec(&tx, data[c.start:c.start+c.n]); err != nil {
			return errors.Wrapf(err, "flash: program %#06x", c.addr)
		}
		if err := h.waitBusy(h.timeouts.Program); err != nil {
			return errors.Wrapf(err, "flash: program %#06x", c.addr)
		}
		h.log.WithFields(logrus.Fields{"addr": c.addr, "len": c.n}).Debug("flash: page programmed")
	}
	return nil
}

// chunk is one page program command: n bytes from data[start:] to addr.
type chunk struct {
	addr  uint32
	start int
	n     int
}

func splitPages(addr uint32, n int) []chunk {
	var chunks []chunk
	fits := PageSize - int(addr&(PageSize-1))
	for start := 0; start < n; {
		fits = min(fits, n-start)
		chunks = append(chunks, chunk{addr: addr, start: start, n: fits})
		addr += uint32(fits)
		start += fits
		fits = PageSize
	}
	return chunks
}

// BlockErase4K erases the 4 KiB block containing addr.
func (f *Indirect) BlockErase4K(addr uint32) error {
	return f.erase(CmdErase4KbyteBlock, addr, func(t Timeouts) time.Duration { return t.Erase4K })
}

// BlockErase32K erases the 32 KiB block containing addr.
func (f *Indirect) BlockErase32K(addr uint32) error {
	return f.erase(CmdErase32KbyteBlock, addr, func(t Timeouts) time.Duration { return t.Erase32K })
}

// BlockErase64K erases the 64 KiB block containing addr.
func (f *Indirect) BlockErase64K(addr uint32) error {
	return f.erase(CmdErase64KbyteBlock, addr, func(t Timeouts) time.Duration { return t.Erase64K })
}

// EraseSector erases the geometry sector containing addr with the matching
// block erase and returns it.
func (f *Indirect) EraseSector(addr uint32) (Sector, error) {
	h := f.h
	if h == nil {
		return Sector{}, ErrConsumed
	}
	s, ok := h.geometry.SectorAt(addr)
	if !ok {
		return s, errors.Errorf("flash: offset %#x beyond chip", addr)
	}
	var err error
	switch s.Size {
	case 4 << 10:
		err = f.BlockErase4K(s.Offset)
	case 32 << 10:
		err = f.BlockErase32K(s.Offset)
	case 64 << 10:
		err = f.BlockErase64K(s.Offset)
	default:
		err = errors.Errorf("flash: no erase command for %d byte sectors", s.Size)
	}
	return s, err
}

func (f *Indirect) erase(c Command, addr uint32, timeout func(Timeouts) time.Duration) error {
	h := f.h
	if h == nil {
		return ErrConsumed
	}
	if err := f.WriteEnable(); err != nil {
		return err
	}
	tx := h.profile.addressed(c, addr, false)
	if err := h.exec(&tx, nil); err != nil {
		return errors.Wrapf(err, "flash: %s %#06x", c, addr)
	}
	// The bus finishes the command long before the chip finishes erasing.
	if err := h.waitBusy(timeout(h.timeouts)); err != nil {
		return errors.Wrapf(err, "flash: %s %#06x", c, addr)
	}
	h.log.WithField("addr", addr).Debugf("flash: %s done", c)
	return nil
}

// ChipErase erases the whole chip. This takes tens of seconds.
func (f *Indirect) ChipErase() error {
	h := f.h
	if h == nil {
		return ErrConsumed
	}
	if err := f.WriteEnable(); err != nil {
		return err
	}
	h.log.Info("flash: chip erase started")
	if err := f.command(CmdChipErase); err != nil {
		return err
	}
	if err := h.waitBusy(h.timeouts.EraseChip); err != nil {
		return errors.Wrap(err, "flash: chip erase")
	}
	h.log.Info("flash: chip erase done")
	return nil
}

// WriteEnable sets the write enable latch. The chip clears it again after
// every program or erase.
func (f *Indirect) WriteEnable() error {
	return f.command(CmdWriteEnable)
}

// WriteDisable sends WriteEnable, not WriteDisable (0x04), exactly as the
// board firmware does. Whether that is deliberate has not been confirmed
// on hardware, so it is kept.
func (f *Indirect) WriteDisable() error {
	return f.command(CmdWriteEnable)
}

func (f *Indirect) command(c Command) error {
	h := f.h
	if h == nil {
		return ErrConsumed
	}
	tx := h.profile.command(c)
	return h.exec(&tx, nil)
}

// WaitBusy polls status register 1 until the chip is idle.
func (f *Indirect) WaitBusy() error {
	h := f.h
	if h == nil {
		return ErrConsumed
	}
	return h.waitBusy(h.timeouts.Other)
}

// waitBusy polls the chip's BUSY bit. A zero timeout waits indefinitely.
func (h *handle) waitBusy(timeout time.Duration) error {
	tx := h.profile.registerRead(CmdReadStatusRegister1)
	var sr [1]byte
	start := time.Now()
	for {
		if err := h.exec(&tx, sr[:]); err != nil {
			return err
		}
		if !StatusRegister1(sr[0]).Busy() {
			return nil
		}
		if timeout > 0 && time.Since(start) > timeout {
			return ErrTimeout
		}
		if h.pollInterval > 0 {
			time.Sleep(h.pollInterval)
		}
	}
}
