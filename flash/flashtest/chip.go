// Package flashtest provides a behavioural model of a quad SPI NOR flash
// chip and fakes that connect it to the drivers: a QUADSPI register block
// and a periph.io SPI connection.
package flashtest

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Instruction bytes the model understands. They mirror flash.Command but
// are kept separate so the model does not share the driver's tables.
const (
	opWriteStatus      = 0x01
	opPageProgram      = 0x02
	opReadData         = 0x03
	opWriteDisable     = 0x04
	opReadStatus1      = 0x05
	opWriteEnable      = 0x06
	opFastRead         = 0x0B
	opErase4K          = 0x20
	opWriteStatus2     = 0x31
	opQuadPageProgram  = 0x33
	opReadStatus2      = 0x35
	opVolatileWE       = 0x50
	opErase32K         = 0x52
	opChipErase60      = 0x60
	opEnableReset      = 0x66
	opReadIDs          = 0x90
	opReset            = 0x99
	opReadJEDECID      = 0x9F
	opReleasePowerDown = 0xAB
	opPowerDown        = 0xB9
	opSetReadParams    = 0xC0
	opChipErase        = 0xC7
	opErase64K         = 0xD8
	opFastReadQuadIO   = 0xEB
)

const (
	pageSize = 256

	srBusy = 1 << 0
	srWEL  = 1 << 1
)

// Frame is one chip-select cycle as the chip sees it.
type Frame struct {
	Instruction byte
	Address     uint32
	HasAddress  bool
	// Out holds the bytes sent to the chip after the address: alternate
	// bytes first, then data.
	Out []byte
	// In receives the bytes the chip drives during the data phase.
	In []byte
	// LateSample records whether the controller sampled late. The chip
	// ignores it.
	LateSample bool
}

// Op is a log entry for one frame.
type Op struct {
	Instruction byte
	Address     uint32
	HasAddress  bool
	Out         []byte
	InLen       int
	LateSample  bool
	// Ignored is set when the chip discarded the command: powered down,
	// busy, or missing the write enable latch.
	Ignored bool
}

func (o Op) String() string {
	s := fmt.Sprintf("%#02x", o.Instruction)
	if o.HasAddress {
		s += fmt.Sprintf(" @%#06x", o.Address)
	}
	if len(o.Out) > 0 {
		s += fmt.Sprintf(" out=%d", len(o.Out))
	}
	if o.InLen > 0 {
		s += fmt.Sprintf(" in=%d", o.InLen)
	}
	if o.Ignored {
		s += " (ignored)"
	}
	return s
}

// Chip models the array, status registers and command decoder of a serial
// NOR flash chip. Programming only clears bits and wraps within the page,
// like the real part, so a driver that crosses a page boundary corrupts
// data in the model too.
type Chip struct {
	mu sync.Mutex

	mem []byte
	sr1 byte
	sr2 byte

	volatileWE   bool
	poweredDown  bool
	resetEnabled bool
	readParams   byte

	manufacturer byte
	device       byte
	jedec        [3]byte

	// busy is the number of status reads that still report BUSY.
	busy      int
	busyPolls int
	stuck     bool

	ops []Op
}

// ChipOption configures a Chip.
type ChipOption func(*Chip)

// WithSize sets the array size. It must be a multiple of 64 KiB.
func WithSize(n int) ChipOption {
	return func(c *Chip) { c.mem = make([]byte, n) }
}

// WithIDs sets the values returned by ReadIDs and ReadJEDECID.
func WithIDs(manufacturer, device byte, jedec [3]byte) ChipOption {
	return func(c *Chip) {
		c.manufacturer = manufacturer
		c.device = device
		c.jedec = jedec
	}
}

// WithBusyPolls sets how many status reads report BUSY after a program,
// erase or non-volatile status write.
func WithBusyPolls(n int) ChipOption {
	return func(c *Chip) { c.busyPolls = n }
}

// Awake starts the chip out of deep power-down.
func Awake() ChipOption {
	return func(c *Chip) { c.poweredDown = false }
}

// Stuck makes the BUSY bit stay set once raised.
func Stuck() ChipOption {
	return func(c *Chip) { c.stuck = true }
}

// NewChip returns an erased 8 MiB chip in deep power-down reporting the
// IDs of an Adesto AT25SF641.
func NewChip(opts ...ChipOption) *Chip {
	c := &Chip{
		poweredDown:  true,
		manufacturer: 0x1F,
		device:       0x16,
		jedec:        [3]byte{0x1F, 0x32, 0x17},
		busyPolls:    2,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mem == nil {
		c.mem = make([]byte, 8<<20)
	}
	for i := range c.mem {
		c.mem[i] = 0xFF
	}
	return c
}

// Do runs one frame through the command decoder.
func (c *Chip) Do(f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	op := Op{
		Instruction: f.Instruction,
		Address:     f.Address,
		HasAddress:  f.HasAddress,
		Out:         append([]byte(nil), f.Out...),
		InLen:       len(f.In),
		LateSample:  f.LateSample,
	}
	op.Ignored = !c.do(f)
	c.ops = append(c.ops, op)
}

func (c *Chip) do(f *Frame) bool {
	fill(f.In, 0xFF)

	if c.poweredDown && f.Instruction != opReleasePowerDown {
		return false
	}
	if c.isBusy() && f.Instruction != opReadStatus1 && f.Instruction != opReadStatus2 {
		return false
	}

	wasResetEnabled := c.resetEnabled
	c.resetEnabled = false

	switch f.Instruction {
	case opReadStatus1:
		fill(f.In, c.status1())
		if c.busy > 0 && !c.stuck {
			c.busy--
		}
	case opReadStatus2:
		fill(f.In, c.sr2)
	case opWriteEnable:
		c.sr1 |= srWEL
	case opWriteDisable:
		c.sr1 &^= srWEL
	case opVolatileWE:
		c.volatileWE = true
	case opWriteStatus, opWriteStatus2:
		return c.writeStatus(f.Instruction, f.Out)
	case opPageProgram, opQuadPageProgram:
		if !c.latch() {
			return false
		}
		c.program(f.Address, f.Out)
		c.startBusy()
	case opErase4K, opErase32K, opErase64K:
		if !c.latch() {
			return false
		}
		c.erase(f.Address, eraseSize(f.Instruction))
		c.startBusy()
	case opChipErase, opChipErase60:
		if !c.latch() {
			return false
		}
		fill(c.mem, 0xFF)
		c.startBusy()
	case opReadData, opFastRead, opFastReadQuadIO:
		for i := range f.In {
			f.In[i] = c.mem[(int(f.Address)+i)%len(c.mem)]
		}
	case opReadIDs:
		ids := [2]byte{c.manufacturer, c.device}
		if f.Address&1 != 0 {
			ids[0], ids[1] = ids[1], ids[0]
		}
		for i := range f.In {
			f.In[i] = ids[i%2]
		}
	case opReadJEDECID:
		for i := range f.In {
			if i < len(c.jedec) {
				f.In[i] = c.jedec[i]
			}
		}
	case opReleasePowerDown:
		c.poweredDown = false
		fill(f.In, c.device)
	case opPowerDown:
		c.poweredDown = true
	case opEnableReset:
		c.resetEnabled = true
	case opReset:
		if !wasResetEnabled {
			return false
		}
		c.sr1 &^= srWEL
		c.volatileWE = false
		c.sr2 &^= 1 << 7
	case opSetReadParams:
		if len(f.Out) == 0 {
			return false
		}
		c.readParams = f.Out[0]
	default:
		return false
	}
	return true
}

func (c *Chip) isBusy() bool { return c.busy > 0 || (c.stuck && c.busy < 0) }

func (c *Chip) status1() byte {
	sr := c.sr1
	if c.isBusy() {
		sr |= srBusy
	}
	return sr
}

func (c *Chip) startBusy() {
	c.sr1 &^= srWEL
	if c.stuck {
		c.busy = -1
		return
	}
	c.busy = c.busyPolls
}

// latch reports whether the write enable latch is set.
func (c *Chip) latch() bool { return c.sr1&srWEL != 0 }

func (c *Chip) writeStatus(op byte, out []byte) bool {
	if len(out) == 0 {
		return false
	}
	volatile := c.volatileWE
	if !volatile && !c.latch() {
		return false
	}
	c.volatileWE = false
	switch op {
	case opWriteStatus:
		c.sr1 = c.sr1&0b11 | out[0]&^0b11
		if len(out) > 1 {
			c.sr2 = out[1]
		}
	case opWriteStatus2:
		c.sr2 = out[0]
	}
	if !volatile {
		c.startBusy()
	}
	return true
}

func (c *Chip) program(addr uint32, data []byte) {
	base := int(addr) % len(c.mem) &^ (pageSize - 1)
	off := int(addr) & (pageSize - 1)
	for i, b := range data {
		c.mem[base+(off+i)%pageSize] &= b
	}
}

func (c *Chip) erase(addr uint32, size int) {
	start := int(addr) % len(c.mem) &^ (size - 1)
	fill(c.mem[start:start+size], 0xFF)
}

func eraseSize(op byte) int {
	switch op {
	case opErase32K:
		return 32 << 10
	case opErase64K:
		return 64 << 10
	}
	return 4 << 10
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// Ops returns the frames seen since the last ResetOps.
func (c *Chip) Ops() []Op {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Op(nil), c.ops...)
}

// OpsFor returns the logged frames with the given instruction.
func (c *Chip) OpsFor(instruction byte) []Op {
	var ops []Op
	for _, o := range c.Ops() {
		if o.Instruction == instruction {
			ops = append(ops, o)
		}
	}
	return ops
}

// ResetOps clears the frame log.
func (c *Chip) ResetOps() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = nil
}

// SetStatus overwrites both status registers, bypassing write protection
// and the write enable latch.
func (c *Chip) SetStatus(sr1, sr2 byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sr1, c.sr2 = sr1, sr2
}

// Status returns both status registers. BUSY is included while an
// operation is in progress.
func (c *Chip) Status() (sr1, sr2 byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status1(), c.sr2
}

// PoweredDown reports whether the chip is in deep power-down.
func (c *Chip) PoweredDown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poweredDown
}

// Size returns the array size in bytes.
func (c *Chip) Size() int { return len(c.mem) }

// Load writes data into the array directly, replacing what was there.
func (c *Chip) Load(off int, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copy(c.mem[off:], data)
}

// Bytes returns a copy of n bytes of the array at off.
func (c *Chip) Bytes(off, n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.mem[off:off+n]...)
}

// ReadAt reads the array directly, as the memory-mapped window does.
func (c *Chip) ReadAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if off < 0 || off >= int64(len(c.mem)) {
		return 0, errors.Errorf("flashtest: offset %#x out of range", off)
	}
	n := copy(p, c.mem[off:])
	if n < len(p) {
		return n, errors.New("flashtest: read past end of chip")
	}
	return n, nil
}
