package qspi

import (
	"fmt"

	"github.com/pkg/errors"
)

// Width is the number of lines used by one phase of a transaction.
type Width uint8

const (
	None   Width = 0b00
	Single Width = 0b01
	Dual   Width = 0b10
	Quad   Width = 0b11
)

func (w Width) String() string {
	switch w {
	case None:
		return "none"
	case Single:
		return "single"
	case Dual:
		return "dual"
	case Quad:
		return "quad"
	}
	return fmt.Sprintf("Width(%d)", uint8(w))
}

// Mode is the functional mode of the controller.
type Mode uint8

const (
	IndirectWrite Mode = 0b00
	IndirectRead  Mode = 0b01
	AutoPolling   Mode = 0b10
	MemoryMapped  Mode = 0b11
)

func (m Mode) String() string {
	switch m {
	case IndirectWrite:
		return "indirect-write"
	case IndirectRead:
		return "indirect-read"
	case AutoPolling:
		return "auto-polling"
	case MemoryMapped:
		return "memory-mapped"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// Size is the byte count of the address or alternate phase, encoded as
// count-1.
type Size uint8

const (
	OneByte    Size = 0b00
	TwoBytes   Size = 0b01
	ThreeBytes Size = 0b10
	FourBytes  Size = 0b11
)

// Bytes returns the number of bytes the size stands for.
func (s Size) Bytes() int { return int(s) + 1 }

// MaxDummyCycles is the largest value the DCYC field holds.
const MaxDummyCycles = 31

var (
	ErrInvalidWidth = errors.New("qspi: invalid phase width")
	ErrInvalidSize  = errors.New("qspi: invalid phase size")
	ErrDummyCycles  = errors.New("qspi: too many dummy cycles")
	ErrDataPhase    = errors.New("qspi: data does not match data phase")
	ErrMode         = errors.New("qspi: functional mode not allowed here")
)

// Transaction describes a single bus transaction. The length of the data
// phase is the length of the buffer handed to the bus together with it.
type Transaction struct {
	Mode Mode

	Instruction      byte
	InstructionWidth Width

	AddressWidth Width
	AddressSize  Size
	Address      uint32

	AlternateWidth Width
	AlternateSize  Size
	Alternate      uint32

	DataWidth   Width
	DummyCycles uint8

	// SendInstructionOnce lets memory-mapped reads continue without
	// repeating the instruction phase.
	SendInstructionOnce bool

	// LateSample shifts the read sampling point by half a clock for this
	// transaction. The controller releases the data lines late after the
	// address phase, and the resulting contention corrupts the first bit
	// sampled on the regular edge.
	LateSample bool
}

// Validate checks the descriptor fields against what the controller can
// encode.
func (t *Transaction) Validate() error {
	for _, w := range []Width{t.InstructionWidth, t.AddressWidth, t.AlternateWidth, t.DataWidth} {
		if w > Quad {
			return errors.Wrapf(ErrInvalidWidth, "width %d", w)
		}
	}
	if t.AddressSize > FourBytes || t.AlternateSize > FourBytes {
		return ErrInvalidSize
	}
	if t.DummyCycles > MaxDummyCycles {
		return errors.Wrapf(ErrDummyCycles, "%d", t.DummyCycles)
	}
	if t.Mode > MemoryMapped {
		return errors.Wrapf(ErrMode, "mode %d", t.Mode)
	}
	return nil
}

// HasAddress reports whether the transaction carries an address phase.
func (t *Transaction) HasAddress() bool { return t.AddressWidth != None }

// HasAlternate reports whether the transaction carries an alternate-byte phase.
func (t *Transaction) HasAlternate() bool { return t.AlternateWidth != None }

// HasData reports whether the transaction carries a data phase.
func (t *Transaction) HasData() bool { return t.DataWidth != None }

// CCR returns the communication configuration register value for t.
func (t *Transaction) CCR() uint32 {
	var v uint32
	v = ccrInstruction.Put(v, uint32(t.Instruction))
	v = ccrIMode.Put(v, uint32(t.InstructionWidth))
	v = ccrADMode.Put(v, uint32(t.AddressWidth))
	v = ccrADSize.Put(v, uint32(t.AddressSize))
	v = ccrABMode.Put(v, uint32(t.AlternateWidth))
	v = ccrABSize.Put(v, uint32(t.AlternateSize))
	v = ccrDCyc.Put(v, uint32(t.DummyCycles))
	v = ccrDMode.Put(v, uint32(t.DataWidth))
	v = ccrFMode.Put(v, uint32(t.Mode))
	if t.SendInstructionOnce {
		v = ccrSIOO.Put(v, 1)
	}
	return v
}

// Decode is the inverse of CCR. Address, alternate value and the late
// sample flag live in other registers and are left zero.
func Decode(ccr uint32) Transaction {
	return Transaction{
		Mode:                Mode(ccrFMode.Get(ccr)),
		Instruction:         byte(ccrInstruction.Get(ccr)),
		InstructionWidth:    Width(ccrIMode.Get(ccr)),
		AddressWidth:        Width(ccrADMode.Get(ccr)),
		AddressSize:         Size(ccrADSize.Get(ccr)),
		AlternateWidth:      Width(ccrABMode.Get(ccr)),
		AlternateSize:       Size(ccrABSize.Get(ccr)),
		DataWidth:           Width(ccrDMode.Get(ccr)),
		DummyCycles:         uint8(ccrDCyc.Get(ccr)),
		SendInstructionOnce: ccrSIOO.Get(ccr) != 0,
	}
}

func (t *Transaction) String() string {
	s := fmt.Sprintf("%s %#02x", t.Mode, t.Instruction)
	if t.HasAddress() {
		s += fmt.Sprintf(" addr=%#06x/%s", t.Address, t.AddressWidth)
	}
	if t.HasAlternate() {
		s += fmt.Sprintf(" alt=%#02x/%s", t.Alternate, t.AlternateWidth)
	}
	if t.DummyCycles > 0 {
		s += fmt.Sprintf(" dummy=%d", t.DummyCycles)
	}
	if t.HasData() {
		s += " data/" + t.DataWidth.String()
	}
	return s
}
