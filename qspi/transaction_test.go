package qspi

import (
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestTransactionCCR(t *testing.T) {
	c := qt.New(t)

	mapped := Transaction{
		Mode:                MemoryMapped,
		Instruction:         0xEB,
		InstructionWidth:    Single,
		AddressWidth:        Quad,
		AddressSize:         ThreeBytes,
		AlternateWidth:      Quad,
		AlternateSize:       OneByte,
		DataWidth:           Quad,
		DummyCycles:         4,
		SendInstructionOnce: true,
	}
	c.Assert(mapped.CCR(), qt.Equals, uint32(0x1F10_EFEB))

	status := Transaction{
		Mode:             IndirectRead,
		Instruction:      0x05,
		InstructionWidth: Single,
		DataWidth:        Quad,
	}
	c.Assert(status.CCR(), qt.Equals, uint32(0x0700_0105))

	c.Assert(Decode(mapped.CCR()), qt.DeepEquals, mapped)
	c.Assert(Decode(status.CCR()), qt.DeepEquals, status)
}

func TestDecodeDropsOtherRegisters(t *testing.T) {
	c := qt.New(t)

	tx := Transaction{
		Mode:             IndirectWrite,
		Instruction:      0x02,
		InstructionWidth: Single,
		AddressWidth:     Quad,
		AddressSize:      ThreeBytes,
		Address:          0x1234,
		DataWidth:        Quad,
		LateSample:       true,
	}
	got := Decode(tx.CCR())
	c.Assert(got.Address, qt.Equals, uint32(0))
	c.Assert(got.LateSample, qt.IsFalse)
	c.Assert(got.Instruction, qt.Equals, byte(0x02))
	c.Assert(got.AddressWidth, qt.Equals, Quad)
}

func TestTransactionValidate(t *testing.T) {
	tests := []struct {
		name string
		tx   Transaction
		err  error
	}{
		{"ok", Transaction{InstructionWidth: Single, DataWidth: Quad, DummyCycles: 31}, nil},
		{"width", Transaction{InstructionWidth: 4}, ErrInvalidWidth},
		{"data width", Transaction{DataWidth: 7}, ErrInvalidWidth},
		{"address size", Transaction{AddressSize: 4}, ErrInvalidSize},
		{"alternate size", Transaction{AlternateSize: 9}, ErrInvalidSize},
		{"dummy", Transaction{DummyCycles: 32}, ErrDummyCycles},
		{"mode", Transaction{Mode: 4}, ErrMode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := qt.New(t)
			err := tt.tx.Validate()
			if tt.err == nil {
				c.Assert(err, qt.IsNil)
				return
			}
			c.Assert(err, qt.ErrorIs, tt.err)
		})
	}
}

func TestTransactionString(t *testing.T) {
	c := qt.New(t)

	tx := Transaction{
		Mode:             IndirectRead,
		Instruction:      0x0B,
		InstructionWidth: Single,
		AddressWidth:     Quad,
		AddressSize:      ThreeBytes,
		Address:          0x200,
		DataWidth:        Quad,
		DummyCycles:      6,
	}
	c.Assert(tx.String(), qt.Equals, "indirect-read 0xb addr=0x0200/quad dummy=6 data/quad")
	c.Assert(Width(9).String(), qt.Equals, "Width(9)")
	c.Assert(ThreeBytes.Bytes(), qt.Equals, 3)
}
