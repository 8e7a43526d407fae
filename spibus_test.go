package n0110

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus/hooks/test"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/gentam/n0110/flash"
	"github.com/gentam/n0110/flash/flashtest"
	"github.com/gentam/n0110/qspi"
)

func newSPIBus(c *qt.C) (*SPIBus, *flashtest.Chip, *gpiotest.Pin) {
	chip := flashtest.NewChip()
	cs := &gpiotest.Pin{N: "D3", Num: 3, L: gpio.Low}
	logger, _ := test.NewNullLogger()
	bus, err := NewSPIBus(&flashtest.Conn{Chip: chip, CS: cs}, cs, logger)
	c.Assert(err, qt.IsNil)
	c.Assert(cs.Read(), qt.Equals, gpio.High)
	return bus, chip, cs
}

func TestSPIBusFlash(t *testing.T) {
	c := qt.New(t)
	bus, chip, cs := newSPIBus(c)

	u, err := flash.New(bus, flash.WithProfile(flash.SingleProfile))
	c.Assert(err, qt.IsNil)
	f, err := u.Init(func(time.Duration) {})
	c.Assert(err, qt.IsNil)
	c.Assert(chip.PoweredDown(), qt.IsFalse)
	_, sr2 := chip.Status()
	c.Assert(flash.StatusRegister2(sr2).QuadEnabled(), qt.IsTrue)

	mfr, dev, err := f.ReadIDs()
	c.Assert(err, qt.IsNil)
	c.Assert([]byte{mfr, dev}, qt.DeepEquals, []byte{0x1F, 0x16})

	id, err := f.ReadJEDECID()
	c.Assert(err, qt.IsNil)
	c.Assert(id, qt.Equals, [3]byte{0x1F, 0x32, 0x17})

	data := []byte("over the SPI link, across a page boundary")
	c.Assert(f.ProgramPage(0xF0, data), qt.IsNil)
	c.Assert(chip.OpsFor(0x02), qt.HasLen, 2)

	got := make([]byte, len(data))
	c.Assert(f.ReadBytes(0xF0, got), qt.IsNil)
	c.Assert(string(got), qt.Equals, string(data))

	reads := chip.OpsFor(0x0B)
	c.Assert(reads, qt.HasLen, 1)
	c.Assert(reads[0].Address, qt.Equals, uint32(0xF0))
	c.Assert(reads[0].InLen, qt.Equals, len(data))

	chip.Load(0x1000, []byte{0})
	s, err := f.EraseSector(0x1234)
	c.Assert(err, qt.IsNil)
	c.Assert(s, qt.Equals, flash.Sector{Offset: 0x1000, Size: 4 << 10})
	c.Assert(chip.Bytes(0x1000, 1), qt.DeepEquals, []byte{0xFF})
	c.Assert(chip.Bytes(0xF0, len(data)), qt.DeepEquals, data)

	for _, op := range chip.Ops() {
		c.Assert(op.Ignored, qt.IsFalse, qt.Commentf("%s", op))
	}
	c.Assert(cs.Read(), qt.Equals, gpio.High)

	_, err = f.IntoMemoryMapped()
	c.Assert(err, qt.ErrorIs, flash.ErrUnsupported)
}

func TestSPIBusRejects(t *testing.T) {
	c := qt.New(t)
	bus, chip, _ := newSPIBus(c)

	quad := &qspi.Transaction{
		Mode:             qspi.IndirectRead,
		Instruction:      0x05,
		InstructionWidth: qspi.Single,
		DataWidth:        qspi.Quad,
	}
	c.Assert(bus.Exec(quad, make([]byte, 1)), qt.ErrorIs, ErrWidth)

	dummy := &qspi.Transaction{
		Mode:             qspi.IndirectRead,
		Instruction:      0x0B,
		InstructionWidth: qspi.Single,
		AddressWidth:     qspi.Single,
		AddressSize:      qspi.ThreeBytes,
		DataWidth:        qspi.Single,
		DummyCycles:      6,
	}
	c.Assert(bus.Exec(dummy, make([]byte, 1)), qt.ErrorIs, ErrDummy)

	mapped := &qspi.Transaction{Mode: qspi.MemoryMapped, Instruction: 0xEB, InstructionWidth: qspi.Single}
	c.Assert(bus.Exec(mapped, nil), qt.ErrorIs, qspi.ErrMode)

	wren := &qspi.Transaction{Mode: qspi.IndirectWrite, Instruction: 0x06, InstructionWidth: qspi.Single}
	c.Assert(bus.Exec(wren, []byte{1}), qt.ErrorIs, qspi.ErrDataPhase)

	c.Assert(chip.Ops(), qt.HasLen, 0)
}

func TestSPIBusFrame(t *testing.T) {
	c := qt.New(t)
	bus, chip, _ := newSPIBus(c)

	// The alternate byte follows the instruction on the wire.
	wake := &qspi.Transaction{Mode: qspi.IndirectWrite, Instruction: 0xAB, InstructionWidth: qspi.Single}
	c.Assert(bus.Exec(wake, nil), qt.IsNil)
	wev := &qspi.Transaction{Mode: qspi.IndirectWrite, Instruction: 0x50, InstructionWidth: qspi.Single}
	c.Assert(bus.Exec(wev, nil), qt.IsNil)
	wrsr := &qspi.Transaction{
		Mode:             qspi.IndirectWrite,
		Instruction:      0x01,
		InstructionWidth: qspi.Single,
		AlternateWidth:   qspi.Single,
		AlternateSize:    qspi.TwoBytes,
		Alternate:        0x1C02,
	}
	c.Assert(bus.Exec(wrsr, nil), qt.IsNil)

	ops := chip.OpsFor(0x01)
	c.Assert(ops, qt.HasLen, 1)
	c.Assert(ops[0].Out, qt.DeepEquals, []byte{0x1C, 0x02})
	sr1, sr2 := chip.Status()
	c.Assert(sr1, qt.Equals, byte(0x1C))
	c.Assert(sr2, qt.Equals, byte(0x02))
}

func TestSPIBusChipSelect(t *testing.T) {
	c := qt.New(t)
	chip := flashtest.NewChip()
	cs := &gpiotest.Pin{N: "D3", Num: 3}
	other := &gpiotest.Pin{N: "D4", Num: 4, L: gpio.High}

	// The conn checks a different pin than the bus drives.
	bus, err := NewSPIBus(&flashtest.Conn{Chip: chip, CS: other}, cs, nil)
	c.Assert(err, qt.IsNil)

	wren := &qspi.Transaction{Mode: qspi.IndirectWrite, Instruction: 0x06, InstructionWidth: qspi.Single}
	err = bus.Exec(wren, nil)
	c.Assert(err, qt.ErrorMatches, "n0110: .*: flashtest: chip select not asserted")
	c.Assert(cs.Read(), qt.Equals, gpio.High)
}
