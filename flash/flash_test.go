package flash_test

import (
	"bytes"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/gentam/n0110/flash"
	"github.com/gentam/n0110/flash/flashtest"
	"github.com/gentam/n0110/qspi"
)

type rig struct {
	chip *flashtest.Chip
	p    *flashtest.Peripheral
	ctl  *qspi.Controller
}

func newRig(c *qt.C, opts ...flashtest.ChipOption) *rig {
	chip := flashtest.NewChip(opts...)
	p := flashtest.NewPeripheral(chip)
	cfg := qspi.DefaultConfig()
	cfg.Window = p.Window()
	ctl, err := qspi.NewController(p.Registers(), cfg)
	c.Assert(err, qt.IsNil)
	return &rig{chip: chip, p: p, ctl: ctl}
}

// ready returns an initialised chip with the frame log cleared.
func (r *rig) ready(c *qt.C, opts ...flash.Option) *flash.Indirect {
	u, err := flash.New(r.ctl, opts...)
	c.Assert(err, qt.IsNil)
	f, err := u.Init(func(time.Duration) {})
	c.Assert(err, qt.IsNil)
	r.chip.ResetOps()
	r.p.ClearLog()
	return f
}

func instructions(ops []flashtest.Op) []byte {
	var b []byte
	for _, o := range ops {
		b = append(b, o.Instruction)
	}
	return b
}

func TestInit(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	c.Assert(r.chip.PoweredDown(), qt.IsTrue)

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	u, err := flash.New(r.ctl, flash.WithLogger(logger))
	c.Assert(err, qt.IsNil)

	var delays []time.Duration
	f, err := u.Init(func(d time.Duration) { delays = append(delays, d) })
	c.Assert(err, qt.IsNil)
	c.Assert(f, qt.Not(qt.IsNil))

	c.Assert(delays, qt.DeepEquals, []time.Duration{3 * time.Microsecond})
	c.Assert(r.chip.PoweredDown(), qt.IsFalse)
	c.Assert(instructions(r.chip.Ops()), qt.DeepEquals, []byte{0xAB, 0x50, 0x31})
	c.Assert(r.chip.OpsFor(0x31)[0].Out, qt.DeepEquals, []byte{0x02})

	_, sr2 := r.chip.Status()
	c.Assert(flash.StatusRegister2(sr2).QuadEnabled(), qt.IsTrue)
	c.Assert(hook.LastEntry().Message, qt.Equals, "flash: initialized")

	_, err = u.Init(nil)
	c.Assert(err, qt.ErrorIs, flash.ErrConsumed)
}

func TestCommandsIgnoredBeforeInit(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)

	// A chip still in deep power-down does not answer.
	tx := qspi.Transaction{
		Mode:             qspi.IndirectRead,
		Instruction:      0x9F,
		InstructionWidth: qspi.Single,
		DataWidth:        qspi.Quad,
	}
	var id [3]byte
	c.Assert(r.ctl.Exec(&tx, id[:]), qt.IsNil)
	c.Assert(id, qt.Equals, [3]byte{0xFF, 0xFF, 0xFF})
	c.Assert(r.chip.Ops()[0].Ignored, qt.IsTrue)
}

func TestReadIDs(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	f := r.ready(c)

	mfr, dev, err := f.ReadIDs()
	c.Assert(err, qt.IsNil)
	c.Assert(mfr, qt.Equals, byte(0x1F))
	c.Assert(dev, qt.Equals, byte(0x16))

	txs := r.p.Transactions()
	c.Assert(txs, qt.HasLen, 1)
	c.Assert(txs[0].Instruction, qt.Equals, byte(0x90))
	c.Assert(txs[0].AddressWidth, qt.Equals, qspi.Quad)
	c.Assert(txs[0].DataWidth, qt.Equals, qspi.Quad)
	c.Assert(txs[0].LateSample, qt.IsTrue)
	c.Assert(r.p.CR()&qspi.CRSShift, qt.Equals, uint32(0))
}

func TestIdentify(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, flashtest.WithIDs(0xEF, 0x16, [3]byte{0xEF, 0x40, 0x17}))
	f := r.ready(c)

	p, id, ok, err := f.Identify()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(id, qt.Equals, [3]byte{0xEF, 0x40, 0x17})
	c.Assert(p.Name, qt.Equals, "Winbond W25Q64JV")
	c.Assert(p.Timeouts().Erase4K, qt.Equals, 400*time.Millisecond)

	r2 := newRig(c, flashtest.WithIDs(0x01, 0x02, [3]byte{1, 2, 3}))
	_, _, ok, err = r2.ready(c).Identify()
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
}

func TestStatusRegisters(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	f := r.ready(c)

	r.chip.SetStatus(0b1011_1000, 0b0100_0010)
	sr1, err := f.ReadStatusRegister1()
	c.Assert(err, qt.IsNil)
	c.Assert(sr1.StatusRegisterProtect(), qt.IsTrue)
	c.Assert(sr1.TopBottom(), qt.IsTrue)
	c.Assert(sr1.BlockProtect(), qt.Equals, uint8(0b110))
	c.Assert(sr1.Busy(), qt.IsFalse)
	c.Assert(sr1.String(), qt.Equals, "10111000 SRP0,TB,BP=6")

	sr2, err := f.ReadStatusRegister2()
	c.Assert(err, qt.IsNil)
	c.Assert(sr2.ComplementProtect(), qt.IsTrue)
	c.Assert(sr2.QuadEnabled(), qt.IsTrue)
	c.Assert(sr2.String(), qt.Equals, "01000010 CMP,QE")
}

func TestStatusRegistersRoundTrip(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	f := r.ready(c)

	for v := 0; v < 256; v++ {
		r.chip.SetStatus(byte(v), byte(^v))
		sr1, err := f.ReadStatusRegister1()
		c.Assert(err, qt.IsNil)
		c.Assert(byte(sr1), qt.Equals, byte(v), qt.Commentf("status register 1 %08b", v))
		sr2, err := f.ReadStatusRegister2()
		c.Assert(err, qt.IsNil)
		c.Assert(byte(sr2), qt.Equals, byte(^v), qt.Commentf("status register 2 %08b", byte(^v)))
	}
}

func TestProgramAcrossPageBoundary(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	f := r.ready(c)

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i * 7)
	}
	c.Assert(f.ProgramPage(0x1C8, data), qt.IsNil)

	programs := r.chip.OpsFor(0x02)
	c.Assert(programs, qt.HasLen, 2)
	c.Assert(programs[0].Address, qt.Equals, uint32(0x1C8))
	c.Assert(programs[0].Out, qt.HasLen, 56)
	c.Assert(programs[1].Address, qt.Equals, uint32(0x200))
	c.Assert(programs[1].Out, qt.HasLen, 244)
	for _, op := range r.chip.Ops() {
		c.Assert(op.Ignored, qt.IsFalse, qt.Commentf("%s", op))
	}

	// Each chunk: write enable, program, status polls until idle.
	ins := instructions(r.chip.Ops())
	c.Assert(ins[:2], qt.DeepEquals, []byte{0x06, 0x02})
	second := bytes.IndexByte(ins[2:], 0x06) + 2
	c.Assert(ins[2:second], qt.Not(qt.HasLen), 0)
	for _, b := range ins[2:second] {
		c.Assert(b, qt.Equals, byte(0x05))
	}

	c.Assert(r.chip.Bytes(0x1C8, 300), qt.DeepEquals, data)
	c.Assert(r.chip.Bytes(0x1C7, 1), qt.DeepEquals, []byte{0xFF})
	c.Assert(r.chip.Bytes(0x1C8+300, 1), qt.DeepEquals, []byte{0xFF})

	got := make([]byte, 300)
	c.Assert(f.ReadBytes(0x1C8, got), qt.IsNil)
	c.Assert(got, qt.DeepEquals, data)
}

func TestProgramOnlyClearsBits(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	f := r.ready(c)

	c.Assert(f.ProgramPage(0, []byte{0xF0}), qt.IsNil)
	c.Assert(f.ProgramPage(0, []byte{0x3C}), qt.IsNil)
	c.Assert(r.chip.Bytes(0, 1), qt.DeepEquals, []byte{0x30})
}

func TestFastReadUsesDummyCycles(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	f := r.ready(c)

	buf := make([]byte, 16)
	c.Assert(f.ReadBytes(0x40, buf), qt.IsNil)
	c.Assert(f.ReadBytes(0x40, nil), qt.IsNil)

	txs := r.p.Transactions()
	c.Assert(txs, qt.HasLen, 1)
	c.Assert(txs[0].Instruction, qt.Equals, byte(0x0B))
	c.Assert(txs[0].DummyCycles, qt.Equals, uint8(6))
	c.Assert(txs[0].Address, qt.Equals, uint32(0x40))
	c.Assert(r.p.DLR(), qt.Equals, uint32(15))
}

func TestBlockErase(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, flashtest.WithBusyPolls(3))
	f := r.ready(c)

	r.chip.Load(0x0FFF, []byte{0, 0, 0})
	r.chip.Load(0x1FFF, []byte{0, 0})
	c.Assert(f.BlockErase4K(0x1010), qt.IsNil)

	c.Assert(r.chip.Bytes(0x0FFF, 1), qt.DeepEquals, []byte{0})
	c.Assert(r.chip.Bytes(0x1000, 1), qt.DeepEquals, []byte{0xFF})
	c.Assert(r.chip.Bytes(0x1FFF, 1), qt.DeepEquals, []byte{0xFF})
	c.Assert(r.chip.Bytes(0x2000, 1), qt.DeepEquals, []byte{0})

	// The bus is idle long before the chip: the erase only returns once
	// status register 1 stops reporting BUSY.
	ins := instructions(r.chip.Ops())
	c.Assert(ins, qt.DeepEquals, []byte{0x06, 0x20, 0x05, 0x05, 0x05, 0x05})
	sr1, _ := r.chip.Status()
	c.Assert(flash.StatusRegister1(sr1).Busy(), qt.IsFalse)
}

func TestEraseSector(t *testing.T) {
	tests := []struct {
		addr   uint32
		sector flash.Sector
		op     byte
	}{
		{0x0000, flash.Sector{Offset: 0, Size: 4 << 10}, 0x20},
		{0x7FFF, flash.Sector{Offset: 0x7000, Size: 4 << 10}, 0x20},
		{0x9000, flash.Sector{Offset: 0x8000, Size: 32 << 10}, 0x52},
		{0x12345, flash.Sector{Offset: 0x10000, Size: 64 << 10}, 0xD8},
		{0x7FFFFF, flash.Sector{Offset: 0x7F0000, Size: 64 << 10}, 0xD8},
	}
	for _, tt := range tests {
		c := qt.New(t)
		r := newRig(c)
		f := r.ready(c)
		r.chip.Load(int(tt.sector.Offset), []byte{0})

		s, err := f.EraseSector(tt.addr)
		c.Assert(err, qt.IsNil)
		c.Assert(s, qt.Equals, tt.sector)
		ops := r.chip.OpsFor(tt.op)
		c.Assert(ops, qt.HasLen, 1)
		c.Assert(ops[0].Address, qt.Equals, tt.sector.Offset)
		c.Assert(r.chip.Bytes(int(tt.sector.Offset), 1), qt.DeepEquals, []byte{0xFF})
	}

	c := qt.New(t)
	f := newRig(c).ready(c)
	_, err := f.EraseSector(flash.Size)
	c.Assert(err, qt.ErrorMatches, "flash: offset 0x800000 beyond chip")
}

func TestChipErase(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	f := r.ready(c)

	r.chip.Load(0, []byte{1, 2, 3})
	r.chip.Load(flash.Size-1, []byte{4})
	c.Assert(f.ChipErase(), qt.IsNil)
	c.Assert(r.chip.Bytes(0, 3), qt.DeepEquals, []byte{0xFF, 0xFF, 0xFF})
	c.Assert(r.chip.Bytes(flash.Size-1, 1), qt.DeepEquals, []byte{0xFF})
	c.Assert(instructions(r.chip.Ops())[:2], qt.DeepEquals, []byte{0x06, 0xC7})
}

func TestWriteDisableSendsWriteEnable(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	f := r.ready(c)

	c.Assert(f.WriteDisable(), qt.IsNil)
	c.Assert(instructions(r.chip.Ops()), qt.DeepEquals, []byte{0x06})
	sr1, _ := r.chip.Status()
	c.Assert(flash.StatusRegister1(sr1).WriteEnabled(), qt.IsTrue)
}

func TestWaitBusyTimeout(t *testing.T) {
	c := qt.New(t)
	r := newRig(c, flashtest.Stuck())
	f := r.ready(c,
		flash.WithTimeouts(flash.Uniform(2*time.Millisecond)),
		flash.WithPollInterval(100*time.Microsecond),
	)

	err := f.ProgramPage(0, []byte{0})
	c.Assert(err, qt.ErrorIs, flash.ErrTimeout)
	c.Assert(err, qt.ErrorMatches, "flash: program 0x0000: .*")

	// Everything but status reads is ignored while the chip is busy.
	c.Assert(f.WriteEnable(), qt.IsNil)
	ops := r.chip.Ops()
	c.Assert(ops[len(ops)-1].Ignored, qt.IsTrue)
	c.Assert(f.WaitBusy(), qt.ErrorIs, flash.ErrTimeout)
}

func TestMemoryMapped(t *testing.T) {
	c := qt.New(t)
	r := newRig(c)
	f := r.ready(c)

	c.Assert(f.ProgramPage(0x1000, []byte("hello")), qt.IsNil)
	m, err := f.IntoMemoryMapped()
	c.Assert(err, qt.IsNil)
	c.Assert(r.p.Mapped(), qt.IsTrue)

	tx, ok := r.p.MappedTransaction()
	c.Assert(ok, qt.IsTrue)
	c.Assert(tx, qt.DeepEquals, qspi.Transaction{
		Mode:                qspi.MemoryMapped,
		Instruction:         0xEB,
		InstructionWidth:    qspi.Single,
		AddressWidth:        qspi.Quad,
		AddressSize:         qspi.ThreeBytes,
		AlternateWidth:      qspi.Quad,
		AlternateSize:       qspi.OneByte,
		Alternate:           0x00,
		DataWidth:           qspi.Quad,
		DummyCycles:         4,
		SendInstructionOnce: true,
	})
	c.Assert(tx.CCR(), qt.Equals, uint32(0x1F10_EDEB))
	c.Assert(m.Geometry().Size(), qt.Equals, uint32(flash.Size))

	buf := make([]byte, 5)
	_, err = m.ReadAt(buf, 0x1000)
	c.Assert(err, qt.IsNil)
	c.Assert(string(buf), qt.Equals, "hello")

	// The indirect handle is gone.
	_, err = f.IntoMemoryMapped()
	c.Assert(err, qt.ErrorIs, flash.ErrConsumed)
	c.Assert(f.ProgramPage(0, []byte{0}), qt.ErrorIs, flash.ErrConsumed)
	c.Assert(f.BlockErase64K(0), qt.ErrorIs, flash.ErrConsumed)
	_, _, err = f.ReadIDs()
	c.Assert(err, qt.ErrorIs, flash.ErrConsumed)
	c.Assert(f.Geometry(), qt.DeepEquals, flash.Geometry{})
}

type plainBus struct{ n int }

func (b *plainBus) Exec(tx *qspi.Transaction, data []byte) error {
	b.n++
	return nil
}

func TestMemoryMappedUnsupported(t *testing.T) {
	c := qt.New(t)

	bus := &plainBus{}
	u, err := flash.New(bus)
	c.Assert(err, qt.IsNil)
	f, err := u.Init(func(time.Duration) {})
	c.Assert(err, qt.IsNil)
	c.Assert(bus.n, qt.Equals, 3)

	_, err = f.IntoMemoryMapped()
	c.Assert(err, qt.ErrorIs, flash.ErrUnsupported)
	// The handle stays usable.
	c.Assert(f.WriteEnable(), qt.IsNil)
}

func TestNewRejectsBadGeometry(t *testing.T) {
	c := qt.New(t)

	_, err := flash.New(nil)
	c.Assert(err, qt.ErrorMatches, "flash: nil bus")

	g := flash.Geometry{Classes: []flash.SectorClass{{Count: 1, Size: 4 << 10}, {Count: 1, Size: 64 << 10}}}
	_, err = flash.New(&plainBus{}, flash.WithGeometry(g))
	c.Assert(err, qt.ErrorMatches, "flash: sector class 1 starts at 0x1000, not aligned to 65536")
}
