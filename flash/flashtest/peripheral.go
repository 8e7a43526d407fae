package flashtest

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/gentam/n0110/internal/reg"
	"github.com/gentam/n0110/qspi"
)

// ErrNotMapped is returned by the window of a Peripheral that has not been
// switched to memory-mapped mode.
var ErrNotMapped = errors.New("flashtest: peripheral is not memory-mapped")

// Peripheral is a register-level model of the STM32 QUADSPI controller
// with a Chip on its bus. It starts a transaction the way the hardware
// does: on the CCR write when there is no address phase, otherwise on the
// AR write; a write with a data phase is sent once DLR+1 bytes went
// through DR.
type Peripheral struct {
	Chip *Chip

	// BusyReads is how many SR reads report BUSY after each transaction.
	BusyReads int

	mu sync.Mutex

	regs qspi.Registers
	cr   reg.Hook
	dcr  reg.Hook
	sr   reg.Hook
	fcr  reg.Hook
	dlr  reg.Hook
	ccr  reg.Hook
	ar   reg.Hook
	abr  reg.Hook
	dr   reg.Hook8

	pending *pendingTx
	rx      []byte
	busy    int
	tcf     bool
	mapped  bool
	mapTx   qspi.Transaction

	clocked bool
	resets  int
	writes  []string
	txs     []qspi.Transaction
}

type pendingTx struct {
	tx       qspi.Transaction
	needAddr bool
	out      []byte
}

// NewPeripheral returns a peripheral wired to chip.
func NewPeripheral(chip *Chip) *Peripheral {
	p := &Peripheral{Chip: chip, BusyReads: 1}

	p.cr.OnSet = p.logged("CR", nil)
	p.dcr.OnSet = p.logged("DCR", nil)
	p.dlr.OnSet = p.logged("DLR", nil)
	p.abr.OnSet = p.logged("ABR", nil)
	p.ccr.OnSet = p.logged("CCR", p.onCCR)
	p.ar.OnSet = p.logged("AR", p.onAR)
	p.fcr.OnSet = p.logged("FCR", p.onFCR)
	p.sr.OnGet = p.onSR
	p.dr.OnSet = p.onDRWrite
	p.dr.OnGet = p.onDRRead

	p.regs = qspi.Registers{
		CR:  &p.cr,
		DCR: &p.dcr,
		SR:  &p.sr,
		FCR: &p.fcr,
		DLR: &p.dlr,
		CCR: &p.ccr,
		AR:  &p.ar,
		ABR: &p.abr,
		DR:  &p.dr,
	}
	return p
}

// Registers returns the register block to hand to qspi.NewController.
func (p *Peripheral) Registers() *qspi.Registers { return &p.regs }

// EnableClock implements qspi.ClockGate.
func (p *Peripheral) EnableClock() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clocked = true
}

// Reset implements qspi.ClockGate. It returns the registers to their reset
// values.
func (p *Peripheral) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	for _, r := range []*reg.Hook{&p.cr, &p.dcr, &p.dlr, &p.ccr, &p.ar, &p.abr} {
		fn := r.OnSet
		r.OnSet = nil
		r.Set(0)
		r.OnSet = fn
	}
	p.pending, p.rx, p.busy, p.tcf, p.mapped = nil, nil, 0, false, false
	p.mapTx = qspi.Transaction{}
}

// Clocked reports whether EnableClock was called.
func (p *Peripheral) Clocked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clocked
}

// Resets returns how often the peripheral was reset.
func (p *Peripheral) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// CR, DCR and DLR return the current register values.
func (p *Peripheral) CR() uint32  { return p.cr.Get() }
func (p *Peripheral) DCR() uint32 { return p.dcr.Get() }
func (p *Peripheral) DLR() uint32 { return p.dlr.Get() }

// Mapped reports whether the controller is in memory-mapped mode.
func (p *Peripheral) Mapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mapped
}

// MappedTransaction returns the read template programmed when the
// controller entered memory-mapped mode, with the alternate bytes from ABR.
func (p *Peripheral) MappedTransaction() (qspi.Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mapTx, p.mapped
}

// Writes returns the names of the registers written, in order.
func (p *Peripheral) Writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.writes...)
}

// Transactions returns the transactions started on the bus, with address,
// alternate bytes and the late sample flag filled in.
func (p *Peripheral) Transactions() []qspi.Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]qspi.Transaction(nil), p.txs...)
}

// ClearLog forgets recorded register writes and transactions.
func (p *Peripheral) ClearLog() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes, p.txs = nil, nil
}

// Window returns the memory-mapped region. Reads fail until the
// controller has been switched to memory-mapped mode.
func (p *Peripheral) Window() io.ReaderAt { return window{p} }

type window struct{ p *Peripheral }

func (w window) ReadAt(b []byte, off int64) (int, error) {
	if !w.p.Mapped() {
		return 0, ErrNotMapped
	}
	return w.p.Chip.ReadAt(b, off)
}

func (p *Peripheral) logged(name string, fn func(uint32)) func(uint32) {
	return func(v uint32) {
		p.mu.Lock()
		p.writes = append(p.writes, name)
		p.mu.Unlock()
		if fn != nil {
			fn(v)
		}
	}
}

func (p *Peripheral) onCCR(v uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx := qspi.Decode(v)
	if tx.Mode == qspi.MemoryMapped {
		if tx.HasAlternate() {
			tx.Alternate = p.abr.Get()
		}
		p.mapped = true
		p.mapTx = tx
		return
	}
	p.tcf = false
	p.pending = &pendingTx{tx: tx, needAddr: tx.HasAddress()}
	if !p.pending.needAddr {
		p.start()
	}
}

func (p *Peripheral) onAR(uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil && p.pending.needAddr {
		p.pending.needAddr = false
		p.start()
	}
}

func (p *Peripheral) onFCR(v uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v&qspi.FCRCTCF != 0 {
		p.tcf = false
	}
}

func (p *Peripheral) onSR() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var sr uint32
	if p.pending != nil {
		sr |= qspi.SRBusy
	} else if p.busy > 0 {
		sr |= qspi.SRBusy
		p.busy--
	}
	if p.tcf {
		sr |= qspi.SRTCF
	}
	if len(p.rx) > 0 {
		sr |= qspi.SRFTF
	}
	return sr
}

func (p *Peripheral) onDRWrite(b uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pt := p.pending
	if pt == nil || pt.needAddr || pt.tx.Mode != qspi.IndirectWrite {
		return
	}
	pt.out = append(pt.out, b)
	if len(pt.out) == p.length() {
		p.dispatch()
	}
}

func (p *Peripheral) onDRRead() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rx) == 0 {
		return 0
	}
	b := p.rx[0]
	p.rx = p.rx[1:]
	return b
}

func (p *Peripheral) length() int { return int(p.dlr.Get()) + 1 }

// start runs once the address phase is satisfied. Writes with a data phase
// wait for the FIFO to be filled.
func (p *Peripheral) start() {
	pt := p.pending
	if pt.tx.Mode == qspi.IndirectWrite && pt.tx.HasData() {
		return
	}
	p.dispatch()
}

func (p *Peripheral) dispatch() {
	pt := p.pending
	p.pending = nil

	tx := pt.tx
	tx.LateSample = p.cr.Get()&qspi.CRSShift != 0
	if tx.HasAddress() {
		tx.Address = p.ar.Get()
	}
	var out []byte
	if tx.HasAlternate() {
		tx.Alternate = p.abr.Get()
		n := tx.AlternateSize.Bytes()
		for i := n - 1; i >= 0; i-- {
			out = append(out, byte(tx.Alternate>>(8*i)))
		}
	}
	out = append(out, pt.out...)

	f := &Frame{
		Instruction: tx.Instruction,
		Address:     tx.Address,
		HasAddress:  tx.HasAddress(),
		Out:         out,
		LateSample:  tx.LateSample,
	}
	if tx.Mode == qspi.IndirectRead && tx.HasData() {
		f.In = make([]byte, p.length())
	}
	p.Chip.Do(f)

	p.rx = f.In
	p.txs = append(p.txs, tx)
	p.busy = p.BusyReads
	p.tcf = true
}
