package flashtest

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
)

// Conn is a single-line SPI connection to a Chip. Each Tx is one
// chip-select cycle; the frame is split into instruction, address, dummy
// and data bytes using the chip's command layouts.
//
// If CS is set, Tx fails unless it reads low.
type Conn struct {
	Chip *Chip
	CS   gpio.PinIn
}

var _ spi.Conn = (*Conn)(nil)

// layout is the header of a single-line frame after the instruction byte.
type layout struct {
	addr  int
	dummy int
	read  bool
}

var layouts = map[byte]layout{
	opPageProgram:      {addr: 3},
	opQuadPageProgram:  {addr: 3},
	opErase4K:          {addr: 3},
	opErase32K:         {addr: 3},
	opErase64K:         {addr: 3},
	opReadData:         {addr: 3, read: true},
	opFastRead:         {addr: 3, dummy: 1, read: true},
	opFastReadQuadIO:   {addr: 3, dummy: 3, read: true},
	opReadIDs:          {addr: 3, read: true},
	opReadStatus1:      {read: true},
	opReadStatus2:      {read: true},
	opReadJEDECID:      {read: true},
	opReleasePowerDown: {read: true},
}

func (c *Conn) String() string { return "flashtest.Conn" }

// Halt implements conn.Resource.
func (c *Conn) Halt() error { return nil }

// Duplex implements conn.Conn.
func (c *Conn) Duplex() conn.Duplex { return conn.Full }

// Tx implements conn.Conn.
func (c *Conn) Tx(w, r []byte) error {
	if r != nil && len(r) != len(w) {
		return errors.Errorf("flashtest: tx buffers differ in length: %d != %d", len(w), len(r))
	}
	if c.CS != nil && c.CS.Read() != gpio.Low {
		return errors.New("flashtest: chip select not asserted")
	}
	c.frame(w, r)
	return nil
}

// TxPackets implements spi.Conn. Packets with KeepCS set are joined with
// the following ones into one frame.
func (c *Conn) TxPackets(p []spi.Packet) error {
	for _, pk := range p {
		if pk.R != nil && len(pk.R) != len(pk.W) {
			return errors.New("flashtest: packet buffers differ in length")
		}
		if c.CS != nil && c.CS.Read() != gpio.Low {
			return errors.New("flashtest: chip select not asserted")
		}
	}
	var w []byte
	var rs [][]byte
	for _, pk := range p {
		w = append(w, pk.W...)
		if pk.R == nil {
			pk.R = make([]byte, len(pk.W))
		}
		rs = append(rs, pk.R)
		if pk.KeepCS {
			continue
		}
		r := make([]byte, len(w))
		c.frame(w, r)
		for _, dst := range rs {
			n := copy(dst, r)
			r = r[n:]
		}
		w, rs = nil, nil
	}
	if len(w) > 0 {
		return errors.New("flashtest: last packet keeps chip select asserted")
	}
	return nil
}

func (c *Conn) frame(w, r []byte) {
	if len(w) == 0 {
		return
	}
	l := layouts[w[0]]
	hdr := 1 + l.addr + l.dummy
	if hdr > len(w) {
		hdr = len(w)
	}
	f := &Frame{Instruction: w[0]}
	if l.addr > 0 && len(w) >= 1+l.addr {
		f.HasAddress = true
		for _, b := range w[1 : 1+l.addr] {
			f.Address = f.Address<<8 | uint32(b)
		}
	}
	if l.read {
		f.In = make([]byte, len(w)-hdr)
	} else {
		f.Out = w[hdr:]
	}
	c.Chip.Do(f)
	if r != nil {
		for i := range r[:hdr] {
			r[i] = 0xFF
		}
		copy(r[hdr:], f.In)
	}
}
