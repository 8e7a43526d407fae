package n0110

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"

	"github.com/gentam/n0110/qspi"
)

var (
	ErrWidth = errors.New("n0110: SPI link only drives single-line phases")
	ErrDummy = errors.New("n0110: dummy cycles must be whole bytes on SPI")
)

// SPIBus runs flash transactions over a plain SPI connection with a
// software chip select. Every phase is serialized into one frame:
// instruction, address, alternate bytes, dummy bytes, data.
//
// It implements flash.Bus but not flash.Mapper.
type SPIBus struct {
	conn spi.Conn
	cs   gpio.PinOut
	log  logrus.FieldLogger
}

// NewSPIBus returns a bus on conn. cs is driven low for the duration of
// each transaction and is left high.
func NewSPIBus(conn spi.Conn, cs gpio.PinOut, log logrus.FieldLogger) (*SPIBus, error) {
	if err := cs.Out(gpio.High); err != nil {
		return nil, errors.Wrap(err, "n0110: chip select")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &SPIBus{conn: conn, cs: cs, log: log}, nil
}

// Exec implements flash.Bus.
func (b *SPIBus) Exec(t *qspi.Transaction, data []byte) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Mode != qspi.IndirectWrite && t.Mode != qspi.IndirectRead {
		return errors.Wrapf(qspi.ErrMode, "%s", t.Mode)
	}
	for _, w := range []qspi.Width{t.InstructionWidth, t.AddressWidth, t.AlternateWidth, t.DataWidth} {
		if w != qspi.None && w != qspi.Single {
			return errors.Wrapf(ErrWidth, "%s", t)
		}
	}
	if t.DummyCycles%8 != 0 {
		return errors.Wrapf(ErrDummy, "%d cycles", t.DummyCycles)
	}
	if t.HasData() != (len(data) > 0) {
		return errors.Wrapf(qspi.ErrDataPhase, "%s with %d data bytes", t, len(data))
	}

	buf := make([]byte, 0, 1+4+4+qspi.MaxDummyCycles/8+len(data))
	if t.InstructionWidth != qspi.None {
		buf = append(buf, t.Instruction)
	}
	if t.HasAddress() {
		buf = appendBE(buf, t.Address, t.AddressSize.Bytes())
	}
	if t.HasAlternate() {
		buf = appendBE(buf, t.Alternate, t.AlternateSize.Bytes())
	}
	buf = append(buf, make([]byte, t.DummyCycles/8)...)
	hdr := len(buf)

	switch t.Mode {
	case qspi.IndirectWrite:
		buf = append(buf, data...)
	case qspi.IndirectRead:
		buf = append(buf, make([]byte, len(data))...)
	}

	if err := b.tx(buf); err != nil {
		return errors.Wrapf(err, "n0110: %s", t)
	}
	if t.Mode == qspi.IndirectRead {
		copy(data, buf[hdr:])
	}
	return nil
}

// tx wraps SPI transaction with CS assertion.
func (b *SPIBus) tx(buf []byte) (err error) {
	if err = b.cs.Out(gpio.Low); err != nil {
		return err
	}
	defer func() {
		if csErr := b.cs.Out(gpio.High); csErr != nil && err == nil {
			err = csErr
		}
	}()
	err = b.conn.Tx(buf, buf)
	return
}

func appendBE(buf []byte, v uint32, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}
