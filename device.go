package n0110

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	"github.com/gentam/n0110/flash"
)

// Device is an FT232H wired to the external flash of an N0110 board, with
// the MCU held in reset so that it leaves the flash lines alone.
type Device struct {
	FTDI *ftdi.FT232H

	cs    gpio.PinIO // ADBUS3 Chip Select
	reset gpio.PinIO // ADBUS7 MCU NRST

	clock physic.Frequency
	port  spi.PortCloser
	conn  spi.Conn
	bus   *SPIBus
	log   logrus.FieldLogger
}

var hostInitialized atomic.Bool

// DeviceOption configures NewDevice.
type DeviceOption func(*Device)

// WithClock sets the SPI clock. The MPSSE engine tops out at 30 MHz.
func WithClock(f physic.Frequency) DeviceOption {
	return func(d *Device) { d.clock = f }
}

// NewDevice finds the FT232H and opens an MPSSE/SPI connection to the
// flash.
func NewDevice(log logrus.FieldLogger, opts ...DeviceOption) (*Device, error) {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			return nil, errors.Wrap(err, "host initialization failed")
		}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	d := &Device{
		clock: 30 * physic.MegaHertz, // [FTDI-AN_135 3.2.1 Divisors]
		log:   log,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.clock <= 0 || d.clock > 30*physic.MegaHertz {
		return nil, errors.Errorf("n0110: SPI clock %s outside (0, 30MHz]", d.clock)
	}
	if err := d.findFT232H(); err != nil {
		return nil, err
	}

	// ADBUS0 | QSPI_CLK
	// ADBUS1 | QSPI_BK1_IO0 (chip DI)
	// ADBUS2 | QSPI_BK1_IO1 (chip DO)
	// ADBUS3 | QSPI_BK1_NCS
	// ADBUS7 | NRST
	// IO2 (/WP) and IO3 (/HOLD) are pulled up on the board.
	d.cs = d.FTDI.D3
	d.reset = d.FTDI.D7

	if err := d.HoldReset(gpio.Low); err != nil {
		return nil, errors.Wrap(err, "hold MCU in reset")
	}
	if err := d.connectSPI(); err != nil {
		return nil, err
	}
	bus, err := NewSPIBus(d.conn, d.cs, log)
	if err != nil {
		return nil, err
	}
	d.bus = bus
	log.WithFields(logrus.Fields{"ftdi": d.FTDI.String(), "clock": d.clock}).Debug("n0110: connected")
	return d, nil
}

// HoldReset drives the MCU reset line: Low keeps the MCU in reset, High
// releases it.
func (d *Device) HoldReset(l gpio.Level) error {
	return d.reset.Out(l)
}

// Flash returns the chip on the link. The SPI link drives one data line,
// so SingleProfile is forced.
func (d *Device) Flash(opts ...flash.Option) (*flash.Uninitialized, error) {
	opts = append([]flash.Option{flash.WithLogger(d.log)}, opts...)
	opts = append(opts, flash.WithProfile(flash.SingleProfile))
	return flash.New(d.bus, opts...)
}

// Close releases the SPI port and lets the MCU run.
func (d *Device) Close() error {
	err := d.HoldReset(gpio.High)
	if d.port != nil {
		if cerr := d.port.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

func (d *Device) findFT232H() error {
	const (
		vendorID  = 0x0403 // FTDI
		productID = 0x6014 // FT232H
	)

	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != vendorID || info.DevID != productID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			d.FTDI = ft
			return nil
		}
	}

	return errors.New("n0110: FT232H not found")
}

func (d *Device) connectSPI() (err error) {
	if d.FTDI == nil {
		return errors.New("n0110: FT232H device not found")
	}

	d.port, err = d.FTDI.SPI()
	if err != nil {
		return errors.Wrap(err, "failed to get SPI port")
	}

	// [FTDI-AN_114|1.2]> FTDI device can only support mode 0 and mode 2 due to the limitation of MPSSE engine
	// [AT25SF641|6. SPI Modes] mode 0 and mode 3 are supported
	// NoCS: chip select is driven through d.cs around each frame.
	d.conn, err = d.port.Connect(d.clock, spi.Mode0|spi.NoCS, 8)
	return err
}
