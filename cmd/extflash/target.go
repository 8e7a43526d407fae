package main

import (
	"io/fs"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"periph.io/x/host/v3/ftdi"

	"github.com/gentam/n0110"
	"github.com/gentam/n0110/flash"
	"github.com/gentam/n0110/flash/flashtest"
	"github.com/gentam/n0110/qspi"
)

const (
	backendFTDI  = "ftdi"
	backendImage = "image"
)

// target is an initialised chip and the means to let go of it.
type target struct {
	chip *flash.Indirect
	ftdi *ftdi.FT232H // nil on the image backend

	close func() error
}

func (t *target) Close() error { return t.close() }

// open brings up the chip on the selected backend. Image backends opened
// for writing save the chip contents back on Close.
func (o *options) open(writable bool) (*target, error) {
	switch o.backend {
	case backendFTDI:
		return o.openFTDI()
	case backendImage:
		return o.openImage(writable)
	}
	return nil, errors.Errorf("unknown backend %q", o.backend)
}

func (o *options) flashOptions() []flash.Option {
	opts := []flash.Option{flash.WithLogger(o.log)}
	if o.timeout > 0 {
		opts = append(opts, flash.WithTimeouts(flash.Uniform(o.timeout)))
	}
	return opts
}

func (o *options) openFTDI() (*target, error) {
	d, err := n0110.NewDevice(o.log, n0110.WithClock(o.clock))
	if err != nil {
		return nil, err
	}
	u, err := d.Flash(o.flashOptions()...)
	if err != nil {
		d.Close()
		return nil, err
	}
	f, err := u.Init(nil)
	if err != nil {
		d.Close()
		return nil, errors.Wrap(err, "flash power up failed")
	}
	return &target{chip: f, ftdi: d.FTDI, close: d.Close}, nil
}

// openImage runs the chip model behind the QUADSPI register model and a
// controller configured like the board's.
func (o *options) openImage(writable bool) (*target, error) {
	chip := flashtest.NewChip()
	data, err := os.ReadFile(o.image)
	switch {
	case err == nil:
		if len(data) != chip.Size() {
			return nil, errors.Errorf("%s: %d bytes, want %d", o.image, len(data), chip.Size())
		}
		chip.Load(0, data)
	case errors.Is(err, fs.ErrNotExist) && writable:
		o.log.WithField("image", o.image).Info("starting from an erased image")
	default:
		return nil, errors.Wrap(err, "read image")
	}

	p := flashtest.NewPeripheral(chip)
	cfg := qspi.DefaultConfig()
	cfg.Gate = p
	cfg.Window = p.Window()
	cfg.Logger = o.log
	ctl, err := qspi.NewController(p.Registers(), cfg)
	if err != nil {
		return nil, err
	}
	u, err := flash.New(ctl, o.flashOptions()...)
	if err != nil {
		return nil, err
	}
	f, err := u.Init(nil)
	if err != nil {
		return nil, err
	}

	t := &target{chip: f, close: func() error { return nil }}
	if writable {
		t.close = func() error {
			return saveImage(o.image, chip.Bytes(0, chip.Size()), o.log)
		}
	}
	return t, nil
}

// saveImage writes next to name and renames over it, so an interrupted
// run never leaves a truncated image.
func saveImage(name string, data []byte, log logrus.FieldLogger) error {
	tmp := name + "~"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "write image")
	}
	if err := os.Rename(tmp, name); err != nil {
		return errors.Wrap(err, "write image")
	}
	log.WithField("image", name).Debug("image saved")
	return nil
}
