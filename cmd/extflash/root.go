package main

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"periph.io/x/conn/v3/physic"

	"github.com/gentam/n0110/flash"
)

type options struct {
	backend string
	image   string
	clock   physic.Frequency
	timeout time.Duration
	verbose bool

	log *logrus.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{
		clock: 30 * physic.MegaHertz,
		log:   logrus.New(),
	}
	root := &cobra.Command{
		Use:   "extflash",
		Short: "N0110 external flash tool",
		Long: `Read, program and erase the external flash of an N0110.

The ftdi backend talks to the chip through an FT232H while the MCU is held
in reset. The image backend works on a file holding the chip contents.
Addresses are chip offsets; mapped addresses from 0x90000000 are accepted too.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			o.log.SetOutput(cmd.ErrOrStderr())
			if o.verbose {
				o.log.SetLevel(logrus.DebugLevel)
			}
			if o.backend != backendFTDI && o.backend != backendImage {
				return errors.Errorf("unknown backend %q", o.backend)
			}
			return nil
		},
	}

	f := root.PersistentFlags()
	f.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")
	f.StringVarP(&o.backend, "backend", "b", backendFTDI, "flash access: ftdi or image")
	f.StringVar(&o.image, "image", "extflash.bin", "chip contents for the image backend")
	f.Var((*frequency)(&o.clock), "clock", "SPI clock of the ftdi backend")
	f.DurationVar(&o.timeout, "timeout", time.Minute, "deadline for one program or erase (0 waits forever)")

	root.AddCommand(
		newInfoCmd(o),
		newReadCmd(o),
		newWriteCmd(o),
		newEraseCmd(o),
		newCRCCmd(o),
		newGeometryCmd(),
	)
	return root
}

// frequency adapts physic.Frequency to pflag.
type frequency physic.Frequency

var _ pflag.Value = (*frequency)(nil)

func (f *frequency) String() string     { return physic.Frequency(*f).String() }
func (f *frequency) Set(s string) error { return (*physic.Frequency)(f).Set(s) }
func (f *frequency) Type() string       { return "frequency" }

// chipRange turns a user address and length into a chip offset, checking
// that the range lies on a chip of the given geometry.
func chipRange(g flash.Geometry, addr uint32, n int) (uint32, error) {
	if addr >= g.Base {
		addr -= g.Base
	}
	size := g.Size()
	if n < 0 || addr > size || uint32(n) > size-addr {
		return 0, errors.Errorf("range %#x+%#x beyond the %d byte chip", addr, n, size)
	}
	return addr, nil
}

// closeTarget closes t and reports its error unless *err is already set.
func closeTarget(t *target, err *error) {
	if cerr := t.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
