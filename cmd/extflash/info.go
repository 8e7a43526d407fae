package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"periph.io/x/host/v3/ftdi"

	"github.com/gentam/n0110/dfu"
	"github.com/gentam/n0110/flash"
)

func newInfoCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Identify the chip and show its status registers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			t, err := o.open(false)
			if err != nil {
				return err
			}
			defer closeTarget(t, &err)

			w := cmd.OutOrStdout()
			if t.ftdi != nil {
				if err := printFTDI(w, t.ftdi); err != nil {
					return err
				}
			}
			return printChip(w, t.chip)
		},
	}
}

func printChip(w io.Writer, f *flash.Indirect) error {
	params, id, known, err := f.Identify()
	if err != nil {
		return err
	}
	mfr, dev, err := f.ReadIDs()
	if err != nil {
		return err
	}
	sr1, err := f.ReadStatusRegister1()
	if err != nil {
		return err
	}
	sr2, err := f.ReadStatusRegister2()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "JEDEC ID:        %X\n", id)
	fmt.Fprintf(w, "Device ID:       %02X %02X\n", mfr, dev)
	if known {
		fmt.Fprintf(w, "Chip:            %s\n", params.Name)
		fmt.Fprintf(w, "Wake-up:         %s\n", params.WakeUp())
	} else {
		color.New(color.FgYellow).Fprintf(w, "Chip:            unknown\n")
	}
	fmt.Fprintf(w, "Status 1:        %s\n", sr1)
	fmt.Fprintf(w, "Status 2:        %s\n", sr2)
	if !sr2.QuadEnabled() {
		color.New(color.FgRed).Fprintf(w, "Quad enable bit is clear\n")
	}
	fmt.Fprintf(w, "Layout:          %s\n", f.Geometry().Descriptor(dfu.MemoryName))
	return nil
}

// Reference: https://github.com/periph/cmd/tree/main/ftdi-list
func printFTDI(w io.Writer, ft *ftdi.FT232H) error {
	i := ftdi.Info{}
	ft.Info(&i)
	fmt.Fprintf(w, "Type:            %s\n", i.Type)
	fmt.Fprintf(w, "Vendor ID:       %#04x\n", i.VenID)
	fmt.Fprintf(w, "Product ID:      %#04x\n", i.DevID)

	ee := ftdi.EEPROM{}
	if err := ft.EEPROM(&ee); err != nil {
		return errors.Wrap(err, "failed to read EEPROM")
	}
	fmt.Fprintf(w, "Manufacturer:    %s\n", ee.Manufacturer)
	fmt.Fprintf(w, "Desc:            %s\n", ee.Desc)
	fmt.Fprintf(w, "Serial:          %s\n", ee.Serial)
	if h := ee.AsHeader(); h != nil {
		fmt.Fprintf(w, "MaxPower:        %dmA\n", h.MaxPower)
	}
	return nil
}
