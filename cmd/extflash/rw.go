package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/snksoft/crc"
	"github.com/spf13/cobra"

	"github.com/gentam/n0110/flash"
)

// chunkSize keeps every SPI frame below the 64 KiB MPSSE transfer limit
// [FTDI-AN_108].
const chunkSize = 32 << 10

func readRange(f *flash.Indirect, off uint32, buf []byte) error {
	for done := 0; done < len(buf); {
		n := min(chunkSize, len(buf)-done)
		if err := f.ReadBytes(off+uint32(done), buf[done:done+n]); err != nil {
			return errors.Wrapf(err, "read %#06x", off+uint32(done))
		}
		done += n
	}
	return nil
}

// eraseRange erases every sector touching [off, off+n) and returns how
// many there were.
func eraseRange(f *flash.Indirect, off uint32, n int) (int, error) {
	var count int
	for a, end := off, off+uint32(n); a < end; count++ {
		s, err := f.EraseSector(a)
		if err != nil {
			return count, err
		}
		a = s.Offset + s.Size
	}
	return count, nil
}

func newReadCmd(o *options) *cobra.Command {
	var (
		addr   uint32
		n      int
		out    string
		mapped bool
	)
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read flash contents",
		Long:  `Read a range of the flash and hexdump it, or save it with -o.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			t, err := o.open(false)
			if err != nil {
				return err
			}
			defer closeTarget(t, &err)

			off, err := chipRange(t.chip.Geometry(), addr, n)
			if err != nil {
				return err
			}
			data := make([]byte, n)
			if mapped {
				m, err := t.chip.IntoMemoryMapped()
				if err != nil {
					return err
				}
				if _, err := m.ReadAt(data, int64(off)); err != nil {
					return errors.Wrap(err, "mapped read")
				}
			} else if err := readRange(t.chip, off, data); err != nil {
				return err
			}

			if out == "" {
				fmt.Fprint(cmd.OutOrStdout(), hex.Dump(data))
				return nil
			}
			return errors.Wrap(os.WriteFile(out, data, 0o644), "write file failed")
		},
	}
	cmd.Flags().Uint32VarP(&addr, "addr", "a", 0, "start address")
	cmd.Flags().IntVarP(&n, "length", "n", 256, "number of bytes to read")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: hexdump)")
	cmd.Flags().BoolVar(&mapped, "mapped", false, "read through memory-mapped mode")
	return cmd
}

func newWriteCmd(o *options) *cobra.Command {
	var (
		addr     uint32
		noErase  bool
		noVerify bool
	)
	cmd := &cobra.Command{
		Use:   "write FILE",
		Short: "Program a file into the flash",
		Long: `Erase the sectors covering the file, program it and read it back.
FILE may be - for standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if len(data) == 0 {
				return errors.New("nothing to write")
			}

			t, err := o.open(true)
			if err != nil {
				return err
			}
			defer closeTarget(t, &err)

			off, err := chipRange(t.chip.Geometry(), addr, len(data))
			if err != nil {
				return err
			}
			if !noErase {
				count, err := eraseRange(t.chip, off, len(data))
				if err != nil {
					return err
				}
				o.log.WithField("sectors", count).Info("erased")
			}
			if err := t.chip.ProgramPage(off, data); err != nil {
				return err
			}
			if !noVerify {
				back := make([]byte, len(data))
				if err := readRange(t.chip, off, back); err != nil {
					return err
				}
				if i := mismatch(data, back); i >= 0 {
					return errors.Errorf("verify failed at %#06x: wrote %#02x, read %#02x", off+uint32(i), data[i], back[i])
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes at %#06x, crc32 %08x\n",
				len(data), off, crc.CalculateCRC(crc.CRC32, data))
			return nil
		},
	}
	cmd.Flags().Uint32VarP(&addr, "addr", "a", 0, "start address")
	cmd.Flags().BoolVar(&noErase, "no-erase", false, "program without erasing first")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip the read back")
	return cmd
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(name)
	return data, errors.Wrap(err, "failed to open file")
}

func mismatch(a, b []byte) int {
	if bytes.Equal(a, b) {
		return -1
	}
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return len(a)
}

func newEraseCmd(o *options) *cobra.Command {
	var (
		addr uint32
		n    int
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase sectors or the whole chip",
		Long: `Erase every sector touching the range given by --addr and --length,
or the whole chip with --all.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if !all && n <= 0 {
				return errors.New("erase needs --length or --all")
			}
			t, err := o.open(true)
			if err != nil {
				return err
			}
			defer closeTarget(t, &err)

			w := cmd.OutOrStdout()
			if all {
				if err := t.chip.ChipErase(); err != nil {
					return err
				}
				fmt.Fprintln(w, "chip erased")
				return nil
			}
			off, err := chipRange(t.chip.Geometry(), addr, n)
			if err != nil {
				return err
			}
			count, err := eraseRange(t.chip, off, n)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "erased %d sectors\n", count)
			return nil
		},
	}
	cmd.Flags().Uint32VarP(&addr, "addr", "a", 0, "start address")
	cmd.Flags().IntVarP(&n, "length", "n", 0, "number of bytes to erase")
	cmd.Flags().BoolVar(&all, "all", false, "erase the whole chip")
	return cmd
}

func newCRCCmd(o *options) *cobra.Command {
	var (
		addr uint32
		n    int
	)
	cmd := &cobra.Command{
		Use:   "crc",
		Short: "Compute the CRC-32 of a flash range",
		Long: `Compute the CRC-32 (IEEE) of a flash range. Without --length the
range runs to the end of the chip.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			t, err := o.open(false)
			if err != nil {
				return err
			}
			defer closeTarget(t, &err)

			g := t.chip.Geometry()
			off, err := chipRange(g, addr, 0)
			if err != nil {
				return err
			}
			if n <= 0 {
				n = int(g.Size() - off)
			}
			if off, err = chipRange(g, off, n); err != nil {
				return err
			}

			h := crc.NewHash(crc.CRC32)
			buf := make([]byte, chunkSize)
			for done := 0; done < n; {
				b := buf[:min(chunkSize, n-done)]
				if err := readRange(t.chip, off+uint32(done), b); err != nil {
					return err
				}
				h.Update(b)
				done += len(b)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%08x\n", h.CRC32())
			return nil
		},
	}
	cmd.Flags().Uint32VarP(&addr, "addr", "a", 0, "start address")
	cmd.Flags().IntVarP(&n, "length", "n", 0, "number of bytes (default: to the end of the chip)")
	return cmd
}
