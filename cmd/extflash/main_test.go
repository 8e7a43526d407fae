package main

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/snksoft/crc"

	"github.com/gentam/n0110/flash"
)

func run(args ...string) (string, error) {
	cmd := newRootCmd()
	var out, log bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&log)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func imageArgs(image string, args ...string) []string {
	return append([]string{"-b", "image", "--image", image}, args...)
}

func TestWriteReadImage(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	image := filepath.Join(dir, "flash.bin")
	in := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte("external flash "), 20)
	c.Assert(os.WriteFile(in, data, 0o644), qt.IsNil)
	sum := fmt.Sprintf("%08x", crc.CalculateCRC(crc.CRC32, data))

	out, err := run(imageArgs(image, "write", "--addr", "0x1f0", in)...)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, fmt.Sprintf("wrote %d bytes at 0x01f0, crc32 %s\n", len(data), sum))

	stored, err := os.ReadFile(image)
	c.Assert(err, qt.IsNil)
	c.Assert(stored, qt.HasLen, flash.Size)
	c.Assert(stored[0x1f0:0x1f0+len(data)], qt.DeepEquals, data)

	back := filepath.Join(dir, "back.bin")
	_, err = run(imageArgs(image, "read", "-a", "0x900001f0", "-n", fmt.Sprint(len(data)), "-o", back)...)
	c.Assert(err, qt.IsNil)
	got, err := os.ReadFile(back)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.DeepEquals, data)

	out, err = run(imageArgs(image, "crc", "-a", "0x1f0", "-n", fmt.Sprint(len(data)))...)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, sum+"\n")
}

func TestWriteStdin(t *testing.T) {
	c := qt.New(t)
	image := filepath.Join(t.TempDir(), "flash.bin")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("n0110"))
	cmd.SetArgs(imageArgs(image, "write", "-a", "0x10000", "-"))
	c.Assert(cmd.Execute(), qt.IsNil)

	stored, err := os.ReadFile(image)
	c.Assert(err, qt.IsNil)
	c.Assert(string(stored[0x10000:0x10005]), qt.Equals, "n0110")
}

func TestReadMapped(t *testing.T) {
	c := qt.New(t)
	image := filepath.Join(t.TempDir(), "flash.bin")
	content := bytes.Repeat([]byte{0xFF}, flash.Size)
	copy(content[0x40:], "mapped")
	c.Assert(os.WriteFile(image, content, 0o644), qt.IsNil)

	out, err := run(imageArgs(image, "read", "--mapped", "-a", "0x40", "-n", "16")...)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, hex.Dump(content[0x40:0x50]))
}

func TestEraseImage(t *testing.T) {
	c := qt.New(t)
	image := filepath.Join(t.TempDir(), "flash.bin")
	content := make([]byte, flash.Size)
	c.Assert(os.WriteFile(image, content, 0o644), qt.IsNil)

	out, err := run(imageArgs(image, "erase", "-a", "0x1000", "-n", "0x1001")...)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, "erased 2 sectors\n")

	stored, err := os.ReadFile(image)
	c.Assert(err, qt.IsNil)
	c.Assert(stored[0x0FFF], qt.Equals, byte(0))
	c.Assert(stored[0x1000], qt.Equals, byte(0xFF))
	c.Assert(stored[0x2FFF], qt.Equals, byte(0xFF))
	c.Assert(stored[0x3000], qt.Equals, byte(0))

	_, err = run(imageArgs(image, "erase")...)
	c.Assert(err, qt.ErrorMatches, "erase needs --length or --all")

	out, err = run(imageArgs(image, "erase", "--all")...)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, "chip erased\n")
	stored, err = os.ReadFile(image)
	c.Assert(err, qt.IsNil)
	c.Assert(bytes.Count(stored, []byte{0xFF}), qt.Equals, flash.Size)
}

func TestInfoImage(t *testing.T) {
	c := qt.New(t)
	image := filepath.Join(t.TempDir(), "flash.bin")
	c.Assert(os.WriteFile(image, make([]byte, flash.Size), 0o644), qt.IsNil)

	out, err := run(imageArgs(image, "info")...)
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Contains, "JEDEC ID:        1F3217\n")
	c.Assert(out, qt.Contains, "Device ID:       1F 16\n")
	c.Assert(out, qt.Contains, "Chip:            Adesto AT25SF641\n")
	c.Assert(out, qt.Contains, "Wake-up:         8µs\n")
	c.Assert(out, qt.Contains, "Layout:          @ExternalFlash/0x90000000/08*004Kg,01*032Kg,63*064Kg,64*064Kg\n")
}

func TestGeometry(t *testing.T) {
	c := qt.New(t)

	out, err := run("geometry")
	c.Assert(err, qt.IsNil)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	c.Assert(lines, qt.HasLen, 6)
	c.Assert(lines[0], qt.Equals, "@ExternalFlash/0x90000000/08*004Kg,01*032Kg,63*064Kg,64*064Kg")
	c.Assert(strings.Fields(lines[2]), qt.DeepEquals, []string{"0x90000000", "0x90007fff", "8", "4K"})
	c.Assert(strings.Fields(lines[5]), qt.DeepEquals, []string{"0x90400000", "0x907fffff", "64", "64K"})
}

func TestOpenErrors(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()

	_, err := run("-b", "usb", "info")
	c.Assert(err, qt.ErrorMatches, `unknown backend "usb"`)

	_, err = run(imageArgs(filepath.Join(dir, "missing.bin"), "info")...)
	c.Assert(err, qt.ErrorMatches, "read image: .*")

	short := filepath.Join(dir, "short.bin")
	c.Assert(os.WriteFile(short, make([]byte, 16), 0o644), qt.IsNil)
	_, err = run(imageArgs(short, "read")...)
	c.Assert(err, qt.ErrorMatches, `.*short.bin: 16 bytes, want 8388608`)
}

func TestChipRange(t *testing.T) {
	tests := []struct {
		addr uint32
		n    int
		want uint32
		err  string
	}{
		{addr: 0, n: flash.Size, want: 0},
		{addr: 0x9000_0100, n: 16, want: 0x100},
		{addr: flash.Size - 1, n: 1, want: flash.Size - 1},
		{addr: flash.Size, n: 0, want: flash.Size},
		{addr: flash.Size - 1, n: 2, err: `range 0x7fffff\+0x2 beyond the 8388608 byte chip`},
		{addr: 0x9080_0000, n: 1, err: `range 0x800000\+0x1 beyond .*`},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%#x+%d", tt.addr, tt.n), func(t *testing.T) {
			c := qt.New(t)
			got, err := chipRange(flash.N0110, tt.addr, tt.n)
			if tt.err != "" {
				c.Assert(err, qt.ErrorMatches, tt.err)
				return
			}
			c.Assert(err, qt.IsNil)
			c.Assert(got, qt.Equals, tt.want)
		})
	}
}
