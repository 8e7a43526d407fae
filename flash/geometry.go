package flash

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	// Base is where the chip appears in the CPU address space once memory
	// mapped. DFU addresses are expressed against it.
	Base = 0x9000_0000
	// Size is the capacity of the N0110 external flash (2^23 bytes).
	Size = 8 << 20
	// PageSize is the program granularity. A program transaction never
	// crosses a page boundary.
	PageSize = 256

	n4K  = 8
	n32K = 1
	n64K = 127
)

// The sector layout must cover the chip exactly.
var _ = [1]struct{}{}[(n4K*(4<<10)+n32K*(32<<10)+n64K*(64<<10))-Size]

// SectorClass is a run of equally sized erase sectors.
type SectorClass struct {
	Count int
	Size  uint32
}

// Geometry lists the erase sectors of a chip in ascending address order.
type Geometry struct {
	Base    uint32
	Classes []SectorClass
}

// N0110 is the layout advertised for the external flash: small sectors
// first, then one 32K sector, then 64K sectors in two runs.
var N0110 = Geometry{
	Base: Base,
	Classes: []SectorClass{
		{Count: n4K, Size: 4 << 10},
		{Count: n32K, Size: 32 << 10},
		{Count: 63, Size: 64 << 10},
		{Count: n64K - 63, Size: 64 << 10},
	},
}

// Size returns the number of bytes covered by all sector classes.
func (g Geometry) Size() uint32 {
	var n uint32
	for _, c := range g.Classes {
		n += uint32(c.Count) * c.Size
	}
	return n
}

// Validate checks that every class is non-empty and uses a power of two
// sector size, and that every sector is aligned to its own size.
func (g Geometry) Validate() error {
	if len(g.Classes) == 0 {
		return errors.New("flash: geometry has no sectors")
	}
	var off uint32
	for i, c := range g.Classes {
		if c.Count <= 0 {
			return errors.Errorf("flash: sector class %d is empty", i)
		}
		if c.Size == 0 || c.Size&(c.Size-1) != 0 {
			return errors.Errorf("flash: sector class %d size %d is not a power of two", i, c.Size)
		}
		if off%c.Size != 0 {
			return errors.Errorf("flash: sector class %d starts at %#x, not aligned to %d", i, off, c.Size)
		}
		off += uint32(c.Count) * c.Size
	}
	return nil
}

// Sector is one erase unit.
type Sector struct {
	Offset uint32 // relative to the start of the chip
	Size   uint32
}

// SectorAt returns the sector containing the chip offset off.
func (g Geometry) SectorAt(off uint32) (Sector, bool) {
	var start uint32
	for _, c := range g.Classes {
		end := start + uint32(c.Count)*c.Size
		if off < end {
			return Sector{Offset: start + (off-start)/c.Size*c.Size, Size: c.Size}, true
		}
		start = end
	}
	return Sector{}, false
}

// Contains reports whether the absolute address addr lies on the chip.
func (g Geometry) Contains(addr uint32) bool {
	return addr >= g.Base && addr-g.Base < g.Size()
}

// Descriptor renders the DfuSe memory layout string, e.g.
//
//	@ExternalFlash/0x90000000/08*004Kg,01*032Kg,63*064Kg,64*064Kg
func (g Geometry) Descriptor(name string) string {
	parts := make([]string, len(g.Classes))
	for i, c := range g.Classes {
		parts[i] = fmt.Sprintf("%02d*%03dKg", c.Count, c.Size>>10)
	}
	return fmt.Sprintf("@%s/%#08x/%s", name, g.Base, strings.Join(parts, ","))
}
