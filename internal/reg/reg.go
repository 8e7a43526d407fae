// Package reg is the only place that touches peripheral registers directly.
// Drivers describe registers as named bit fields and go through the
// interfaces here, so the same driver code runs on hardware (TinyGo, see
// mmio.go) and against a simulated peripheral.
package reg

// Register is a 32-bit peripheral register.
type Register interface {
	Get() uint32
	Set(value uint32)
}

// Register8 is a byte-wide view of a register. Data registers of FIFO based
// peripherals push or pop one byte per access through it.
type Register8 interface {
	Get() uint8
	Set(value uint8)
}

// Field is a contiguous bit field inside a 32-bit register.
type Field struct {
	Shift uint8
	Width uint8
}

// Bit returns the single-bit field at position n.
func Bit(n uint8) Field { return Field{Shift: n, Width: 1} }

// Mask returns the field bits in register position.
func (f Field) Mask() uint32 {
	return (1<<f.Width - 1) << f.Shift
}

// Get extracts the field from a register value.
func (f Field) Get(v uint32) uint32 {
	return (v & f.Mask()) >> f.Shift
}

// Put returns v with the field replaced by x. Bits of x beyond the field
// width are dropped.
func (f Field) Put(v, x uint32) uint32 {
	return v&^f.Mask() | (x<<f.Shift)&f.Mask()
}

// Modify performs a read/modify/write cycle.
func Modify(r Register, fn func(v uint32) uint32) {
	r.Set(fn(r.Get()))
}

func SetBits(r Register, mask uint32)      { r.Set(r.Get() | mask) }
func ClearBits(r Register, mask uint32)    { r.Set(r.Get() &^ mask) }
func HasBits(r Register, mask uint32) bool { return r.Get()&mask == mask }

// Word is a plain memory-backed register.
type Word uint32

func (w *Word) Get() uint32  { return uint32(*w) }
func (w *Word) Set(v uint32) { *w = Word(v) }

// Hook routes register accesses to functions. A nil OnGet reads as the last
// value written; a nil OnSet only stores the value.
type Hook struct {
	OnGet func() uint32
	OnSet func(v uint32)

	last uint32
}

func (h *Hook) Get() uint32 {
	if h.OnGet != nil {
		return h.OnGet()
	}
	return h.last
}

func (h *Hook) Set(v uint32) {
	h.last = v
	if h.OnSet != nil {
		h.OnSet(v)
	}
}

// Hook8 is the byte-wide counterpart of Hook.
type Hook8 struct {
	OnGet func() uint8
	OnSet func(v uint8)
}

func (h *Hook8) Get() uint8 {
	if h.OnGet != nil {
		return h.OnGet()
	}
	return 0
}

func (h *Hook8) Set(v uint8) {
	if h.OnSet != nil {
		h.OnSet(v)
	}
}
