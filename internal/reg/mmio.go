//go:build tinygo

package reg

import (
	"runtime/volatile"
	"unsafe"
)

// At32 binds the 32-bit register at a fixed bus address.
func At32(addr uintptr) Register {
	return (*volatile.Register32)(unsafe.Pointer(addr))
}

// At8 binds a byte-wide access to the register at a fixed bus address.
func At8(addr uintptr) Register8 {
	return (*volatile.Register8)(unsafe.Pointer(addr))
}

// Window returns the memory-mapped region [addr, addr+size) as a byte slice.
func Window(addr uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
