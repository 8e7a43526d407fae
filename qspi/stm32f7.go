//go:build tinygo && stm32f7

package qspi

import (
	"bytes"

	"github.com/gentam/n0110/internal/reg"
)

const (
	stm32f7Base   uintptr = 0xA000_1000
	stm32f7Window uintptr = 0x9000_0000
)

// STM32F7 returns the register block of the on-chip QUADSPI peripheral.
func STM32F7() *Registers {
	return &Registers{
		CR:  reg.At32(stm32f7Base + 0x00),
		DCR: reg.At32(stm32f7Base + 0x04),
		SR:  reg.At32(stm32f7Base + 0x08),
		FCR: reg.At32(stm32f7Base + 0x0C),
		DLR: reg.At32(stm32f7Base + 0x10),
		CCR: reg.At32(stm32f7Base + 0x14),
		AR:  reg.At32(stm32f7Base + 0x18),
		ABR: reg.At32(stm32f7Base + 0x1C),
		DR:  reg.At8(stm32f7Base + 0x20),
	}
}

// STM32F7Window is the memory-mapped flash region for a chip of the given
// size. Reads through it are only meaningful after MemoryMap.
func STM32F7Window(size int) *bytes.Reader {
	return bytes.NewReader(reg.Window(stm32f7Window, size))
}
