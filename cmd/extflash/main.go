// Command extflash reads, programs and erases the external flash of an
// N0110 board, either through an FT232H wired to the flash pins or on an
// image file standing in for the chip.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
