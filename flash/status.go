package flash

import (
	"fmt"
	"strings"
)

// StatusRegister1 is the first status register of the flash chip.
//
//	Bits| [AT25SF641|Table 9-1]               | [W25Q128|7.1 Status Registers]
//	----+-------------------------------------+-------------------------------
//	7   | SRP0: Status register protect 0     | SRP: Status Register Protect
//	6   | SEC: Sector/block protect           | SEC: Sector protect
//	5   | TB: Top/bottom protect              | TB: Top/Bottom protect
//	4:2 | BP2-0: Block protect                | BP2-0: Block Protect bit 2-0
//	1   | WEL: Write enable latch             | WEL: Write Enable Latch
//	0   | RDY/BSY: Erase/program in progress  | BUSY: Erase/Write in progress
type StatusRegister1 byte

func (sr StatusRegister1) StatusRegisterProtect() bool { return sr&(1<<7) != 0 }
func (sr StatusRegister1) SectorProtect() bool         { return sr&(1<<6) != 0 }
func (sr StatusRegister1) TopBottom() bool             { return sr&(1<<5) != 0 }
func (sr StatusRegister1) BlockProtect() uint8         { return uint8(sr>>2) & 0b111 }
func (sr StatusRegister1) WriteEnabled() bool          { return sr&(1<<1) != 0 }
func (sr StatusRegister1) Busy() bool                  { return sr&(1<<0) != 0 }

func (sr StatusRegister1) String() string {
	s := []string{}
	if sr.StatusRegisterProtect() {
		s = append(s, "SRP0")
	}
	if sr.SectorProtect() {
		s = append(s, "SEC")
	}
	if sr.TopBottom() {
		s = append(s, "TB")
	}
	if bp := sr.BlockProtect(); bp != 0 {
		s = append(s, fmt.Sprintf("BP=%d", bp))
	}
	if sr.WriteEnabled() {
		s = append(s, "WEL")
	}
	if sr.Busy() {
		s = append(s, "BUSY")
	}
	return joinBits(byte(sr), s)
}

// StatusRegister2 is the second status register.
//
//	Bits| Field
//	----+-------------------------------------------
//	7   | SUS: Erase/program suspended
//	6   | CMP: Complement protect
//	5:3 | LB3-1: Security register lock bits
//	2   | reserved
//	1   | QE: Quad enable
//	0   | SRP1: Status register protect 1
type StatusRegister2 byte

// QuadEnable is the QE bit, written during initialisation.
const QuadEnable StatusRegister2 = 1 << 1

func (sr StatusRegister2) Suspended() bool             { return sr&(1<<7) != 0 }
func (sr StatusRegister2) ComplementProtect() bool     { return sr&(1<<6) != 0 }
func (sr StatusRegister2) LockBits() uint8             { return uint8(sr>>3) & 0b111 }
func (sr StatusRegister2) QuadEnabled() bool           { return sr&QuadEnable != 0 }
func (sr StatusRegister2) StatusRegisterProtect() bool { return sr&(1<<0) != 0 }

func (sr StatusRegister2) String() string {
	s := []string{}
	if sr.Suspended() {
		s = append(s, "SUS")
	}
	if sr.ComplementProtect() {
		s = append(s, "CMP")
	}
	if lb := sr.LockBits(); lb != 0 {
		s = append(s, fmt.Sprintf("LB=%d", lb))
	}
	if sr.QuadEnabled() {
		s = append(s, "QE")
	}
	if sr.StatusRegisterProtect() {
		s = append(s, "SRP1")
	}
	return joinBits(byte(sr), s)
}

func joinBits(v byte, s []string) string {
	b := fmt.Sprintf("%08b", v)
	if len(s) == 0 {
		return b
	}
	return b + " " + strings.Join(s, ",")
}
