package qspi

import "github.com/gentam/n0110/internal/reg"

// Registers is the QUADSPI register block.
//
//	Offset| Name  | Use
//	------+-------+-----------------------------------------------
//	0x00  | CR    | enable, prescaler, FIFO threshold, sample shift
//	0x04  | DCR   | flash size, chip select high time, clock mode
//	0x08  | SR    | busy, FIFO and transfer flags
//	0x0C  | FCR   | flag clear
//	0x10  | DLR   | data length - 1
//	0x14  | CCR   | communication configuration (see Transaction.CCR)
//	0x18  | AR    | address
//	0x1C  | ABR   | alternate bytes
//	0x20  | DR    | data FIFO
type Registers struct {
	CR  reg.Register
	DCR reg.Register
	SR  reg.Register
	FCR reg.Register
	DLR reg.Register
	CCR reg.Register
	AR  reg.Register
	ABR reg.Register

	// DR is accessed byte-wide so that every access moves exactly one
	// byte through the FIFO.
	DR reg.Register8
}

// CR
var (
	crEN        = reg.Bit(0)
	crSShift    = reg.Bit(4)
	crFThres    = reg.Field{Shift: 8, Width: 5}
	crPrescaler = reg.Field{Shift: 24, Width: 8}
)

// DCR
var (
	dcrCKMode = reg.Bit(0)
	dcrCSHT   = reg.Field{Shift: 8, Width: 3}
	dcrFSize  = reg.Field{Shift: 16, Width: 5}
)

// SR
var (
	srTCF  = reg.Bit(1)
	srFTF  = reg.Bit(2)
	srBusy = reg.Bit(5)
)

// FCR
var (
	fcrCTCF = reg.Bit(1)
)

// CCR
var (
	ccrInstruction = reg.Field{Shift: 0, Width: 8}
	ccrIMode       = reg.Field{Shift: 8, Width: 2}
	ccrADMode      = reg.Field{Shift: 10, Width: 2}
	ccrADSize      = reg.Field{Shift: 12, Width: 2}
	ccrABMode      = reg.Field{Shift: 14, Width: 2}
	ccrABSize      = reg.Field{Shift: 16, Width: 2}
	ccrDCyc        = reg.Field{Shift: 18, Width: 5}
	ccrDMode       = reg.Field{Shift: 24, Width: 2}
	ccrFMode       = reg.Field{Shift: 26, Width: 2}
	ccrSIOO        = reg.Bit(28)
)

// Exported masks for code that models the peripheral.
var (
	SRBusy   = srBusy.Mask()
	SRTCF    = srTCF.Mask()
	SRFTF    = srFTF.Mask()
	FCRCTCF  = fcrCTCF.Mask()
	CRSShift = crSShift.Mask()
)

// CRPrescaler extracts the prescaler from a CR value.
func CRPrescaler(cr uint32) uint8 { return uint8(crPrescaler.Get(cr)) }

// DCRFlashSize extracts the FSIZE field from a DCR value.
func DCRFlashSize(dcr uint32) uint8 { return uint8(dcrFSize.Get(dcr)) }
