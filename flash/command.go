package flash

import "fmt"

// Command is an instruction byte understood by the flash chip.
//
// [AT25SF641|Table 6-1 Command Listing], [W25Q128|8.1.2 Instruction Set Table 1]
type Command byte

const (
	CmdWriteStatusRegister  Command = 0x01
	CmdPageProgram          Command = 0x02
	CmdReadData             Command = 0x03
	CmdWriteDisable         Command = 0x04
	CmdReadStatusRegister1  Command = 0x05
	CmdWriteEnable          Command = 0x06
	CmdFastRead             Command = 0x0B
	CmdErase4KbyteBlock     Command = 0x20
	CmdWriteStatusRegister2 Command = 0x31
	CmdQuadPageProgram      Command = 0x33
	CmdReadStatusRegister2  Command = 0x35
	CmdEnableQPI            Command = 0x38
	CmdWriteEnableVolatile  Command = 0x50
	CmdErase32KbyteBlock    Command = 0x52
	CmdEnableReset          Command = 0x66
	CmdReadIDs              Command = 0x90
	CmdReset                Command = 0x99
	CmdReadJEDECID          Command = 0x9F
	CmdReleaseDeepPowerDown Command = 0xAB
	CmdDeepPowerDown        Command = 0xB9
	CmdSetReadParameters    Command = 0xC0
	CmdChipErase            Command = 0xC7
	CmdErase64KbyteBlock    Command = 0xD8
	CmdFastReadQuadIO       Command = 0xEB
)

var commandNames = map[Command]string{
	CmdWriteStatusRegister:  "WriteStatusRegister",
	CmdPageProgram:          "PageProgram",
	CmdReadData:             "ReadData",
	CmdWriteDisable:         "WriteDisable",
	CmdReadStatusRegister1:  "ReadStatusRegister1",
	CmdWriteEnable:          "WriteEnable",
	CmdFastRead:             "FastRead",
	CmdErase4KbyteBlock:     "Erase4KbyteBlock",
	CmdWriteStatusRegister2: "WriteStatusRegister2",
	CmdQuadPageProgram:      "QuadPageProgram",
	CmdReadStatusRegister2:  "ReadStatusRegister2",
	CmdEnableQPI:            "EnableQPI",
	CmdWriteEnableVolatile:  "WriteEnableVolatile",
	CmdErase32KbyteBlock:    "Erase32KbyteBlock",
	CmdEnableReset:          "EnableReset",
	CmdReadIDs:              "ReadIDs",
	CmdReset:                "Reset",
	CmdReadJEDECID:          "ReadJEDECID",
	CmdReleaseDeepPowerDown: "ReleaseDeepPowerDown",
	CmdDeepPowerDown:        "DeepPowerDown",
	CmdSetReadParameters:    "SetReadParameters",
	CmdChipErase:            "ChipErase",
	CmdErase64KbyteBlock:    "Erase64KbyteBlock",
	CmdFastReadQuadIO:       "FastReadQuadIO",
}

func (c Command) String() string {
	if s, ok := commandNames[c]; ok {
		return s
	}
	return fmt.Sprintf("Command(%#02x)", byte(c))
}
