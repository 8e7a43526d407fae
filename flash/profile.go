package flash

import "github.com/gentam/n0110/qspi"

// Profile selects the phase widths used for each operation. The opcodes
// stay the same; what changes is how many lines the bus drives per phase.
type Profile struct {
	Name string

	// Address and Data are the widths of the address and data phases of
	// reads, programs, erases, and register reads.
	Address qspi.Width
	Data    qspi.Width

	// ReadDummyCycles is the number of dummy cycles between the address
	// and data phases of FastRead.
	ReadDummyCycles uint8

	// LateSampleIDs enables the late sampling work-around for ReadIDs.
	LateSampleIDs bool
}

// QuadProfile is used with the QUADSPI controller: single-line
// instructions, four-line address and data.
var QuadProfile = Profile{
	Name:            "quad",
	Address:         qspi.Quad,
	Data:            qspi.Quad,
	ReadDummyCycles: 6,
	LateSampleIDs:   true,
}

// SingleProfile drives every phase on one line, for plain SPI links.
var SingleProfile = Profile{
	Name:            "single",
	Address:         qspi.Single,
	Data:            qspi.Single,
	ReadDummyCycles: 8,
}

// command is an instruction-only write.
func (p *Profile) command(c Command) qspi.Transaction {
	return qspi.Transaction{
		Mode:             qspi.IndirectWrite,
		Instruction:      byte(c),
		InstructionWidth: qspi.Single,
	}
}

// commandWithByte sends c followed by one byte in the alternate phase.
func (p *Profile) commandWithByte(c Command, b byte) qspi.Transaction {
	tx := p.command(c)
	tx.AlternateWidth = qspi.Single
	tx.AlternateSize = qspi.OneByte
	tx.Alternate = uint32(b)
	return tx
}

// addressed is a write of c with a 24-bit address and an optional data
// phase.
func (p *Profile) addressed(c Command, addr uint32, data bool) qspi.Transaction {
	tx := p.command(c)
	tx.AddressWidth = p.Address
	tx.AddressSize = qspi.ThreeBytes
	tx.Address = addr
	if data {
		tx.DataWidth = p.Data
	}
	return tx
}

func (p *Profile) registerRead(c Command) qspi.Transaction {
	return qspi.Transaction{
		Mode:             qspi.IndirectRead,
		Instruction:      byte(c),
		InstructionWidth: qspi.Single,
		DataWidth:        p.Data,
	}
}

func (p *Profile) readIDs() qspi.Transaction {
	tx := p.registerRead(CmdReadIDs)
	tx.AddressWidth = p.Address
	tx.AddressSize = qspi.ThreeBytes
	tx.LateSample = p.LateSampleIDs
	return tx
}

func (p *Profile) fastRead(addr uint32) qspi.Transaction {
	tx := p.registerRead(CmdFastRead)
	tx.AddressWidth = p.Address
	tx.AddressSize = qspi.ThreeBytes
	tx.Address = addr
	tx.DummyCycles = p.ReadDummyCycles
	return tx
}

// memoryMapped is the template for reads generated by the controller in
// memory-mapped mode: quad I/O fast read, continuous read mode byte 0x00,
// four dummy cycles, instruction sent once.
func (p *Profile) memoryMapped() qspi.Transaction {
	return qspi.Transaction{
		Mode:                qspi.MemoryMapped,
		Instruction:         byte(CmdFastReadQuadIO),
		InstructionWidth:    qspi.Single,
		AddressWidth:        qspi.Quad,
		AddressSize:         qspi.ThreeBytes,
		AlternateWidth:      qspi.Quad,
		AlternateSize:       qspi.OneByte,
		Alternate:           0,
		DataWidth:           qspi.Quad,
		DummyCycles:         4,
		SendInstructionOnce: true,
	}
}
