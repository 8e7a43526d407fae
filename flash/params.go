package flash

import "time"

// Params are datasheet maximums for a known chip.
type Params struct {
	Name string

	ManufacturerID byte
	DeviceID       byte

	tRES1      time.Duration
	tPP        time.Duration
	tErase4KB  time.Duration
	tErase32KB time.Duration
	tErase64KB time.Duration
	tEraseChip time.Duration
}

var (
	chipIDAdestoAT25SF641 = [3]byte{0x1F, 0x32, 0x17}
	chipIDWinbondW25Q64   = [3]byte{0xEF, 0x40, 0x17}
	chipIDWinbondW25Q128  = [3]byte{0xEF, 0x70, 0x18}
	chipIDMicronN25Q32    = [3]byte{0x20, 0xBA, 0x16}
)

var knownChips = map[[3]byte]Params{
	chipIDAdestoAT25SF641: {
		Name:           "Adesto AT25SF641",
		ManufacturerID: 0x1F,
		DeviceID:       0x16,

		// [AT25SF641|12.6 AC Characteristics]
		tRES1:      8 * time.Microsecond,
		tPP:        2500 * time.Microsecond,
		tErase4KB:  300 * time.Millisecond,
		tErase32KB: 1300 * time.Millisecond,
		tErase64KB: 3 * time.Second,
		tEraseChip: 60 * time.Second,
	},

	chipIDWinbondW25Q64: {
		Name:           "Winbond W25Q64JV",
		ManufacturerID: 0xEF,
		DeviceID:       0x16,

		// [W25Q64JV|9.6 AC Electrical Characteristics]
		tRES1:      3 * time.Microsecond,
		tPP:        3 * time.Millisecond,
		tErase4KB:  400 * time.Millisecond,
		tErase32KB: 1600 * time.Millisecond,
		tErase64KB: 2000 * time.Millisecond,
		tEraseChip: 100 * time.Second,
	},

	chipIDWinbondW25Q128: {
		Name:           "Winbond W25Q128JV",
		ManufacturerID: 0xEF,
		DeviceID:       0x17,

		// [W25Q128|9.6 AC Electrical Characteristics]
		tRES1:      3 * time.Microsecond,
		tPP:        3 * time.Millisecond,
		tErase4KB:  400 * time.Millisecond,
		tErase32KB: 1600 * time.Millisecond,
		tErase64KB: 2000 * time.Millisecond,
		tEraseChip: 200 * time.Second,
	},

	chipIDMicronN25Q32: {
		Name:           "Micron N25Q032",
		ManufacturerID: 0x20,
		DeviceID:       0x15,

		// [N25Q32|Table 38: AC Characteristics and Operating Conditions]
		tRES1:      30 * time.Microsecond,
		tPP:        5 * time.Millisecond,
		tErase4KB:  800 * time.Millisecond,
		tErase64KB: 3 * time.Second,
		tEraseChip: 60 * time.Second,
	},
}

// LookupChip returns the parameters of the chip with the given JEDEC ID.
func LookupChip(id [3]byte) (Params, bool) {
	p, ok := knownChips[id]
	return p, ok
}

// settleTime is how long the chip needs after ReleaseDeepPowerDown before it
// accepts commands.
const settleTime = 3 * time.Microsecond

// Timeouts returns the datasheet maximums as an operation deadline table.
// A zero entry means the datasheet gives no figure; waits for such an
// operation are unbounded.
func (p Params) Timeouts() Timeouts {
	return Timeouts{
		Program:   p.tPP,
		Erase4K:   p.tErase4KB,
		Erase32K:  p.tErase32KB,
		Erase64K:  p.tErase64KB,
		EraseChip: p.tEraseChip,
	}
}

// WakeUp is the time from ReleaseDeepPowerDown to standby.
func (p Params) WakeUp() time.Duration { return p.tRES1 }

// Timeouts bounds the chip-level busy wait per operation. The zero value
// waits indefinitely, which is what the board firmware does.
type Timeouts struct {
	Program   time.Duration
	Erase4K   time.Duration
	Erase32K  time.Duration
	Erase64K  time.Duration
	EraseChip time.Duration
	// Other bounds waits not tied to one of the operations above, such as
	// an explicit WaitBusy.
	Other time.Duration
}

// Uniform returns a table using d for every operation.
func Uniform(d time.Duration) Timeouts {
	return Timeouts{Program: d, Erase4K: d, Erase32K: d, Erase64K: d, EraseChip: d, Other: d}
}
