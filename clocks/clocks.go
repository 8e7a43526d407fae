// Package clocks describes the clock tree of the N0110 (STM32F730) and the
// frequencies derived from it. Nothing here touches RCC; the values feed
// the QUADSPI prescaler choice and the flash wait states.
package clocks

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
)

const (
	HSE = 8 * physic.MegaHertz
	HSI = 16 * physic.MegaHertz

	// USB, SDMMC and RNG need exactly this from the PLL Q output.
	Clock48 = 48 * physic.MegaHertz

	maxPCLK1 = 54 * physic.MegaHertz
	maxPCLK2 = 108 * physic.MegaHertz
)

// PLL is the main PLL: VCO = Source/M*N, SYSCLK = VCO/P, 48 MHz = VCO/Q.
type PLL struct {
	Source physic.Frequency
	M      uint32
	N      uint32
	P      uint32
	Q      uint32
}

// VCOInput returns the PLL input frequency after the M divider.
func (p PLL) VCOInput() physic.Frequency { return p.Source / physic.Frequency(p.M) }

// VCO returns the VCO output frequency.
func (p PLL) VCO() physic.Frequency { return p.VCOInput() * physic.Frequency(p.N) }

// SysClock returns the P output.
func (p PLL) SysClock() physic.Frequency { return p.VCO() / physic.Frequency(p.P) }

// Q48 returns the Q output.
func (p PLL) Q48() physic.Frequency { return p.VCO() / physic.Frequency(p.Q) }

// SpreadSpectrum is the PLL spread spectrum modulation (RCC_SSCGR).
type SpreadSpectrum struct {
	Enabled    bool
	ModPeriod  uint32 // MODPER
	IncStep    uint32 // INCSTEP
	CenterMode bool
}

// Modulation returns the modulation frequency for a PLL input of in.
func (s SpreadSpectrum) Modulation(in physic.Frequency) physic.Frequency {
	if s.ModPeriod == 0 {
		return 0
	}
	return in / physic.Frequency(4*s.ModPeriod)
}

// Depth returns the peak modulation depth in percent for multiplier n.
func (s SpreadSpectrum) Depth(n uint32) float64 {
	if n == 0 {
		return 0
	}
	return float64(s.IncStep) * 100 * 5 * float64(s.ModPeriod) / (float64(1<<15-1) * float64(n))
}

// Config is a complete clock setup.
type Config struct {
	PLL PLL

	AHBDiv  uint32
	APB1Div uint32
	APB2Div uint32

	Spread SpreadSpectrum
}

// N0110 is the configuration the board runs with: 216 MHz from the 8 MHz
// crystal, 48 MHz for USB, APB1 at 54 MHz and APB2 at 108 MHz.
func N0110() Config {
	return Config{
		PLL:     PLL{Source: HSE, M: 4, N: 216, P: 2, Q: 9},
		AHBDiv:  1,
		APB1Div: 4,
		APB2Div: 2,
		Spread:  SpreadSpectrum{Enabled: true, ModPeriod: 250, IncStep: 25, CenterMode: true},
	}
}

func (c Config) HCLK() physic.Frequency  { return c.PLL.SysClock() / physic.Frequency(c.AHBDiv) }
func (c Config) PCLK1() physic.Frequency { return c.HCLK() / physic.Frequency(c.APB1Div) }
func (c Config) PCLK2() physic.Frequency { return c.HCLK() / physic.Frequency(c.APB2Div) }

// QSPIClock returns the serial clock of the QUADSPI bus for a prescaler.
// The controller runs from HCLK.
func (c Config) QSPIClock(prescaler uint8) physic.Frequency {
	return c.HCLK() / physic.Frequency(uint32(prescaler)+1)
}

// FlashWaitStates returns the internal flash latency for HCLK at 2.7 V to
// 3.6 V: one wait state per started 30 MHz above the first.
func (c Config) FlashWaitStates() int {
	step := 30 * physic.MegaHertz
	return int((c.HCLK()+step-1)/step - 1)
}

// Validate checks the divider ranges and the resulting frequencies against
// the limits of the part.
func (c Config) Validate() error {
	p := c.PLL
	switch {
	case p.Source <= 0:
		return errors.New("clocks: no PLL source")
	case p.M < 2 || p.M > 63:
		return errors.Errorf("clocks: PLLM %d out of range 2..63", p.M)
	case p.N < 50 || p.N > 432:
		return errors.Errorf("clocks: PLLN %d out of range 50..432", p.N)
	case p.P != 2 && p.P != 4 && p.P != 6 && p.P != 8:
		return errors.Errorf("clocks: PLLP %d not one of 2, 4, 6, 8", p.P)
	case p.Q < 2 || p.Q > 15:
		return errors.Errorf("clocks: PLLQ %d out of range 2..15", p.Q)
	}
	if in := p.VCOInput(); in < 1*physic.MegaHertz || in > 2*physic.MegaHertz {
		return errors.Errorf("clocks: VCO input %s outside 1MHz..2MHz", in)
	}
	// With P >= 2 this also caps SYSCLK at 216 MHz.
	if vco := p.VCO(); vco < 100*physic.MegaHertz || vco > 432*physic.MegaHertz {
		return errors.Errorf("clocks: VCO %s outside 100MHz..432MHz", vco)
	}
	if q := p.Q48(); q != Clock48 {
		return errors.Errorf("clocks: PLLQ output %s, USB needs %s", q, Clock48)
	}
	if !oneOf(c.AHBDiv, 1, 2, 4, 8, 16, 64, 128, 256, 512) {
		return errors.Errorf("clocks: invalid AHB divider %d", c.AHBDiv)
	}
	if !oneOf(c.APB1Div, 1, 2, 4, 8, 16) || !oneOf(c.APB2Div, 1, 2, 4, 8, 16) {
		return errors.Errorf("clocks: invalid APB dividers %d, %d", c.APB1Div, c.APB2Div)
	}
	if f := c.PCLK1(); f > maxPCLK1 {
		return errors.Errorf("clocks: APB1 %s above %s", f, maxPCLK1)
	}
	if f := c.PCLK2(); f > maxPCLK2 {
		return errors.Errorf("clocks: APB2 %s above %s", f, maxPCLK2)
	}
	return nil
}

func oneOf(v uint32, set ...uint32) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
