// Package led drives the RGB status LED of the N0110.
//
//	Pin | Colour
//	----+-------
//	PB4 | red
//	PB5 | green
//	PB0 | blue
package led

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/gpio"
)

// RGB is an RGB LED on three outputs; High lights a colour.
type RGB struct {
	r, g, b gpio.PinOut
}

// New drives all three pins low and returns the LED.
func New(red, green, blue gpio.PinOut) (*RGB, error) {
	l := &RGB{r: red, g: green, b: blue}
	if err := l.Off(); err != nil {
		return nil, err
	}
	return l, nil
}

// Set lights the given colours and turns the others off.
func (l *RGB) Set(red, green, blue bool) error {
	for _, p := range []struct {
		pin gpio.PinOut
		on  bool
	}{{l.r, red}, {l.g, green}, {l.b, blue}} {
		if err := p.pin.Out(gpio.Level(p.on)); err != nil {
			return errors.Wrapf(err, "led: %s", p.pin)
		}
	}
	return nil
}

func (l *RGB) Red() error   { return l.Set(true, false, false) }
func (l *RGB) Green() error { return l.Set(false, true, false) }
func (l *RGB) Blue() error  { return l.Set(false, false, true) }
func (l *RGB) Off() error   { return l.Set(false, false, false) }
