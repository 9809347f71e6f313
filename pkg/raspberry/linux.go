//+build !windows

package raspberry

import (
	"fmt"

	"github.com/warthog618/gpio"
)

// OutputPin drives a single memory-mapped gpio output line.
type OutputPin struct {
	gpioPin *gpio.Pin
}

// must be global in package, the memory range is mapped once
var memOpen bool

// openMem maps the GPIO memory range from /dev/gpiomem on first use.
func openMem() error {
	if memOpen {
		return nil
	}
	if err := gpio.Open(); err != nil {
		return err
	}
	memOpen = true
	return nil
}

// CloseMem removes the GPIO memory mapping.
func CloseMem() error {
	if !memOpen {
		return nil
	}
	memOpen = false
	return gpio.Close()
}

// NewOutputPin configures the pin as an output, driven to the given
// initial level. The pin number provided is the BCM GPIO number.
func NewOutputPin(p int, initial bool) (*OutputPin, error) {
	if err := openMem(); err != nil {
		return nil, fmt.Errorf("can't map gpio memory: %w", err)
	}

	// latch the level before switching the mode so the line never
	// drives a stale value
	pin := gpio.NewPin(p)
	pin.Write(gpio.Level(initial))
	pin.Output()
	return &OutputPin{gpioPin: pin}, nil
}

// Set drives the pin high or low.
func (p *OutputPin) Set(high bool) error {
	p.gpioPin.Write(gpio.Level(high))
	return nil
}
