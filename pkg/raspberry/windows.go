//+build windows

package raspberry

// Emulated output pins, only for building and testing on windows where
// neither /dev/gpiomem nor the gpio character device exists.

// OutputPin emulates a gpio output line.
type OutputPin struct {
	gpioPin int
	level   bool
}

// CloseMem is a no-op on windows.
func CloseMem() error {
	return nil
}

// NewOutputPin creates an emulated output pin.
func NewOutputPin(p int, initial bool) (*OutputPin, error) {
	return &OutputPin{gpioPin: p, level: initial}, nil
}

// Set records the level of the emulated pin.
func (p *OutputPin) Set(high bool) error {
	p.level = high
	return nil
}
