//go:build !linux

package gpio

import "errors"

// DefaultDevice is the GPIO register device exposed by the Raspberry Pi kernel.
const DefaultDevice = "/dev/gpiomem"

// DefaultChip is the GPIO character device of the SoC header pins.
const DefaultChip = "gpiochip0"

// Open returns an error on non-Linux platforms.
func Open(path string, opts ...Option) (*Controller, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (c *Chip) SetMode(pin Pin, mode Mode) error     { return errors.New("gpio: not supported") }
func (c *Chip) Read(pin Pin) (Level, error)          { return Low, errors.New("gpio: not supported") }
func (c *Chip) Set(pin Pin) error                    { return errors.New("gpio: not supported") }
func (c *Chip) Clear(pin Pin) error                  { return errors.New("gpio: not supported") }
func (c *Chip) SetPull(pins []Pin, state Pull) error { return errors.New("gpio: not supported") }

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error {
	return nil
}
