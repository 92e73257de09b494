// Package gpio provides pin-level access to the BCM283x GPIO peripheral.
// The Controller drives the memory-mapped register block directly.
// The Chip drives the same pins through the Linux GPIO character device.
// FakePins allows testing without hardware.
package gpio

import (
	"errors"
	"fmt"
)

// Pin is a BCM GPIO number.
type Pin uint8

// MaxPin is the highest pin number the register block addresses.
const MaxPin Pin = 54

// Mode is a pin function, encoded as its 3-bit function-select code.
type Mode uint32

const (
	Input  Mode = 0b000
	Output Mode = 0b001
	Alt0   Mode = 0b100
	Alt1   Mode = 0b101
	Alt2   Mode = 0b110
	Alt3   Mode = 0b111
	Alt4   Mode = 0b011
	Alt5   Mode = 0b010
)

func (m Mode) String() string {
	switch m {
	case Input:
		return "Input"
	case Output:
		return "Output"
	case Alt0:
		return "Alt0"
	case Alt1:
		return "Alt1"
	case Alt2:
		return "Alt2"
	case Alt3:
		return "Alt3"
	case Alt4:
		return "Alt4"
	case Alt5:
		return "Alt5"
	}
	return fmt.Sprintf("Mode(%#b)", uint32(m))
}

// Level is the logic level of a pin.
type Level uint8

const (
	Low Level = iota
	High
)

func (l Level) String() string {
	if l == High {
		return "High"
	}
	return "Low"
}

// Pull is the state of a pin's internal pull resistor, encoded as the
// 2-bit pull-control code.
type Pull uint32

const (
	PullOff  Pull = 0b00
	PullDown Pull = 0b01
	PullUp   Pull = 0b10
)

func (p Pull) String() string {
	switch p {
	case PullOff:
		return "off"
	case PullDown:
		return "down"
	case PullUp:
		return "up"
	}
	return fmt.Sprintf("Pull(%d)", uint32(p))
}

// ErrInvalidPull is returned for a Pull outside PullOff, PullDown and PullUp.
var ErrInvalidPull = errors.New("gpio: invalid pull state")

// ValidatePull rejects the reserved pull-control code.
func ValidatePull(p Pull) error {
	switch p {
	case PullOff, PullDown, PullUp:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidPull, p)
}

// ErrPinOutOfRange matches every *PinError.
var ErrPinOutOfRange = errors.New("gpio: pin out of range")

// ErrUnsupportedMode is returned by drivers that cannot select a pin function.
var ErrUnsupportedMode = errors.New("gpio: unsupported mode")

// PinError reports a pin number beyond MaxPin.
type PinError struct {
	Pin Pin
}

func (e *PinError) Error() string {
	return fmt.Sprintf("gpio: pin %d out of range [0, %d]", e.Pin, MaxPin)
}

// Is reports whether target is ErrPinOutOfRange.
func (e *PinError) Is(target error) bool {
	return target == ErrPinOutOfRange
}

// ValidatePin returns a *PinError if pin is not addressable.
func ValidatePin(pin Pin) error {
	if pin > MaxPin {
		return &PinError{Pin: pin}
	}
	return nil
}

// Pins is the set of pin operations a sensor needs.
type Pins interface {
	// SetMode selects the function of pin.
	SetMode(pin Pin, mode Mode) error

	// Read returns the current level of pin.
	Read(pin Pin) (Level, error)

	// Set drives an output pin high.
	Set(pin Pin) error

	// Clear drives an output pin low.
	Clear(pin Pin) error

	// SetPull configures the pull resistor of every pin in pins.
	// If any pin is invalid nothing is changed.
	SetPull(pins []Pin, state Pull) error
}

// Device is a Pins implementation that holds an OS resource.
type Device interface {
	Pins

	// Close releases the underlying device.
	Close() error
}
