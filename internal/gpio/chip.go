//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// DefaultChip is the GPIO character device of the SoC header pins.
const DefaultChip = "gpiochip0"

// ChipLine is the part of *gpiocdev.Line that Chip uses.
type ChipLine interface {
	Value() (int, error)
	SetValue(value int) error
	Reconfigure(options ...gpiocdev.LineConfigOption) error
	Close() error
}

// LineRequester requests a single line by offset.
type LineRequester func(offset int, options ...gpiocdev.LineReqOption) (ChipLine, error)

// Chip drives pins through the Linux GPIO character device.
// Lines are requested on first use and held until Close.
//
// Set and Clear on a pin that is not an output latch the level, as the
// register output latch does; SetMode(Output) requests the line driving it.
type Chip struct {
	mu      sync.Mutex
	request LineRequester
	close   func() error
	lines   map[Pin]ChipLine
	out     map[Pin]bool
	latched map[Pin]int
}

// OpenChip opens the named GPIO chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer("moisture-sensor"))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	request := func(offset int, options ...gpiocdev.LineReqOption) (ChipLine, error) {
		return chip.RequestLine(offset, options...)
	}
	return NewChip(request, chip.Close), nil
}

// NewChip creates a Chip over request. closeFn, if not nil, runs on Close
// after every line is released.
func NewChip(request LineRequester, closeFn func() error) *Chip {
	return &Chip{
		request: request,
		close:   closeFn,
		lines:   make(map[Pin]ChipLine),
		out:     make(map[Pin]bool),
		latched: make(map[Pin]int),
	}
}

// configure reconfigures the line of pin, requesting it first if needed.
func (c *Chip) configure(pin Pin, opts ...gpiocdev.LineConfigOption) error {
	if l, ok := c.lines[pin]; ok {
		if err := l.Reconfigure(opts...); err != nil {
			return fmt.Errorf("reconfigure pin %d: %w", pin, err)
		}
		return nil
	}
	reqOpts := make([]gpiocdev.LineReqOption, 0, len(opts))
	for _, o := range opts {
		reqOpts = append(reqOpts, o.(gpiocdev.LineReqOption))
	}
	l, err := c.request(int(pin), reqOpts...)
	if err != nil {
		return fmt.Errorf("request pin %d: %w", pin, err)
	}
	c.lines[pin] = l
	return nil
}

// SetMode selects Input or Output. Alternate functions are not reachable
// through the character device.
func (c *Chip) SetMode(pin Pin, mode Mode) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	switch mode {
	case Input:
		if err := c.configure(pin, gpiocdev.AsInput); err != nil {
			return err
		}
		c.out[pin] = false
		return nil
	case Output:
		if err := c.configure(pin, gpiocdev.AsOutput(c.latched[pin])); err != nil {
			return err
		}
		c.out[pin] = true
		delete(c.latched, pin)
		return nil
	}
	return fmt.Errorf("pin %d mode %s: %w", pin, mode, ErrUnsupportedMode)
}

// Read returns the level of pin, requesting it as an input if unused.
func (c *Chip) Read(pin Pin) (Level, error) {
	if err := ValidatePin(pin); err != nil {
		return Low, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lines[pin]
	if !ok {
		if err := c.configure(pin, gpiocdev.AsInput); err != nil {
			return Low, err
		}
		l = c.lines[pin]
	}
	v, err := l.Value()
	if err != nil {
		return Low, fmt.Errorf("read pin %d: %w", pin, err)
	}
	if v != 0 {
		return High, nil
	}
	return Low, nil
}

func (c *Chip) write(pin Pin, v int) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.lines[pin]
	if !ok || !c.out[pin] {
		c.latched[pin] = v
		return nil
	}
	if err := l.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	return nil
}

// Set drives pin high.
func (c *Chip) Set(pin Pin) error {
	return c.write(pin, 1)
}

// Clear drives pin low.
func (c *Chip) Clear(pin Pin) error {
	return c.write(pin, 0)
}

// SetPull sets the line bias of every pin. The kernel serializes bias
// changes, so there is no shared-register hazard here.
func (c *Chip) SetPull(pins []Pin, state Pull) error {
	if err := ValidatePull(state); err != nil {
		return err
	}
	for _, pin := range pins {
		if err := ValidatePin(pin); err != nil {
			return err
		}
	}
	var bias gpiocdev.LineConfigOption
	switch state {
	case PullUp:
		bias = gpiocdev.WithPullUp
	case PullDown:
		bias = gpiocdev.WithPullDown
	default:
		bias = gpiocdev.WithBiasDisabled
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, pin := range pins {
		dir := gpiocdev.LineConfigOption(gpiocdev.AsInput)
		if c.out[pin] {
			// Keep the current output value; AsOutput() without values would reset it.
			if l, ok := c.lines[pin]; ok {
				v, err := l.Value()
				if err != nil {
					return fmt.Errorf("read pin %d: %w", pin, err)
				}
				dir = gpiocdev.AsOutput(v)
			}
		}
		if err := c.configure(pin, dir, bias); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every requested line, returning them to input, and the chip.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for pin, l := range c.lines {
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	c.lines = map[Pin]ChipLine{}
	c.out = map[Pin]bool{}
	if c.close != nil {
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		c.close = nil
	}
	return errors.Join(errs...)
}
