package gpio

import (
	"time"

	"github.com/womat/debug"
)

// DefaultPullSettle is the wait on each side of the pull-clock pulse.
// The peripheral needs 150 core cycles; 1ms is far more than enough and
// pull configuration only happens at startup.
const DefaultPullSettle = time.Millisecond

// Controller drives the GPIO register block.
// It performs no locking: callers must serialize every call, see Locked.
type Controller struct {
	regs       *RegisterMap
	pullSettle time.Duration
	sleep      func(time.Duration)
	unmap      func() error
}

// Option configures a Controller.
type Option func(*Controller)

// WithPullSettle overrides DefaultPullSettle.
func WithPullSettle(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pullSettle = d
		}
	}
}

// NewController creates a Controller over an already mapped register window.
func NewController(mem []byte, opts ...Option) (*Controller, error) {
	regs, err := NewRegisterMap(mem)
	if err != nil {
		return nil, err
	}
	c := &Controller{
		regs:       regs,
		pullSettle: DefaultPullSettle,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetMode selects the function of pin with a read-modify-write of its
// function-select field only.
func (c *Controller) SetMode(pin Pin, mode Mode) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}
	reg, shift := fselField(pin)
	c.regs.Modify(reg, fselMask<<shift, uint32(mode)<<shift)
	debug.TraceLog.Printf("gpio: pin %d mode %s", pin, mode)
	return nil
}

// Mode returns the current function of pin.
func (c *Controller) Mode(pin Pin) (Mode, error) {
	if err := ValidatePin(pin); err != nil {
		return Input, err
	}
	reg, shift := fselField(pin)
	return Mode(c.regs.Load(reg) >> shift & fselMask), nil
}

// Read returns the level of pin.
func (c *Controller) Read(pin Pin) (Level, error) {
	if err := ValidatePin(pin); err != nil {
		return Low, err
	}
	reg, bit := levelRegister(pin)
	if c.regs.Load(reg)&bit != 0 {
		return High, nil
	}
	return Low, nil
}

// Set drives pin high. The set register is a write-only strobe, so only
// the pin's bit is written.
func (c *Controller) Set(pin Pin) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}
	reg, bit := setRegister(pin)
	c.regs.Store(reg, bit)
	return nil
}

// Clear drives pin low.
func (c *Controller) Clear(pin Pin) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}
	reg, bit := clearRegister(pin)
	c.regs.Store(reg, bit)
	return nil
}

// SetPull configures the pull resistors of pins.
//
// The pull-control register is shared by every pin of the device, so this
// sequence must never run concurrently with another SetPull on the same
// device, from this process or any other. Locked serializes it in-process.
func (c *Controller) SetPull(pins []Pin, state Pull) error {
	if err := ValidatePull(state); err != nil {
		return err
	}
	for _, pin := range pins {
		if err := ValidatePin(pin); err != nil {
			return err
		}
	}

	var clocks [2]uint32
	for _, pin := range pins {
		reg, bit := pudClockRegister(pin)
		clocks[(reg-GPPUDCLK0)/4] |= bit
	}

	c.regs.Modify(GPPUD, pudMask, uint32(state))
	c.sleep(c.pullSettle)
	c.regs.Store(GPPUDCLK0, clocks[0])
	c.regs.Store(GPPUDCLK1, clocks[1])
	c.sleep(c.pullSettle)
	c.regs.Store(GPPUDCLK0, 0)
	c.regs.Store(GPPUDCLK1, 0)
	c.regs.Modify(GPPUD, pudMask, uint32(PullOff))

	debug.TraceLog.Printf("gpio: pins %v pull %s", pins, state)
	return nil
}

// Close unmaps the register window if the Controller owns the mapping.
func (c *Controller) Close() error {
	if c.unmap == nil {
		return nil
	}
	unmap := c.unmap
	c.unmap = nil
	return unmap()
}
