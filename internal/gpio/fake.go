package gpio

import (
	"fmt"
	"sync"
)

// Op is one operation recorded by FakePins.
type Op struct {
	Name string // "mode", "read", "set", "clear", "pull"
	Pins []Pin
	Arg  string
}

func (o Op) String() string {
	return fmt.Sprintf("%s%v %s", o.Name, o.Pins, o.Arg)
}

// FakePins is a test double that records operations and returns scripted levels.
type FakePins struct {
	mu sync.Mutex

	// Ops contains every operation in call order.
	Ops []Op

	// Modes, Pulls and Outputs hold the last value written per pin.
	Modes   map[Pin]Mode
	Pulls   map[Pin]Pull
	Outputs map[Pin]bool

	// Levels holds the level Read returns per pin (Low if absent).
	Levels map[Pin]Level

	// OnSet, if set, runs after a pin is driven high or low. It runs with
	// the fake locked and may modify the fields directly.
	OnSet func(f *FakePins, pin Pin, high bool)

	// ReadError, if set, will be returned by Read.
	ReadError error

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePins creates an empty FakePins.
func NewFakePins() *FakePins {
	return &FakePins{
		Modes:   make(map[Pin]Mode),
		Pulls:   make(map[Pin]Pull),
		Outputs: make(map[Pin]bool),
		Levels:  make(map[Pin]Level),
	}
}

func (f *FakePins) record(name string, arg string, pins ...Pin) {
	f.Ops = append(f.Ops, Op{Name: name, Pins: pins, Arg: arg})
}

func (f *FakePins) SetMode(pin Pin, mode Mode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ValidatePin(pin); err != nil {
		return err
	}
	f.record("mode", mode.String(), pin)
	f.Modes[pin] = mode
	return nil
}

func (f *FakePins) Read(pin Pin) (Level, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ValidatePin(pin); err != nil {
		return Low, err
	}
	f.record("read", "", pin)
	if f.ReadError != nil {
		return Low, f.ReadError
	}
	return f.Levels[pin], nil
}

func (f *FakePins) Set(pin Pin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ValidatePin(pin); err != nil {
		return err
	}
	f.record("set", "", pin)
	if f.SetError != nil {
		return f.SetError
	}
	f.Outputs[pin] = true
	if f.OnSet != nil {
		f.OnSet(f, pin, true)
	}
	return nil
}

func (f *FakePins) Clear(pin Pin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ValidatePin(pin); err != nil {
		return err
	}
	f.record("clear", "", pin)
	f.Outputs[pin] = false
	if f.OnSet != nil {
		f.OnSet(f, pin, false)
	}
	return nil
}

func (f *FakePins) SetPull(pins []Pin, state Pull) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := ValidatePull(state); err != nil {
		return err
	}
	for _, pin := range pins {
		if err := ValidatePin(pin); err != nil {
			return err
		}
	}
	f.record("pull", state.String(), pins...)
	for _, pin := range pins {
		f.Pulls[pin] = state
	}
	return nil
}

// Close marks the pins as closed.
func (f *FakePins) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Count returns how many recorded operations have the given name.
func (f *FakePins) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, op := range f.Ops {
		if op.Name == name {
			n++
		}
	}
	return n
}

// Reset clears recorded operations and state.
func (f *FakePins) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Ops = nil
	f.Modes = make(map[Pin]Mode)
	f.Pulls = make(map[Pin]Pull)
	f.Outputs = make(map[Pin]bool)
	f.Levels = make(map[Pin]Level)
	f.ReadError = nil
	f.SetError = nil
	f.Closed = false
}
