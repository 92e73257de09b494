package gpio

import "sync"

// Locked serializes all access to a shared Pins implementation.
// Each method holds the lock for exactly one operation; SetPull holds it
// for its whole multi-step sequence.
type Locked struct {
	mu   sync.Mutex
	pins Pins
}

// NewLocked wraps pins.
func NewLocked(pins Pins) *Locked {
	return &Locked{pins: pins}
}

// Exclusive runs fn with the lock held, for transactions spanning several
// operations. fn must not block on anything but the hardware.
func (l *Locked) Exclusive(fn func(Pins) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.pins)
}

func (l *Locked) SetMode(pin Pin, mode Mode) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pins.SetMode(pin, mode)
}

func (l *Locked) Read(pin Pin) (Level, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pins.Read(pin)
}

func (l *Locked) Set(pin Pin) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pins.Set(pin)
}

func (l *Locked) Clear(pin Pin) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pins.Clear(pin)
}

func (l *Locked) SetPull(pins []Pin, state Pull) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pins.SetPull(pins, state)
}
