// Package sampler turns a sensor into a periodic sequence of timestamped samples.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/womat/debug"

	"github.com/sweeney/moisture-sensor/internal/gpio"
	"github.com/sweeney/moisture-sensor/internal/sensor"
)

// DefaultInterval is the time between samples.
const DefaultInterval = time.Second

var (
	// ErrNotReady is returned by Next before Init succeeded.
	ErrNotReady = errors.New("sampler: sensor not initialized")

	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("sampler: closed")
)

// Sample is a single reading.
type Sample struct {
	Time  time.Time
	Value uint32
}

// Clock abstracts wall time so tests can drive ticks.
type Clock interface {
	Now() time.Time
	// Wait blocks until the clock reaches t or ctx is done,
	// returning ctx.Err() in the latter case.
	Wait(ctx context.Context, t time.Time) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Wait(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d := time.Until(t)
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type state int

const (
	uninitialized state = iota
	ready
	cleared
)

// Sampler reads a sensor once per tick. Ticks fall on start + n*interval,
// so scheduling delays never accumulate. If the consumer falls more than a
// whole interval behind, the missed ticks are skipped.
//
// A Sampler is not safe for concurrent use; the pins are shared and locked.
type Sampler struct {
	sensor   sensor.Sensor
	pins     *gpio.Locked
	interval time.Duration
	clock    Clock

	state   state
	started bool
	start   time.Time
	n       int64
	err     error

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *Sampler) { s.clock = c }
}

// New creates a Sampler. A non-positive interval selects DefaultInterval.
func New(sn sensor.Sensor, pins *gpio.Locked, interval time.Duration, opts ...Option) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Sampler{
		sensor:   sn,
		pins:     pins,
		interval: interval,
		clock:    realClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init prepares the sensor. It must succeed before Next is called.
func (s *Sampler) Init() error {
	if s.state != uninitialized {
		return fmt.Errorf("sampler: init in state %d", s.state)
	}
	if err := s.pins.Exclusive(s.sensor.Init); err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	s.state = ready
	return nil
}

// Interval returns the tick interval.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Due returns when the next sample will be taken.
func (s *Sampler) Due() time.Time {
	if !s.started {
		return s.clock.Now()
	}
	return s.start.Add(time.Duration(s.n) * s.interval)
}

// Next waits for the next tick and returns its sample. Cancellation of ctx
// is only observed while waiting, never during a read. A read error ends
// the sequence: the sensor is cleared and every later call returns it.
func (s *Sampler) Next(ctx context.Context) (Sample, error) {
	if s.err != nil {
		return Sample{}, s.err
	}
	if s.state != ready {
		return Sample{}, ErrNotReady
	}

	now := s.clock.Now()
	if !s.started {
		s.started = true
		s.start = now
		s.n = 0
	}
	if behind := now.Sub(s.Due()); behind >= s.interval {
		skipped := int64(behind / s.interval)
		debug.DebugLog.Printf("sampler: %d ticks behind, skipping", skipped)
		s.n += skipped
	}

	if err := s.clock.Wait(ctx, s.Due()); err != nil {
		return Sample{}, err
	}

	var v uint32
	err := s.pins.Exclusive(func(p gpio.Pins) error {
		var rerr error
		v, rerr = s.sensor.Read(p)
		return rerr
	})
	if err != nil {
		s.err = fmt.Errorf("read sensor: %w", err)
		if cerr := s.Close(); cerr != nil {
			debug.ErrorLog.Printf("sampler: clear after read error: %v", cerr)
		}
		return Sample{}, s.err
	}
	s.n++

	return Sample{Time: s.clock.Now(), Value: v}, nil
}

// Close clears the sensor. Only the first call has an effect; a sensor
// that was never initialized is still cleared, since Init may have
// configured some of its pins before failing.
func (s *Sampler) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pins.Exclusive(s.sensor.Clear)
		if s.closeErr != nil {
			s.closeErr = fmt.Errorf("clear sensor: %w", s.closeErr)
		}
		s.state = cleared
		if s.err == nil {
			s.err = ErrClosed
		}
	})
	return s.closeErr
}
