package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/moisture-sensor/internal/format"
	"github.com/sweeney/moisture-sensor/internal/gpio"
	"github.com/sweeney/moisture-sensor/internal/sampler"
	"github.com/sweeney/moisture-sensor/internal/sensor"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time { return c.now }

func (c *stepClock) Wait(ctx context.Context, t time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.After(c.now) {
		c.now = t
	}
	return nil
}

type recorded struct {
	id    string
	value uint32
}

type fakeRecorder struct {
	samples []recorded
}

func (r *fakeRecorder) RecordSample(id string, _ time.Time, value uint32) {
	r.samples = append(r.samples, recorded{id, value})
}

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newSource(t *testing.T, pins *gpio.Locked, clk sampler.Clock, id string, power, sense gpio.Pin, interval time.Duration) Source {
	t.Helper()
	s := sampler.New(sensor.NewMoist(power, sense), pins, interval, sampler.WithClock(clk))
	if err := s.Init(); err != nil {
		t.Fatalf("Init %s: %v", id, err)
	}
	return Source{Sampler: s, Format: format.New(format.Text, id, "moisture")}
}

func TestStreamMergesByDueTime(t *testing.T) {
	f := gpio.NewFakePins()
	f.Levels[17] = gpio.High
	pins := gpio.NewLocked(f)
	clk := &stepClock{now: epoch}
	rec := &fakeRecorder{}

	s := New([]Source{
		newSource(t, pins, clk, "fast", 27, 17, time.Second),
		newSource(t, pins, clk, "slow", 22, 23, 3*time.Second),
	}, rec)

	var ids []string
	for i := 0; i < 7; i++ {
		payload, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		ids = append(ids, strings.Split(string(payload), ",")[1])
	}

	want := []string{"fast", "slow", "fast", "fast", "fast", "slow", "fast"}
	if strings.Join(ids, " ") != strings.Join(want, " ") {
		t.Errorf("order: got %v, want %v", ids, want)
	}

	if len(rec.samples) != 7 {
		t.Fatalf("recorded %d samples, want 7", len(rec.samples))
	}
	if rec.samples[0] != (recorded{"fast", 1}) || rec.samples[1] != (recorded{"slow", 0}) {
		t.Errorf("unexpected samples: %v", rec.samples[:2])
	}
}

func TestStreamIsLazy(t *testing.T) {
	f := gpio.NewFakePins()
	pins := gpio.NewLocked(f)
	clk := &stepClock{now: epoch}

	s := New([]Source{newSource(t, pins, clk, "a", 27, 17, time.Second)}, nil)
	if f.Count("read") != 0 {
		t.Fatal("sensor read before Next")
	}
	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Count("read") != 1 {
		t.Errorf("reads: got %d, want 1", f.Count("read"))
	}
}

func TestStreamReadErrorNamesSensor(t *testing.T) {
	f := gpio.NewFakePins()
	f.ReadError = errors.New("bus fault")
	pins := gpio.NewLocked(f)
	clk := &stepClock{now: epoch}

	s := New([]Source{newSource(t, pins, clk, "garden", 27, 17, time.Second)}, nil)
	_, err := s.Next(context.Background())
	if err == nil || !strings.Contains(err.Error(), "sensor garden") {
		t.Fatalf("expected error naming sensor, got %v", err)
	}
}

func TestStreamCancelledUnwrapped(t *testing.T) {
	pins := gpio.NewLocked(gpio.NewFakePins())
	clk := &stepClock{now: epoch}
	s := New([]Source{newSource(t, pins, clk, "a", 27, 17, time.Second)}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStreamCloseClearsAllSensors(t *testing.T) {
	f := gpio.NewFakePins()
	pins := gpio.NewLocked(f)
	clk := &stepClock{now: epoch}

	s := New([]Source{
		newSource(t, pins, clk, "a", 27, 17, time.Second),
		newSource(t, pins, clk, "b", 22, 23, time.Second),
	}, nil)

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	for _, p := range []gpio.Pin{17, 22, 23, 27} {
		if f.Modes[p] != gpio.Input {
			t.Errorf("pin %d: mode %v, want input", p, f.Modes[p])
		}
	}
	// 2 sensors * (2 init + 2 clear)
	if got := f.Count("mode"); got != 8 {
		t.Errorf("mode ops: got %d, want 8", got)
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, sampler.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestStreamNoSources(t *testing.T) {
	if _, err := New(nil, nil).Next(context.Background()); !errors.Is(err, ErrNoSources) {
		t.Errorf("expected ErrNoSources, got %v", err)
	}
}
