//go:build unix

package main

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/moisture-sensor/internal/gpio"
	"github.com/sweeney/moisture-sensor/internal/sink"
)

// signalPins sends SIGTERM to the process the first time a pull is set,
// which happens while the sensors are being initialized.
type signalPins struct {
	*gpio.FakePins
	once sync.Once
	err  error
}

func (p *signalPins) SetPull(pins []gpio.Pin, state gpio.Pull) error {
	p.once.Do(func() {
		p.err = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
	})
	return p.FakePins.SetPull(pins, state)
}

type runnerFunc func(ctx context.Context, feed sink.Feed) error

func (f runnerFunc) Run(ctx context.Context, feed sink.Feed) error { return f(ctx, feed) }

func TestSignalDuringStartupClearsSensors(t *testing.T) {
	unsetNetworkEnv(t)
	f := gpio.NewFakePins()
	dev := &signalPins{FakePins: f}
	stubDevice(t, dev)
	cfgPath := writeConfig(t, "[sensors.garden]\nsensor_type = \"moisture\"\npwr_pin = 27\nval_pin = 17\n")

	spec := sinkSpec{
		kind: "socket",
		open: func(sink.Recorder) (runner, func() error, error) {
			return runnerFunc(func(ctx context.Context, _ sink.Feed) error {
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(3 * time.Second):
					return errors.New("shutdown not observed")
				}
			}), nil, nil
		},
	}

	err := run(context.Background(), options{configPath: cfgPath, interval: time.Second}, spec)
	if dev.err != nil {
		t.Fatalf("kill: %v", dev.err)
	}
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if f.Modes[27] != gpio.Input || f.Modes[17] != gpio.Input {
		t.Error("sensor pins not returned to input")
	}
	if !f.Closed {
		t.Error("device not closed")
	}
}
