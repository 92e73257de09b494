// Package sensor defines the sensor capability and the moisture probe driver.
// Sensors hold no hardware state of their own; every operation acts on the
// gpio.Pins passed in by the caller, who is responsible for serializing access.
package sensor

import (
	"fmt"
	"strings"

	"github.com/sweeney/moisture-sensor/internal/gpio"
)

// Sensor is a device that can be prepared, sampled and returned to idle.
type Sensor interface {
	// Init configures the pins for sampling.
	Init(pins gpio.Pins) error

	// Read takes one sample.
	Read(pins gpio.Pins) (uint32, error)

	// Clear returns the pins to a safe idle state.
	Clear(pins gpio.Pins) error
}

// Polarity maps the sense level to a sample value.
// Probe wiring differs between hardware revisions, so it is configured.
type Polarity int

const (
	// Direct maps High to 1 and Low to 0.
	Direct Polarity = iota
	// Inverted maps High to 0 and Low to 1.
	Inverted
)

func (p Polarity) String() string {
	if p == Inverted {
		return "inverted"
	}
	return "direct"
}

// Value maps lvl to a sample value.
func (p Polarity) Value(lvl gpio.Level) uint32 {
	high := lvl == gpio.High
	if p == Inverted {
		high = !high
	}
	if high {
		return 1
	}
	return 0
}

// ParsePolarity accepts "direct" or "inverted" (case-insensitive).
// An empty string selects Direct.
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "direct", "high-is-one":
		return Direct, nil
	case "inverted", "high-is-zero":
		return Inverted, nil
	}
	return Direct, fmt.Errorf("unknown polarity %q (want direct or inverted)", s)
}
