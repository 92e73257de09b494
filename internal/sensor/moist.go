package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/moisture-sensor/internal/gpio"
)

// DefaultSettle is how long the probe is powered before its output is read.
const DefaultSettle = 2 * time.Millisecond

// Moist is a digital soil-moisture probe with a switched power pin and a
// digital sense pin. The probe is only powered while being read, which
// slows electrode corrosion.
type Moist struct {
	Power    gpio.Pin
	Sense    gpio.Pin
	Settle   time.Duration
	Polarity Polarity
}

// NewMoist creates a probe with DefaultSettle and Direct polarity.
func NewMoist(power, sense gpio.Pin) Moist {
	return Moist{Power: power, Sense: sense, Settle: DefaultSettle}
}

// Init sets the sense pin to a pulled-up input, so it does not float while
// the probe is unpowered, and the power pin to a low output.
func (m Moist) Init(pins gpio.Pins) error {
	if err := pins.SetMode(m.Sense, gpio.Input); err != nil {
		return fmt.Errorf("sense pin mode: %w", err)
	}
	if err := pins.Clear(m.Power); err != nil {
		return fmt.Errorf("power pin clear: %w", err)
	}
	if err := pins.SetMode(m.Power, gpio.Output); err != nil {
		return fmt.Errorf("power pin mode: %w", err)
	}
	if err := pins.SetPull([]gpio.Pin{m.Sense}, gpio.PullUp); err != nil {
		return fmt.Errorf("sense pin pull: %w", err)
	}
	if err := pins.SetPull([]gpio.Pin{m.Power}, gpio.PullOff); err != nil {
		return fmt.Errorf("power pin pull: %w", err)
	}
	return nil
}

// Read powers the probe, waits for it to settle, samples the sense pin and
// powers the probe down again. The power pin is cleared on every return path
// after the power-up attempt.
func (m Moist) Read(pins gpio.Pins) (v uint32, err error) {
	defer func() {
		if cerr := pins.Clear(m.Power); cerr != nil {
			err = errors.Join(err, fmt.Errorf("power off: %w", cerr))
		}
	}()

	if err := pins.Set(m.Power); err != nil {
		return 0, fmt.Errorf("power on: %w", err)
	}
	time.Sleep(m.Settle)

	lvl, err := pins.Read(m.Sense)
	if err != nil {
		return 0, fmt.Errorf("read sense pin: %w", err)
	}
	return m.Polarity.Value(lvl), nil
}

// Clear powers the probe down and returns both pins to high-impedance inputs.
// Every step is attempted even if an earlier one fails.
func (m Moist) Clear(pins gpio.Pins) error {
	var errs []error
	if err := pins.Clear(m.Power); err != nil {
		errs = append(errs, fmt.Errorf("power off: %w", err))
	}
	if err := pins.SetMode(m.Sense, gpio.Input); err != nil {
		errs = append(errs, fmt.Errorf("sense pin mode: %w", err))
	}
	if err := pins.SetMode(m.Power, gpio.Input); err != nil {
		errs = append(errs, fmt.Errorf("power pin mode: %w", err))
	}
	return errors.Join(errs...)
}

func (m Moist) String() string {
	return fmt.Sprintf("moist(power=%d sense=%d settle=%v %s)", m.Power, m.Sense, m.Settle, m.Polarity)
}
