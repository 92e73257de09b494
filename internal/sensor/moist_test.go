package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/moisture-sensor/internal/gpio"
)

// wiredProbe simulates a dry probe wired to a register window: while the
// power pin is driven high the sense pin's level bit reads High.
type wiredProbe struct {
	*gpio.Controller
	regs         *gpio.RegisterMap
	power, sense gpio.Pin
	powered      bool
}

func newWiredProbe(t *testing.T, power, sense gpio.Pin) *wiredProbe {
	t.Helper()
	mem := make([]byte, gpio.MemSize)
	c, err := gpio.NewController(mem)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	regs, err := gpio.NewRegisterMap(mem)
	if err != nil {
		t.Fatalf("NewRegisterMap: %v", err)
	}
	return &wiredProbe{Controller: c, regs: regs, power: power, sense: sense}
}

func (w *wiredProbe) Set(pin gpio.Pin) error {
	if err := w.Controller.Set(pin); err != nil {
		return err
	}
	if pin == w.power {
		w.powered = true
		w.regs.Modify(gpio.GPLEV0, 1<<w.sense, 1<<w.sense)
	}
	return nil
}

func (w *wiredProbe) Clear(pin gpio.Pin) error {
	if err := w.Controller.Clear(pin); err != nil {
		return err
	}
	if pin == w.power {
		w.powered = false
		w.regs.Modify(gpio.GPLEV0, 1<<w.sense, 0)
	}
	return nil
}

func TestMoistReadDryProbe(t *testing.T) {
	tests := []struct {
		polarity Polarity
		want     uint32
	}{
		{Direct, 1},
		{Inverted, 0},
	}

	for _, tt := range tests {
		t.Run(tt.polarity.String(), func(t *testing.T) {
			probe := newWiredProbe(t, 27, 17)
			m := Moist{Power: 27, Sense: 17, Settle: 2 * time.Millisecond, Polarity: tt.polarity}

			if err := m.Init(probe); err != nil {
				t.Fatalf("Init: %v", err)
			}
			if mode, _ := probe.Mode(17); mode != gpio.Input {
				t.Errorf("sense mode: got %s, want Input", mode)
			}
			if mode, _ := probe.Mode(27); mode != gpio.Output {
				t.Errorf("power mode: got %s, want Output", mode)
			}

			start := time.Now()
			got, err := m.Read(probe)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if elapsed := time.Since(start); elapsed < 2*time.Millisecond {
				t.Errorf("read returned after %v, before settle time", elapsed)
			}
			if got != tt.want {
				t.Errorf("value: got %d, want %d", got, tt.want)
			}
			if probe.powered {
				t.Error("probe left powered after Read")
			}
			if got := probe.regs.Load(gpio.GPCLR0); got != 1<<27 {
				t.Errorf("GPCLR0: got %#x, want %#x", got, uint32(1<<27))
			}
		})
	}
}

func TestMoistReadAlwaysPowersDown(t *testing.T) {
	for _, lvl := range []gpio.Level{gpio.Low, gpio.High} {
		for _, pol := range []Polarity{Direct, Inverted} {
			for _, readErr := range []error{nil, errors.New("bus fault")} {
				name := lvl.String() + "/" + pol.String()
				if readErr != nil {
					name += "/error"
				}
				t.Run(name, func(t *testing.T) {
					f := gpio.NewFakePins()
					f.Levels[17] = lvl
					f.ReadError = readErr
					m := Moist{Power: 27, Sense: 17, Polarity: pol}

					v, err := m.Read(f)
					if readErr != nil {
						if !errors.Is(err, readErr) {
							t.Fatalf("expected read error, got %v", err)
						}
					} else {
						if err != nil {
							t.Fatalf("unexpected error: %v", err)
						}
						if want := pol.Value(lvl); v != want {
							t.Errorf("value: got %d, want %d", v, want)
						}
					}

					if f.Outputs[27] {
						t.Error("power pin left energized")
					}
					last := f.Ops[len(f.Ops)-1]
					if last.Name != "clear" || last.Pins[0] != 27 {
						t.Errorf("last op: got %v, want clear[27]", last)
					}
				})
			}
		}
	}
}

func TestMoistReadSetFailureStillClears(t *testing.T) {
	f := gpio.NewFakePins()
	f.SetError = errors.New("stuck")
	m := NewMoist(27, 17)

	if _, err := m.Read(f); err == nil {
		t.Fatal("expected error")
	}
	if f.Count("read") != 0 {
		t.Error("sense pin read although power-on failed")
	}
	if f.Count("clear") != 1 {
		t.Errorf("clear count: got %d, want 1", f.Count("clear"))
	}
}

func TestMoistInitSequence(t *testing.T) {
	f := gpio.NewFakePins()
	m := NewMoist(27, 17)

	if err := m.Init(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.Modes[17] != gpio.Input {
		t.Errorf("sense mode: got %s", f.Modes[17])
	}
	if f.Modes[27] != gpio.Output {
		t.Errorf("power mode: got %s", f.Modes[27])
	}
	if f.Pulls[17] != gpio.PullUp {
		t.Errorf("sense pull: got %s", f.Pulls[17])
	}
	if f.Pulls[27] != gpio.PullOff {
		t.Errorf("power pull: got %s", f.Pulls[27])
	}
	if f.Outputs[27] {
		t.Error("power pin energized by Init")
	}
}

func TestMoistInitInvalidPin(t *testing.T) {
	f := gpio.NewFakePins()
	m := NewMoist(27, 99)

	err := m.Init(f)
	if !errors.Is(err, gpio.ErrPinOutOfRange) {
		t.Fatalf("expected ErrPinOutOfRange, got %v", err)
	}
}

func TestMoistClear(t *testing.T) {
	f := gpio.NewFakePins()
	m := NewMoist(27, 17)
	m.Init(f)
	f.Set(27)

	if err := m.Clear(f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Outputs[27] {
		t.Error("power pin left energized")
	}
	if f.Modes[17] != gpio.Input || f.Modes[27] != gpio.Input {
		t.Errorf("pins not idle: sense=%s power=%s", f.Modes[17], f.Modes[27])
	}
}

func TestParsePolarity(t *testing.T) {
	tests := []struct {
		in      string
		want    Polarity
		wantErr bool
	}{
		{"", Direct, false},
		{"direct", Direct, false},
		{"Inverted", Inverted, false},
		{"high-is-zero", Inverted, false},
		{"sideways", Direct, true},
	}
	for _, tt := range tests {
		got, err := ParsePolarity(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolarity(%q): err %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePolarity(%q): got %s, want %s", tt.in, got, tt.want)
		}
	}
}
