// Package config loads and validates the sensor configuration file.
//
// The file is decoded into a generic tree first and then checked key by
// key, so every error names the offending key path, for example
// "sensors.garden.val_pin".
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	"github.com/sweeney/moisture-sensor/internal/gpio"
	"github.com/sweeney/moisture-sensor/internal/sensor"
)

// ValidPins are the BCM pins broken out on the 40-pin header that have no
// alternate function claimed by default.
var ValidPins = []gpio.Pin{4, 5, 6, 13, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27}

const (
	// MaxSettle bounds pwr_wait.
	MaxSettle = time.Second

	// MinInterval bounds interval from below.
	MinInterval = time.Second
)

// Error is a configuration error at a key path.
type Error struct {
	Key   string
	Cause string
}

func (e *Error) Error() string {
	return fmt.Sprintf("sensor configuration error at [%s]: %s", e.Key, e.Cause)
}

// Sensor is one validated sensor record.
type Sensor struct {
	ID       string
	Type     string
	Power    gpio.Pin
	Sense    gpio.Pin
	Settle   time.Duration
	Interval time.Duration // zero: use the global default
	Polarity sensor.Polarity
}

// Probe returns the moisture probe driver for s.
func (s Sensor) Probe() sensor.Moist {
	return sensor.Moist{
		Power:    s.Power,
		Sense:    s.Sense,
		Settle:   s.Settle,
		Polarity: s.Polarity,
	}
}

// Config is the validated configuration.
type Config struct {
	AllowAllPins bool
	Sensors      []Sensor // sorted by ID
}

// Load reads the file at path. Files ending in .yaml or .yml are YAML,
// everything else is TOML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	}
	return ParseTOML(data)
}

// ParseTOML parses and validates a TOML document.
func ParseTOML(data []byte) (*Config, error) {
	var tree map[string]any
	if _, err := toml.Decode(string(data), &tree); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return fromTree(tree)
}

// ParseYAML parses and validates a YAML document.
func ParseYAML(data []byte) (*Config, error) {
	var raw map[any]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	tree, _ := normalize(raw).(map[string]any)
	return fromTree(tree)
}

// normalize converts yaml.v2 maps to map[string]any and integers to int64,
// matching what the TOML decoder produces.
func normalize(v any) any {
	switch v := v.(type) {
	case map[any]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = normalize(val)
		}
		return m
	case []any:
		for i := range v {
			v[i] = normalize(v[i])
		}
		return v
	case int:
		return int64(v)
	}
	return v
}

func fromTree(tree map[string]any) (*Config, error) {
	cfg := &Config{}

	if v, ok := tree["allow_all_pins"]; ok {
		b, ok := v.(bool)
		if !ok {
			return nil, typeError("allow_all_pins", "boolean", v)
		}
		cfg.AllowAllPins = b
	}

	v, ok := tree["sensors"]
	if !ok {
		return nil, &Error{Key: "sensors", Cause: "was expected but not found"}
	}
	sensors, ok := v.(map[string]any)
	if !ok {
		return nil, typeError("sensors", "table", v)
	}
	if len(sensors) == 0 {
		return nil, &Error{Key: "sensors", Cause: "at least one sensor is required"}
	}

	ids := make([]string, 0, len(sensors))
	for id := range sensors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	used := make(map[gpio.Pin]string)
	for _, id := range ids {
		s, err := parseSensor(id, sensors[id], cfg.AllowAllPins)
		if err != nil {
			return nil, err
		}
		for _, p := range []struct {
			key string
			pin gpio.Pin
		}{{"pwr_pin", s.Power}, {"val_pin", s.Sense}} {
			if owner, taken := used[p.pin]; taken {
				return nil, &Error{
					Key:   "sensors." + id + "." + p.key,
					Cause: fmt.Sprintf("pin %d is already used by %s", p.pin, owner),
				}
			}
			used[p.pin] = "sensors." + id + "." + p.key
		}
		cfg.Sensors = append(cfg.Sensors, s)
	}
	return cfg, nil
}

func parseSensor(id string, v any, allowAll bool) (Sensor, error) {
	scope := "sensors." + id
	if strings.TrimSpace(id) == "" {
		return Sensor{}, &Error{Key: "sensors", Cause: "sensor id must not be empty"}
	}
	t, ok := v.(map[string]any)
	if !ok {
		return Sensor{}, typeError(scope, "table", v)
	}
	s := Sensor{ID: id, Settle: sensor.DefaultSettle}

	var err error
	if s.Type, err = requiredString(t, scope, "sensor_type"); err != nil {
		return Sensor{}, err
	}
	if s.Type == "" {
		return Sensor{}, &Error{Key: scope + ".sensor_type", Cause: "must not be empty"}
	}
	if s.Power, err = requiredPin(t, scope, "pwr_pin", allowAll); err != nil {
		return Sensor{}, err
	}
	if s.Sense, err = requiredPin(t, scope, "val_pin", allowAll); err != nil {
		return Sensor{}, err
	}
	if s.Power == s.Sense {
		return Sensor{}, &Error{Key: scope + ".val_pin", Cause: fmt.Sprintf("must differ from pwr_pin (%d)", s.Power)}
	}

	if n, ok, err := optionalInt(t, scope, "pwr_wait"); err != nil {
		return Sensor{}, err
	} else if ok {
		if n < 0 || n > MaxSettle.Milliseconds() {
			return Sensor{}, &Error{Key: scope + ".pwr_wait", Cause: fmt.Sprintf("must be between 0 and %d milliseconds, got %d", MaxSettle.Milliseconds(), n)}
		}
		s.Settle = time.Duration(n) * time.Millisecond
	}

	if n, ok, err := optionalInt(t, scope, "interval"); err != nil {
		return Sensor{}, err
	} else if ok {
		if n < int64(MinInterval/time.Second) {
			return Sensor{}, &Error{Key: scope + ".interval", Cause: fmt.Sprintf("must be at least 1 second, got %d", n)}
		}
		s.Interval = time.Duration(n) * time.Second
	}

	if v, ok := t["polarity"]; ok {
		str, ok := v.(string)
		if !ok {
			return Sensor{}, typeError(scope+".polarity", "string", v)
		}
		if s.Polarity, err = sensor.ParsePolarity(str); err != nil {
			return Sensor{}, &Error{Key: scope + ".polarity", Cause: err.Error()}
		}
	}

	return s, nil
}

// ValidatePin checks pin against ValidPins, or against the full register
// range if allowAll is set.
func ValidatePin(pin int64, allowAll bool) error {
	if allowAll {
		if pin >= 0 && pin <= int64(gpio.MaxPin) {
			return nil
		}
	} else {
		for _, p := range ValidPins {
			if int64(p) == pin {
				return nil
			}
		}
	}
	return fmt.Errorf("not a valid BCM pin: %d", pin)
}

func requiredString(t map[string]any, scope, key string) (string, error) {
	v, ok := t[key]
	if !ok {
		return "", missing(scope, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", typeError(scope+"."+key, "string", v)
	}
	return s, nil
}

func requiredPin(t map[string]any, scope, key string, allowAll bool) (gpio.Pin, error) {
	n, ok, err := optionalInt(t, scope, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, missing(scope, key)
	}
	if err := ValidatePin(n, allowAll); err != nil {
		return 0, &Error{Key: scope + "." + key, Cause: err.Error()}
	}
	return gpio.Pin(n), nil
}

func optionalInt(t map[string]any, scope, key string) (int64, bool, error) {
	v, ok := t[key]
	if !ok {
		return 0, false, nil
	}
	n, ok := v.(int64)
	if !ok {
		return 0, false, typeError(scope+"."+key, "integer", v)
	}
	return n, true, nil
}

func missing(scope, key string) error {
	return &Error{Key: scope + "." + key, Cause: "was expected but not found"}
}

func typeError(key, want string, got any) error {
	return &Error{
		Key:   key,
		Cause: fmt.Sprintf("is not valid type, expected '%s' but found '%s'", want, typeName(got)),
	}
}

// typeName names a decoded value the way TOML does.
func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int64, int, uint64:
		return "integer"
	case float64:
		return "float"
	case bool:
		return "boolean"
	case map[string]any:
		return "table"
	case []any, []map[string]any:
		return "array"
	case time.Time:
		return "datetime"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}
