// Package status provides a thread-safe status tracker for the moisture-sensor daemon.
// It is written by the sampling pipeline and the sink, and read by HTTP handlers.
package status

import (
	"sort"
	"sync"
	"time"
)

// NetworkInfo contains network state as reported by pi-helper.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Sink       string // socket, amqp or mqtt
	Target     string // socket path, broker host or broker URL
	Exchange   string
	Encoding   string
	Driver     string
	Device     string
	IntervalMs int64
	HTTPAddr   string
}

// Sensor is the state of one configured sensor.
type Sensor struct {
	ID         string
	Type       string
	PowerPin   int
	SensePin   int
	LastValue  uint32
	LastSample time.Time // zero until the first sample
	Samples    int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Sensors       []Sensor // sorted by ID
	Published     int
	SinkConnected bool
	StartTime     time.Time
	Now           time.Time
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Ready reports whether every sensor has been sampled at least once.
func (s Snapshot) Ready() bool {
	if len(s.Sensors) == 0 {
		return false
	}
	for _, sn := range s.Sensors {
		if sn.Samples == 0 {
			return false
		}
	}
	return true
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu      sync.RWMutex
	snap    Snapshot
	sensors map[string]*Sensor
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		sensors: make(map[string]*Sensor),
	}
}

// AddSensor registers a sensor. Adding an existing ID replaces its pins
// and type but keeps its samples.
func (t *Tracker) AddSensor(id, sensorType string, powerPin, sensePin int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sensors[id]
	if !ok {
		s = &Sensor{ID: id}
		t.sensors[id] = s
	}
	s.Type = sensorType
	s.PowerPin = powerPin
	s.SensePin = sensePin
}

// RecordSample stores the latest sample of a sensor. Unknown sensors are
// registered on first use.
func (t *Tracker) RecordSample(id string, at time.Time, value uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sensors[id]
	if !ok {
		s = &Sensor{ID: id}
		t.sensors[id] = s
	}
	s.LastValue = value
	s.LastSample = at
	s.Samples++
}

// RecordPublish counts one delivered payload.
func (t *Tracker) RecordPublish() {
	t.mu.Lock()
	t.snap.Published++
	t.mu.Unlock()
}

// SetSinkConnected sets whether a socket client or broker is connected.
func (t *Tracker) SetSinkConnected(connected bool) {
	t.mu.Lock()
	t.snap.SinkConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Sensors = make([]Sensor, 0, len(t.sensors))
	for _, sn := range t.sensors {
		s.Sensors = append(s.Sensors, *sn)
	}
	t.mu.RUnlock()

	sort.Slice(s.Sensors, func(i, j int) bool { return s.Sensors[i].ID < s.Sensors[j].ID })
	s.Now = time.Now()
	return s
}
