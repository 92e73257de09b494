package status

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{Sink: "socket", Target: "/run/moist.sock", Encoding: "raw", IntervalMs: 1000, HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.IntervalMs != 1000 {
		t.Errorf("Config.IntervalMs: got %d, want 1000", snap.Config.IntervalMs)
	}
	if snap.Config.HTTPAddr != ":80" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":80")
	}
	if snap.Ready() {
		t.Error("expected Ready=false initially")
	}
	if snap.SinkConnected {
		t.Error("expected SinkConnected=false initially")
	}
	if len(snap.Sensors) != 0 {
		t.Errorf("expected no sensors, got %d", len(snap.Sensors))
	}
}

func TestRecordSampleAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.AddSensor("garden", "moisture", 27, 17)
	tr.AddSensor("bed", "moisture", 22, 23)

	at := time.Date(2026, 2, 2, 22, 18, 12, 0, time.UTC)
	tr.RecordSample("garden", at, 1)
	tr.RecordSample("garden", at.Add(time.Second), 0)

	snap := tr.Snapshot()
	if len(snap.Sensors) != 2 {
		t.Fatalf("expected 2 sensors, got %d", len(snap.Sensors))
	}
	if snap.Sensors[0].ID != "bed" || snap.Sensors[1].ID != "garden" {
		t.Errorf("sensors not sorted: %s, %s", snap.Sensors[0].ID, snap.Sensors[1].ID)
	}
	g := snap.Sensors[1]
	if g.Samples != 2 {
		t.Errorf("Samples: got %d, want 2", g.Samples)
	}
	if g.LastValue != 0 {
		t.Errorf("LastValue: got %d, want 0", g.LastValue)
	}
	if !g.LastSample.Equal(at.Add(time.Second)) {
		t.Errorf("LastSample: got %v", g.LastSample)
	}
	if g.PowerPin != 27 || g.SensePin != 17 {
		t.Errorf("pins: got %d/%d", g.PowerPin, g.SensePin)
	}
	if snap.Ready() {
		t.Error("expected Ready=false while bed has no sample")
	}

	tr.RecordSample("bed", at, 1)
	if !tr.Snapshot().Ready() {
		t.Error("expected Ready=true once every sensor sampled")
	}
}

func TestRecordSampleUnknownSensor(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.RecordSample("late", time.Now(), 1)

	snap := tr.Snapshot()
	if len(snap.Sensors) != 1 || snap.Sensors[0].ID != "late" {
		t.Fatalf("unexpected sensors: %+v", snap.Sensors)
	}
}

func TestSinkState(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetSinkConnected(true)
	tr.RecordPublish()
	tr.RecordPublish()
	snap := tr.Snapshot()
	if !snap.SinkConnected {
		t.Error("expected SinkConnected=true")
	}
	if snap.Published != 2 {
		t.Errorf("Published: got %d, want 2", snap.Published)
	}

	tr.SetSinkConnected(false)
	if tr.Snapshot().SinkConnected {
		t.Error("expected SinkConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	net := &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"}
	tr.SetNetwork(net)

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.AddSensor("garden", "moisture", 27, 17)
	tr.RecordSample("garden", time.Now(), 1)

	snap1 := tr.Snapshot()

	tr.RecordSample("garden", time.Now(), 0)

	// snap1 should still reflect old state
	if snap1.Sensors[0].LastValue != 1 {
		t.Error("snapshot should be a copy; LastValue was modified")
	}
	if snap1.Sensors[0].Samples != 1 {
		t.Error("snapshot should be a copy; Samples was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Sensors: []Sensor{
			{ID: "bed", Type: "moisture", PowerPin: 22, SensePin: 23},
			{ID: "garden", Type: "moisture", PowerPin: 27, SensePin: 17, LastValue: 1, LastSample: start.Add(time.Minute), Samples: 60},
		},
		Published:     59,
		SinkConnected: true,
		StartTime:     start,
		Now:           start.Add(90 * time.Second),
		Config: Config{
			Sink:       "amqp",
			Target:     "127.0.0.1:5672",
			Exchange:   "sensors",
			Encoding:   "json",
			Driver:     "mmap",
			Device:     "/dev/gpiomem",
			IntervalMs: 1000,
			HTTPAddr:   ":8080",
		},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := parsed.Status
	if s.Ready {
		t.Error("expected Ready=false with an unsampled sensor")
	}
	if s.UptimeSeconds != 90 {
		t.Errorf("UptimeSeconds: got %d, want 90", s.UptimeSeconds)
	}
	if s.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("StartTime: got %q", s.StartTime)
	}
	if s.Sink.Kind != "amqp" || s.Sink.Target != "127.0.0.1:5672" || !s.Sink.Connected || s.Sink.Published != 59 {
		t.Errorf("unexpected sink: %+v", s.Sink)
	}
	if len(s.Sensors) != 2 {
		t.Fatalf("expected 2 sensors, got %d", len(s.Sensors))
	}
	if s.Sensors[0].Value != nil {
		t.Errorf("unsampled sensor value: got %d, want null", *s.Sensors[0].Value)
	}
	if s.Sensors[1].Value == nil || *s.Sensors[1].Value != 1 {
		t.Errorf("garden value: got %v, want 1", s.Sensors[1].Value)
	}
	if s.Sensors[1].LastSample != "2026-01-01T00:01:00Z" {
		t.Errorf("garden last sample: got %q", s.Sensors[1].LastSample)
	}
	if s.Config.Exchange != "sensors" || s.Config.IntervalMs != 1000 {
		t.Errorf("unexpected config: %+v", s.Config)
	}
	if s.Network != nil {
		t.Error("expected Network to be omitted")
	}
	if !strings.Contains(string(data), `"value": null`) {
		t.Errorf("unsampled value not rendered as null:\n%s", data)
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
		Config:    Config{Sink: "mqtt", Target: "tcp://localhost:1883"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	json.Unmarshal(data, &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
	if parsed.Status.Sensors == nil {
		t.Error("expected empty sensors array, got null")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.AddSensor("garden", "moisture", 27, 17)
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.RecordSample("garden", time.Now(), uint32(i%2))
			tr.RecordPublish()
			tr.SetSinkConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
