package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	Sink          SinkJSON     `json:"sink"`
	Sensors       []SensorJSON `json:"sensors"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SinkJSON reports sink state.
type SinkJSON struct {
	Kind      string `json:"kind"`
	Target    string `json:"target"`
	Connected bool   `json:"connected"`
	Published int    `json:"published"`
}

// SensorJSON is the JSON representation of one sensor.
type SensorJSON struct {
	ID         string  `json:"id"`
	Type       string  `json:"sensor_type"`
	PowerPin   int     `json:"pwr_pin"`
	SensePin   int     `json:"val_pin"`
	Value      *uint32 `json:"value"` // null until the first sample
	LastSample string  `json:"last_sample,omitempty"`
	Samples    int     `json:"samples"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Exchange   string `json:"exchange,omitempty"`
	Encoding   string `json:"encoding"`
	Driver     string `json:"driver"`
	Device     string `json:"device"`
	IntervalMs int64  `json:"interval_ms"`
	HTTPAddr   string `json:"http_addr"`
}

func buildSensors(snap Snapshot) []SensorJSON {
	out := make([]SensorJSON, 0, len(snap.Sensors))
	for _, s := range snap.Sensors {
		sj := SensorJSON{
			ID:       s.ID,
			Type:     s.Type,
			PowerPin: s.PowerPin,
			SensePin: s.SensePin,
			Samples:  s.Samples,
		}
		if s.Samples > 0 {
			v := s.LastValue
			sj.Value = &v
			sj.LastSample = s.LastSample.UTC().Format(time.RFC3339)
		}
		out = append(out, sj)
	}
	return out
}

func buildNetwork(snap Snapshot) *NetworkJSON {
	if snap.Network == nil {
		return nil
	}
	return &NetworkJSON{
		Type:       snap.Network.Type,
		IP:         snap.Network.IP,
		Status:     snap.Network.Status,
		Gateway:    snap.Network.Gateway,
		WifiStatus: snap.Network.WifiStatus,
		SSID:       snap.Network.SSID,
	}
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		Ready:         snap.Ready(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Sink: SinkJSON{
			Kind:      snap.Config.Sink,
			Target:    snap.Config.Target,
			Connected: snap.SinkConnected,
			Published: snap.Published,
		},
		Sensors: buildSensors(snap),
		Network: buildNetwork(snap),
		Config: ConfigJSON{
			Exchange:   snap.Config.Exchange,
			Encoding:   snap.Config.Encoding,
			Driver:     snap.Config.Driver,
			Device:     snap.Config.Device,
			IntervalMs: snap.Config.IntervalMs,
			HTTPAddr:   snap.Config.HTTPAddr,
		},
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
