// Package format encodes samples into wire payloads.
package format

import (
	"bytes"
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sweeney/moisture-sensor/internal/sampler"
)

// Encoding selects the payload format. It is fixed for a whole run.
type Encoding string

const (
	// JSON is {"sensor_type","sensor_id","timestamp","value"} with the
	// timestamp in milliseconds since the Unix epoch.
	JSON Encoding = "json"

	// Text is one CSV line: sensor_type,sensor_id,timestamp,value.
	Text Encoding = "text"

	// Raw is the value as a 4-byte big-endian unsigned integer.
	Raw Encoding = "raw"
)

// ParseEncoding accepts json, text or raw (case-insensitive).
func ParseEncoding(s string) (Encoding, error) {
	switch e := Encoding(strings.ToLower(strings.TrimSpace(s))); e {
	case JSON, Text, Raw:
		return e, nil
	}
	return "", fmt.Errorf("unknown encoding %q (want json, text or raw)", s)
}

// Payload is the JSON representation of a sample.
type Payload struct {
	SensorType string `json:"sensor_type"`
	SensorID   string `json:"sensor_id"`
	Timestamp  int64  `json:"timestamp"`
	Value      uint32 `json:"value"`
}

// Formatter encodes the samples of one sensor.
type Formatter struct {
	Encoding   Encoding
	SensorID   string
	SensorType string
}

// New creates a Formatter.
func New(enc Encoding, sensorID, sensorType string) Formatter {
	return Formatter{Encoding: enc, SensorID: sensorID, SensorType: sensorType}
}

// Format creates the payload for s.
func (f Formatter) Format(s sampler.Sample) ([]byte, error) {
	switch f.Encoding {
	case Raw:
		return binary.BigEndian.AppendUint32(nil, s.Value), nil

	case Text:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		w.Write([]string{
			f.SensorType,
			f.SensorID,
			strconv.FormatInt(s.Time.UnixMilli(), 10),
			strconv.FormatUint(uint64(s.Value), 10),
		})
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("format text: %w", err)
		}
		return buf.Bytes(), nil

	case JSON, "":
		return json.Marshal(Payload{
			SensorType: f.SensorType,
			SensorID:   f.SensorID,
			Timestamp:  s.Time.UnixMilli(),
			Value:      s.Value,
		})
	}
	return nil, fmt.Errorf("unknown encoding %q", f.Encoding)
}

// ContentType is the MIME type of the payloads.
func (f Formatter) ContentType() string {
	switch f.Encoding {
	case Raw:
		return "application/octet-stream"
	case Text:
		return "text/csv"
	}
	return "application/json"
}
