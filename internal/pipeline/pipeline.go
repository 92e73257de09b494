// Package pipeline merges sensor samplers into one lazy payload feed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/moisture-sensor/internal/format"
	"github.com/sweeney/moisture-sensor/internal/sampler"
)

// ErrNoSources is returned by Next when the stream has nothing to sample.
var ErrNoSources = errors.New("pipeline: no sources")

// Recorder observes every sample taken.
type Recorder interface {
	RecordSample(sensorID string, at time.Time, value uint32)
}

// Source is one sensor's sampler and formatter.
type Source struct {
	Sampler *sampler.Sampler
	Format  format.Formatter
}

// Stream yields formatted payloads, one per sample, in tick order across
// all sources. Nothing is sampled until Next is called.
type Stream struct {
	sources  []Source
	recorder Recorder
	closed   bool
}

// New creates a Stream. The samplers must already be initialized.
// recorder may be nil.
func New(sources []Source, recorder Recorder) *Stream {
	return &Stream{sources: sources, recorder: recorder}
}

// Next samples the source whose tick is due first and returns its payload.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	if s.closed {
		return nil, sampler.ErrClosed
	}
	if len(s.sources) == 0 {
		return nil, ErrNoSources
	}

	src := s.sources[0]
	for _, c := range s.sources[1:] {
		if c.Sampler.Due().Before(src.Sampler.Due()) {
			src = c
		}
	}

	smp, err := src.Sampler.Next(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, fmt.Errorf("sensor %s: %w", src.Format.SensorID, err)
	}
	if s.recorder != nil {
		s.recorder.RecordSample(src.Format.SensorID, smp.Time, smp.Value)
	}

	payload, err := src.Format.Format(smp)
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", src.Format.SensorID, err)
	}
	return payload, nil
}

// Close clears every sensor. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closed = true
	var errs []error
	for _, src := range s.sources {
		if err := src.Sampler.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
