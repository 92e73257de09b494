// Package sink delivers encoded samples to a local socket or a message broker.
package sink

import (
	"context"
)

// Feed yields one payload per tick. Next blocks until the tick is due and
// returns ctx.Err() if ctx is done while waiting.
type Feed interface {
	Next(ctx context.Context) ([]byte, error)
}

// Publisher sends payloads to a broker.
type Publisher interface {
	// Publish sends one payload. It blocks until the broker accepted it or
	// the attempt failed.
	Publish(ctx context.Context, payload []byte) error

	// Close disconnects from the broker.
	Close() error
}

// Recorder observes sink activity for the status page.
type Recorder interface {
	SetSinkConnected(connected bool)
	RecordPublish()
}

type nopRecorder struct{}

func (nopRecorder) SetSinkConnected(bool) {}
func (nopRecorder) RecordPublish()        {}

func recorderOrNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}
