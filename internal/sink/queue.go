package sink

import (
	"context"
	"fmt"

	"github.com/womat/debug"
)

// QueueSink publishes every payload to a broker. There is no reconnect: a
// publish error ends the run and the supervisor restarts the process.
type QueueSink struct {
	Publisher Publisher
	Recorder  Recorder
}

// Run publishes until ctx is done or a publish fails. Shutdown is observed
// while the feed waits for the next tick; a publish already in progress
// always completes.
func (q *QueueSink) Run(ctx context.Context, feed Feed) error {
	rec := recorderOrNop(q.Recorder)
	rec.SetSinkConnected(true)
	defer rec.SetSinkConnected(false)

	// In-flight publishes must not be cut short by shutdown.
	pubCtx := context.WithoutCancel(ctx)

	for {
		payload, err := feed.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				debug.InfoLog.Printf("queue sink stopped")
				return nil
			}
			return err
		}

		if err := q.Publisher.Publish(pubCtx, payload); err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		rec.RecordPublish()
		debug.TraceLog.Printf("published %d bytes", len(payload))
	}
}
