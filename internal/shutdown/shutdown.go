// Package shutdown provides the process-wide cooperative cancellation flag.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/womat/debug"
)

// Signal is set once and never reset. Loops observe it at their tick
// boundaries through Triggered, Done or a derived Context.
type Signal struct {
	fired atomic.Bool
	once  sync.Once
	done  chan struct{}
}

// New creates an unset Signal.
func New() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Trigger sets the signal. It reports whether this call set it;
// later calls are no-ops.
func (s *Signal) Trigger() bool {
	first := false
	s.once.Do(func() {
		s.fired.Store(true)
		close(s.done)
		first = true
	})
	return first
}

// Triggered reports whether the signal is set.
func (s *Signal) Triggered() bool {
	return s.fired.Load()
}

// Done returns a channel that is closed when the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Context returns a context that is cancelled when the signal is set or
// parent is done.
func (s *Signal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Notify triggers the signal on any of sigs. Repeated OS signals are
// logged and otherwise ignored. The returned func stops watching.
func (s *Signal) Notify(sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)
	quit := make(chan struct{})

	go func() {
		for {
			select {
			case sig := <-ch:
				if s.Trigger() {
					debug.InfoLog.Printf("received %v, shutting down", sig)
				} else {
					debug.DebugLog.Printf("received %v, already shutting down", sig)
				}
			case <-quit:
				return
			}
		}
	}()

	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			signal.Stop(ch)
			close(quit)
		})
	}
}
