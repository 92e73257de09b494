package sink

import (
	"context"
	"sync"
)

// FakePublisher records published payloads for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Payloads contains every payload that was published.
	Payloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// OnPublish, if set, runs before the payload is recorded. It runs
	// without the lock held and may block.
	OnPublish func(ctx context.Context, payload []byte)

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the payload.
func (f *FakePublisher) Publish(ctx context.Context, payload []byte) error {
	if f.OnPublish != nil {
		f.OnPublish(ctx, payload)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Payloads = append(f.Payloads, append([]byte(nil), payload...))
	return nil
}

// Published returns a copy of the recorded payloads.
func (f *FakePublisher) Published() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.Payloads...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears recorded payloads.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Payloads = nil
	f.PublishError = nil
	f.Closed = false
}
