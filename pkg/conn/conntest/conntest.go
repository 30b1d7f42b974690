// Package conntest provides an in-memory transport for tests that need live
// connections.
package conntest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/events"
)

// Recorder is a conn.Transport that keeps every written envelope.
type Recorder struct {
	mu      sync.Mutex
	written []events.Envelope
	closed  bool
	block   chan struct{}
}

// NewRecorder returns a recorder. When blocked is true writes stall until
// Unblock or Close is called, which simulates a stuck client.
func NewRecorder(blocked bool) *Recorder {
	r := &Recorder{}
	if blocked {
		r.block = make(chan struct{})
	}
	return r
}

func (r *Recorder) WriteEnvelope(ctx context.Context, env events.Envelope) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return conn.ErrClosed
	}
	r.written = append(r.written, env)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Unblock releases a blocked recorder.
func (r *Recorder) Unblock() {
	if r.block != nil {
		close(r.block)
		r.block = nil
	}
}

// Envelopes returns a copy of everything written so far.
func (r *Recorder) Envelopes() []events.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Envelope(nil), r.written...)
}

// Named returns the written envelopes whose event equals name.
func (r *Recorder) Named(name string) []events.Envelope {
	var out []events.Envelope
	for _, env := range r.Envelopes() {
		if env.Event == name {
			out = append(out, env)
		}
	}
	return out
}

// IsClosed reports whether the transport was closed.
func (r *Recorder) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Open creates a connection backed by a Recorder and runs its writer pump
// until the test ends.
func Open(t testing.TB, userID string, opts ...conn.Option) (*conn.Conn, *Recorder) {
	t.Helper()
	rec := NewRecorder(false)
	c := conn.New(userID, rec, opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		_ = c.Close()
	})
	return c, rec
}

// Settle waits until every queued envelope of c has been written.
func Settle(t testing.TB, conns ...*conn.Conn) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for _, c := range conns {
		for c.Stats().Queued > 0 && !c.Closed() {
			if time.Now().After(deadline) {
				t.Fatalf("connection %s did not drain", c.ID())
			}
			time.Sleep(time.Millisecond)
		}
	}
	// the pump may hold one envelope between dequeue and write
	time.Sleep(5 * time.Millisecond)
}
