package conn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/logger"
)

// DefaultQueueSize is the outbound queue capacity when none is configured.
const DefaultQueueSize = 256

// Transport writes frames to the client. Implementations need not be safe
// for concurrent writes: only Run calls WriteEnvelope.
type Transport interface {
	WriteEnvelope(ctx context.Context, env events.Envelope) error
	Close() error
}

// Conn is one authenticated duplex session.
type Conn struct {
	id        string
	userID    string
	createdAt time.Time
	transport Transport
	queue     chan events.Envelope
	log       *slog.Logger

	mu    sync.Mutex
	rooms map[string]struct{}

	done       chan struct{}
	doneOnce   sync.Once
	closeOnce  sync.Once
	closeErr   error
	unhealthy  atomic.Bool
	onOverflow func(*Conn)

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Option configures a Conn.
type Option func(*Conn)

// WithID overrides the generated connection id.
func WithID(id string) Option {
	return func(c *Conn) {
		if id != "" {
			c.id = id
		}
	}
}

// WithQueueSize sets the outbound queue capacity. Values below 1 are ignored.
func WithQueueSize(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.queue = make(chan events.Envelope, n)
		}
	}
}

// WithOnOverflow registers a hook fired once when the queue overflows.
func WithOnOverflow(fn func(*Conn)) Option {
	return func(c *Conn) { c.onOverflow = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		if l != nil {
			c.log = l
		}
	}
}

// New creates a connection owned by userID.
func New(userID string, t Transport, opts ...Option) *Conn {
	c := &Conn{
		id:        uuid.NewString(),
		userID:    userID,
		createdAt: time.Now(),
		transport: t,
		queue:     make(chan events.Envelope, DefaultQueueSize),
		log:       slog.Default(),
		rooms:     make(map[string]struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Conn) ID() string           { return c.id }
func (c *Conn) UserID() string       { return c.userID }
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Unhealthy reports whether the connection was dropped for overflowing.
func (c *Conn) Unhealthy() bool { return c.unhealthy.Load() }

// Send enqueues env without blocking. When the queue is full the connection
// is marked unhealthy and closed. The transport is released on another
// goroutine since a stuck writer may hold it.
func (c *Conn) Send(env events.Envelope) error {
	err := c.enqueue(env)
	if errors.Is(err, ErrQueueFull) && c.unhealthy.CompareAndSwap(false, true) {
		c.log.LogAttrs(context.Background(), slog.LevelWarn, "outbound queue overflow, closing connection",
			logger.ConnectionID(c.id),
			logger.UserID(c.userID),
			logger.Event(env.Event),
			slog.Int("queue_size", cap(c.queue)),
		)
		c.markDone()
		if c.onOverflow != nil {
			c.onOverflow(c)
		}
		go func() { _ = c.closeTransport() }()
	}
	return err
}

// TrySend enqueues env if there is room and silently drops it otherwise.
// The connection stays healthy either way.
func (c *Conn) TrySend(env events.Envelope) bool {
	return c.enqueue(env) == nil
}

func (c *Conn) enqueue(env events.Envelope) error {
	if c.Closed() {
		return ErrClosed
	}
	select {
	case c.queue <- env:
		return nil
	default:
		c.dropped.Add(1)
		return ErrQueueFull
	}
}

// Run drains the outbound queue into the transport until the connection
// closes, ctx ends, or a write fails. It closes the connection on return.
func (c *Conn) Run(ctx context.Context) error {
	defer c.Close()

	for {
		select {
		case <-c.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case env := <-c.queue:
			if err := c.transport.WriteEnvelope(ctx, env); err != nil {
				c.log.LogAttrs(ctx, slog.LevelDebug, "write failed",
					logger.ConnectionID(c.id),
					logger.Event(env.Event),
					logger.Error(err),
				)
				return err
			}
			c.sent.Add(1)
		}
	}
}

// Close closes the transport once. Subsequent calls return the first result.
func (c *Conn) Close() error {
	c.markDone()
	return c.closeTransport()
}

func (c *Conn) markDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Conn) closeTransport() error {
	c.closeOnce.Do(func() {
		if c.transport != nil {
			c.closeErr = c.transport.Close()
		}
	})
	return c.closeErr
}

// Rooms returns a snapshot of the conversations this connection has joined.
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	return out
}

// InRoom reports whether the connection has joined conversationID.
func (c *Conn) InRoom(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[conversationID]
	return ok
}

// TrackRoom records membership on the connection side. It is called by the
// room index and reports whether the room was newly added.
func (c *Conn) TrackRoom(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[conversationID]; ok {
		return false
	}
	c.rooms[conversationID] = struct{}{}
	return true
}

// UntrackRoom is the inverse of TrackRoom.
func (c *Conn) UntrackRoom(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[conversationID]; !ok {
		return false
	}
	delete(c.rooms, conversationID)
	return true
}

// Stats are per-connection delivery counters.
type Stats struct {
	Queued  int
	Sent    uint64
	Dropped uint64
}

func (c *Conn) Stats() Stats {
	return Stats{Queued: len(c.queue), Sent: c.sent.Load(), Dropped: c.dropped.Load()}
}
