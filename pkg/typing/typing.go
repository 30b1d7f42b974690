// Package typing relays ephemeral typing signals to conversation peers.
//
// Signals are never persisted, never retried and have no offline fallback.
// They use conn.TrySend so a full outbound queue drops the signal without
// marking the connection unhealthy, and they never wait on the message
// fan-out path. Start is throttled per connection; when a TTL is set a
// typist that stays silent gets an automatic stop_typing.
package typing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/logger"
)

// Rooms yields the connections subscribed to a conversation.
type Rooms interface {
	Snapshot(conversationID string) []*conn.Conn
}

type key struct {
	connID         string
	conversationID string
}

type session struct {
	conn  *conn.Conn
	timer *time.Timer
}

// Relay fans typing signals out to room peers.
type Relay struct {
	rooms Rooms
	ttl   time.Duration
	limit rate.Limit
	burst int
	log   *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	active   map[key]*session
}

type Option func(*Relay)

// WithTTL sends stop_typing on behalf of a typist silent for ttl. Zero
// disables the timer.
func WithTTL(ttl time.Duration) Option {
	return func(r *Relay) { r.ttl = ttl }
}

// WithRate bounds Start calls per connection.
func WithRate(limit rate.Limit, burst int) Option {
	return func(r *Relay) {
		if limit > 0 && burst > 0 {
			r.limit, r.burst = limit, burst
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

func New(rooms Rooms, opts ...Option) *Relay {
	r := &Relay{
		rooms:    rooms,
		ttl:      5 * time.Second,
		limit:    rate.Limit(5),
		burst:    10,
		log:      slog.Default(),
		limiters: make(map[string]*rate.Limiter),
		active:   make(map[key]*session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start tells c's peers in conversationID that its owner is typing and
// returns how many connections accepted the signal.
func (r *Relay) Start(c *conn.Conn, conversationID string) (int, error) {
	if !c.InRoom(conversationID) {
		return 0, ErrNotInRoom
	}
	if !r.limiter(c.ID()).Allow() {
		return 0, ErrRateLimited
	}
	r.arm(c, conversationID)
	return r.fan(c, conversationID, events.TypingStart), nil
}

// Stop tells c's peers that its owner stopped typing.
func (r *Relay) Stop(c *conn.Conn, conversationID string) (int, error) {
	if !c.InRoom(conversationID) {
		return 0, ErrNotInRoom
	}
	r.disarm(key{connID: c.ID(), conversationID: conversationID})
	return r.fan(c, conversationID, events.TypingStop), nil
}

// Forget releases c's state. Conversations where c was still typing get a
// stop_typing so peers do not keep a stale indicator.
func (r *Relay) Forget(c *conn.Conn) {
	r.mu.Lock()
	delete(r.limiters, c.ID())
	var typing []string
	for k, s := range r.active {
		if k.connID != c.ID() {
			continue
		}
		s.timer.Stop()
		delete(r.active, k)
		typing = append(typing, k.conversationID)
	}
	r.mu.Unlock()

	for _, conversationID := range typing {
		r.fan(c, conversationID, events.TypingStop)
	}
}

// Active reports how many typing sessions are armed.
func (r *Relay) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

func (r *Relay) limiter(connID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[connID]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[connID] = l
	}
	return l
}

func (r *Relay) arm(c *conn.Conn, conversationID string) {
	if r.ttl <= 0 {
		return
	}
	k := key{connID: c.ID(), conversationID: conversationID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.active[k]; ok {
		s.timer.Reset(r.ttl)
		return
	}
	s := &session{conn: c}
	s.timer = time.AfterFunc(r.ttl, func() { r.expire(k, s) })
	r.active[k] = s
}

func (r *Relay) disarm(k key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.active[k]; ok {
		s.timer.Stop()
		delete(r.active, k)
	}
}

func (r *Relay) expire(k key, s *session) {
	r.mu.Lock()
	if r.active[k] != s {
		r.mu.Unlock()
		return
	}
	delete(r.active, k)
	r.mu.Unlock()

	if s.conn.Closed() {
		return
	}
	n := r.fan(s.conn, k.conversationID, events.TypingStop)
	r.log.LogAttrs(context.Background(), slog.LevelDebug, "typing expired",
		logger.ConnectionID(k.connID),
		logger.ConversationID(k.conversationID),
		logger.Count(n),
	)
}

func (r *Relay) fan(from *conn.Conn, conversationID, event string) int {
	env := events.New(event, events.TypingPayload{
		ConversationID: conversationID,
		UserID:         from.UserID(),
	})
	sent := 0
	for _, c := range r.rooms.Snapshot(conversationID) {
		if c.UserID() == from.UserID() {
			continue
		}
		if c.TrySend(env) {
			sent++
		}
	}
	return sent
}
