package registry

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/logger"
)

// DefaultShards is the bucket count used when none is configured.
const DefaultShards = 32

// Observer is notified about presence edges. Calls for one identity are
// serialized and never reordered.
type Observer interface {
	Online(ctx context.Context, userID string)
	Offline(ctx context.Context, userID string)
}

type bucket struct {
	mu    sync.RWMutex
	users map[string]map[string]*conn.Conn // userID -> connID -> conn
	conns map[string]*conn.Conn            // connID -> conn
}

// Registry is the identity to connection table.
type Registry struct {
	buckets  []*bucket
	observer Observer
	log      *slog.Logger
}

type Option func(*Registry)

// WithShards sets the bucket count. Values below 1 are ignored.
func WithShards(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.buckets = make([]*bucket, n)
		}
	}
}

// WithObserver registers the presence observer.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		buckets: make([]*bucket, DefaultShards),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.buckets {
		r.buckets[i] = &bucket{
			users: make(map[string]map[string]*conn.Conn),
			conns: make(map[string]*conn.Conn),
		}
	}
	return r
}

// SetObserver replaces the observer. It must be called before the first
// Register.
func (r *Registry) SetObserver(o Observer) { r.observer = o }

func (r *Registry) bucketFor(userID string) *bucket {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return r.buckets[h.Sum32()%uint32(len(r.buckets))]
}

// Register adds c under its owner. It reports whether c is the identity's
// first live connection. The identity must already be authenticated.
func (r *Registry) Register(ctx context.Context, c *conn.Conn) (bool, error) {
	if c == nil {
		return false, ErrNilConnection
	}
	if c.UserID() == "" {
		return false, ErrEmptyIdentity
	}

	b := r.bucketFor(c.UserID())
	b.mu.Lock()
	// the lock is held while notifying so edges for one identity stay ordered
	defer b.mu.Unlock()

	if _, ok := b.conns[c.ID()]; ok {
		return false, ErrDuplicateConn
	}

	set, ok := b.users[c.UserID()]
	if !ok {
		set = make(map[string]*conn.Conn, 1)
		b.users[c.UserID()] = set
	}
	set[c.ID()] = c
	b.conns[c.ID()] = c

	first := len(set) == 1
	r.log.LogAttrs(ctx, slog.LevelDebug, "connection registered",
		logger.UserID(c.UserID()),
		logger.ConnectionID(c.ID()),
		logger.Count(len(set)),
	)
	if first && r.observer != nil {
		r.observer.Online(ctx, c.UserID())
	}
	return first, nil
}

// Unregister removes c. It is idempotent and reports whether c was the
// identity's last live connection.
func (r *Registry) Unregister(ctx context.Context, c *conn.Conn) bool {
	if c == nil {
		return false
	}

	b := r.bucketFor(c.UserID())
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.conns[c.ID()]; !ok {
		return false
	}
	delete(b.conns, c.ID())

	set := b.users[c.UserID()]
	delete(set, c.ID())
	last := len(set) == 0
	if last {
		delete(b.users, c.UserID())
	}

	r.log.LogAttrs(ctx, slog.LevelDebug, "connection unregistered",
		logger.UserID(c.UserID()),
		logger.ConnectionID(c.ID()),
		logger.Count(len(set)),
	)
	if last && r.observer != nil {
		r.observer.Offline(ctx, c.UserID())
	}
	return last
}

// IsOnline reports whether userID holds at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	b := r.bucketFor(userID)
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.users[userID]) > 0
}

// ConnectionsFor returns a snapshot of userID's connections.
func (r *Registry) ConnectionsFor(userID string) []*conn.Conn {
	b := r.bucketFor(userID)
	b.mu.RLock()
	defer b.mu.RUnlock()
	set := b.users[userID]
	out := make([]*conn.Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Get looks up a connection by id.
func (r *Registry) Get(connID string) (*conn.Conn, bool) {
	for _, b := range r.buckets {
		b.mu.RLock()
		c, ok := b.conns[connID]
		b.mu.RUnlock()
		if ok {
			return c, true
		}
	}
	return nil, false
}

// OnlineUsers returns the identities that currently hold a connection.
func (r *Registry) OnlineUsers() []string {
	var out []string
	for _, b := range r.buckets {
		b.mu.RLock()
		for id := range b.users {
			out = append(out, id)
		}
		b.mu.RUnlock()
	}
	return out
}

// All returns every live connection.
func (r *Registry) All() []*conn.Conn {
	var out []*conn.Conn
	for _, b := range r.buckets {
		b.mu.RLock()
		for _, c := range b.conns {
			out = append(out, c)
		}
		b.mu.RUnlock()
	}
	return out
}

// Stats summarizes the registry.
type Stats struct {
	Users       int `json:"users"`
	Connections int `json:"connections"`
}

func (r *Registry) Count() Stats {
	var s Stats
	for _, b := range r.buckets {
		b.mu.RLock()
		s.Users += len(b.users)
		s.Connections += len(b.conns)
		b.mu.RUnlock()
	}
	return s
}
