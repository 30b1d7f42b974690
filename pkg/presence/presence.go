package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/pulse/pkg/broadcast"
	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/logger"
)

// Broadcaster publishes presence transitions to a global stream.
type Broadcaster struct {
	stream        broadcast.Broadcaster[events.StatusPayload]
	conversations community.ConversationStore
	tracker       *Tracker
	now           func() time.Time
	log           *slog.Logger

	mu      sync.Mutex
	seq     map[string]uint64
	pending []events.StatusPayload
	wake    chan struct{}
	stopped bool
	done    chan struct{}
}

type Option func(*Broadcaster)

// WithLastSeen stamps lastSeenAt through the collaborator on every offline
// transition.
func WithLastSeen(store community.ConversationStore) Option {
	return func(b *Broadcaster) { b.conversations = store }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) {
		if now != nil {
			b.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) {
		if l != nil {
			b.log = l
		}
	}
}

// New creates a Broadcaster publishing to stream and starts its worker.
// Call Stop to release it.
func New(stream broadcast.Broadcaster[events.StatusPayload], opts ...Option) *Broadcaster {
	b := &Broadcaster{
		stream:  stream,
		tracker: NewTracker(),
		now:     time.Now,
		log:     slog.Default(),
		seq:     make(map[string]uint64),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.work()
	return b
}

// Online implements registry.Observer.
func (b *Broadcaster) Online(_ context.Context, userID string) {
	b.enqueue(userID, events.Online)
}

// Offline implements registry.Observer.
func (b *Broadcaster) Offline(_ context.Context, userID string) {
	b.enqueue(userID, events.Offline)
}

// enqueue never blocks: the registry calls it while holding a bucket lock.
func (b *Broadcaster) enqueue(userID string, status events.Status) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.seq[userID]++
	ev := events.StatusPayload{
		UserID:    userID,
		Status:    status,
		Timestamp: b.now(),
		Seq:       b.seq[userID],
	}
	b.pending = append(b.pending, ev)
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Broadcaster) work() {
	defer close(b.done)
	for {
		b.mu.Lock()
		batch := b.pending
		b.pending = nil
		stopped := b.stopped
		b.mu.Unlock()

		for _, ev := range batch {
			b.publish(ev)
		}
		if stopped {
			return
		}
		if len(batch) == 0 {
			<-b.wake
		}
	}
}

func (b *Broadcaster) publish(ev events.StatusPayload) {
	ctx := context.Background()
	b.tracker.Apply(ev)

	n, err := b.stream.Publish(ctx, broadcast.Message[events.StatusPayload]{Data: ev, PublishedAt: ev.Timestamp})
	if err != nil {
		b.log.LogAttrs(ctx, slog.LevelWarn, "presence publish failed",
			logger.UserID(ev.UserID),
			logger.Error(err),
		)
	}
	b.log.LogAttrs(ctx, slog.LevelDebug, "presence changed",
		logger.UserID(ev.UserID),
		slog.String("status", string(ev.Status)),
		slog.Uint64("seq", ev.Seq),
		logger.Count(n),
	)

	if ev.Status == events.Offline && b.conversations != nil {
		if err := b.conversations.TouchLastSeen(ctx, ev.UserID, ev.Timestamp); err != nil {
			b.log.LogAttrs(ctx, slog.LevelWarn, "failed to update last seen",
				logger.UserID(ev.UserID),
				logger.Error(err),
			)
		}
	}
}

// Status returns the latest published status of userID.
func (b *Broadcaster) Status(userID string) (events.Status, time.Time) {
	return b.tracker.Status(userID)
}

// Since returns the latest status of identities that changed at or after t.
func (b *Broadcaster) Since(t time.Time) []events.StatusPayload {
	return b.tracker.Since(t)
}

// Stop drains queued transitions and stops the worker. Later edges are
// ignored.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.stopped = true
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
	<-b.done
}
