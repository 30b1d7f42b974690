package presence

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/dmitrymomot/pulse/pkg/broadcast"
	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/events"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/rooms"
)

// Connections is the registry view the relay needs.
type Connections interface {
	All() []*conn.Conn
}

// StateSource reports the latest status of identities that changed at or
// after a point in time. Tracker and Broadcaster implement it.
type StateSource interface {
	Since(t time.Time) []events.StatusPayload
}

// Relay forwards presence events from the global stream to connections.
type Relay struct {
	conns         Connections
	rooms         *rooms.Index
	conversations community.ConversationStore
	replay        StateSource
	log           *slog.Logger
}

type RelayOption func(*Relay)

// WithRoomScope limits delivery to connections that share a conversation
// with the subject of the event.
func WithRoomScope(ix *rooms.Index, store community.ConversationStore) RelayOption {
	return func(r *Relay) {
		r.rooms = ix
		r.conversations = store
	}
}

// WithReplay lets the relay catch up after its subscription was dropped by
// re-sending the current status of everyone who changed since the last
// delivered event.
func WithReplay(src StateSource) RelayOption {
	return func(r *Relay) { r.replay = src }
}

func WithRelayLogger(l *slog.Logger) RelayOption {
	return func(r *Relay) {
		if l != nil {
			r.log = l
		}
	}
}

func NewRelay(conns Connections, opts ...RelayOption) *Relay {
	r := &Relay{conns: conns, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run consumes stream until ctx is cancelled or the stream is closed. A
// subscription dropped for falling behind is renewed and, with WithReplay,
// the missed transitions are re-sent as current state.
func (r *Relay) Run(ctx context.Context, stream broadcast.Broadcaster[events.StatusPayload]) error {
	var last time.Time
	for resubscribed := false; ; resubscribed = true {
		sub := stream.Subscribe(ctx)
		if resubscribed && r.replay != nil {
			for _, ev := range r.replay.Since(last) {
				r.Deliver(ctx, ev)
				last = ev.Timestamp
			}
		}
		for msg := range sub.Receive() {
			r.Deliver(ctx, msg.Data)
			if msg.Data.Timestamp.After(last) {
				last = msg.Data.Timestamp
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-stream.Done():
			return nil
		default:
		}
		r.log.LogAttrs(ctx, slog.LevelWarn, "presence relay fell behind, resubscribing",
			logger.Component("presence"),
		)
	}
}

// Deliver sends ev to its targets. The subject's own connections are skipped.
func (r *Relay) Deliver(ctx context.Context, ev events.StatusPayload) int {
	if ev.UserID == "" {
		return 0
	}
	env := events.New(events.UserStatusChanged, ev)
	sent := 0
	for _, c := range r.targets(ctx, ev.UserID) {
		if c.UserID() == ev.UserID {
			continue
		}
		if err := c.Send(env); err == nil {
			sent++
		}
	}
	return sent
}

func (r *Relay) targets(ctx context.Context, userID string) []*conn.Conn {
	if r.rooms == nil || r.conversations == nil {
		return r.conns.All()
	}

	ids, err := r.conversations.ConversationsFor(ctx, userID)
	if err != nil {
		r.log.LogAttrs(ctx, slog.LevelWarn, "presence room lookup failed",
			logger.UserID(userID),
			logger.Error(err),
		)
		return nil
	}
	var out []*conn.Conn
	for _, id := range ids {
		out = append(out, r.rooms.Snapshot(id)...)
	}
	return lo.UniqBy(out, func(c *conn.Conn) string { return c.ID() })
}
