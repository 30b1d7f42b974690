package rooms

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/pulse/pkg/community"
	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/logger"
)

// DefaultShards is the bucket count used when none is configured.
const DefaultShards = 32

type bucket struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*conn.Conn // conversationID -> connID -> conn
}

// Index is the conversation to connection index.
type Index struct {
	buckets       []*bucket
	conversations community.ConversationStore
	log           *slog.Logger
}

type Option func(*Index)

func WithShards(n int) Option {
	return func(ix *Index) {
		if n > 0 {
			ix.buckets = make([]*bucket, n)
		}
	}
}

// WithConversations sets the collaborator used by AutoJoin and JoinVerified.
func WithConversations(store community.ConversationStore) Option {
	return func(ix *Index) { ix.conversations = store }
}

func WithLogger(l *slog.Logger) Option {
	return func(ix *Index) {
		if l != nil {
			ix.log = l
		}
	}
}

func New(opts ...Option) *Index {
	ix := &Index{
		buckets: make([]*bucket, DefaultShards),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	for i := range ix.buckets {
		ix.buckets[i] = &bucket{rooms: make(map[string]map[string]*conn.Conn)}
	}
	return ix
}

func (ix *Index) bucketFor(conversationID string) *bucket {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return ix.buckets[h.Sum32()%uint32(len(ix.buckets))]
}

// Join adds c to the conversation. It is idempotent and reports whether the
// membership is new.
func (ix *Index) Join(c *conn.Conn, conversationID string) (bool, error) {
	if conversationID == "" {
		return false, ErrEmptyConversation
	}

	b := ix.bucketFor(conversationID)
	b.mu.Lock()
	defer b.mu.Unlock()

	// Track before checking for closure: RemoveEverywhere closes first and
	// reads the tracked set second, so one of the two always sees the other.
	tracked := c.TrackRoom(conversationID)
	if c.Closed() {
		if tracked {
			c.UntrackRoom(conversationID)
		}
		return false, ErrConnectionClosed
	}

	set, ok := b.rooms[conversationID]
	if !ok {
		set = make(map[string]*conn.Conn)
		b.rooms[conversationID] = set
	}
	if _, ok := set[c.ID()]; ok {
		return false, nil
	}
	set[c.ID()] = c
	return true, nil
}

// Leave removes c from the conversation. It is idempotent.
func (ix *Index) Leave(c *conn.Conn, conversationID string) bool {
	b := ix.bucketFor(conversationID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return ix.leaveLocked(b, c, conversationID)
}

func (ix *Index) leaveLocked(b *bucket, c *conn.Conn, conversationID string) bool {
	c.UntrackRoom(conversationID)
	set, ok := b.rooms[conversationID]
	if !ok {
		return false
	}
	if _, ok := set[c.ID()]; !ok {
		return false
	}
	delete(set, c.ID())
	if len(set) == 0 {
		delete(b.rooms, conversationID)
	}
	return true
}

// RemoveEverywhere drops c from every room it joined and returns those rooms.
// The connection must already be closed so that no concurrent Join re-adds it.
func (ix *Index) RemoveEverywhere(c *conn.Conn) []string {
	left := c.Rooms()
	for _, id := range left {
		ix.Leave(c, id)
	}
	return left
}

// Snapshot copies the live connections of a conversation.
func (ix *Index) Snapshot(conversationID string) []*conn.Conn {
	b := ix.bucketFor(conversationID)
	b.mu.RLock()
	defer b.mu.RUnlock()
	set := b.rooms[conversationID]
	out := make([]*conn.Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Members returns the distinct identities connected to a conversation.
func (ix *Index) Members(conversationID string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range ix.Snapshot(conversationID) {
		if _, ok := seen[c.UserID()]; ok {
			continue
		}
		seen[c.UserID()] = struct{}{}
		out = append(out, c.UserID())
	}
	return out
}

// ActiveRooms counts conversations with at least one live connection.
func (ix *Index) ActiveRooms() int {
	n := 0
	for _, b := range ix.buckets {
		b.mu.RLock()
		n += len(b.rooms)
		b.mu.RUnlock()
	}
	return n
}

// Rooms returns every active conversation with its connection ids.
func (ix *Index) Rooms() map[string][]string {
	out := make(map[string][]string)
	for _, b := range ix.buckets {
		b.mu.RLock()
		for id, set := range b.rooms {
			ids := make([]string, 0, len(set))
			for connID := range set {
				ids = append(ids, connID)
			}
			out[id] = ids
		}
		b.mu.RUnlock()
	}
	return out
}

// AutoJoin subscribes c to every conversation its identity participates in.
// Conversations are fetched once from the collaborator.
func (ix *Index) AutoJoin(ctx context.Context, c *conn.Conn) ([]string, error) {
	if ix.conversations == nil {
		return nil, nil
	}
	ids, err := ix.conversations.ConversationsFor(ctx, c.UserID())
	if err != nil {
		return nil, errors.Join(ErrMembershipLookup, err)
	}

	joined := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, err := ix.Join(c, id); err != nil {
			return joined, err
		}
		joined = append(joined, id)
	}

	ix.log.LogAttrs(ctx, slog.LevelDebug, "auto-joined conversations",
		logger.UserID(c.UserID()),
		logger.ConnectionID(c.ID()),
		logger.Count(len(joined)),
	)
	return joined, nil
}

// JoinVerified admits c to a conversation only after the collaborator
// confirms that c's identity participates in it.
func (ix *Index) JoinVerified(ctx context.Context, c *conn.Conn, conversationID string) (bool, error) {
	if conversationID == "" {
		return false, ErrEmptyConversation
	}
	if ix.conversations == nil {
		return false, ErrNotParticipant
	}

	ok, err := ix.conversations.IsParticipant(ctx, conversationID, c.UserID())
	if err != nil {
		return false, errors.Join(ErrMembershipLookup, err)
	}
	if !ok {
		ix.log.LogAttrs(ctx, slog.LevelWarn, "rejected join of non-participant",
			logger.UserID(c.UserID()),
			logger.ConnectionID(c.ID()),
			logger.ConversationID(conversationID),
		)
		return false, ErrNotParticipant
	}
	return ix.Join(c, conversationID)
}
