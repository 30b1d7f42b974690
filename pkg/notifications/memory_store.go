package notifications

import (
	"context"
	"hash/fnv"
	"slices"
	"sync"
	"time"
)

const memoryShards = 32

type ring struct {
	mu    sync.Mutex
	items []Notification // oldest first
}

// memoryShard owns the rings of the users hashed to it and the ids of
// their notifications.
type memoryShard struct {
	mu    sync.RWMutex
	users map[string]*ring
	index map[string]string // notification id -> user id
}

// MemoryStore keeps up to capacity notifications per user in process.
// Users are independent: each has its own lock, and users on different
// shards never share one.
type MemoryStore struct {
	capacity int
	now      func() time.Time
	shards   [memoryShards]memoryShard
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store. Capacities below 1 fall back to DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	s := &MemoryStore{capacity: capacity, now: time.Now}
	for i := range s.shards {
		s.shards[i].users = make(map[string]*ring)
		s.shards[i].index = make(map[string]string)
	}
	return s
}

func (s *MemoryStore) shard(userID string) *memoryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &s.shards[h.Sum32()%memoryShards]
}

func (s *MemoryStore) ring(userID string, create bool) *ring {
	sh := s.shard(userID)
	sh.mu.RLock()
	r, ok := sh.users[userID]
	sh.mu.RUnlock()
	if ok || !create {
		return r
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if r, ok = sh.users[userID]; !ok {
		r = &ring{}
		sh.users[userID] = r
	}
	return r
}

// owner resolves the recipient of notification id.
func (s *MemoryStore) owner(id string) (string, bool) {
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		userID, ok := sh.index[id]
		sh.mu.RUnlock()
		if ok {
			return userID, true
		}
	}
	return "", false
}

func (s *MemoryStore) Push(_ context.Context, n Notification) (int, error) {
	if n.ID == "" || n.RecipientID == "" {
		return 0, ErrInvalidRequest
	}

	r := s.ring(n.RecipientID, true)
	r.mu.Lock()
	r.items = append(r.items, n)
	var evicted []Notification
	if over := len(r.items) - s.capacity; over > 0 {
		evicted = slices.Clone(r.items[:over])
		r.items = slices.Delete(r.items, 0, over)
	}
	// index updates stay under the ring lock so a concurrent eviction
	// cannot leave a stale entry behind
	sh := s.shard(n.RecipientID)
	sh.mu.Lock()
	sh.index[n.ID] = n.RecipientID
	for _, e := range evicted {
		delete(sh.index, e.ID)
	}
	sh.mu.Unlock()
	r.mu.Unlock()

	return len(evicted), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Notification, error) {
	userID, ok := s.owner(id)
	if !ok {
		return Notification{}, ErrNotFound
	}

	r := s.ring(userID, false)
	if r == nil {
		return Notification{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.items {
		if n.ID == id {
			return n, nil
		}
	}
	return Notification{}, ErrNotFound
}

func (s *MemoryStore) List(_ context.Context, userID string, opts ListOptions) ([]Notification, error) {
	r := s.ring(userID, false)
	if r == nil {
		return []Notification{}, nil
	}
	r.mu.Lock()
	newest := slices.Clone(r.items)
	r.mu.Unlock()
	slices.Reverse(newest)
	return applyList(newest, opts), nil
}

func (s *MemoryStore) MarkRead(_ context.Context, userID string, ids ...string) (int, error) {
	r := s.ring(userID, false)
	if r == nil {
		return 0, nil
	}
	now := s.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := 0
	for i := range r.items {
		if slices.Contains(ids, r.items[i].ID) && r.items[i].markRead(now) {
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) MarkReadByID(ctx context.Context, id string) (Notification, error) {
	userID, ok := s.owner(id)
	if !ok {
		return Notification{}, ErrNotFound
	}
	if _, err := s.MarkRead(ctx, userID, id); err != nil {
		return Notification{}, err
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) MarkAllRead(_ context.Context, userID string) (int, error) {
	r := s.ring(userID, false)
	if r == nil {
		return 0, nil
	}
	now := s.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	changed := 0
	for i := range r.items {
		if r.items[i].markRead(now) {
			changed++
		}
	}
	return changed, nil
}

func (s *MemoryStore) CountUnread(_ context.Context, userID string) (int, error) {
	r := s.ring(userID, false)
	if r == nil {
		return 0, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, item := range r.items {
		if !item.Read {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Stats(_ context.Context) (StoreStats, error) {
	var rings []*ring
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, r := range sh.users {
			rings = append(rings, r)
		}
		sh.mu.RUnlock()
	}

	var st StoreStats
	for _, r := range rings {
		r.mu.Lock()
		if len(r.items) > 0 {
			st.Users++
		}
		st.Notifications += len(r.items)
		for _, n := range r.items {
			if !n.Read {
				st.Unread++
			}
		}
		r.mu.Unlock()
	}
	return st, nil
}
