package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each user's buffer in a Redis list, newest at the head,
// trimmed to capacity on every push. A hash maps notification ids to users.
type RedisStore struct {
	client   redis.UniversalClient
	capacity int
	prefix   string
	now      func() time.Time
}

var _ Store = (*RedisStore)(nil)

type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key. Default "pulse:notifications".
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisStore) {
		if p != "" {
			s.prefix = p
		}
	}
}

func NewRedisStore(client redis.UniversalClient, capacity int, opts ...RedisOption) *RedisStore {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	s := &RedisStore{
		client:   client,
		capacity: capacity,
		prefix:   "pulse:notifications",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) listKey(userID string) string { return s.prefix + ":user:" + userID }
func (s *RedisStore) indexKey() string              { return s.prefix + ":index" }
func (s *RedisStore) usersKey() string              { return s.prefix + ":users" }

func (s *RedisStore) Push(ctx context.Context, n Notification) (int, error) {
	if n.ID == "" || n.RecipientID == "" {
		return 0, ErrInvalidRequest
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return 0, err
	}

	key := s.listKey(n.RecipientID)
	var overflow *redis.StringSliceCmd
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, raw)
		overflow = p.LRange(ctx, key, int64(s.capacity), -1)
		p.LTrim(ctx, key, 0, int64(s.capacity-1))
		p.HSet(ctx, s.indexKey(), n.ID, n.RecipientID)
		p.SAdd(ctx, s.usersKey(), n.RecipientID)
		return nil
	})
	if err != nil {
		return 0, err
	}

	evicted := overflow.Val()
	if len(evicted) == 0 {
		return 0, nil
	}
	ids := make([]string, 0, len(evicted))
	for _, item := range evicted {
		var old Notification
		if json.Unmarshal([]byte(item), &old) == nil {
			ids = append(ids, old.ID)
		}
	}
	if len(ids) > 0 {
		if err := s.client.HDel(ctx, s.indexKey(), ids...).Err(); err != nil {
			return len(evicted), err
		}
	}
	return len(evicted), nil
}

func (s *RedisStore) load(ctx context.Context, userID string) ([]Notification, error) {
	items, err := s.client.LRange(ctx, s.listKey(userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeAll(items), nil
}

func decodeAll(items []string) []Notification {
	out := make([]Notification, 0, len(items))
	for _, item := range items {
		var n Notification
		if json.Unmarshal([]byte(item), &n) == nil {
			out = append(out, n)
		}
	}
	return out
}

func (s *RedisStore) owner(ctx context.Context, id string) (string, error) {
	userID, err := s.client.HGet(ctx, s.indexKey(), id).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return userID, err
}

func (s *RedisStore) Get(ctx context.Context, id string) (Notification, error) {
	userID, err := s.owner(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	items, err := s.load(ctx, userID)
	if err != nil {
		return Notification{}, err
	}
	i := slices.IndexFunc(items, func(n Notification) bool { return n.ID == id })
	if i < 0 {
		return Notification{}, ErrNotFound
	}
	return items[i], nil
}

func (s *RedisStore) List(ctx context.Context, userID string, opts ListOptions) ([]Notification, error) {
	items, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return applyList(items, opts), nil
}

// update rewrites matching entries in place. WATCH aborts the transaction
// if a concurrent push shifted the list; the update is then retried.
func (s *RedisStore) update(ctx context.Context, userID string, match func(Notification) bool) (int, error) {
	key := s.listKey(userID)
	now := s.now()

	const attempts = 5
	for range attempts {
		changed := 0
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			items, err := tx.LRange(ctx, key, 0, -1).Result()
			if err != nil {
				return err
			}
			type write struct {
				index int64
				raw   []byte
			}
			var writes []write
			for i, item := range items {
				var n Notification
				if json.Unmarshal([]byte(item), &n) != nil || !match(n) || !n.markRead(now) {
					continue
				}
				raw, err := json.Marshal(n)
				if err != nil {
					return err
				}
				writes = append(writes, write{index: int64(i), raw: raw})
			}
			changed = len(writes)
			if changed == 0 {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				for _, w := range writes {
					p.LSet(ctx, key, w.index, w.raw)
				}
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return changed, err
	}
	return 0, redis.TxFailedErr
}

func (s *RedisStore) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	return s.update(ctx, userID, func(n Notification) bool { return slices.Contains(ids, n.ID) })
}

func (s *RedisStore) MarkReadByID(ctx context.Context, id string) (Notification, error) {
	userID, err := s.owner(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if _, err := s.MarkRead(ctx, userID, id); err != nil {
		return Notification{}, err
	}
	return s.Get(ctx, id)
}

func (s *RedisStore) MarkAllRead(ctx context.Context, userID string) (int, error) {
	return s.update(ctx, userID, func(Notification) bool { return true })
}

func (s *RedisStore) CountUnread(ctx context.Context, userID string) (int, error) {
	items, err := s.load(ctx, userID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range items {
		if !item.Read {
			n++
		}
	}
	return n, nil
}

func (s *RedisStore) Stats(ctx context.Context) (StoreStats, error) {
	users, err := s.client.SMembers(ctx, s.usersKey()).Result()
	if err != nil {
		return StoreStats{}, err
	}
	var st StoreStats
	for _, userID := range users {
		items, err := s.load(ctx, userID)
		if err != nil {
			return StoreStats{}, err
		}
		if len(items) == 0 {
			continue
		}
		st.Users++
		st.Notifications += len(items)
		for _, n := range items {
			if !n.Read {
				st.Unread++
			}
		}
	}
	return st, nil
}
