package community

import (
	"context"
	"time"

	"github.com/dmitrymomot/pulse/pkg/cache"
)

const (
	DefaultDirectoryCacheSize = 4096
	DefaultDirectoryCacheTTL  = time.Minute
)

// CachedDirectory memoizes successful identity lookups. Failures are never
// cached so a missing identity shows up as soon as it is created.
type CachedDirectory struct {
	next  IdentityDirectory
	cache *cache.LRU[string, Identity]
}

var _ IdentityDirectory = (*CachedDirectory)(nil)

// NewCachedDirectory wraps next with an LRU of size entries, each kept for
// ttl. Non-positive values fall back to the defaults.
func NewCachedDirectory(next IdentityDirectory, size int, ttl time.Duration) *CachedDirectory {
	if size <= 0 {
		size = DefaultDirectoryCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultDirectoryCacheTTL
	}
	return &CachedDirectory{
		next:  next,
		cache: cache.New(size, cache.WithTTL[string, Identity](ttl)),
	}
}

func (d *CachedDirectory) Identity(ctx context.Context, userID string) (Identity, error) {
	if id, ok := d.cache.Get(userID); ok {
		return id, nil
	}
	id, err := d.next.Identity(ctx, userID)
	if err != nil {
		return Identity{}, err
	}
	d.cache.Put(userID, id)
	return id, nil
}

// Invalidate drops the cached identity of userID, e.g. after its toggles
// changed.
func (d *CachedDirectory) Invalidate(userID string) {
	d.cache.Remove(userID)
}
