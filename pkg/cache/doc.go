// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// The cache is used in front of slow collaborator lookups, such as the
// identity directory, where a bounded working set and a short staleness
// window are acceptable.
//
// # Usage
//
//	c := cache.New[string, community.Identity](1024,
//		cache.WithTTL[string, community.Identity](time.Minute),
//	)
//	c.Put("alice", identity)
//	if id, ok := c.Get("alice"); ok {
//		// use id
//	}
//
// Get, Put and Remove are O(1). Expired entries are dropped lazily on the
// next Get, so Len may count entries that are already stale.
package cache
