// Package ratelimiter implements token bucket limits for the HTTP API.
//
// A Bucket consumes tokens from a Store. MemoryStore keeps buckets in
// process and evicts idle ones; RedisStore runs the same algorithm in a Lua
// script so every replica shares one budget:
//
//	limiter, err := ratelimiter.NewBucket(ratelimiter.NewRedisStore(rdb), ratelimiter.Config{
//		Capacity:       20,
//		RefillRate:     10,
//		RefillInterval: time.Second,
//	})
//	r.With(ratelimiter.Middleware(limiter, ratelimiter.Composite(ratelimiter.ByUser, ratelimiter.ByIP))).
//		Post("/notifications/send", send)
//
// Responses carry X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; rejected requests get 429 with Retry-After.
package ratelimiter
