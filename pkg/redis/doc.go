// Package redis connects to Redis with retries and exposes a health check.
//
// Configuration is read from REDIS_* environment variables via pkg/config:
//
//	cfg := config.MustLoad[redis.Config]()
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// The client backs notifications.RedisStore when the process runs with a
// shared notification buffer. Healthcheck plugs into the /healthz handler.
//
// Sentinel errors wrap go-redis failures with errors.Join.
package redis
