// Package config loads env-tagged structs with github.com/caarlos0/env/v11,
// reading a local .env file through github.com/joho/godotenv first.
//
// Every pulse component exposes a Config struct with `env` tags; cmd/pulse
// loads them once at startup:
//
//	var cfg gateway.Config
//	config.MustLoad(&cfg)
//
// Loaded values are cached per struct type, so repeated Load calls for the
// same type are cheap and always observe the same snapshot. Reset drops the
// cache and is meant for tests.
package config
