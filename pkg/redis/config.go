package redis

import "time"

// Config is read from REDIS_* variables. ConnectionURL has the form
// redis://:password@localhost:6379/0.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	// KeyPrefix namespaces the notification buffer keys.
	KeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"pulse:notifications"`
}
