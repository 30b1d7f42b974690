package main

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/pulse/pkg/auth"
	"github.com/dmitrymomot/pulse/pkg/config"
	"github.com/dmitrymomot/pulse/pkg/email"
	"github.com/dmitrymomot/pulse/pkg/gateway"
	"github.com/dmitrymomot/pulse/pkg/httpserver"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/ratelimiter"
	"github.com/dmitrymomot/pulse/pkg/sns"
)

const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendMongo    = "mongo"
	backendPostgres = "postgres"

	scopeGlobal = "global"
	scopeRooms  = "rooms"
)

// appConfig holds the core PULSE_* settings. Infra clients load their own
// configs only when the matching backend is selected.
type appConfig struct {
	Env     string `env:"APP_ENV" envDefault:"development"`
	Service string `env:"APP_NAME" envDefault:"pulse"`

	NotificationStore string `env:"PULSE_NOTIFICATION_STORE" envDefault:"memory"` // memory | redis
	StoreCapacity     int    `env:"PULSE_STORE_CAPACITY" envDefault:"100"`
	Persistence       string `env:"PULSE_PERSISTENCE" envDefault:"memory"` // memory | mongo
	Directory         string `env:"PULSE_DIRECTORY" envDefault:"memory"`   // memory | postgres
	SeedFile          string `env:"PULSE_SEED_FILE"`

	DirectoryCacheSize int           `env:"PULSE_DIRECTORY_CACHE_SIZE" envDefault:"4096"`
	DirectoryCacheTTL  time.Duration `env:"PULSE_DIRECTORY_CACHE_TTL" envDefault:"1m"`

	RegistryShards int    `env:"PULSE_REGISTRY_SHARDS" envDefault:"32"`
	RoomShards     int    `env:"PULSE_ROOM_SHARDS" envDefault:"32"`
	FanoutStripes  int    `env:"PULSE_FANOUT_STRIPES" envDefault:"64"`
	PresenceScope  string `env:"PULSE_PRESENCE_SCOPE" envDefault:"global"` // global | rooms
	PresenceBuffer int    `env:"PULSE_PRESENCE_BUFFER" envDefault:"256"`

	TypingTTL   time.Duration `env:"PULSE_TYPING_TTL" envDefault:"5s"`
	TypingRate  float64       `env:"PULSE_TYPING_RATE" envDefault:"2"`
	TypingBurst int           `env:"PULSE_TYPING_BURST" envDefault:"4"`

	Templates         string        `env:"PULSE_TEMPLATES"`
	ChannelTimeout    time.Duration `env:"PULSE_CHANNEL_TIMEOUT" envDefault:"10s"`
	BackgroundTimeout time.Duration `env:"PULSE_BACKGROUND_TIMEOUT" envDefault:"30s"`
	EnableSNS         bool          `env:"PULSE_ENABLE_SNS" envDefault:"false"`
	EnableEmail       bool          `env:"PULSE_ENABLE_EMAIL" envDefault:"true"`
	EmailFooter       string        `env:"PULSE_EMAIL_FOOTER"`

	ServiceAuth bool `env:"PULSE_SERVICE_AUTH" envDefault:"false"`
	RateLimit   bool `env:"PULSE_RATE_LIMIT" envDefault:"true"`
}

func (c appConfig) validate() error {
	switch {
	case c.NotificationStore != backendMemory && c.NotificationStore != backendRedis:
		return fmt.Errorf("PULSE_NOTIFICATION_STORE: unsupported backend %q", c.NotificationStore)
	case c.Persistence != backendMemory && c.Persistence != backendMongo:
		return fmt.Errorf("PULSE_PERSISTENCE: unsupported backend %q", c.Persistence)
	case c.Directory != backendMemory && c.Directory != backendPostgres:
		return fmt.Errorf("PULSE_DIRECTORY: unsupported backend %q", c.Directory)
	case c.PresenceScope != scopeGlobal && c.PresenceScope != scopeRooms:
		return fmt.Errorf("PULSE_PRESENCE_SCOPE: unsupported scope %q", c.PresenceScope)
	case c.StoreCapacity <= 0:
		return fmt.Errorf("PULSE_STORE_CAPACITY must be positive, got %d", c.StoreCapacity)
	}
	return nil
}

// settings bundles every config section read at startup.
type settings struct {
	app     appConfig
	log     logger.Config
	http    httpserver.Config
	auth    auth.Config
	gateway gateway.Config
	limit   ratelimiter.Config
	email   email.Config
	sns     sns.Config
}

func loadSettings() (settings, error) {
	var s settings
	for _, load := range []func() error{
		func() error { return config.Load(&s.app) },
		func() error { return config.Load(&s.log) },
		func() error { return config.Load(&s.http) },
		func() error { return config.Load(&s.auth) },
		func() error { return config.Load(&s.gateway) },
		func() error { return config.Load(&s.limit) },
		func() error { return config.Load(&s.email) },
		func() error { return config.Load(&s.sns) },
	} {
		if err := load(); err != nil {
			return settings{}, err
		}
	}
	if err := s.app.validate(); err != nil {
		return settings{}, err
	}
	return s, nil
}
