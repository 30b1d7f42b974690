package gateway

import "time"

type Config struct {
	PingInterval   time.Duration `env:"PULSE_WS_PING_INTERVAL" envDefault:"30s"`
	PongWait       time.Duration `env:"PULSE_WS_PONG_WAIT" envDefault:"60s"`
	WriteTimeout   time.Duration `env:"PULSE_WS_WRITE_TIMEOUT" envDefault:"10s"`
	ReadLimit      int64         `env:"PULSE_WS_READ_LIMIT" envDefault:"65536"`
	QueueSize      int           `env:"PULSE_WS_QUEUE_SIZE" envDefault:"256"`
	InboundRate    float64       `env:"PULSE_WS_INBOUND_RATE" envDefault:"20"`
	InboundBurst   int           `env:"PULSE_WS_INBOUND_BURST" envDefault:"40"`
	AllowedOrigins []string      `env:"PULSE_WS_ALLOWED_ORIGINS" envSeparator:","`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval: 30 * time.Second,
		PongWait:     60 * time.Second,
		WriteTimeout: 10 * time.Second,
		ReadLimit:    64 << 10,
		QueueSize:    256,
		InboundRate:  20,
		InboundBurst: 40,
	}
}
