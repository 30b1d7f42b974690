package auth

import "time"

type Config struct {
	SigningKey string        `env:"PULSE_JWT_SECRET,required"`
	Issuer     string        `env:"PULSE_JWT_ISSUER"`
	Audience   string        `env:"PULSE_JWT_AUDIENCE"`
	Leeway     time.Duration `env:"PULSE_JWT_LEEWAY" envDefault:"30s"`
	QueryParam string        `env:"PULSE_JWT_QUERY_PARAM" envDefault:"token"`
}
