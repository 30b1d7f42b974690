package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/config"
)

type coreConfig struct {
	QueueSize     int           `env:"TEST_PULSE_QUEUE_SIZE" envDefault:"256"`
	StoreCapacity int           `env:"TEST_PULSE_STORE_CAPACITY" envDefault:"100"`
	TypingTTL     time.Duration `env:"TEST_PULSE_TYPING_TTL" envDefault:"5s"`
}

type requiredConfig struct {
	Secret string `env:"TEST_PULSE_REQUIRED_SECRET,required"`
}

func TestLoad(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	t.Setenv("TEST_PULSE_QUEUE_SIZE", "64")

	var cfg coreConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, 100, cfg.StoreCapacity)
	assert.Equal(t, 5*time.Second, cfg.TypingTTL)

	// cached: later env changes are not observed until Reset
	t.Setenv("TEST_PULSE_QUEUE_SIZE", "8")
	var again coreConfig
	require.NoError(t, config.Load(&again))
	assert.Equal(t, 64, again.QueueSize)

	config.Reset()
	var fresh coreConfig
	require.NoError(t, config.Load(&fresh))
	assert.Equal(t, 8, fresh.QueueSize)
}

func TestLoad_Errors(t *testing.T) {
	config.Reset()
	t.Cleanup(config.Reset)

	var missing requiredConfig
	err := config.Load(&missing)
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrParsingConfig)

	assert.ErrorIs(t, config.Load[coreConfig](nil), config.ErrNilPointer)
	assert.Panics(t, func() {
		var cfg requiredConfig
		config.MustLoad(&cfg)
	})
}
