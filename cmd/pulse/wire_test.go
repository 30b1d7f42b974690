package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/conn/conntest"
	"github.com/dmitrymomot/pulse/pkg/email"
	"github.com/dmitrymomot/pulse/pkg/logger"
	"github.com/dmitrymomot/pulse/pkg/notifications"
	"github.com/dmitrymomot/pulse/pkg/registry"
	"github.com/dmitrymomot/pulse/pkg/rooms"
)

func TestBuildChannels(t *testing.T) {
	t.Parallel()

	s := settings{
		app:   appConfig{EnableEmail: true},
		email: email.Config{DevDir: t.TempDir()},
	}
	channels, err := buildChannels(context.Background(), s, registry.New())
	require.NoError(t, err)

	names := make([]notifications.ChannelName, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name())
	}
	assert.Equal(t, []notifications.ChannelName{notifications.ChannelRealtime, notifications.ChannelEmail}, names)

	s.app.EnableEmail = false
	channels, err = buildChannels(context.Background(), s, registry.New())
	require.NoError(t, err)
	assert.Len(t, channels, 1)
}

func TestLoadTemplates(t *testing.T) {
	t.Parallel()

	tpl, err := loadTemplates("")
	require.NoError(t, err)
	assert.NotNil(t, tpl)

	_, err = loadTemplates("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestLiveSource(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	ix := rooms.New()
	c, _ := conntest.Open(t, "alice")
	_, err := reg.Register(context.Background(), c)
	require.NoError(t, err)
	_, err = ix.Join(c, "c1")
	require.NoError(t, err)

	src := liveSource{reg: reg, rooms: ix}
	assert.Equal(t, 1, src.Connections())
	assert.Equal(t, 1, src.OnlineUsers())
	assert.Equal(t, 1, src.ActiveRooms())
}

func TestClosersRunInReverse(t *testing.T) {
	t.Parallel()

	var order []int
	var cl closers
	for i := range 3 {
		cl.add(func(context.Context) error {
			order = append(order, i)
			if i == 1 {
				return errors.New("boom")
			}
			return nil
		})
	}
	cl.run(logger.Discard())
	assert.Equal(t, []int{2, 1, 0}, order)
}
