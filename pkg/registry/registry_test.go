package registry_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/conn"
	"github.com/dmitrymomot/pulse/pkg/conn/conntest"
	"github.com/dmitrymomot/pulse/pkg/registry"
)

type edgeRecorder struct {
	mu    sync.Mutex
	edges []string
}

func (e *edgeRecorder) Online(_ context.Context, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, "online:"+userID)
}

func (e *edgeRecorder) Offline(_ context.Context, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.edges = append(e.edges, "offline:"+userID)
}

func (e *edgeRecorder) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.edges...)
}

func newConn(userID string) *conn.Conn {
	return conn.New(userID, conntest.NewRecorder(false))
}

func TestRegistry_ReferenceCounting(t *testing.T) {
	t.Parallel()

	const n = 5
	obs := &edgeRecorder{}
	r := registry.New(registry.WithObserver(obs), registry.WithShards(4))
	ctx := context.Background()

	conns := make([]*conn.Conn, n)
	for i := range n {
		conns[i] = newConn("alice")
		first, err := r.Register(ctx, conns[i])
		require.NoError(t, err)
		assert.Equal(t, i == 0, first)
	}

	for i := range n - 1 {
		assert.False(t, r.Unregister(ctx, conns[i]))
		assert.True(t, r.IsOnline("alice"))
	}
	assert.Len(t, r.ConnectionsFor("alice"), 1)

	assert.True(t, r.Unregister(ctx, conns[n-1]))
	assert.False(t, r.IsOnline("alice"))
	assert.Equal(t, []string{"online:alice", "offline:alice"}, obs.all())

	// idempotent
	assert.False(t, r.Unregister(ctx, conns[n-1]))
	assert.Len(t, obs.all(), 2)
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	r := registry.New()
	ctx := context.Background()

	_, err := r.Register(ctx, nil)
	assert.ErrorIs(t, err, registry.ErrNilConnection)

	_, err = r.Register(ctx, newConn(""))
	assert.ErrorIs(t, err, registry.ErrEmptyIdentity)

	c := newConn("bob")
	_, err = r.Register(ctx, c)
	require.NoError(t, err)
	_, err = r.Register(ctx, c)
	assert.ErrorIs(t, err, registry.ErrDuplicateConn)

	got, ok := r.Get(c.ID())
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_Stats(t *testing.T) {
	t.Parallel()

	r := registry.New()
	ctx := context.Background()
	for _, u := range []string{"a", "a", "b", "c"} {
		_, err := r.Register(ctx, newConn(u))
		require.NoError(t, err)
	}

	assert.Equal(t, registry.Stats{Users: 3, Connections: 4}, r.Count())
	assert.ElementsMatch(t, []string{"a", "b", "c"}, r.OnlineUsers())
	assert.Len(t, r.All(), 4)
}

func TestRegistry_ConcurrentChurn(t *testing.T) {
	t.Parallel()

	obs := &edgeRecorder{}
	r := registry.New(registry.WithObserver(obs))
	ctx := context.Background()

	var wg sync.WaitGroup
	for u := range 20 {
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				c := newConn(fmt.Sprintf("user-%d", u))
				_, err := r.Register(ctx, c)
				assert.NoError(t, err)
				r.Unregister(ctx, c)
			}()
		}
	}
	wg.Wait()

	assert.Equal(t, registry.Stats{}, r.Count())

	// every identity ends offline, and edges alternate per identity
	last := map[string]string{}
	for _, edge := range obs.all() {
		if user, ok := strings.CutPrefix(edge, "online:"); ok {
			assert.NotEqual(t, "online", last[user])
			last[user] = "online"
			continue
		}
		user := strings.TrimPrefix(edge, "offline:")
		assert.Equal(t, "online", last[user])
		last[user] = "offline"
	}
	for _, state := range last {
		assert.Equal(t, "offline", state)
	}
}
