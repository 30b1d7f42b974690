package broadcast_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/pulse/pkg/broadcast"
)

func receive[T any](t *testing.T, sub broadcast.Subscriber[T]) (broadcast.Message[T], bool) {
	t.Helper()
	select {
	case msg, ok := <-sub.Receive():
		return msg, ok
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return broadcast.Message[T]{}, false
}

func TestMemory_Publish(t *testing.T) {
	t.Parallel()

	t.Run("delivers to every subscriber", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemory[string](4)
		defer b.Close()

		ctx := context.Background()
		subs := []broadcast.Subscriber[string]{b.Subscribe(ctx), b.Subscribe(ctx), b.Subscribe(ctx)}

		n, err := b.Publish(ctx, broadcast.Message[string]{Data: "online"})
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		for _, sub := range subs {
			msg, ok := receive(t, sub)
			require.True(t, ok)
			assert.Equal(t, "online", msg.Data)
			assert.False(t, msg.PublishedAt.IsZero())
		}
	})

	t.Run("preserves order per subscriber", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemory[int](16)
		defer b.Close()

		sub := b.Subscribe(context.Background())
		for i := range 10 {
			_, err := b.Publish(context.Background(), broadcast.Message[int]{Data: i})
			require.NoError(t, err)
		}
		for i := range 10 {
			msg, ok := receive(t, sub)
			require.True(t, ok)
			assert.Equal(t, i, msg.Data)
		}
	})

	t.Run("drops slow subscriber without blocking others", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemory[int](1)
		defer b.Close()

		slow := b.Subscribe(context.Background())
		fast := b.Subscribe(context.Background())

		_, err := b.Publish(context.Background(), broadcast.Message[int]{Data: 1})
		require.NoError(t, err)
		msg, ok := receive(t, fast)
		require.True(t, ok)
		assert.Equal(t, 1, msg.Data)

		n, err := b.Publish(context.Background(), broadcast.Message[int]{Data: 2})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		// slow still holds message 1, then its channel is closed
		msg, ok = receive(t, slow)
		require.True(t, ok)
		assert.Equal(t, 1, msg.Data)
		_, ok = receive(t, slow)
		assert.False(t, ok)

		stats := b.Stats()
		assert.Equal(t, 1, stats.Subscribers)
		assert.Equal(t, uint64(1), stats.Dropped)
		assert.Equal(t, uint64(2), stats.Published)
	})

	t.Run("publish after close", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemory[int](1)
		require.NoError(t, b.Close())
		<-b.Done()
		_, err := b.Publish(context.Background(), broadcast.Message[int]{Data: 1})
		assert.ErrorIs(t, err, broadcast.ErrClosed)
	})
}

func TestMemory_Subscribe(t *testing.T) {
	t.Parallel()

	t.Run("context cancellation ends subscription", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemory[int](4)
		defer b.Close()

		ctx, cancel := context.WithCancel(context.Background())
		sub := b.Subscribe(ctx)
		cancel()

		_, ok := receive(t, sub)
		assert.False(t, ok)
		assert.Eventually(t, func() bool { return b.Stats().Subscribers == 0 }, time.Second, 5*time.Millisecond)
	})

	t.Run("subscriber close is idempotent", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemory[int](4)
		defer b.Close()

		sub := b.Subscribe(context.Background())
		require.NoError(t, sub.Close())
		require.NoError(t, sub.Close())
		assert.Equal(t, 0, b.Stats().Subscribers)
	})

	t.Run("subscribe after close returns closed subscriber", func(t *testing.T) {
		t.Parallel()
		b := broadcast.NewMemory[int](4)
		require.NoError(t, b.Close())
		require.NoError(t, b.Close())

		_, ok := receive(t, b.Subscribe(context.Background()))
		assert.False(t, ok)
	})
}

func TestMemory_ConcurrentPublish(t *testing.T) {
	t.Parallel()

	b := broadcast.NewMemory[int](1024)
	defer b.Close()
	sub := b.Subscribe(context.Background())

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				_, _ = b.Publish(context.Background(), broadcast.Message[int]{Data: w*100 + i})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, sub.Receive(), 400)
}
