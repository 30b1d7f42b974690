package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Memory is an in-process Broadcaster. All methods are safe for concurrent use.
type Memory[T any] struct {
	mu          sync.RWMutex
	subscribers map[*subscriber[T]]struct{}
	bufferSize  int
	closed      bool
	done        chan struct{}
	watchers    sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
}

var _ Broadcaster[struct{}] = (*Memory[struct{}])(nil)

// NewMemory creates a broadcaster whose subscribers buffer up to bufferSize
// messages each. Values below 1 are raised to 1.
func NewMemory[T any](bufferSize int) *Memory[T] {
	return &Memory[T]{
		subscribers: make(map[*subscriber[T]]struct{}),
		bufferSize:  max(bufferSize, 1),
		done:        make(chan struct{}),
	}
}

// Subscribe registers a new subscriber. Cancelling ctx ends the subscription.
// After Close it returns an already closed subscriber.
func (b *Memory[T]) Subscribe(ctx context.Context) Subscriber[T] {
	sub := newSubscriber[T](b.bufferSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.shut()
		return sub
	}

	sub.onClose = b.forget
	b.subscribers[sub] = struct{}{}

	if ctx.Done() != nil {
		b.watchers.Add(1)
		go func() {
			defer b.watchers.Done()
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.done:
			}
		}()
	}

	return sub
}

// Publish delivers msg to every subscriber without blocking. Subscribers
// with a full buffer are dropped.
func (b *Memory[T]) Publish(_ context.Context, msg Message[T]) (int, error) {
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = time.Now()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return 0, ErrClosed
	}

	var (
		delivered int
		slow      []*subscriber[T]
	)
	for sub := range b.subscribers {
		if sub.offer(msg) {
			delivered++
			continue
		}
		slow = append(slow, sub)
	}
	b.mu.RUnlock()

	b.published.Add(1)
	for _, sub := range slow {
		b.dropped.Add(1)
		_ = sub.Close()
	}

	return delivered, nil
}

// Stats reports subscriber count and publication counters.
func (b *Memory[T]) Stats() Stats {
	b.mu.RLock()
	n := len(b.subscribers)
	b.mu.RUnlock()
	return Stats{
		Subscribers: n,
		Published:   b.published.Load(),
		Dropped:     b.dropped.Load(),
	}
}

// Close ends every subscription. Safe to call more than once.
func (b *Memory[T]) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.done)
	subs := make([]*subscriber[T], 0, len(b.subscribers))
	for sub := range b.subscribers {
		subs = append(subs, sub)
	}
	clear(b.subscribers)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.shut()
	}
	b.watchers.Wait()
	return nil
}

func (b *Memory[T]) Done() <-chan struct{} { return b.done }

func (b *Memory[T]) forget(sub *subscriber[T]) {
	b.mu.Lock()
	delete(b.subscribers, sub)
	b.mu.Unlock()
}
