package broadcast

import (
	"context"
	"sync"
	"time"
)

// Message wraps a published value.
type Message[T any] struct {
	Data        T
	PublishedAt time.Time
}

// Subscriber receives messages from a Broadcaster.
type Subscriber[T any] interface {
	// Receive returns the delivery channel. It is closed when the
	// subscription ends for any reason.
	Receive() <-chan Message[T]
	// Close ends the subscription. Idempotent.
	Close() error
}

// Broadcaster delivers every published message to all active subscribers.
// Slow subscribers are dropped rather than blocking the publisher.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber whose lifetime is bound to ctx.
	Subscribe(ctx context.Context) Subscriber[T]
	// Publish hands msg to every subscriber and reports how many accepted it.
	Publish(ctx context.Context, msg Message[T]) (int, error)
	// Close ends every subscription.
	Close() error
	// Done is closed once the broadcaster is closed.
	Done() <-chan struct{}
}

// Stats is a point-in-time view of a broadcaster.
type Stats struct {
	Subscribers int
	Published   uint64
	Dropped     uint64
}

type subscriber[T any] struct {
	ch      chan Message[T]
	done    chan struct{}
	closed  bool
	mu      sync.RWMutex
	onClose func(*subscriber[T])
}

func newSubscriber[T any](size int) *subscriber[T] {
	return &subscriber[T]{ch: make(chan Message[T], size), done: make(chan struct{})}
}

func (s *subscriber[T]) Receive() <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	if s.shut() && s.onClose != nil {
		s.onClose(s)
	}
	return nil
}

// shut closes the channel once and reports whether this call did it.
func (s *subscriber[T]) shut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	close(s.done)
	return true
}

func (s *subscriber[T]) offer(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
