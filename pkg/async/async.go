package async

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Future represents the result of an asynchronous computation.
type Future[U any] struct {
	result U
	err    error
	done   chan struct{}
}

// Await blocks until the computation finishes.
func (f *Future[U]) Await() (U, error) {
	<-f.done
	return f.result, f.err
}

// AwaitWithTimeout waits at most timeout for the computation.
func (f *Future[U]) AwaitWithTimeout(timeout time.Duration) (U, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.result, f.err
	case <-timer.C:
		var zero U
		return zero, ErrTimeout
	}
}

// Done is closed when the computation finishes.
func (f *Future[U]) Done() <-chan struct{} { return f.done }

// Resolved returns an already completed Future.
func Resolved[U any](v U, err error) *Future[U] {
	f := &Future[U]{result: v, err: err, done: make(chan struct{})}
	close(f.done)
	return f
}

// Run executes fn on its own goroutine. A context cancelled before start
// short-circuits with ctx.Err(); a panic inside fn is converted to an error.
func Run[U any](ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	f := &Future[U]{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("async: task panicked: %v", r)
			}
		}()

		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.result, f.err = fn(ctx)
	}()

	return f
}

// Group tracks in-flight tasks and reports their failures.
type Group struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	closed  bool
	onError func(error)
}

// NewGroup creates a Group. onError may be nil.
func NewGroup(onError func(error)) *Group {
	return &Group{onError: onError}
}

// Go schedules fn on g. The returned Future also observes the result.
func Go[U any](g *Group, ctx context.Context, fn func(context.Context) (U, error)) *Future[U] {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		var zero U
		return Resolved(zero, ErrGroupClosed)
	}
	g.wg.Add(1)
	g.mu.Unlock()

	f := Run(ctx, fn)
	go func() {
		defer g.wg.Done()
		if _, err := f.Await(); err != nil && g.onError != nil {
			g.onError(err)
		}
	}()
	return f
}

// Wait stops accepting tasks and blocks until in-flight ones finish or ctx ends.
func (g *Group) Wait(ctx context.Context) error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
