package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotSingle is returned by Single when the stream does not emit exactly one item.
var ErrNotSingle = errors.New("stream: expected exactly one item")

// Collect subscribes with unbounded demand and blocks until the stream
// terminates or ctx is done. On ctx expiry the subscription is cancelled and
// ctx.Err() is returned with the items received so far.
func Collect[T any](ctx context.Context, s Stream[T]) ([]T, error) {
	c := newCollector[T](Unbounded, nil)
	s.Subscribe(ctx, c)
	return c.wait(ctx)
}

// Single collects a stream that must emit exactly one item.
func Single[T any](ctx context.Context, s Stream[T]) (T, error) {
	var zero T
	items, err := Collect(ctx, s)
	if err != nil {
		return zero, err
	}
	if len(items) != 1 {
		return zero, fmt.Errorf("%w: got %d", ErrNotSingle, len(items))
	}
	return items[0], nil
}

// Each delivers items to fn, requesting them batch at a time. A non-nil error
// from fn cancels the subscription and is returned.
func Each[T any](ctx context.Context, s Stream[T], batch int64, fn func(T) error) error {
	if batch <= 0 {
		batch = 1
	}
	c := newCollector(batch, fn)
	s.Subscribe(ctx, c)
	_, err := c.wait(ctx)
	return err
}

// collector is a blocking Subscriber. With a nil fn it accumulates items.
type collector[T any] struct {
	batch int64
	fn    func(T) error
	done  chan struct{}

	mu       sync.Mutex
	sub      Subscription
	items    []T
	seen     int64
	err      error
	finished bool
}

func newCollector[T any](batch int64, fn func(T) error) *collector[T] {
	return &collector[T]{batch: batch, fn: fn, done: make(chan struct{})}
}

func (c *collector[T]) OnSubscribe(s Subscription) {
	c.mu.Lock()
	c.sub = s
	c.mu.Unlock()
	s.Request(c.batch)
}

func (c *collector[T]) OnNext(item T) {
	if c.fn == nil {
		c.mu.Lock()
		c.items = append(c.items, item)
		c.mu.Unlock()
		return
	}

	if err := c.fn(item); err != nil {
		c.sub.Cancel()
		c.terminate(err)
		return
	}
	c.seen++
	if c.seen == c.batch {
		c.seen = 0
		c.sub.Request(c.batch)
	}
}

func (c *collector[T]) OnError(err error) { c.terminate(err) }

func (c *collector[T]) OnComplete() { c.terminate(nil) }

func (c *collector[T]) terminate(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return
	}
	c.finished = true
	c.err = err
	close(c.done)
}

func (c *collector[T]) wait(ctx context.Context) ([]T, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		c.mu.Lock()
		sub := c.sub
		c.mu.Unlock()
		if sub != nil {
			sub.Cancel()
		}
		c.terminate(ctx.Err())
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items, c.err
}
