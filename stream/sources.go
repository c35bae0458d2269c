package stream

import (
	"context"
	"iter"
)

// FromSlice emits items in order, honouring demand.
func FromSlice[T any](items []T, opts ...Option) Stream[T] {
	return FromCursor(func(context.Context) (Cursor[T], error) {
		return &sliceCursor[T]{items: items}, nil
	}, opts...)
}

// Just emits the given items.
func Just[T any](items ...T) Stream[T] {
	return FromSlice(items)
}

// FromSeq emits the pairs of seq until it ends or yields a non-nil error.
func FromSeq[T any](seq iter.Seq2[T, error], opts ...Option) Stream[T] {
	return FromCursor(func(context.Context) (Cursor[T], error) {
		next, stop := iter.Pull2(seq)
		return &seqCursor[T]{next: next, stop: stop}, nil
	}, opts...)
}

// FromFunc emits the single result of fn, evaluated on first demand, and
// completes right after it.
func FromFunc[T any](fn func(ctx context.Context) (T, error), opts ...Option) Stream[T] {
	return FromCursor(func(context.Context) (Cursor[T], error) {
		return &funcCursor[T]{fn: fn}, nil
	}, opts...)
}

type sliceCursor[T any] struct {
	items []T
	pos   int
}

func (c *sliceCursor[T]) Next(context.Context) (T, bool, error) {
	var zero T
	if c.pos >= len(c.items) {
		return zero, false, nil
	}
	item := c.items[c.pos]
	c.pos++
	return item, true, nil
}

func (c *sliceCursor[T]) Close() error {
	c.items = nil
	return nil
}

type seqCursor[T any] struct {
	next func() (T, error, bool)
	stop func()
}

func (c *seqCursor[T]) Next(context.Context) (T, bool, error) {
	item, err, ok := c.next()
	if !ok {
		return item, false, nil
	}
	if err != nil {
		return item, false, err
	}
	return item, true, nil
}

func (c *seqCursor[T]) Close() error {
	c.stop()
	return nil
}

type funcCursor[T any] struct {
	fn   func(ctx context.Context) (T, error)
	used bool
}

func (c *funcCursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if c.used {
		return zero, false, nil
	}
	c.used = true
	item, err := c.fn(ctx)
	if err != nil {
		return zero, false, err
	}
	return item, true, nil
}

// Exhausted implements Exhauster.
func (c *funcCursor[T]) Exhausted() bool { return c.used }

func (c *funcCursor[T]) Close() error { return nil }
