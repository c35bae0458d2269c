// Package stream provides the demand-driven streams that sqlflow executions
// produce. A Stream does nothing until subscribed; a Subscriber receives a
// Subscription through which it requests items and may cancel.
//
// Emission happens synchronously on the goroutine that calls Request. Demand
// and cancellation may be signalled from other goroutines.
package stream

import (
	"context"
	"math"
	"sync/atomic"
)

// Unbounded requests every remaining item. Once a producer has seen it, later
// finite requests are ignored.
const Unbounded int64 = math.MaxInt64

// Subscription is the consumer's handle on a running stream.
type Subscription interface {
	// Request permits n more items to be delivered. Non-positive n is ignored.
	Request(n int64)
	// Cancel detaches the consumer. It is idempotent and permanent; no signal
	// is delivered after it returns, and the producer releases its resources.
	Cancel()
}

// Subscriber consumes a stream. OnSubscribe is called exactly once, before any
// other method. At most one of OnError and OnComplete is called, and only if
// the subscription was not cancelled.
type Subscriber[T any] interface {
	OnSubscribe(s Subscription)
	OnNext(item T)
	OnError(err error)
	OnComplete()
}

// Stream is a lazily evaluated sequence of items. Each Subscribe call starts
// an independent run. A cancelled ctx is treated as a cancelled subscription.
type Stream[T any] interface {
	Subscribe(ctx context.Context, s Subscriber[T])
}

// Func adapts a function to a Stream.
type Func[T any] func(ctx context.Context, s Subscriber[T])

// Subscribe calls f.
func (f Func[T]) Subscribe(ctx context.Context, s Subscriber[T]) {
	f(ctx, s)
}

// AddRequest adds n to counter without overflowing past Unbounded and returns
// the previous value. A counter already at Unbounded is left untouched.
func AddRequest(counter *atomic.Int64, n int64) int64 {
	for {
		current := counter.Load()
		if current == Unbounded {
			return current
		}
		next := current + n
		if next < 0 {
			next = Unbounded
		}
		if counter.CompareAndSwap(current, next) {
			return current
		}
	}
}

// Empty completes without items.
func Empty[T any]() Stream[T] {
	return Func[T](func(ctx context.Context, s Subscriber[T]) {
		sub := &flagSubscription{}
		s.OnSubscribe(sub)
		if !sub.cancelled.Load() && ctx.Err() == nil {
			s.OnComplete()
		}
	})
}

// Error fails with err without items.
func Error[T any](err error) Stream[T] {
	return Func[T](func(ctx context.Context, s Subscriber[T]) {
		sub := &flagSubscription{}
		s.OnSubscribe(sub)
		if !sub.cancelled.Load() && ctx.Err() == nil {
			s.OnError(err)
		}
	})
}

// flagSubscription ignores demand and only remembers cancellation.
type flagSubscription struct {
	cancelled atomic.Bool
}

func (f *flagSubscription) Request(int64) {}

func (f *flagSubscription) Cancel() { f.cancelled.Store(true) }
