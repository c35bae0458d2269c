package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/gaborage/go-bricks-sqlflow/logger"
)

// Cursor is a pull-based source. Next returns the next item, or ok=false once
// exhausted. Close releases everything the cursor owns and is called exactly
// once by the producer.
type Cursor[T any] interface {
	Next(ctx context.Context) (item T, ok bool, err error)
	Close() error
}

// Exhauster is an optional Cursor extension. When Exhausted reports true right
// after Next returned an item, nothing follows that item and the producer
// completes without waiting for more demand.
type Exhauster interface {
	Exhausted() bool
}

// OpenFunc opens a cursor. It is called lazily, on the first fetch, with a
// context that is cancelled when the consumer detaches.
type OpenFunc[T any] func(ctx context.Context) (Cursor[T], error)

// Option configures a producer.
type Option func(*options)

type options struct {
	log  logger.Logger
	name string
}

// WithLogger sets the logger used for lifecycle debug output.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithName labels log lines from this producer.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// FromCursor bridges a pull-based cursor to a demand-driven Stream. It never
// emits more items than requested, checks for detachment before every fetch,
// and closes the cursor exactly once on completion, failure or cancellation.
// Cancelling the subscription context cancels the subscription, even while
// the producer is waiting for demand.
func FromCursor[T any](open OpenFunc[T], opts ...Option) Stream[T] {
	o := options{name: "cursor"}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.OrNop(o.log)

	return Func[T](func(ctx context.Context, s Subscriber[T]) {
		child, cancel := context.WithCancel(ctx)
		p := &producer[T]{
			parent:    ctx,
			ctx:       child,
			cancel:    cancel,
			sub:       s,
			open:      open,
			log:       log,
			name:      o.name,
			keepGoing: true,
		}
		stop := context.AfterFunc(ctx, p.Cancel)
		p.stopWatch.Store(&stop)
		s.OnSubscribe(p)
	})
}

// producer is the per-subscription state. The atomics are the only fields
// touched outside loopMu.
type producer[T any] struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc
	sub    Subscriber[T]
	open   OpenFunc[T]
	log    logger.Logger
	name   string

	requested atomic.Int64
	detached  atomic.Bool
	stopWatch atomic.Pointer[func() bool]

	// loopMu is held by whichever emission loop is running and by any close
	// of the cursor, so the cursor is never touched concurrently.
	loopMu    sync.Mutex
	cursor    Cursor[T]
	keepGoing bool
	done      bool
	closed    bool
}

// Request implements Subscription.
func (p *producer[T]) Request(n int64) {
	if n <= 0 {
		p.log.Debug().Str("producer", p.name).Int64("n", n).Msg("ignoring non-positive request")
		return
	}
	if p.requested.Load() == Unbounded {
		// fast path already owns emission
		return
	}
	if n == Unbounded && p.requested.CompareAndSwap(0, Unbounded) {
		p.requestAll()
		return
	}
	p.requestSome(n)
}

// Cancel implements Subscription.
func (p *producer[T]) Cancel() {
	if p.detached.Swap(true) {
		return
	}
	p.log.Debug().Str("producer", p.name).Msg("consumer detached")
	p.cancel()
	if p.loopMu.TryLock() {
		p.done = true
		p.closeCursor()
		p.loopMu.Unlock()
	}
}

func (p *producer[T]) requestAll() {
	p.loopMu.Lock()
	defer p.endLoop()
	if p.done {
		return
	}

	for p.keepGoing {
		if err := p.processRow(); err != nil {
			p.fail(err)
			return
		}
	}
	p.complete()
}

func (p *producer[T]) requestSome(n int64) {
	if AddRequest(&p.requested, n) != 0 {
		// a running loop absorbs the extra demand
		return
	}

	p.loopMu.Lock()
	defer p.endLoop()
	if p.done {
		return
	}

	for {
		r := p.requested.Load()
		for i := int64(0); p.keepGoing && i < r; i++ {
			if err := p.processRow(); err != nil {
				p.fail(err)
				return
			}
		}
		if !p.keepGoing {
			p.complete()
			return
		}
		if p.requested.Add(-r) == 0 {
			return
		}
	}
}

// endLoop releases the loop and closes the cursor if the consumer detached
// after the loop's last check.
func (p *producer[T]) endLoop() {
	p.loopMu.Unlock()
	if p.detached.Load() && p.loopMu.TryLock() {
		p.done = true
		p.closeCursor()
		p.loopMu.Unlock()
	}
}

func (p *producer[T]) isDetached() bool {
	return p.detached.Load() || p.parent.Err() != nil
}

func (p *producer[T]) processRow() error {
	if p.isDetached() {
		p.keepGoing = false
		return nil
	}
	if p.cursor == nil {
		c, err := p.open(p.ctx)
		if err != nil {
			return err
		}
		p.cursor = c
	}

	item, ok, err := p.cursor.Next(p.ctx)
	if err != nil {
		return err
	}
	if !ok {
		p.keepGoing = false
		return nil
	}
	p.sub.OnNext(item)
	if e, ok := p.cursor.(Exhauster); ok && e.Exhausted() {
		p.keepGoing = false
	}
	return nil
}

func (p *producer[T]) complete() {
	p.done = true
	p.closeCursor()
	if p.isDetached() {
		p.log.Debug().Str("producer", p.name).Msg("detached before completion")
		return
	}
	p.sub.OnComplete()
}

func (p *producer[T]) fail(err error) {
	p.done = true
	p.closeCursor()
	if p.isDetached() {
		p.log.Debug().Str("producer", p.name).Err(err).Msg("error after detachment")
		return
	}
	p.sub.OnError(err)
}

func (p *producer[T]) closeCursor() {
	if p.closed {
		return
	}
	p.closed = true
	if stop := p.stopWatch.Load(); stop != nil {
		(*stop)()
	}
	if p.cursor != nil {
		if err := p.cursor.Close(); err != nil {
			p.log.Warn().Str("producer", p.name).Err(err).Msg("Failed to close cursor")
		}
	}
	p.cancel()
}
