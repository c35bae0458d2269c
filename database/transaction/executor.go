package transaction

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gaborage/go-bricks-sqlflow/database/connection"
	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
	"github.com/gaborage/go-bricks-sqlflow/stream"
)

// UnitOfWork produces the items of an execution from a borrowed connection.
// The connection it receives cannot be closed.
type UnitOfWork[T any] func(conn types.Conn) stream.Stream[T]

// Options configures an Executor.
type Options struct {
	Policy   Policy
	Logger   logger.Logger
	Observer types.Observer
}

// Executor is a reusable execution descriptor. Every Subscribe starts an
// independent execution: acquire, set mode, run the unit of work, apply the
// policy's commit hooks and close the connection.
type Executor[T any] struct {
	provider types.ConnectionProvider
	work     UnitOfWork[T]
	policy   Policy
	log      logger.Logger
	observer types.Observer
}

// NewExecutor builds an executor. The zero Options run under AutoCommit.
func NewExecutor[T any](provider types.ConnectionProvider, work UnitOfWork[T], opts Options) *Executor[T] {
	return &Executor[T]{
		provider: provider,
		work:     work,
		policy:   opts.Policy,
		log:      logger.OrNop(opts.Logger),
		observer: opts.Observer,
	}
}

// Policy returns the commit policy.
func (e *Executor[T]) Policy() Policy {
	return e.policy
}

// WithPolicy returns an independent executor for the same work under p.
func (e *Executor[T]) WithPolicy(p Policy) *Executor[T] {
	c := *e
	c.policy = p
	return &c
}

// WithAutoCommit is WithPolicy(AutoCommit).
func (e *Executor[T]) WithAutoCommit() *Executor[T] {
	return e.WithPolicy(AutoCommit)
}

// WithSingleTransaction is WithPolicy(SingleTransaction).
func (e *Executor[T]) WithSingleTransaction() *Executor[T] {
	return e.WithPolicy(SingleTransaction)
}

// WithTransactionPerEvent is WithPolicy(PerEventCommit).
func (e *Executor[T]) WithTransactionPerEvent() *Executor[T] {
	return e.WithPolicy(PerEventCommit)
}

// Subscribe implements stream.Stream. Cancelling ctx cancels the execution.
func (e *Executor[T]) Subscribe(ctx context.Context, down stream.Subscriber[T]) {
	ex := &execution[T]{
		id:       uuid.NewString(),
		ctx:      ctx,
		policy:   e.policy,
		provider: e.provider,
		work:     e.work,
		down:     down,
		observer: e.observer,
		start:    time.Now(),
	}
	ex.log = e.log.WithFields(map[string]any{"execution_id": ex.id, "policy": e.policy.String()})

	down.OnSubscribe(ex)
	if ex.isDetached() {
		ex.Cancel()
		return
	}

	stop := context.AfterFunc(ctx, ex.Cancel)
	ex.stopWatch.Store(&stop)
	if ex.terminated.Load() {
		stop()
	}

	ex.log.Debug().Msg("Acquiring connection")
	e.provider.Acquire(ctx).Subscribe(ctx, &acquirer[T]{ex: ex})
}

type outcome int

const (
	completed outcome = iota
	failed
	cancelled
)

// execution is the per-subscription state and the Subscription handed
// downstream. Cross-goroutine state is atomic.
type execution[T any] struct {
	id       string
	ctx      context.Context
	policy   Policy
	provider types.ConnectionProvider
	work     UnitOfWork[T]
	down     stream.Subscriber[T]
	log      logger.Logger
	observer types.Observer
	start    time.Time

	state      atomic.Int32
	conn       atomic.Pointer[types.Conn]
	modeSet    atomic.Bool
	detached   atomic.Bool
	terminated atomic.Bool
	closed     atomic.Bool

	// demand arbiter: downstream demand is parked in pending until the unit
	// of work subscribes; both sides drain it with Swap.
	pending     atomic.Int64
	inner       atomic.Pointer[stream.Subscription]
	acquisition atomic.Pointer[stream.Subscription]

	stopWatch atomic.Pointer[func() bool]
}

// Request implements stream.Subscription.
func (ex *execution[T]) Request(n int64) {
	if n <= 0 {
		return
	}
	if s := ex.inner.Load(); s != nil {
		(*s).Request(n)
		return
	}
	stream.AddRequest(&ex.pending, n)
	ex.drain()
}

func (ex *execution[T]) drain() {
	s := ex.inner.Load()
	if s == nil {
		return
	}
	if n := ex.pending.Swap(0); n > 0 {
		(*s).Request(n)
	}
}

// Cancel implements stream.Subscription.
func (ex *execution[T]) Cancel() {
	if ex.detached.Swap(true) || ex.terminated.Load() {
		return
	}
	ex.log.Debug().Msg("Execution cancelled")
	ex.observe(types.EventCancel, nil)

	if s := ex.inner.Load(); s != nil {
		(*s).Cancel()
	}
	if s := ex.acquisition.Load(); s != nil {
		(*s).Cancel()
	}
	ex.finish(cancelled, nil)
}

func (ex *execution[T]) isDetached() bool {
	return ex.detached.Load() || ex.ctx.Err() != nil
}

func (ex *execution[T]) connection() types.Conn {
	if c := ex.conn.Load(); c != nil {
		return *c
	}
	return nil
}

func (ex *execution[T]) setState(s State) {
	ex.state.Store(int32(s))
}

// run takes ownership of an acquired connection.
func (ex *execution[T]) run(conn types.Conn) {
	ex.conn.Store(&conn)
	ex.setState(ConnectionAcquired)
	ex.observe(types.EventAcquire, nil)

	if ex.terminated.Load() {
		// cancelled while the connection was being acquired
		ex.release()
		return
	}

	auto := !ex.policy.manual()
	if err := conn.SetAutoCommit(ex.ctx, auto); err != nil {
		ex.finish(failed, types.NewError(types.ErrExecution, "set-mode", err))
		return
	}
	ex.modeSet.Store(true)
	ex.setState(ModeSet)
	ex.observe(types.EventModeSet, nil)
	ex.log.Debug().Bool("auto_commit", auto).Msg("Commit mode set")

	work := ex.work(connection.Unclosable(conn))
	if work == nil {
		ex.finish(failed, types.NewError(types.ErrExecution, "work", errors.New("unit of work returned no stream")))
		return
	}
	ex.setState(Running)
	work.Subscribe(ex.ctx, &workSubscriber[T]{ex: ex})
}

func (ex *execution[T]) commit() error {
	conn := ex.connection()
	if err := conn.Commit(ex.ctx); err != nil {
		wrapped := types.NewError(types.ErrCommit, "commit", err)
		ex.observe(types.EventCommit, wrapped)
		return wrapped
	}
	ex.observe(types.EventCommit, nil)
	return nil
}

// rollback never fails the execution; errors are logged and observed.
func (ex *execution[T]) rollback() {
	conn := ex.connection()
	if conn == nil {
		return
	}
	if err := conn.Rollback(context.WithoutCancel(ex.ctx)); err != nil {
		wrapped := types.NewError(types.ErrRollback, "rollback", err)
		ex.log.Warn().Err(wrapped).Msg("Rollback failed")
		ex.observe(types.EventRollback, wrapped)
		return
	}
	ex.setState(RolledBack)
	ex.observe(types.EventRollback, nil)
}

// release closes the connection exactly once.
func (ex *execution[T]) release() {
	conn := ex.connection()
	if conn == nil || !ex.closed.CompareAndSwap(false, true) {
		return
	}
	if err := conn.Close(); err != nil {
		wrapped := types.NewError(types.ErrClose, "close", err)
		ex.log.Warn().Err(wrapped).Msg("Failed to close connection")
		ex.observe(types.EventClose, wrapped)
		ex.setState(Closed)
		return
	}
	ex.setState(Closed)
	ex.observe(types.EventClose, nil)
}

// finish runs the policy's terminal hooks once, releases the connection and
// signals downstream unless it has detached.
func (ex *execution[T]) finish(o outcome, err error) {
	if !ex.terminated.CompareAndSwap(false, true) {
		return
	}
	if stop := ex.stopWatch.Load(); stop != nil {
		(*stop)()
	}

	manual := ex.policy.manual() && ex.modeSet.Load()
	switch o {
	case completed:
		if ex.policy == SingleTransaction && ex.modeSet.Load() {
			if cerr := ex.commit(); cerr != nil {
				o, err = failed, cerr
				ex.rollback()
				break
			}
		}
		if ex.modeSet.Load() {
			ex.setState(Committed)
		}
	case failed, cancelled:
		if manual {
			ex.rollback()
		}
	}
	if o == failed {
		ex.log.Debug().Err(err).Msg("Execution failed")
		ex.observe(types.EventError, err)
	}
	ex.release()

	if ex.isDetached() {
		return
	}
	if o == failed {
		ex.down.OnError(err)
		return
	}
	ex.down.OnComplete()
}

func (ex *execution[T]) observe(kind types.EventKind, err error) {
	if ex.observer == nil {
		return
	}
	ex.observer.Observe(ex.ctx, types.Event{
		ExecutionID: ex.id,
		Kind:        kind,
		Policy:      ex.policy.String(),
		Err:         err,
		Elapsed:     time.Since(ex.start),
	})
}

// acquirer receives the connection from the provider.
type acquirer[T any] struct {
	ex  *execution[T]
	got atomic.Bool
}

func (a *acquirer[T]) OnSubscribe(s stream.Subscription) {
	a.ex.acquisition.Store(&s)
	if a.ex.detached.Load() {
		s.Cancel()
		return
	}
	s.Request(stream.Unbounded)
}

func (a *acquirer[T]) OnNext(conn types.Conn) {
	if a.got.Swap(true) {
		// providers lend one connection per acquisition
		_ = conn.Close()
		return
	}
	a.ex.run(conn)
}

func (a *acquirer[T]) OnError(err error) {
	if types.KindOf(err) == nil {
		err = types.NewError(types.ErrAcquisition, "acquire", err)
	}
	a.ex.finish(failed, err)
}

func (a *acquirer[T]) OnComplete() {
	if !a.got.Load() {
		a.ex.finish(failed, types.NewError(types.ErrAcquisition, "acquire", errors.New("provider completed without a connection")))
	}
}

// workSubscriber applies the policy hooks to the unit of work's signals.
type workSubscriber[T any] struct {
	ex *execution[T]
}

func (w *workSubscriber[T]) OnSubscribe(s stream.Subscription) {
	w.ex.inner.Store(&s)
	if w.ex.detached.Load() {
		s.Cancel()
		return
	}
	w.ex.drain()
}

func (w *workSubscriber[T]) OnNext(item T) {
	ex := w.ex
	if ex.terminated.Load() {
		return
	}
	ex.down.OnNext(item)
	ex.observe(types.EventEmit, nil)

	if ex.policy != PerEventCommit || ex.terminated.Load() {
		return
	}
	if err := ex.commit(); err != nil {
		if s := ex.inner.Load(); s != nil {
			(*s).Cancel()
		}
		ex.finish(failed, err)
	}
}

func (w *workSubscriber[T]) OnError(err error) {
	if types.KindOf(err) == nil {
		err = types.NewError(types.ErrExecution, "work", err)
	}
	w.ex.finish(failed, err)
}

func (w *workSubscriber[T]) OnComplete() {
	w.ex.finish(completed, nil)
}
