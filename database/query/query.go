// Package query turns statement builders into demand-driven streams. Every
// stream builds its statement on first demand, cancels the in-flight
// statement when the consumer detaches and closes the statement before the
// stream terminates.
package query

import (
	"context"
	"database/sql"
	"time"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
	"github.com/gaborage/go-bricks-sqlflow/stream"
)

// Void is the single item emitted by Execute.
type Void struct{}

// RowMapper converts the current row. It must not retain the scanner.
type RowMapper[T any] func(row types.RowScanner) (T, error)

// Option configures a query stream.
type Option func(*options)

type options struct {
	log     logger.Logger
	timeout time.Duration
}

// WithLogger sets the logger for statement lifecycle messages.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTimeout bounds the statement; zero means no limit beyond the
// subscription context.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logger.OrNop(o.log)
	return o
}

func (o options) producerOpts(name string) []stream.Option {
	return []stream.Option{stream.WithLogger(o.log), stream.WithName(name)}
}

// Execute runs a statement for its side effect, emits one Void and completes.
func Execute(conn types.Conn, b types.StatementBuilder, opts ...Option) stream.Stream[Void] {
	o := newOptions(opts)
	return stream.FromCursor(func(ctx context.Context) (stream.Cursor[Void], error) {
		h, err := open(ctx, conn, b, o)
		if err != nil {
			return nil, err
		}
		return &execCursor[Void]{handle: h, extract: func(sql.Result) (Void, error) { return Void{}, nil }}, nil
	}, o.producerOpts("execute")...)
}

// ExecuteUpdate runs a statement, emits the affected row count and completes.
func ExecuteUpdate(conn types.Conn, b types.StatementBuilder, opts ...Option) stream.Stream[int64] {
	o := newOptions(opts)
	return stream.FromCursor(func(ctx context.Context) (stream.Cursor[int64], error) {
		h, err := open(ctx, conn, b, o)
		if err != nil {
			return nil, err
		}
		return &execCursor[int64]{handle: h, extract: sql.Result.RowsAffected}, nil
	}, o.producerOpts("update")...)
}

// ExecuteQuery streams mapped rows, fetching only as many as are requested.
func ExecuteQuery[T any](conn types.Conn, b types.StatementBuilder, mapper RowMapper[T], opts ...Option) stream.Stream[T] {
	o := newOptions(opts)
	return stream.FromCursor(func(ctx context.Context) (stream.Cursor[T], error) {
		h, err := open(ctx, conn, b, o)
		if err != nil {
			return nil, err
		}
		rows, err := h.query()
		if err != nil {
			h.close()
			return nil, err
		}
		return &rowsCursor[T]{handle: h, rows: rows, mapper: mapper}, nil
	}, o.producerOpts("query")...)
}

// InsertReturning runs a data-modifying statement with a RETURNING clause,
// reads every returned row, closes the statement and then streams the rows
// with demand.
func InsertReturning[T any](conn types.Conn, b types.StatementBuilder, mapper RowMapper[T], opts ...Option) stream.Stream[T] {
	o := newOptions(opts)
	return stream.FromCursor(func(ctx context.Context) (stream.Cursor[T], error) {
		h, err := open(ctx, conn, b, o)
		if err != nil {
			return nil, err
		}
		defer h.close()

		rows, err := h.query()
		if err != nil {
			return nil, err
		}
		items, err := drain(rows, mapper, o.log)
		if err != nil {
			return nil, err
		}
		return &bufferedCursor[T]{items: items}, nil
	}, o.producerOpts("insert-returning")...)
}

// handle owns a built statement and its deadline.
type handle struct {
	ctx    context.Context
	cancel context.CancelFunc
	stmt   types.Statement
	log    logger.Logger
	start  time.Time
	closed bool
}

func open(ctx context.Context, conn types.Conn, b types.StatementBuilder, o options) (*handle, error) {
	cancel := context.CancelFunc(func() {})
	if o.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
	}

	stmt, err := b.Build(ctx, conn)
	if err != nil {
		cancel()
		if types.KindOf(err) == nil {
			err = types.NewError(types.ErrBuild, "build", err)
		}
		return nil, err
	}
	logger.IncrementExecutionCounter(ctx)
	return &handle{ctx: ctx, cancel: cancel, stmt: stmt, log: o.log, start: time.Now()}, nil
}

func (h *handle) exec() (sql.Result, error) {
	res, err := h.stmt.Exec(h.ctx)
	if err != nil {
		return nil, types.NewError(types.ErrExecution, "exec", err)
	}
	return res, nil
}

func (h *handle) query() (*sql.Rows, error) {
	rows, err := h.stmt.Query(h.ctx)
	if err != nil {
		return nil, types.NewError(types.ErrExecution, "query", err)
	}
	return rows, nil
}

// close releases the statement once. Close failures are logged, not returned.
func (h *handle) close() {
	if h.closed {
		return
	}
	h.closed = true
	elapsed := time.Since(h.start)
	logger.AddExecutionElapsed(h.ctx, elapsed.Nanoseconds())

	if err := h.stmt.Close(); err != nil {
		h.log.Warn().Err(types.NewError(types.ErrClose, "statement", err)).Msg("Failed to close statement")
	}
	h.cancel()
	h.log.Debug().Dur("elapsed", elapsed).Msg("Statement closed")
}

type execCursor[R any] struct {
	handle  *handle
	extract func(sql.Result) (R, error)
	done    bool
}

func (c *execCursor[R]) Next(context.Context) (R, bool, error) {
	var zero R
	if c.done {
		return zero, false, nil
	}
	c.done = true

	res, err := c.handle.exec()
	if err != nil {
		return zero, false, err
	}
	v, err := c.extract(res)
	if err != nil {
		return zero, false, types.NewError(types.ErrExecution, "result", err)
	}
	return v, true, nil
}

// Exhausted implements stream.Exhauster; a statement yields one result.
func (c *execCursor[R]) Exhausted() bool {
	return c.done
}

func (c *execCursor[R]) Close() error {
	c.handle.close()
	return nil
}

type rowsCursor[T any] struct {
	handle *handle
	rows   *sql.Rows
	mapper RowMapper[T]
}

func (c *rowsCursor[T]) Next(context.Context) (T, bool, error) {
	var zero T
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			return zero, false, types.NewError(types.ErrExecution, "fetch", err)
		}
		return zero, false, nil
	}
	v, err := c.mapper(c.rows)
	if err != nil {
		return zero, false, types.NewError(types.ErrMapping, "map", err)
	}
	return v, true, nil
}

func (c *rowsCursor[T]) Close() error {
	err := c.rows.Close()
	c.handle.close()
	if err != nil {
		return types.NewError(types.ErrClose, "rows", err)
	}
	return nil
}

func drain[T any](rows *sql.Rows, mapper RowMapper[T], log logger.Logger) ([]T, error) {
	defer func() {
		if err := rows.Close(); err != nil {
			log.Warn().Err(types.NewError(types.ErrClose, "rows", err)).Msg("Failed to close rows")
		}
	}()

	var items []T
	for rows.Next() {
		v, err := mapper(rows)
		if err != nil {
			return nil, types.NewError(types.ErrMapping, "map", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewError(types.ErrExecution, "fetch", err)
	}
	return items, nil
}

type bufferedCursor[T any] struct {
	items []T
	pos   int
}

func (c *bufferedCursor[T]) Next(context.Context) (T, bool, error) {
	var zero T
	if c.pos >= len(c.items) {
		return zero, false, nil
	}
	v := c.items[c.pos]
	c.pos++
	return v, true, nil
}

// Exhausted implements stream.Exhauster.
func (c *bufferedCursor[T]) Exhausted() bool {
	return c.pos >= len(c.items)
}

func (c *bufferedCursor[T]) Close() error {
	c.items = nil
	return nil
}
