package connection

import (
	"context"
	"database/sql"
	"sync"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
	"github.com/gaborage/go-bricks-sqlflow/stream"
)

// Option configures providers and the connections they lend.
type Option func(*options)

type options struct {
	log      logger.Logger
	txOpts   *sql.TxOptions
	driverTx bool
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.log = logger.OrNop(o.log)
	return o
}

// WithLogger sets the logger for connection lifecycle messages.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithTxOptions sets the options used when a manual transaction begins.
func WithTxOptions(txOpts *sql.TxOptions) Option {
	return func(o *options) { o.txOpts = txOpts }
}

// WithDriverTransactions runs manual transactions through *sql.Tx instead of
// BEGIN, COMMIT and ROLLBACK statements. Use it for drivers whose dialect has
// no BEGIN statement. Rows still open at a commit are closed by database/sql.
func WithDriverTransactions() Option {
	return func(o *options) { o.driverTx = true }
}

// DBProvider lends pooled connections from a *sql.DB it owns.
type DBProvider struct {
	db   *sql.DB
	opts []Option
	log  logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// FromDB returns a provider that borrows a fresh pooled connection per
// acquisition. Closing the provider closes db.
func FromDB(db *sql.DB, opts ...Option) *DBProvider {
	return &DBProvider{db: db, opts: opts, log: newOptions(opts).log}
}

// DB exposes the underlying pool.
func (p *DBProvider) DB() *sql.DB {
	return p.db
}

// Acquire implements types.ConnectionProvider.
func (p *DBProvider) Acquire(ctx context.Context) stream.Stream[types.Conn] {
	return stream.FromFunc(func(fetchCtx context.Context) (types.Conn, error) {
		raw, err := p.db.Conn(fetchCtx)
		if err != nil {
			return nil, types.NewError(types.ErrAcquisition, "acquire", err)
		}
		return Wrap(ctx, raw, raw.Close, p.opts...), nil
	}, stream.WithLogger(p.log), stream.WithName("acquire"))
}

// Close closes the pool once.
func (p *DBProvider) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.db.Close()
		if p.closeErr != nil {
			p.log.Error().Err(p.closeErr).Msg("Failed to close database pool")
		}
	})
	return p.closeErr
}

// SingleProvider lends one dedicated connection to every acquisition. Closing
// a lent connection ends its transaction but keeps the connection open; it is
// released when the provider closes.
type SingleProvider struct {
	raw  *sql.Conn
	opts []Option
	log  logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// Of returns a provider over a single dedicated connection.
func Of(raw *sql.Conn, opts ...Option) *SingleProvider {
	return &SingleProvider{raw: raw, opts: opts, log: newOptions(opts).log}
}

// Acquire implements types.ConnectionProvider.
func (p *SingleProvider) Acquire(ctx context.Context) stream.Stream[types.Conn] {
	return stream.FromFunc(func(context.Context) (types.Conn, error) {
		return Wrap(ctx, p.raw, nil, p.opts...), nil
	}, stream.WithLogger(p.log), stream.WithName("acquire"))
}

// Close releases the dedicated connection once.
func (p *SingleProvider) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.raw.Close()
		if p.closeErr != nil {
			p.log.Error().Err(p.closeErr).Msg("Failed to close dedicated connection")
		}
	})
	return p.closeErr
}

var (
	_ types.ConnectionProvider = (*DBProvider)(nil)
	_ types.ConnectionProvider = (*SingleProvider)(nil)
)
