// Package connection adapts database/sql connections to the sqlflow
// connection contract and provides the built-in connection providers.
package connection

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
)

// ErrConnClosed is returned by operations on a closed connection.
var ErrConnClosed = errors.New("connection is closed")

// querier is the statement surface shared by *sql.Conn and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)
}

// Conn wraps a *sql.Conn with auto-commit semantics. In manual mode the first
// statement begins a transaction that lasts until Commit or Rollback.
//
// Transactions are controlled with BEGIN, COMMIT and ROLLBACK statements on
// the raw connection, so open rows survive a commit as far as the driver
// allows. WithDriverTransactions switches to *sql.Tx for drivers without a
// BEGIN statement; database/sql then closes open rows on commit.
type Conn struct {
	raw      *sql.Conn
	txCtx    context.Context
	txOpts   *sql.TxOptions
	driverTx bool
	release  func() error
	log      logger.Logger

	mu         sync.Mutex
	autoCommit bool
	inTx       bool
	tx         *sql.Tx
	closed     bool
}

// Wrap adapts raw. Transactions begin under ctx stripped of its cancellation;
// release, if non-nil, runs once when the connection is closed.
func Wrap(ctx context.Context, raw *sql.Conn, release func() error, opts ...Option) *Conn {
	o := newOptions(opts)
	return &Conn{
		raw:        raw,
		txCtx:      context.WithoutCancel(ctx),
		txOpts:     o.txOpts,
		driverTx:   o.driverTx,
		release:    release,
		log:        o.log,
		autoCommit: true,
	}
}

func (c *Conn) current() (querier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrConnClosed
	}
	if c.autoCommit {
		return c.raw, nil
	}
	if c.driverTx {
		if c.tx == nil {
			tx, err := c.raw.BeginTx(c.txCtx, c.txOpts)
			if err != nil {
				return nil, err
			}
			c.tx = tx
		}
		return c.tx, nil
	}
	if !c.inTx {
		if _, err := c.raw.ExecContext(c.txCtx, beginStatement(c.txOpts)); err != nil {
			return nil, err
		}
		c.inTx = true
	}
	return c.raw, nil
}

// beginStatement renders opts as a BEGIN statement.
func beginStatement(opts *sql.TxOptions) string {
	stmt := "BEGIN"
	if opts == nil {
		return stmt
	}
	if opts.Isolation != sql.LevelDefault {
		stmt += " ISOLATION LEVEL " + strings.ToUpper(opts.Isolation.String())
	}
	if opts.ReadOnly {
		stmt += " READ ONLY"
	}
	return stmt
}

// endLocked ends the open transaction with COMMIT or ROLLBACK. Without an
// open transaction it does nothing.
func (c *Conn) endLocked(commit bool) error {
	if c.driverTx {
		if c.tx == nil {
			return nil
		}
		tx := c.tx
		c.tx = nil
		if commit {
			return tx.Commit()
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			return err
		}
		return nil
	}

	if !c.inTx {
		return nil
	}
	c.inTx = false
	stmt := "ROLLBACK"
	if commit {
		stmt = "COMMIT"
	}
	_, err := c.raw.ExecContext(c.txCtx, stmt)
	return err
}

// ExecContext implements types.Conn.
func (c *Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	q, err := c.current()
	if err != nil {
		return nil, err
	}
	return q.ExecContext(ctx, query, args...)
}

// QueryContext implements types.Conn.
func (c *Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	q, err := c.current()
	if err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, query, args...)
}

// PrepareContext implements types.Conn.
func (c *Conn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	q, err := c.current()
	if err != nil {
		return nil, err
	}
	return q.PrepareContext(ctx, query)
}

// SetAutoCommit implements types.Conn.
func (c *Conn) SetAutoCommit(_ context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnClosed
	}
	if enabled {
		if err := c.endLocked(true); err != nil {
			return err
		}
	}
	c.autoCommit = enabled
	return nil
}

// AutoCommit implements types.Conn.
func (c *Conn) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

// Commit implements types.Conn. Without an open transaction it does nothing.
func (c *Conn) Commit(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endLocked(true)
}

// Rollback implements types.Conn. Without an open transaction it does nothing.
func (c *Conn) Rollback(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endLocked(false)
}

// Close rolls back any open transaction and releases the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	if err := c.endLocked(false); err != nil {
		c.log.Warn().Err(err).Msg("Rollback of open transaction failed during close")
	}
	if c.release == nil {
		return nil
	}
	return c.release()
}

var _ types.Conn = (*Conn)(nil)
