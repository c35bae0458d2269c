// Package types contains the core contracts shared by the sqlflow database
// packages. They live apart from the database package to avoid import cycles
// and to make them easy to fake in tests.
//
//nolint:revive // Package name "types" is intentionally generic to avoid circular
package types

import (
	"context"
	"database/sql"

	"github.com/gaborage/go-bricks-sqlflow/stream"
)

// Conn is a borrowed database connection. A Conn is used by one execution at
// a time; the engine drives its transaction mode and ends its lifecycle.
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	PrepareContext(ctx context.Context, query string) (*sql.Stmt, error)

	// SetAutoCommit switches between auto-commit and manual transaction mode.
	// Enabling auto-commit commits any open transaction.
	SetAutoCommit(ctx context.Context, enabled bool) error
	AutoCommit() bool

	// Commit and Rollback end the current manual transaction, if any.
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Close returns the connection to its source.
	Close() error
}

// RowScanner is the read surface handed to row mappers.
type RowScanner interface {
	Scan(dest ...any) error
	Columns() ([]string, error)
}

// Statement is a prepared statement with its parameters bound.
type Statement interface {
	Exec(ctx context.Context) (sql.Result, error)
	Query(ctx context.Context) (*sql.Rows, error)
	Close() error
}

// ConnectionProvider lends connections. Acquire returns a lazy single-item
// stream; nothing is borrowed until the stream is subscribed and requested.
type ConnectionProvider interface {
	Acquire(ctx context.Context) stream.Stream[Conn]
	Close() error
}

// Database vendor identifiers shared across the database packages.
type Vendor = string

const (
	PostgreSQL Vendor = "postgresql"
	Oracle     Vendor = "oracle"
)

// StatementBuilder prepares a statement on a connection. Build failures carry
// ErrBuild.
type StatementBuilder interface {
	Build(ctx context.Context, conn Conn) (Statement, error)
}
