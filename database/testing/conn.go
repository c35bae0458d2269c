package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gaborage/go-bricks-sqlflow/database/types"
)

// Call log entries recorded by TestConn.
const (
	CallPrepare   = "prepare"
	CallExec      = "exec"
	CallQuery     = "query"
	CallFetch     = "fetch"
	CallRowsClose = "rows-close"
	CallStmtClose = "stmt-close"
	CallCommit    = "commit"
	CallRollback  = "rollback"
	CallClose     = "close"
)

// CallSetAutoCommit returns the log entry for a commit-mode change.
func CallSetAutoCommit(enabled bool) string {
	return fmt.Sprintf("autocommit=%t", enabled)
}

// ErrConnClosed is returned by statements issued after Close.
var ErrConnClosed = errors.New("test connection is closed")

// QueryCall represents a single query execution.
type QueryCall struct {
	SQL  string
	Args []any
}

// ExecCall represents a single exec execution.
type ExecCall struct {
	SQL  string
	Args []any
}

// QueryExpectation defines what should happen when a query runs.
type QueryExpectation struct {
	sql       string
	rows      *RowSet
	err       error
	failAfter int
	fetchErr  error
}

// WillReturnRows sets the rows the query yields.
func (qe *QueryExpectation) WillReturnRows(rows *RowSet) *QueryExpectation {
	qe.rows = rows
	return qe
}

// WillReturnError makes the query fail.
func (qe *QueryExpectation) WillReturnError(err error) *QueryExpectation {
	qe.err = err
	return qe
}

// WillFailAfter makes the fetch following the first n rows fail with err.
func (qe *QueryExpectation) WillFailAfter(n int, err error) *QueryExpectation {
	qe.failAfter = n
	qe.fetchErr = err
	return qe
}

// ExecExpectation defines what should happen when an exec runs.
type ExecExpectation struct {
	sql          string
	rowsAffected int64
	err          error
}

// WillReturnRowsAffected sets the affected row count.
func (ee *ExecExpectation) WillReturnRowsAffected(n int64) *ExecExpectation {
	ee.rowsAffected = n
	return ee
}

// WillReturnError makes the exec fail.
func (ee *ExecExpectation) WillReturnError(err error) *ExecExpectation {
	ee.err = err
	return ee
}

// TestConn is an in-memory fake connection implementing types.Conn.
// Commits and rollbacks are recorded rather than applied.
type TestConn struct {
	mu          sync.Mutex
	queries     []*QueryExpectation
	execs       []*ExecExpectation
	strictMatch bool

	calls    []string
	queryLog []QueryCall
	execLog  []ExecCall

	autoCommit  bool
	modeChanges []bool
	commits     int
	attempts    int
	rollbacks   int
	closes      int
	closed      bool

	setModeErr   error
	commitErr    error
	commitFailAt int
	rollbackErr  error
	closeErr     error

	db  *sql.DB
	raw *sql.Conn
}

// NewTestConn creates a connection in auto-commit mode.
func NewTestConn() *TestConn {
	return &TestConn{autoCommit: true}
}

// StrictSQLMatching requires exact SQL matches instead of substring matches.
func (c *TestConn) StrictSQLMatching() *TestConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strictMatch = true
	return c
}

// ExpectQuery registers a query expectation; the first match wins.
func (c *TestConn) ExpectQuery(sqlPattern string) *QueryExpectation {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := &QueryExpectation{sql: sqlPattern}
	c.queries = append(c.queries, exp)
	return exp
}

// ExpectExec registers an exec expectation; the first match wins.
func (c *TestConn) ExpectExec(sqlPattern string) *ExecExpectation {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp := &ExecExpectation{sql: sqlPattern}
	c.execs = append(c.execs, exp)
	return exp
}

// FailSetAutoCommit makes every commit-mode change fail.
func (c *TestConn) FailSetAutoCommit(err error) *TestConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setModeErr = err
	return c
}

// FailCommit makes every commit fail.
func (c *TestConn) FailCommit(err error) *TestConn {
	return c.FailCommitAt(0, err)
}

// FailCommitAt makes only the nth commit (1-based) fail; n=0 fails every commit.
func (c *TestConn) FailCommitAt(n int, err error) *TestConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitFailAt = n
	c.commitErr = err
	return c
}

// FailRollback makes every rollback fail.
func (c *TestConn) FailRollback(err error) *TestConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rollbackErr = err
	return c
}

// FailClose makes Close fail.
func (c *TestConn) FailClose(err error) *TestConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
	return c
}

func (c *TestConn) record(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *TestConn) matchSQL(expected, actual string) bool {
	if c.strictMatch {
		return strings.TrimSpace(expected) == strings.TrimSpace(actual)
	}
	return strings.Contains(actual, expected)
}

func (c *TestConn) findQuery(query string) *QueryExpectation {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, exp := range c.queries {
		if c.matchSQL(exp.sql, query) {
			return exp
		}
	}
	return nil
}

func (c *TestConn) findExec(query string) *ExecExpectation {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, exp := range c.execs {
		if c.matchSQL(exp.sql, query) {
			return exp
		}
	}
	return nil
}

// session lazily opens the in-memory driver connection.
func (c *TestConn) session(ctx context.Context) (*sql.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrConnClosed
	}
	if c.raw != nil {
		return c.raw, nil
	}
	c.db = sql.OpenDB(&connector{tc: c})
	raw, err := c.db.Conn(ctx)
	if err != nil {
		_ = c.db.Close()
		c.db = nil
		return nil, err
	}
	c.raw = raw
	return raw, nil
}

// ExecContext implements types.Conn.
func (c *TestConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	raw, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	return raw.ExecContext(ctx, query, args...)
}

// QueryContext implements types.Conn.
func (c *TestConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	raw, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	return raw.QueryContext(ctx, query, args...)
}

// PrepareContext implements types.Conn.
func (c *TestConn) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	raw, err := c.session(ctx)
	if err != nil {
		return nil, err
	}
	return raw.PrepareContext(ctx, query)
}

// SetAutoCommit implements types.Conn.
func (c *TestConn) SetAutoCommit(_ context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, CallSetAutoCommit(enabled))
	if c.setModeErr != nil {
		return c.setModeErr
	}
	c.autoCommit = enabled
	c.modeChanges = append(c.modeChanges, enabled)
	return nil
}

// AutoCommit implements types.Conn.
func (c *TestConn) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.autoCommit
}

// Commit implements types.Conn.
func (c *TestConn) Commit(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, CallCommit)
	c.attempts++
	if c.commitErr != nil && (c.commitFailAt == 0 || c.commitFailAt == c.attempts) {
		return c.commitErr
	}
	c.commits++
	return nil
}

// Rollback implements types.Conn.
func (c *TestConn) Rollback(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, CallRollback)
	c.rollbacks++
	return c.rollbackErr
}

// Close implements types.Conn. Every call is counted.
func (c *TestConn) Close() error {
	c.mu.Lock()
	c.calls = append(c.calls, CallClose)
	c.closes++
	c.closed = true
	raw, db := c.raw, c.db
	c.raw, c.db = nil, nil
	closeErr := c.closeErr
	c.mu.Unlock()

	if raw != nil {
		_ = raw.Close()
	}
	if db != nil {
		_ = db.Close()
	}
	return closeErr
}

// Calls returns the ordered call log.
func (c *TestConn) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

// QueryLog returns every query that ran.
func (c *TestConn) QueryLog() []QueryCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]QueryCall(nil), c.queryLog...)
}

// ExecLog returns every exec that ran.
func (c *TestConn) ExecLog() []ExecCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ExecCall(nil), c.execLog...)
}

// ModeChanges returns the successful SetAutoCommit values in order.
func (c *TestConn) ModeChanges() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.modeChanges...)
}

// Commits returns the number of successful commits.
func (c *TestConn) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// Rollbacks returns the number of rollbacks, failed ones included.
func (c *TestConn) Rollbacks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollbacks
}

// Closes returns the number of Close calls.
func (c *TestConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

var _ types.Conn = (*TestConn)(nil)
