package testing

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
)

// connector feeds a TestConn's expectations into sql.OpenDB so statements
// yield real *sql.Rows and *sql.Stmt values.
type connector struct {
	tc *TestConn
}

func (c *connector) Connect(context.Context) (driver.Conn, error) {
	return &driverConn{tc: c.tc}, nil
}

func (c *connector) Driver() driver.Driver {
	return testDriver{}
}

// testDriver exists to satisfy driver.Connector.Driver(). It should never be
// used via sql.Open directly.
type testDriver struct{}

func (testDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("testDriver must be used via connector")
}

type driverConn struct {
	tc *TestConn
}

func (c *driverConn) Prepare(query string) (driver.Stmt, error) {
	c.tc.record(CallPrepare)
	return &driverStmt{tc: c.tc, query: query}, nil
}

func (c *driverConn) Close() error { return nil }

func (c *driverConn) Begin() (driver.Tx, error) {
	return nil, errors.New("transactions are recorded by TestConn, not the driver")
}

func (c *driverConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return c.tc.exec(query, namedArgs(args))
}

func (c *driverConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	return c.tc.query(query, namedArgs(args))
}

type driverStmt struct {
	tc    *TestConn
	query string
}

func (s *driverStmt) Close() error {
	s.tc.record(CallStmtClose)
	return nil
}

func (s *driverStmt) NumInput() int { return -1 }

func (s *driverStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.tc.exec(s.query, valueArgs(args))
}

func (s *driverStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.tc.query(s.query, valueArgs(args))
}

func (s *driverStmt) ExecContext(_ context.Context, args []driver.NamedValue) (driver.Result, error) {
	return s.tc.exec(s.query, namedArgs(args))
}

func (s *driverStmt) QueryContext(_ context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return s.tc.query(s.query, namedArgs(args))
}

func (c *TestConn) exec(query string, args []any) (driver.Result, error) {
	c.mu.Lock()
	c.calls = append(c.calls, CallExec)
	c.execLog = append(c.execLog, ExecCall{SQL: query, Args: args})
	c.mu.Unlock()

	exp := c.findExec(query)
	if exp == nil {
		return nil, fmt.Errorf("unexpected exec: %s (no matching expectation)", query)
	}
	if exp.err != nil {
		return nil, exp.err
	}
	return driver.RowsAffected(exp.rowsAffected), nil
}

func (c *TestConn) query(query string, args []any) (driver.Rows, error) {
	c.mu.Lock()
	c.calls = append(c.calls, CallQuery)
	c.queryLog = append(c.queryLog, QueryCall{SQL: query, Args: args})
	c.mu.Unlock()

	exp := c.findQuery(query)
	if exp == nil {
		return nil, fmt.Errorf("unexpected query: %s (no matching expectation)", query)
	}
	if exp.err != nil {
		return nil, exp.err
	}
	if exp.rows == nil {
		return nil, fmt.Errorf("query expectation for %q has no rows configured (use WillReturnRows)", query)
	}
	return &driverRows{
		tc:        c,
		columns:   exp.rows.Columns(),
		rows:      cloneRowValues(exp.rows.rows),
		failAfter: exp.failAfter,
		fetchErr:  exp.fetchErr,
	}, nil
}

type driverRows struct {
	tc        *TestConn
	columns   []string
	rows      [][]any
	idx       int
	failAfter int
	fetchErr  error
}

func (r *driverRows) Columns() []string {
	return append([]string{}, r.columns...)
}

func (r *driverRows) Close() error {
	r.tc.record(CallRowsClose)
	r.rows = nil
	return nil
}

func (r *driverRows) Next(dest []driver.Value) error {
	r.tc.record(CallFetch)
	if r.fetchErr != nil && r.idx == r.failAfter {
		return r.fetchErr
	}
	if r.idx >= len(r.rows) {
		return io.EOF
	}

	row := r.rows[r.idx]
	for i, val := range row {
		normalized, err := normalizeDriverValue(val)
		if err != nil {
			return err
		}
		dest[i] = normalized
	}
	r.idx++
	return nil
}

func namedArgs(args []driver.NamedValue) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a.Value
	}
	return out
}

func valueArgs(args []driver.Value) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = a
	}
	return out
}
