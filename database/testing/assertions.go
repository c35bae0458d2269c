package testing

import (
	"fmt"
	"strings"
	"testing"
)

// AssertCommitted asserts that exactly n commits succeeded on conn.
//
// Example:
//
//	conn := NewTestConn()
//	// ... run a SingleTransaction execution ...
//	AssertCommitted(t, conn, 1)
func AssertCommitted(t *testing.T, conn *TestConn, n int) {
	t.Helper()
	if got := conn.Commits(); got != n {
		t.Errorf("expected %d commits, got %d\nCalls: %s", n, got, formatCalls(conn.Calls()))
	}
}

// AssertRolledBack asserts that exactly n rollbacks were attempted on conn.
func AssertRolledBack(t *testing.T, conn *TestConn, n int) {
	t.Helper()
	if got := conn.Rollbacks(); got != n {
		t.Errorf("expected %d rollbacks, got %d\nCalls: %s", n, got, formatCalls(conn.Calls()))
	}
}

// AssertNoTransaction asserts that conn saw neither commit nor rollback.
func AssertNoTransaction(t *testing.T, conn *TestConn) {
	t.Helper()
	for _, call := range conn.Calls() {
		if call == CallCommit || call == CallRollback {
			t.Errorf("expected no transaction activity\nCalls: %s", formatCalls(conn.Calls()))
			return
		}
	}
}

// AssertClosedOnce asserts that conn was closed exactly once.
func AssertClosedOnce(t *testing.T, conn *TestConn) {
	t.Helper()
	if got := conn.Closes(); got != 1 {
		t.Errorf("expected connection to be closed once, closed %d times\nCalls: %s", got, formatCalls(conn.Calls()))
	}
}

// AssertExecExecuted asserts that an exec containing sqlPattern ran on conn.
func AssertExecExecuted(t *testing.T, conn *TestConn, sqlPattern string) {
	t.Helper()
	log := conn.ExecLog()
	for _, call := range log {
		if strings.Contains(call.SQL, sqlPattern) {
			return
		}
	}
	t.Errorf("expected exec not executed: %q\nActual execs:\n%s", sqlPattern, formatExecLog(log))
}

// AssertQueryExecuted asserts that a query containing sqlPattern ran on conn.
func AssertQueryExecuted(t *testing.T, conn *TestConn, sqlPattern string) {
	t.Helper()
	log := conn.QueryLog()
	for _, call := range log {
		if strings.Contains(call.SQL, sqlPattern) {
			return
		}
	}
	t.Errorf("expected query not executed: %q\nActual queries:\n%s", sqlPattern, formatQueryLog(log))
}

// AssertCallOrder asserts that want appears in conn's call log in order,
// possibly interleaved with other calls.
//
// Example:
//
//	AssertCallOrder(t, conn, CallFetch, CallCommit, CallFetch, CallCommit)
func AssertCallOrder(t *testing.T, conn *TestConn, want ...string) {
	t.Helper()
	calls := conn.Calls()
	i := 0
	for _, call := range calls {
		if i < len(want) && call == want[i] {
			i++
		}
	}
	if i != len(want) {
		t.Errorf("expected calls in order %v\nActual calls: %s", want, formatCalls(calls))
	}
}

func formatCalls(calls []string) string {
	if len(calls) == 0 {
		return "(none)"
	}
	return strings.Join(calls, " → ")
}

func formatQueryLog(log []QueryCall) string {
	if len(log) == 0 {
		return "  (none)"
	}
	var b strings.Builder
	for i, call := range log {
		fmt.Fprintf(&b, "  %d. %s (args: %v)\n", i+1, call.SQL, call.Args)
	}
	return b.String()
}

func formatExecLog(log []ExecCall) string {
	if len(log) == 0 {
		return "  (none)"
	}
	var b strings.Builder
	for i, call := range log {
		fmt.Fprintf(&b, "  %d. %s (args: %v)\n", i+1, call.SQL, call.Args)
	}
	return b.String()
}
