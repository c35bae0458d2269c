// Package testing provides in-memory fakes for testing code built on sqlflow
// executions without a real database.
//
// TestConn implements types.Conn. Statements run through an in-memory driver
// that answers from expectations (ExpectQuery, ExpectExec) and yields real
// *sql.Rows and *sql.Stmt values, so query streams behave as they do against a
// database. Commit-mode changes, commits, rollbacks, closes and every row
// fetch are recorded in one ordered call log for assertions.
//
// TestProvider lends TestConns to executions, and EventRecorder captures the
// lifecycle events an execution reports.
//
// Usage example:
//
//	conn := NewTestConn()
//	conn.ExpectQuery("SELECT id FROM person").
//	    WillReturnRows(NewRowSet("id").AddRow(1).AddRow(2))
//
//	exec := transaction.NewExecutor(NewTestProvider(conn), work, transaction.Options{
//	    Policy: transaction.SingleTransaction,
//	})
//	items, err := stream.Collect(ctx, exec)
//
//	AssertCommitted(t, conn, 1)
//	AssertClosedOnce(t, conn)
package testing
