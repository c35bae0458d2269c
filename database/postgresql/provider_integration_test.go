//go:build integration

package postgresql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-bricks-sqlflow/database/connection"
	"github.com/gaborage/go-bricks-sqlflow/database/query"
	"github.com/gaborage/go-bricks-sqlflow/database/statement"
	"github.com/gaborage/go-bricks-sqlflow/database/transaction"
	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
	"github.com/gaborage/go-bricks-sqlflow/stream"
	"github.com/gaborage/go-bricks-sqlflow/testing/containers"
)

func setupProvider(t *testing.T) (*connection.DBProvider, context.Context) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	cfg := containers.StartPostgreSQL(ctx, t, containers.DefaultPostgreSQLOptions())
	provider, err := NewProvider(ctx, cfg, logger.New("disabled", false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = provider.Close() })

	run(ctx, t, provider, transaction.AutoCommit,
		"CREATE TABLE person (id BIGSERIAL PRIMARY KEY, name TEXT NOT NULL, born DATE)")
	return provider, ctx
}

func run(ctx context.Context, t *testing.T, provider types.ConnectionProvider, policy transaction.Policy, sql string) {
	t.Helper()
	exec := transaction.NewExecutor(provider, func(conn types.Conn) stream.Stream[query.Void] {
		return query.Execute(conn, statement.NewIndexed(sql))
	}, transaction.Options{Policy: policy})
	_, err := stream.Collect(ctx, exec)
	require.NoError(t, err)
}

func insertName(name string) *statement.Indexed {
	return statement.NewIndexed("INSERT INTO person (name, born) VALUES (?, ?)").
		Placeholders(squirrel.Dollar).
		Add(name, types.Varchar).
		Add(nil, types.Date)
}

func countPeople(ctx context.Context, t *testing.T, provider types.ConnectionProvider) int64 {
	t.Helper()
	exec := transaction.NewExecutor(provider, func(conn types.Conn) stream.Stream[int64] {
		return query.ExecuteQuery(conn, statement.NewIndexed("SELECT count(*) FROM person"), func(row types.RowScanner) (int64, error) {
			var n int64
			err := row.Scan(&n)
			return n, err
		})
	}, transaction.Options{})
	n, err := stream.Single(ctx, exec)
	require.NoError(t, err)
	return n
}

func TestSingleTransactionCommits(t *testing.T) {
	provider, ctx := setupProvider(t)

	exec := transaction.NewExecutor(provider, func(conn types.Conn) stream.Stream[int64] {
		return query.InsertReturning(conn,
			statement.NewIndexed("INSERT INTO person (name) VALUES (?), (?) RETURNING id").
				Placeholders(squirrel.Dollar).
				Add("ada", types.Varchar).
				Add("grace", types.Varchar),
			func(row types.RowScanner) (int64, error) {
				var id int64
				err := row.Scan(&id)
				return id, err
			})
	}, transaction.Options{Policy: transaction.SingleTransaction})

	ids, err := stream.Collect(ctx, exec)
	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, int64(2), countPeople(ctx, t, provider))
}

func TestSingleTransactionRollsBackOnError(t *testing.T) {
	provider, ctx := setupProvider(t)
	errMapping := errors.New("reject row")

	exec := transaction.NewExecutor(provider, func(conn types.Conn) stream.Stream[int64] {
		return query.InsertReturning(conn,
			statement.NewIndexed("INSERT INTO person (name) VALUES (?) RETURNING id").
				Placeholders(squirrel.Dollar).
				Add("ada", types.Varchar),
			func(types.RowScanner) (int64, error) { return 0, errMapping })
	}, transaction.Options{Policy: transaction.SingleTransaction})

	_, err := stream.Collect(ctx, exec)
	assert.ErrorIs(t, err, errMapping)
	assert.Zero(t, countPeople(ctx, t, provider))
}

func TestPerEventCommitKeepsDeliveredEvents(t *testing.T) {
	provider, ctx := setupProvider(t)
	errStop := errors.New("stop")

	// Each event comes from its own statement; the third fails.
	exec := transaction.NewExecutor(provider, func(conn types.Conn) stream.Stream[int64] {
		return stream.FromSeq(func(yield func(int64, error) bool) {
			for _, name := range []string{"ada", "grace"} {
				n, err := stream.Single(ctx, query.ExecuteUpdate(conn, insertName(name)))
				if !yield(n, err) {
					return
				}
			}
			yield(0, errStop)
		})
	}, transaction.Options{Policy: transaction.PerEventCommit})

	_, err := stream.Collect(ctx, exec)
	assert.ErrorIs(t, err, errStop)
	assert.Equal(t, int64(2), countPeople(ctx, t, provider))
}

func TestStreamingQueryHonoursDemand(t *testing.T) {
	provider, ctx := setupProvider(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		exec := transaction.NewExecutor(provider, func(conn types.Conn) stream.Stream[int64] {
			return query.ExecuteUpdate(conn, insertName(name))
		}, transaction.Options{})
		_, err := stream.Collect(ctx, exec)
		require.NoError(t, err)
	}

	exec := transaction.NewExecutor(provider, func(conn types.Conn) stream.Stream[string] {
		return query.ExecuteQuery(conn, statement.NewIndexed("SELECT name FROM person ORDER BY id"), func(row types.RowScanner) (string, error) {
			var name string
			err := row.Scan(&name)
			return name, err
		})
	}, transaction.Options{Policy: transaction.SingleTransaction})

	var seen []string
	err := stream.Each(ctx, exec, 2, func(name string) error {
		seen = append(seen, name)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, seen)
	assert.Zero(t, provider.DB().Stats().InUse)
}
