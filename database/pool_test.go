package database

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-bricks-sqlflow/config"
	"github.com/gaborage/go-bricks-sqlflow/database/connection"
	"github.com/gaborage/go-bricks-sqlflow/database/query"
	"github.com/gaborage/go-bricks-sqlflow/database/statement"
	dbtest "github.com/gaborage/go-bricks-sqlflow/database/testing"
	"github.com/gaborage/go-bricks-sqlflow/database/transaction"
	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
	"github.com/gaborage/go-bricks-sqlflow/stream"
)

const selectNames = "SELECT name FROM person"

func namesConn() *dbtest.TestConn {
	conn := dbtest.NewTestConn()
	conn.ExpectQuery(selectNames).WillReturnRows(dbtest.NewRowSet("name").AddRow("ada").AddRow("grace"))
	return conn
}

func selectNamesWork(conn types.Conn) stream.Stream[string] {
	return query.ExecuteQuery(conn, statement.NewIndexed(selectNames), func(row types.RowScanner) (string, error) {
		var name string
		err := row.Scan(&name)
		return name, err
	})
}

// stubOpener swaps the opener for vendor until the test ends.
func stubOpener(t *testing.T, vendor string, opener Opener) {
	t.Helper()
	previous := openers[vendor]
	openers[vendor] = opener
	t.Cleanup(func() { openers[vendor] = previous })
}

func TestExecuteDefaultsToAutoCommit(t *testing.T) {
	conn := namesConn()
	pool := NewPool(dbtest.NewTestProvider(conn), PoolOptions{})

	names, err := stream.Collect(context.Background(), Execute(pool, selectNamesWork))
	require.NoError(t, err)

	assert.Equal(t, []string{"ada", "grace"}, names)
	assert.Equal(t, transaction.AutoCommit, pool.Policy())
	dbtest.AssertNoTransaction(t, conn)
	dbtest.AssertClosedOnce(t, conn)
}

func TestExecuteUsesPoolPolicyAndObserver(t *testing.T) {
	conn := namesConn()
	events := &dbtest.EventRecorder{}
	pool := NewPool(dbtest.NewTestProvider(conn), PoolOptions{
		Policy:   transaction.SingleTransaction,
		Observer: events,
	})

	names, err := stream.Collect(context.Background(), Execute(pool, selectNamesWork))
	require.NoError(t, err)

	assert.Len(t, names, 2)
	dbtest.AssertCommitted(t, conn, 1)
	assert.Equal(t, 2, events.Count(types.EventEmit))
	assert.Equal(t, 1, events.Count(types.EventClose))
}

func TestExecuteIsLazy(t *testing.T) {
	provider := dbtest.NewTestProvider(namesConn())
	pool := NewPool(provider, PoolOptions{})

	_ = Execute(pool, selectNamesWork)
	assert.Zero(t, provider.Acquisitions())
}

func TestPoolCloseOnce(t *testing.T) {
	provider := dbtest.NewTestProvider()
	pool := NewPool(provider, PoolOptions{})

	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())
	assert.Equal(t, 1, provider.Closes())
}

func TestPoolQueryOptions(t *testing.T) {
	pool := NewPool(dbtest.NewTestProvider(), PoolOptions{})
	assert.Len(t, pool.QueryOptions(), 1)

	pool = NewPool(dbtest.NewTestProvider(), PoolOptions{StatementTimeout: time.Second})
	assert.Len(t, pool.QueryOptions(), 2)
}

func TestPoolStatementsUseVendorPlaceholders(t *testing.T) {
	cases := map[types.Vendor]string{
		PostgreSQL: "SELECT id FROM person WHERE id = $1",
		Oracle:     "SELECT id FROM person WHERE id = :1",
		"":         "SELECT id FROM person WHERE id = ?",
	}
	for vendor, want := range cases {
		pool := NewPool(dbtest.NewTestProvider(), PoolOptions{Vendor: vendor})
		sql, args, err := pool.Statements().Select("id").From("person").Where(squirrel.Eq{"id": 7}).ToSql()
		require.NoError(t, err)
		assert.Equal(t, want, sql, vendor)
		assert.Equal(t, []any{7}, args)
	}
}

func TestOpenPoolFromConfig(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	var seen *config.DatabaseConfig
	stubOpener(t, PostgreSQL, func(_ context.Context, cfg *config.DatabaseConfig, log logger.Logger, opts ...connection.Option) (*connection.DBProvider, error) {
		seen = cfg
		return connection.FromDB(db, append(opts, connection.WithLogger(log))...), nil
	})

	cfg := &config.Config{
		Database: config.DatabaseConfig{Type: PostgreSQL, Host: "db", Port: 5432, Database: "app"},
		Execution: config.ExecutionConfig{
			Policy:           "perevent",
			StatementTimeout: 3 * time.Second,
		},
	}

	pool, err := OpenPool(context.Background(), cfg, logger.Nop())
	require.NoError(t, err)

	require.NotNil(t, seen)
	assert.Equal(t, "app", seen.Database)
	assert.Equal(t, transaction.PerEventCommit, pool.Policy())
	assert.Equal(t, PostgreSQL, pool.Vendor())
	assert.Len(t, pool.QueryOptions(), 2)

	require.NoError(t, pool.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenPoolRejectsUnknownPolicy(t *testing.T) {
	cfg := &config.Config{
		Database:  config.DatabaseConfig{Type: PostgreSQL, Host: "db"},
		Execution: config.ExecutionConfig{Policy: "eventually"},
	}

	_, err := OpenPool(context.Background(), cfg, nil)
	require.Error(t, err)

	var cfgErr *config.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "execution.policy", cfgErr.Field)
}

func TestOpenPoolWithoutDatabase(t *testing.T) {
	_, err := OpenPool(context.Background(), &config.Config{}, nil)
	assert.ErrorIs(t, err, config.ErrNotConfigured)

	_, err = OpenPool(context.Background(), nil, nil)
	assert.ErrorIs(t, err, config.ErrNotConfigured)
}

func TestOpenPoolPropagatesOpenFailure(t *testing.T) {
	refused := errors.New("connection refused")
	stubOpener(t, Oracle, func(context.Context, *config.DatabaseConfig, logger.Logger, ...connection.Option) (*connection.DBProvider, error) {
		return nil, types.NewError(types.ErrAcquisition, "open oracle", refused)
	})

	_, err := OpenPool(context.Background(), &config.Config{
		Database: config.DatabaseConfig{Type: Oracle, Host: "db", Port: 1521, ServiceName: "FREEPDB1"},
	}, nil)
	assert.ErrorIs(t, err, types.ErrAcquisition)
	assert.ErrorIs(t, err, refused)
}
