package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-bricks-sqlflow/config"
	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
	"github.com/gaborage/go-bricks-sqlflow/stream"
)

func testConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Type:     "postgresql",
		Host:     "db.internal",
		Port:     5432,
		Database: "orders",
		Username: "app",
		Password: "s3cret",
		Pool: config.PoolConfig{
			Max:  config.PoolMaxConfig{Connections: 7},
			Idle: config.PoolIdleConfig{Connections: 2, Time: time.Minute},
		},
	}
}

// useMockDB routes openPostgresDB and pingPostgresDB to a sqlmock pool.
func useMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *pgx.ConnConfig) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	var parsed pgx.ConnConfig
	prevOpen := openPostgresDB
	openPostgresDB = func(cfg *pgx.ConnConfig) *sql.DB {
		parsed = *cfg
		return db
	}
	t.Cleanup(func() { openPostgresDB = prevOpen })

	return db, mock, &parsed
}

func TestQuoteDSN(t *testing.T) {
	cases := map[string]string{
		"":            "''",
		"plain":       "plain",
		"db.host-1_x": "db.host-1_x",
		"with space":  "'with space'",
		"it's":        `'it\'s'`,
		`back\slash`:  `'back\\slash'`,
	}
	for in, want := range cases {
		assert.Equal(t, want, quoteDSN(in), in)
	}
}

func TestDSN(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "host=db.internal port=5432 user=app password=s3cret dbname=orders", DSN(cfg))

	cfg.SSLMode = "disable"
	cfg.Password = "p@ss word"
	assert.Equal(t, "host=db.internal port=5432 user=app password='p@ss word' dbname=orders sslmode=disable", DSN(cfg))

	cfg.ConnectionString = "postgres://u:p@h:5432/d"
	assert.Equal(t, "postgres://u:p@h:5432/d", DSN(cfg))
}

func TestOpenConfiguresPoolAndPings(t *testing.T) {
	db, mock, parsed := useMockDB(t)
	mock.ExpectPing()

	opened, err := Open(context.Background(), testConfig(), logger.Nop())
	require.NoError(t, err)
	assert.Same(t, db, opened)

	assert.Equal(t, "db.internal", parsed.Host)
	assert.Equal(t, uint16(5432), parsed.Port)
	assert.Equal(t, "orders", parsed.Database)
	assert.Equal(t, "app", parsed.User)
	assert.Equal(t, 7, opened.Stats().MaxOpenConnections)

	mock.ExpectClose()
	require.NoError(t, opened.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenClosesPoolWhenPingFails(t *testing.T) {
	_, mock, _ := useMockDB(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	_, err := Open(context.Background(), testConfig(), logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping PostgreSQL database")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRejectsMalformedDSN(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectionString = "host=localhost port=notaport"

	_, err := Open(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse PostgreSQL config")
}

func TestNewProviderLendsConnections(t *testing.T) {
	_, mock, _ := useMockDB(t)
	mock.ExpectPing()

	provider, err := NewProvider(context.Background(), testConfig(), logger.Nop())
	require.NoError(t, err)

	conn, err := stream.Single(context.Background(), provider.Acquire(context.Background()))
	require.NoError(t, err)
	assert.True(t, conn.AutoCommit())
	require.NoError(t, conn.Close())

	mock.ExpectClose()
	require.NoError(t, provider.Close())
	require.NoError(t, provider.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewProviderWrapsOpenFailure(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectionString = "host=localhost port=notaport"

	_, err := NewProvider(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, types.ErrAcquisition)
}
