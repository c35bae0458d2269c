package oracle

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-bricks-sqlflow/config"
	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
	"github.com/gaborage/go-bricks-sqlflow/stream"
)

func testConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Type:        "oracle",
		Host:        "ora.internal",
		Port:        1521,
		ServiceName: "FREEPDB1",
		Username:    "app",
		Password:    "s3cret",
		Pool:        config.PoolConfig{Max: config.PoolMaxConfig{Connections: 4}},
	}
}

// useMockDB routes openOracleDB to a sqlmock pool and records the DSN.
func useMockDB(t *testing.T, openErr error) (sqlmock.Sqlmock, *string) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	var dsn string
	prev := openOracleDB
	openOracleDB = func(d string) (*sql.DB, error) {
		dsn = d
		if openErr != nil {
			return nil, openErr
		}
		return db, nil
	}
	t.Cleanup(func() { openOracleDB = prev })

	return mock, &dsn
}

func TestDSNPrefersServiceName(t *testing.T) {
	cfg := testConfig()
	cfg.SID = "ORCL"
	cfg.Database = "ignored"

	dsn := DSN(cfg)
	assert.Contains(t, dsn, "oracle://")
	assert.Contains(t, dsn, "ora.internal:1521/FREEPDB1")
	assert.NotContains(t, dsn, "SID=")
}

func TestDSNWithSID(t *testing.T) {
	cfg := testConfig()
	cfg.ServiceName = ""
	cfg.SID = "ORCL"

	assert.Contains(t, DSN(cfg), "SID=ORCL")
}

func TestDSNFallsBackToDatabase(t *testing.T) {
	cfg := testConfig()
	cfg.ServiceName = ""
	cfg.Database = "XE"

	assert.Contains(t, DSN(cfg), "ora.internal:1521/XE")
}

func TestDSNConnectionStringWins(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectionString = "oracle://u:p@h:1521/svc"
	assert.Equal(t, "oracle://u:p@h:1521/svc", DSN(cfg))
}

func TestOpenConfiguresPoolAndPings(t *testing.T) {
	mock, dsn := useMockDB(t, nil)
	mock.ExpectPing()

	db, err := Open(context.Background(), testConfig(), logger.Nop())
	require.NoError(t, err)
	assert.Contains(t, *dsn, "FREEPDB1")
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)

	mock.ExpectClose()
	require.NoError(t, db.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenClosesPoolWhenPingFails(t *testing.T) {
	mock, _ := useMockDB(t, nil)
	mock.ExpectPing().WillReturnError(errors.New("ORA-12541: no listener"))
	mock.ExpectClose()

	_, err := Open(context.Background(), testConfig(), logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to ping Oracle database")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenFailure(t *testing.T) {
	useMockDB(t, errors.New("unknown driver"))

	_, err := Open(context.Background(), testConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open Oracle connection")
}

func TestNewProvider(t *testing.T) {
	mock, _ := useMockDB(t, nil)
	mock.ExpectPing()

	provider, err := NewProvider(context.Background(), testConfig(), logger.Nop())
	require.NoError(t, err)

	ctx := context.Background()
	conn, err := stream.Single(ctx, provider.Acquire(ctx))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO person").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, conn.SetAutoCommit(ctx, false))
	_, err = conn.ExecContext(ctx, "INSERT INTO person (name) VALUES ('ada')")
	require.NoError(t, err)
	require.NoError(t, conn.Commit(ctx))
	require.NoError(t, conn.Close())

	mock.ExpectClose()
	require.NoError(t, provider.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewProviderWrapsOpenFailure(t *testing.T) {
	useMockDB(t, errors.New("unknown driver"))

	_, err := NewProvider(context.Background(), testConfig(), nil)
	assert.ErrorIs(t, err, types.ErrAcquisition)
}
