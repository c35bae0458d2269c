// Package oracle lends Oracle connections through the go-ora driver.
package oracle

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	go_ora "github.com/sijms/go-ora/v2"

	"github.com/gaborage/go-bricks-sqlflow/config"
	"github.com/gaborage/go-bricks-sqlflow/database/connection"
	"github.com/gaborage/go-bricks-sqlflow/database/types"
	"github.com/gaborage/go-bricks-sqlflow/logger"
)

const (
	driverName  = "oracle"
	pingTimeout = 10 * time.Second
)

var (
	openOracleDB = func(dsn string) (*sql.DB, error) {
		return sql.Open(driverName, dsn)
	}
	pingOracleDB = func(ctx context.Context, db *sql.DB) error {
		return db.PingContext(ctx)
	}
)

// DSN returns the go-ora URL for cfg. An explicit ConnectionString wins; a
// service name is preferred over a SID, and a SID over the database name.
func DSN(cfg *config.DatabaseConfig) string {
	if cfg.ConnectionString != "" {
		return cfg.ConnectionString
	}

	switch {
	case cfg.ServiceName != "":
		return go_ora.BuildUrl(cfg.Host, cfg.Port, cfg.ServiceName, cfg.Username, cfg.Password, nil)
	case cfg.SID != "":
		return go_ora.BuildUrl(cfg.Host, cfg.Port, "", cfg.Username, cfg.Password, map[string]string{"SID": cfg.SID})
	default:
		return go_ora.BuildUrl(cfg.Host, cfg.Port, cfg.Database, cfg.Username, cfg.Password, nil)
	}
}

// Open opens an Oracle pool, applies the pool bounds and pings the server.
// The pool is closed again when the ping fails.
func Open(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*sql.DB, error) {
	log = logger.OrNop(log)

	db, err := openOracleDB(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open Oracle connection: %w", err)
	}
	connection.ConfigurePool(db, cfg.Pool)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pingOracleDB(pingCtx, db); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Failed to close Oracle pool after ping failure")
		}
		return nil, fmt.Errorf("failed to ping Oracle database: %w", err)
	}

	ev := log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port)
	switch {
	case cfg.ServiceName != "":
		ev = ev.Str("service_name", cfg.ServiceName)
	case cfg.SID != "":
		ev = ev.Str("sid", cfg.SID)
	default:
		ev = ev.Str("database", cfg.Database)
	}
	ev.Msg("Connected to Oracle database")

	return db, nil
}

// NewProvider opens an Oracle pool and lends its connections. Oracle has no
// BEGIN statement, so manual transactions go through the driver.
func NewProvider(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger, opts ...connection.Option) (*connection.DBProvider, error) {
	db, err := Open(ctx, cfg, log)
	if err != nil {
		return nil, types.NewError(types.ErrAcquisition, "open oracle", err)
	}
	base := []connection.Option{connection.WithLogger(log), connection.WithDriverTransactions()}
	return connection.FromDB(db, append(base, opts...)...), nil
}
