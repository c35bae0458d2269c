//go:build integration

package containers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gaborage/go-bricks-sqlflow/config"
)

// PostgreSQLOptions configures the PostgreSQL container.
type PostgreSQLOptions struct {
	ImageTag       string
	Username       string
	Password       string
	Database       string
	StartupTimeout time.Duration
}

// DefaultPostgreSQLOptions returns a postgres:17-alpine container with test credentials.
func DefaultPostgreSQLOptions() PostgreSQLOptions {
	return PostgreSQLOptions{
		ImageTag:       "17-alpine",
		Username:       "testuser",
		Password:       "testpass",
		Database:       "testdb",
		StartupTimeout: 60 * time.Second,
	}
}

// StartPostgreSQL starts a PostgreSQL container that is terminated when the
// test ends and returns the configuration to reach it. The test is skipped
// when Docker is not available.
func StartPostgreSQL(ctx context.Context, t *testing.T, opts PostgreSQLOptions) *config.DatabaseConfig {
	t.Helper()
	skipWithoutDocker(ctx, t)

	pg, err := postgres.Run(ctx,
		fmt.Sprintf("postgres:%s", opts.ImageTag),
		postgres.WithDatabase(opts.Database),
		postgres.WithUsername(opts.Username),
		postgres.WithPassword(opts.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2). // Postgres restarts after initial setup
				WithStartupTimeout(opts.StartupTimeout),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	terminateOnCleanup(t, "PostgreSQL", pg)

	host, err := pg.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get PostgreSQL container host: %v", err)
	}
	port, err := pg.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("Failed to get PostgreSQL container port: %v", err)
	}

	t.Logf("PostgreSQL container started at %s:%d", host, port.Int())

	return &config.DatabaseConfig{
		Type:     "postgresql",
		Host:     host,
		Port:     port.Int(),
		Database: opts.Database,
		Username: opts.Username,
		Password: opts.Password,
		SSLMode:  "disable",
		Pool: config.PoolConfig{
			Max:      config.PoolMaxConfig{Connections: 10},
			Idle:     config.PoolIdleConfig{Connections: 2, Time: 5 * time.Minute},
			Lifetime: config.LifetimeConfig{Max: 30 * time.Minute},
		},
	}
}
