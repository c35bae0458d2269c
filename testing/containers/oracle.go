//go:build integration

package containers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gaborage/go-bricks-sqlflow/config"
)

// OracleOptions configures the Oracle Free container.
type OracleOptions struct {
	ImageTag       string
	Password       string
	ServiceName    string
	AppUser        string
	StartupTimeout time.Duration
}

// DefaultOracleOptions returns a gvenzl/oracle-free:23-slim container with an
// application user in the default pluggable database.
func DefaultOracleOptions() OracleOptions {
	return OracleOptions{
		ImageTag:       "23-slim",
		Password:       "testpass",
		ServiceName:    "FREEPDB1",
		AppUser:        "testuser",
		StartupTimeout: 120 * time.Second,
	}
}

// StartOracle starts an Oracle container that is terminated when the test
// ends and returns the configuration to reach it. The test is skipped when
// Docker is not available.
func StartOracle(ctx context.Context, t *testing.T, opts OracleOptions) *config.DatabaseConfig {
	t.Helper()
	skipWithoutDocker(ctx, t)

	// The log line appears before the listener is up, so wait for both.
	req := testcontainers.ContainerRequest{
		Image:        fmt.Sprintf("gvenzl/oracle-free:%s", opts.ImageTag),
		ExposedPorts: []string{"1521/tcp"},
		Env: map[string]string{
			"ORACLE_PASSWORD":   opts.Password,
			"APP_USER":          opts.AppUser,
			"APP_USER_PASSWORD": opts.Password,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("DATABASE IS READY TO USE!"),
			wait.ForListeningPort("1521/tcp"),
		).WithStartupTimeout(opts.StartupTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Oracle container: %v", err)
	}
	terminateOnCleanup(t, "Oracle", container)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get Oracle container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "1521")
	if err != nil {
		t.Fatalf("Failed to get Oracle container port: %v", err)
	}

	t.Logf("Oracle container started at %s:%d (service: %s)", host, port.Int(), opts.ServiceName)

	return &config.DatabaseConfig{
		Type:        "oracle",
		Host:        host,
		Port:        port.Int(),
		ServiceName: opts.ServiceName,
		Username:    opts.AppUser,
		Password:    opts.Password,
		Pool: config.PoolConfig{
			Max:  config.PoolMaxConfig{Connections: 5},
			Idle: config.PoolIdleConfig{Connections: 1, Time: 5 * time.Minute},
		},
	}
}
