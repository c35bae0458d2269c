package database

import (
	"context"
	"fmt"
	"slices"

	"github.com/gaborage/go-bricks-sqlflow/config"
	"github.com/gaborage/go-bricks-sqlflow/database/connection"
	"github.com/gaborage/go-bricks-sqlflow/database/oracle"
	"github.com/gaborage/go-bricks-sqlflow/database/postgresql"
	"github.com/gaborage/go-bricks-sqlflow/logger"
)

// Opener opens a pooled provider for one vendor.
type Opener func(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger, opts ...connection.Option) (*connection.DBProvider, error)

var openers = map[string]Opener{
	PostgreSQL: postgresql.NewProvider,
	Oracle:     oracle.NewProvider,
}

// NewProvider opens a pooled connection provider for cfg. The driver is
// selected by cfg.Type (supported: "postgresql", "oracle").
func NewProvider(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger, opts ...connection.Option) (*connection.DBProvider, error) {
	if cfg == nil || !config.IsDatabaseConfigured(cfg) {
		return nil, config.NewNotConfiguredError("database")
	}
	if err := ValidateDatabaseType(cfg.Type); err != nil {
		return nil, err
	}
	return openers[cfg.Type](ctx, cfg, log, opts...)
}

// ValidateDatabaseType returns nil if dbType is one of the supported database types.
func ValidateDatabaseType(dbType string) error {
	supported := SupportedDatabaseTypes()
	if !slices.Contains(supported, dbType) {
		return fmt.Errorf("unsupported database type: %s (supported: %v)", dbType, supported)
	}
	return nil
}

// SupportedDatabaseTypes returns the vendors NewProvider can open.
func SupportedDatabaseTypes() []string {
	return []string{PostgreSQL, Oracle}
}
