package connection

import (
	"database/sql"

	"github.com/gaborage/go-bricks-sqlflow/config"
)

// ConfigurePool passes pool bounds to database/sql. Zero values keep the
// driver defaults.
func ConfigurePool(db *sql.DB, pool config.PoolConfig) {
	if pool.Max.Connections > 0 {
		db.SetMaxOpenConns(int(pool.Max.Connections))
	}
	if pool.Idle.Connections > 0 {
		db.SetMaxIdleConns(int(pool.Idle.Connections))
	}
	if pool.Idle.Time > 0 {
		db.SetConnMaxIdleTime(pool.Idle.Time)
	}
	if pool.Lifetime.Max > 0 {
		db.SetConnMaxLifetime(pool.Lifetime.Max)
	}
}
