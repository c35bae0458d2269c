// Package tracking observes execution lifecycles. It turns every lifecycle
// event into a structured log line, OpenTelemetry metrics and one span per
// execution.
package tracking

import (
	"time"

	"github.com/gaborage/go-bricks-sqlflow/config"
)

// DefaultSlowThreshold marks executions that run longer as slow.
const DefaultSlowThreshold = 200 * time.Millisecond

// Settings holds configuration for execution tracking.
type Settings struct {
	slowThreshold time.Duration
	vendor        string
}

// NewSettings creates Settings from the application configuration.
// A nil cfg or a non-positive threshold falls back to DefaultSlowThreshold.
func NewSettings(cfg *config.Config) Settings {
	settings := Settings{slowThreshold: DefaultSlowThreshold}
	if cfg == nil {
		return settings
	}
	if cfg.Execution.SlowThreshold > 0 {
		settings.slowThreshold = cfg.Execution.SlowThreshold
	}
	settings.vendor = cfg.Database.Type
	return settings
}

// SlowThreshold returns the duration past which an execution is logged as slow.
func (s Settings) SlowThreshold() time.Duration {
	return s.slowThreshold
}

// Vendor returns the normalized database system name.
func (s Settings) Vendor() string {
	return normalizeDBVendor(s.vendor)
}
