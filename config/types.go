package config

import (
	"time"

	"github.com/knadh/koanf/v2"
)

// Config is the root configuration of a sqlflow application.
type Config struct {
	App       AppConfig       `koanf:"app" json:"app" yaml:"app"`
	Log       LogConfig       `koanf:"log" json:"log" yaml:"log"`
	Database  DatabaseConfig  `koanf:"database" json:"database" yaml:"database"`
	Execution ExecutionConfig `koanf:"execution" json:"execution" yaml:"execution"`

	Observability ObservabilityConfig `koanf:"observability" json:"observability" yaml:"observability"`

	k *koanf.Koanf `json:"-" yaml:"-"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name string `koanf:"name" json:"name" yaml:"name" validate:"required"`
	Env  string `koanf:"env" json:"env" yaml:"env" validate:"required,oneof=development staging production"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" validate:"required,oneof=trace debug info warn error disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty"`
}

// DatabaseConfig holds the connection settings handed to a provider.
// Either ConnectionString or Host/Port/Database must be set.
type DatabaseConfig struct {
	Type     string `koanf:"type" json:"type" yaml:"type" validate:"omitempty,oneof=postgresql oracle"`
	Host     string `koanf:"host" json:"host" yaml:"host"`
	Port     int    `koanf:"port" json:"port" yaml:"port" validate:"omitempty,min=1,max=65535"`
	Database string `koanf:"database" json:"database" yaml:"database"`
	Username string `koanf:"username" json:"username" yaml:"username"`
	Password string `koanf:"password" json:"-" yaml:"password"`
	SSLMode  string `koanf:"sslmode" json:"sslmode" yaml:"sslmode"`

	// Oracle connections may name a service or a SID instead of a database.
	ServiceName string `koanf:"servicename" json:"servicename" yaml:"servicename"`
	SID         string `koanf:"sid" json:"sid" yaml:"sid"`

	ConnectionString string `koanf:"connectionstring" json:"-" yaml:"connectionstring"`

	Pool PoolConfig `koanf:"pool" json:"pool" yaml:"pool"`
}

// PoolConfig is passed straight to database/sql. Sizing policy belongs to the
// driver pool; these values only bound it.
type PoolConfig struct {
	Max      PoolMaxConfig  `koanf:"max" json:"max" yaml:"max"`
	Idle     PoolIdleConfig `koanf:"idle" json:"idle" yaml:"idle"`
	Lifetime LifetimeConfig `koanf:"lifetime" json:"lifetime" yaml:"lifetime"`
}

// PoolMaxConfig bounds open connections.
type PoolMaxConfig struct {
	Connections int32 `koanf:"connections" json:"connections" yaml:"connections" validate:"min=0"`
}

// PoolIdleConfig bounds idle connections.
type PoolIdleConfig struct {
	Connections int32         `koanf:"connections" json:"connections" yaml:"connections" validate:"min=0"`
	Time        time.Duration `koanf:"time" json:"time" yaml:"time"`
}

// LifetimeConfig bounds connection reuse.
type LifetimeConfig struct {
	Max time.Duration `koanf:"max" json:"max" yaml:"max"`
}

// ExecutionConfig holds defaults for executions created from configuration.
type ExecutionConfig struct {
	// Policy is the default transaction policy: autocommit, single or perevent.
	Policy string `koanf:"policy" json:"policy" yaml:"policy" validate:"required,oneof=autocommit single perevent"`

	// BatchSize is the demand requested per round by batched consumers.
	BatchSize int64 `koanf:"batchsize" json:"batchsize" yaml:"batchsize" validate:"min=1"`

	// StatementTimeout bounds a single statement; zero disables it.
	StatementTimeout time.Duration `koanf:"statementtimeout" json:"statementtimeout" yaml:"statementtimeout"`

	// SlowThreshold marks executions that take longer as slow in logs.
	SlowThreshold time.Duration `koanf:"slowthreshold" json:"slowthreshold" yaml:"slowthreshold"`
}

// ObservabilityConfig selects where execution traces and metrics are exported.
// The endpoint "stdout" pretty-prints to standard output; anything else is an
// OTLP collector address in host:port form.
type ObservabilityConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Version string `koanf:"version" json:"version" yaml:"version"`

	Trace   TraceConfig   `koanf:"trace" json:"trace" yaml:"trace"`
	Metrics MetricsConfig `koanf:"metrics" json:"metrics" yaml:"metrics"`
}

// TraceConfig configures span export.
type TraceConfig struct {
	Enabled      bool              `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint     string            `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Protocol     string            `koanf:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=http grpc"`
	Insecure     bool              `koanf:"insecure" json:"insecure" yaml:"insecure"`
	Headers      map[string]string `koanf:"headers" json:"-" yaml:"headers"`
	SampleRate   float64           `koanf:"samplerate" json:"samplerate" yaml:"samplerate" validate:"min=0,max=1"`
	BatchTimeout time.Duration     `koanf:"batchtimeout" json:"batchtimeout" yaml:"batchtimeout"`
}

// MetricsConfig configures metric export.
type MetricsConfig struct {
	Enabled  bool              `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Endpoint string            `koanf:"endpoint" json:"endpoint" yaml:"endpoint"`
	Protocol string            `koanf:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=http grpc"`
	Insecure bool              `koanf:"insecure" json:"insecure" yaml:"insecure"`
	Headers  map[string]string `koanf:"headers" json:"-" yaml:"headers"`
	Interval time.Duration     `koanf:"interval" json:"interval" yaml:"interval"`
}
