// Package config loads sqlflow configuration from defaults, YAML files and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SQLFLOW_"

// Environment names accepted in app.env.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Options controls where Load looks for configuration.
type Options struct {
	// Dir is the directory holding config.yaml and config.<env>.yaml.
	Dir string
	// Environ replaces os.Environ, mainly for tests.
	Environ func() []string
	// Inline is YAML applied over the files and under the environment,
	// e.g. an embedded config.
	Inline []byte
}

// Load reads configuration with the following priority, highest first:
// environment variables, inline YAML, config.<env>.yaml, config.yaml, defaults.
// Missing YAML files are ignored; malformed ones are errors.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if err := loadOptionalFile(k, joinPath(opts.Dir, "config.yaml")); err != nil {
		return nil, err
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}

	// app.env may itself come from the environment, so peek at it first.
	envName := k.String("app.env")
	for _, kv := range environ() {
		if v, ok := strings.CutPrefix(kv, EnvPrefix+"APP_ENV="); ok {
			envName = v
		}
	}
	if envName != "" {
		if err := loadOptionalFile(k, joinPath(opts.Dir, fmt.Sprintf("config.%s.yaml", envName))); err != nil {
			return nil, err
		}
	}

	if len(opts.Inline) > 0 {
		if err := k.Load(rawbytes.Provider(opts.Inline), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load inline config: %w", err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.TrimPrefix(key, EnvPrefix)
			return strings.ReplaceAll(strings.ToLower(key), "_", "."), value
		},
		EnvironFunc: environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.k = k

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name": "sqlflow",
		"app.env":  EnvDevelopment,

		"log.level":  "info",
		"log.pretty": false,

		// No database defaults: a provider is only built when explicitly configured.
		"database.pool.max.connections":  25,
		"database.pool.idle.connections": 2,
		"database.pool.idle.time":        "5m",
		"database.pool.lifetime.max":     "30m",

		"execution.policy":           "autocommit",
		"execution.batchsize":        64,
		"execution.statementtimeout": "0s",
		"execution.slowthreshold":    "200ms",

		"observability.enabled":            false,
		"observability.version":            "unknown",
		"observability.trace.enabled":      true,
		"observability.trace.endpoint":     "stdout",
		"observability.trace.protocol":     "http",
		"observability.trace.samplerate":   1.0,
		"observability.trace.batchtimeout": "5s",
		"observability.metrics.enabled":    true,
		"observability.metrics.endpoint":   "stdout",
		"observability.metrics.protocol":   "http",
		"observability.metrics.interval":   "10s",
	}

	return k.Load(confmap.Provider(defaults, "."), nil)
}

func loadOptionalFile(k *koanf.Koanf, path string) error {
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimSuffix(dir, "/") + "/" + name
}

// String returns a raw value by dotted key, for settings not modelled in Config.
func (c *Config) String(key string) string {
	if c == nil || c.k == nil {
		return ""
	}
	return c.k.String(key)
}
