package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured marks an optional feature that was left unconfigured.
var ErrNotConfigured = errors.New("not configured")

// ConfigError is a configuration problem with an actionable message.
//
//nolint:revive // ConfigError reads better than Error at call sites.
type ConfigError struct {
	Category string // "missing", "invalid" or "not_configured"
	Field    string // dotted key, e.g. "database.host"
	Message  string
	Action   string
}

func (e *ConfigError) Error() string {
	parts := make([]string, 0, 4)
	if e.Category != "" {
		parts = append(parts, "config_"+e.Category+":")
	}
	for _, p := range []string{e.Field, e.Message, e.Action} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Is reports ErrNotConfigured for not_configured errors.
func (e *ConfigError) Is(target error) bool {
	return target == ErrNotConfigured && e.Category == "not_configured"
}

// NewMissingFieldError reports a required key.
func NewMissingFieldError(field string) *ConfigError {
	envVar := EnvPrefix + strings.ToUpper(strings.ReplaceAll(field, ".", "_"))
	return &ConfigError{
		Category: "missing",
		Field:    field,
		Message:  "required",
		Action:   fmt.Sprintf("set %s env var or add %s to config.yaml", envVar, field),
	}
}

// NewInvalidFieldError reports a value outside its allowed set.
func NewInvalidFieldError(field, message string, validOptions []string) *ConfigError {
	err := &ConfigError{Category: "invalid", Field: field, Message: message}
	if len(validOptions) > 0 {
		err.Action = "must be one of: " + strings.Join(validOptions, ", ")
	}
	return err
}

// NewNotConfiguredError reports an optional section that is absent.
func NewNotConfiguredError(field string) *ConfigError {
	return &ConfigError{
		Category: "not_configured",
		Field:    field,
		Message:  "(optional)",
		Action:   "to enable: add " + field + " to config.yaml",
	}
}
