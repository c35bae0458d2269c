package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Supported database types.
const (
	PostgreSQL = "postgresql"
	Oracle     = "oracle"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			return name
		})
	})
	return validate
}

// Validate checks struct tags first, then the cross-field database rules.
func Validate(cfg *Config) error {
	if err := structValidator().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return toConfigError(verrs[0])
		}
		return err
	}

	if IsDatabaseConfigured(&cfg.Database) {
		if err := validateDatabase(&cfg.Database); err != nil {
			return fmt.Errorf("database config: %w", err)
		}
	}
	return nil
}

// IsDatabaseConfigured reports whether any connection setting was provided.
func IsDatabaseConfigured(cfg *DatabaseConfig) bool {
	return cfg.Type != "" || cfg.Host != "" || cfg.ConnectionString != ""
}

func validateDatabase(cfg *DatabaseConfig) error {
	if cfg.Type == "" {
		return NewMissingFieldError("database.type")
	}
	if cfg.ConnectionString != "" {
		return nil
	}
	if cfg.Host == "" {
		return NewMissingFieldError("database.host")
	}
	if cfg.Port == 0 {
		return NewMissingFieldError("database.port")
	}
	if cfg.Type == Oracle {
		if cfg.ServiceName == "" && cfg.SID == "" && cfg.Database == "" {
			return NewMissingFieldError("database.servicename")
		}
		return nil
	}
	if cfg.Database == "" {
		return NewMissingFieldError("database.database")
	}
	return nil
}

func toConfigError(fe validator.FieldError) *ConfigError {
	field := strings.ToLower(strings.TrimPrefix(fe.Namespace(), "Config."))
	switch fe.Tag() {
	case "required":
		return NewMissingFieldError(field)
	case "oneof":
		return NewInvalidFieldError(field, fmt.Sprintf("invalid value %q", fmt.Sprint(fe.Value())), strings.Fields(fe.Param()))
	default:
		return NewInvalidFieldError(field, fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param()), nil)
	}
}
