package config

import (
	"fmt"
	"path"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
// Call Resolve first so DSN-derived fields are populated.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateDatabase("master", &c.Master)...)
	errors = append(errors, c.validateDatabase("slave", &c.Slave)...)
	errors = append(errors, c.validateSync()...)
	errors = append(errors, c.validateVerification()...)
	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if db.Driver == "" {
		return ValidationErrors{{
			Field:   prefix + ".dsn",
			Message: "dsn is required",
		}}
	}

	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".database",
			Message: "database name is required",
		})
	}

	if db.IsNetworked() {
		if db.Host == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".host",
				Message: "host is required",
			})
		}

		if db.Port <= 0 || db.Port > 65535 {
			errors = append(errors, ValidationError{
				Field:   prefix + ".port",
				Message: "port must be between 1 and 65535",
			})
		}

		if db.User == "" {
			errors = append(errors, ValidationError{
				Field:   prefix + ".user",
				Message: "user is required",
			})
		}
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateSync() ValidationErrors {
	var errors ValidationErrors
	s := c.Sync

	if s.Limit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.limit",
			Message: "limit must be positive",
		})
	}

	if s.Workers <= 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.workers",
			Message: "workers must be positive",
		})
	}

	if s.SleepSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.sleep_seconds",
			Message: "sleep_seconds cannot be negative",
		})
	}

	if s.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.max_retries",
			Message: "max_retries cannot be negative",
		})
	}

	if s.RetryBackoffSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.retry_backoff_seconds",
			Message: "retry_backoff_seconds cannot be negative",
		})
	}

	if s.QueryTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.query_timeout_seconds",
			Message: "query_timeout_seconds cannot be negative",
		})
	}

	if s.MaxBatchesPerTable < 0 {
		errors = append(errors, ValidationError{
			Field:   "sync.max_batches_per_table",
			Message: "max_batches_per_table cannot be negative",
		})
	}

	if strings.TrimSpace(s.CheckpointTable) == "" {
		errors = append(errors, ValidationError{
			Field:   "sync.checkpoint_table",
			Message: "checkpoint_table is required",
		})
	}

	for i, p := range s.Include {
		if _, err := path.Match(p, ""); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("sync.include[%d]", i),
				Message: fmt.Sprintf("invalid pattern %q", p),
			})
		}
	}
	for i, p := range s.Exclude {
		if _, err := path.Match(p, ""); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("sync.exclude[%d]", i),
				Message: fmt.Sprintf("invalid pattern %q", p),
			})
		}
	}

	return errors
}

func (c *Config) validateVerification() ValidationErrors {
	var errors ValidationErrors

	validMethods := map[string]bool{"count": true, "sha256": true, "": true}
	if !validMethods[c.Verification.Method] {
		errors = append(errors, ValidationError{
			Field:   "verification.method",
			Message: "method must be 'count' or 'sha256'",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
