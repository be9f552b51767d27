// Package config provides configuration structures and loading for tablesync.
package config

import (
	"path"
	"time"
)

// Supported database drivers. DSN schemes are normalized to one of these.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DefaultCheckpointTable is the name of the sync state table on the target.
const DefaultCheckpointTable = "mysql_sync_runtime"

// Config represents the complete application configuration.
type Config struct {
	Master       DatabaseConfig     `yaml:"master" mapstructure:"master"`
	Slave        DatabaseConfig     `yaml:"slave" mapstructure:"slave"`
	Sync         SyncConfig         `yaml:"sync" mapstructure:"sync"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// DatabaseConfig represents one endpoint of the replication.
// When DSN is set, Resolve fills the connection fields from it.
type DatabaseConfig struct {
	DSN                string            `yaml:"dsn" mapstructure:"dsn"`
	Driver             string            `yaml:"driver" mapstructure:"driver"`
	Host               string            `yaml:"host" mapstructure:"host"`
	Port               int               `yaml:"port" mapstructure:"port"`
	User               string            `yaml:"user" mapstructure:"user"`
	Password           string            `yaml:"password" mapstructure:"password"`
	Database           string            `yaml:"database" mapstructure:"database"`
	Charset            string            `yaml:"charset" mapstructure:"charset"`
	Params             map[string]string `yaml:"params" mapstructure:"params"`
	TLS                string            `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int               `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int               `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// SyncConfig represents replication settings.
type SyncConfig struct {
	Limit                   int      `yaml:"limit" mapstructure:"limit"`
	Workers                 int      `yaml:"workers" mapstructure:"workers"`
	SleepSeconds            float64  `yaml:"sleep_seconds" mapstructure:"sleep_seconds"`
	MaxRetries              int      `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoffSeconds     float64  `yaml:"retry_backoff_seconds" mapstructure:"retry_backoff_seconds"`
	QueryTimeoutSeconds     int      `yaml:"query_timeout_seconds" mapstructure:"query_timeout_seconds"`
	MaxBatchesPerTable      int      `yaml:"max_batches_per_table" mapstructure:"max_batches_per_table"`
	CheckpointTable         string   `yaml:"checkpoint_table" mapstructure:"checkpoint_table"`
	DisableForeignKeyChecks bool     `yaml:"disable_foreign_key_checks" mapstructure:"disable_foreign_key_checks"`
	Lock                    bool     `yaml:"lock" mapstructure:"lock"`
	Include                 []string `yaml:"include" mapstructure:"include"`
	Exclude                 []string `yaml:"exclude" mapstructure:"exclude"`
}

// VerificationConfig represents post-sync verification settings.
type VerificationConfig struct {
	Method string `yaml:"method" mapstructure:"method"` // "count" or "sha256"
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Master: DatabaseConfig{
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Slave: DatabaseConfig{
			TLS:                "preferred",
			MaxConnections:     10,
			MaxIdleConnections: 5,
		},
		Sync: SyncConfig{
			Limit:               5000,
			Workers:             1,
			MaxRetries:          3,
			RetryBackoffSeconds: 1,
			QueryTimeoutSeconds: 60,
			CheckpointTable:     DefaultCheckpointTable,
			Lock:                true,
		},
		Verification: VerificationConfig{
			Method: "count",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// QueryTimeout returns the per-statement deadline. Zero disables it.
func (s SyncConfig) QueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutSeconds) * time.Second
}

// RetryBackoff returns the initial delay between retry attempts.
func (s SyncConfig) RetryBackoff() time.Duration {
	return time.Duration(s.RetryBackoffSeconds * float64(time.Second))
}

// Sleep returns the pause between batches.
func (s SyncConfig) Sleep() time.Duration {
	return time.Duration(s.SleepSeconds * float64(time.Second))
}

// Selects reports whether a table passes the include/exclude filters.
// An empty include list selects every table; exclude wins over include.
// Patterns use path.Match syntax.
func (s SyncConfig) Selects(table string) bool {
	for _, p := range s.Exclude {
		if ok, _ := path.Match(p, table); ok {
			return false
		}
	}
	if len(s.Include) == 0 {
		return true
	}
	for _, p := range s.Include {
		if ok, _ := path.Match(p, table); ok {
			return true
		}
	}
	return false
}

// IsNetworked reports whether the driver connects over the network and
// therefore needs host, port and credentials.
func (d *DatabaseConfig) IsNetworked() bool {
	return d.Driver != DriverSQLite
}
