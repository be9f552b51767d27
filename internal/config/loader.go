package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the specified file path.
// An empty path returns the defaults; endpoints then come from CLI flags.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		cfg := DefaultConfig()
		substituteEnvVars(cfg)
		return cfg, nil
	}

	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("failed to read config file: %w", err)}
	}

	return LoadFromViper(v)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("failed to unmarshal config: %w", err)}
	}

	substituteEnvVars(cfg)

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(cfg *Config) {
	for _, db := range []*DatabaseConfig{&cfg.Master, &cfg.Slave} {
		db.DSN = expandEnvVar(db.DSN)
		db.Host = expandEnvVar(db.Host)
		db.User = expandEnvVar(db.User)
		db.Password = expandEnvVar(db.Password)
		db.Database = expandEnvVar(db.Database)
	}

	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
// Unset variables are left as written.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// Overrides holds CLI flag values that take precedence over the file.
// Zero values leave the file setting alone.
type Overrides struct {
	MasterDSN string
	SlaveDSN  string
	Limit     int
	Workers   int
	LogLevel  string
	LogFormat string
	NoLock    bool
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.MasterDSN != "" {
		c.Master.DSN = o.MasterDSN
	}
	if o.SlaveDSN != "" {
		c.Slave.DSN = o.SlaveDSN
	}
	if o.Limit > 0 {
		c.Sync.Limit = o.Limit
	}
	if o.Workers > 0 {
		c.Sync.Workers = o.Workers
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	if o.NoLock {
		c.Sync.Lock = false
	}
}

// Prepare resolves DSNs and validates the result. Every failure is a
// *ConfigurationError.
func (c *Config) Prepare() error {
	if err := c.Resolve(); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}
