// Package cli provides the configuration and exit errors of the linkql
// command.
package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const maxWalkDepth = 25

// Config is the configuration of the linkql command, read from
// linkql.yaml, LINKQL_* environment variables and flags.
type Config struct {
	Schema   string         `mapstructure:"schema"`
	ReadOnly bool           `mapstructure:"read_only"` // Deny inserts, updates and deletes.
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Cache    CacheConfig    `mapstructure:"cache"`
}

// DatabaseConfig holds the database connection settings.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	DSN        string `mapstructure:"dsn"`
	Concurrent bool   `mapstructure:"concurrent"`
}

// LogConfig holds the logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Debug  bool   `mapstructure:"debug"` // Log every statement.
	// Statements slower than the threshold are logged at warn level.
	// Zero disables the check.
	SlowThreshold time.Duration `mapstructure:"slow_threshold"`
}

// CacheConfig holds the response cache settings.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// LoadConfig loads the configuration with the precedence
// env > config file > defaults. Flags are applied by the caller.
//
// It returns the config and the path of the config file, empty if none
// was found.
func LoadConfig(explicitPath string) (*Config, string, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("LINKQL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, err := findConfigFile(explicitPath)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, path, fmt.Errorf("reading config file: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, path, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, path, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("schema", "schema.yaml")
	v.SetDefault("read_only", false)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.concurrent", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.slow_threshold", 0)
	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", time.Minute)
}

// findConfigFile returns the explicit path if it exists. Otherwise it
// walks up from the working directory looking for linkql.yaml or
// linkql.yml, stopping at a .git directory.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	for range maxWalkDepth {
		for _, name := range []string{"linkql.yaml", "linkql.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}

// Validate checks the settings needed to connect.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "postgres", "pgx", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	return errors.Join(errs...)
}
