package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/avermeer/tempo/internal/db"
	"github.com/avermeer/tempo/internal/engine"
	"github.com/avermeer/tempo/internal/resource"
	"github.com/avermeer/tempo/internal/scheduler"
	"github.com/avermeer/tempo/internal/trigger"
)

// Config represents the application configuration
type Config struct {
	Database  db.Config        `toml:"database"`
	Engine    engine.Config    `toml:"engine"`
	Resource  resource.Config  `toml:"resource"`
	Scheduler scheduler.Config `toml:"scheduler"`
	Logging   LoggingConfig    `toml:"logging"`

	// Jobs is the initial job list registered at startup. A bad entry is
	// logged and skipped; it never blocks the rest.
	Jobs []JobConfig `toml:"jobs"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level" env:"TEMPO_LOG_LEVEL"`
	Format string `toml:"format" env:"TEMPO_LOG_FORMAT"`
}

// JobConfig is one [[jobs]] entry in the config file
type JobConfig struct {
	ID               string         `toml:"id"`
	Name             string         `toml:"name"`
	Kind             string         `toml:"kind"`
	Schedule         trigger.Spec   `toml:"schedule"`
	MaxInstances     int            `toml:"max_instances"`
	Coalesce         bool           `toml:"coalesce"`
	MisfireGraceTime time.Duration  `toml:"misfire_grace_time"`
	MaxRetries       *int           `toml:"max_retries"`
	Disabled         bool           `toml:"disabled"`
	Args             []any          `toml:"args"`
	Kwargs           map[string]any `toml:"kwargs"`
	Metadata         map[string]any `toml:"metadata"`
}

// Definition converts a config entry into the engine's job definition
func (j JobConfig) Definition() engine.JobDefinition {
	return engine.JobDefinition{
		ID:               j.ID,
		Name:             j.Name,
		Kind:             j.Kind,
		Trigger:          j.Schedule,
		MaxInstances:     j.MaxInstances,
		Coalesce:         j.Coalesce,
		MisfireGraceTime: j.MisfireGraceTime,
		MaxRetries:       j.MaxRetries,
		Enabled:          !j.Disabled,
		Args:             j.Args,
		Kwargs:           j.Kwargs,
		Metadata:         j.Metadata,
	}
}

// JobDefinitions converts the whole initial job list
func (c *Config) JobDefinitions() []engine.JobDefinition {
	defs := make([]engine.JobDefinition, 0, len(c.Jobs))
	for _, j := range c.Jobs {
		defs = append(defs, j.Definition())
	}
	return defs
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: db.Config{
			Driver:          "sqlite3",
			DSN:             "tempo.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Engine:    engine.DefaultConfig(),
		Resource:  resource.DefaultConfig(),
		Scheduler: scheduler.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadFromFile loads configuration from a TOML file
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	// Parse TOML file
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file (if specified)
// 3. Environment variables
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	// Overlay config file when specified
	if configPath != "" {
		fileConfig, err := LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		config = fileConfig
	}

	// Overlay environment variables
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return config, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Database validation
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver must be specified")
	}
	if c.Database.Driver != "sqlite3" {
		return fmt.Errorf("unsupported database driver: %s (must be sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN must be specified")
	}

	// Engine validation
	if c.Engine.ThreadPoolSize <= 0 {
		return fmt.Errorf("engine thread_pool_size must be positive")
	}
	if c.Engine.LoopInterval <= 0 {
		return fmt.Errorf("engine loop_interval must be positive")
	}
	if c.Engine.RetryBackoffMultiplier < 1 {
		return fmt.Errorf("engine retry_backoff_multiplier must be at least 1")
	}

	// Resource validation
	if c.Resource.MaxCPUPercent <= 0 || c.Resource.MaxCPUPercent > 100 {
		return fmt.Errorf("resource max_cpu_percent must be between 0 and 100")
	}
	if c.Resource.MaxMemoryMB <= 0 {
		return fmt.Errorf("resource max_memory_mb must be positive")
	}

	// Scheduler validation
	if c.Scheduler.ShutdownTimeout <= 0 {
		return fmt.Errorf("scheduler shutdown_timeout must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	// Job list validation: duplicate ids in the file are a configuration
	// mistake worth failing fast on, before per-job registration runs.
	seen := make(map[string]bool, len(c.Jobs))
	for _, j := range c.Jobs {
		if j.ID == "" {
			return fmt.Errorf("job entry missing id")
		}
		if seen[j.ID] {
			return fmt.Errorf("duplicate job id in config: %s", j.ID)
		}
		seen[j.ID] = true
	}

	return nil
}

// SlogLevel maps the configured level string to a slog level. Call after
// Validate; an unknown level falls back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.Logging.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
