package scheduler

import (
	"fmt"
	"time"
)

// Config holds facade-level settings. Engine tuning lives in the engine's own
// config section.
type Config struct {
	// Enabled gates the whole scheduler; when false Start is a no-op and the
	// hosting process runs without background scheduling.
	Enabled bool `toml:"enabled"`

	// ShutdownTimeout bounds how long Stop(wait=true) waits for in-flight
	// executions before abandoning them.
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`

	// BackupOnShutdown, when set, writes a job definition backup to this path
	// during graceful shutdown.
	BackupOnShutdown string `toml:"backup_on_shutdown"`
}

// DefaultConfig returns facade settings matching a single-node deployment
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		ShutdownTimeout: 30 * time.Second,
	}
}

func validateConfig(config Config) error {
	if config.ShutdownTimeout <= 0 {
		return fmt.Errorf("scheduler shutdown_timeout must be positive")
	}
	return nil
}
