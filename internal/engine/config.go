package engine

import (
	"fmt"
	"time"
)

// Config defines the execution engine's scheduling and retry behavior
type Config struct {
	// Timezone calendar triggers are evaluated in. Empty means local time.
	Timezone string `toml:"timezone" env:"TEMPO_TIMEZONE"`

	// Bounded worker pool size for job bodies
	ThreadPoolSize int `toml:"thread_pool_size" env:"TEMPO_THREAD_POOL_SIZE"`

	// Retry defaults, overridable per job
	DefaultMaxRetries      int           `toml:"default_max_retries"`
	DefaultRetryDelay      time.Duration `toml:"default_retry_delay"`
	RetryBackoffMultiplier float64       `toml:"retry_backoff_multiplier"`

	// Per-run timeout for job bodies
	DefaultJobTimeout time.Duration `toml:"default_job_timeout"`

	// Grace time applied to jobs that do not set their own
	DefaultMisfireGrace time.Duration `toml:"default_misfire_grace"`

	// Main loop iteration interval
	LoopInterval time.Duration `toml:"loop_interval"`

	// How long to push a fire out when the resource gate refuses admission
	DeferralDelay time.Duration `toml:"deferral_delay"`

	// How many finished execution records the history writer may queue
	HistoryBufferSize int `toml:"history_buffer_size"`
}

// DefaultConfig returns engine defaults suitable for a single-node
// aggregation service.
func DefaultConfig() Config {
	return Config{
		Timezone:               "",
		ThreadPoolSize:         10,
		DefaultMaxRetries:      3,
		DefaultRetryDelay:      60 * time.Second,
		RetryBackoffMultiplier: 2.0,
		DefaultJobTimeout:      30 * time.Minute,
		DefaultMisfireGrace:    time.Minute,
		LoopInterval:           time.Second,
		DeferralDelay:          5 * time.Minute,
		HistoryBufferSize:      1024,
	}
}

// validateConfig validates engine configuration and returns error if invalid
func validateConfig(config Config) error {
	if config.ThreadPoolSize <= 0 {
		return fmt.Errorf("ThreadPoolSize must be positive, got %d", config.ThreadPoolSize)
	}

	if config.DefaultMaxRetries < 0 {
		return fmt.Errorf("DefaultMaxRetries must be non-negative, got %d", config.DefaultMaxRetries)
	}

	if config.DefaultRetryDelay <= 0 {
		return fmt.Errorf("DefaultRetryDelay must be positive, got %v", config.DefaultRetryDelay)
	}

	if config.RetryBackoffMultiplier < 1 {
		return fmt.Errorf("RetryBackoffMultiplier must be at least 1, got %v", config.RetryBackoffMultiplier)
	}

	if config.DefaultJobTimeout <= 0 {
		return fmt.Errorf("DefaultJobTimeout must be positive, got %v", config.DefaultJobTimeout)
	}

	if config.LoopInterval <= 0 {
		return fmt.Errorf("LoopInterval must be positive, got %v", config.LoopInterval)
	}

	if config.DeferralDelay <= 0 {
		return fmt.Errorf("DeferralDelay must be positive, got %v", config.DeferralDelay)
	}

	if config.HistoryBufferSize <= 0 {
		return fmt.Errorf("HistoryBufferSize must be positive, got %d", config.HistoryBufferSize)
	}

	if config.Timezone != "" {
		if _, err := time.LoadLocation(config.Timezone); err != nil {
			return fmt.Errorf("invalid Timezone %q: %w", config.Timezone, err)
		}
	}

	return nil
}
