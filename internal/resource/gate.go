package resource

import (
	"fmt"
	"log/slog"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is an on-demand sample of host load. Never stored.
type Snapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
}

// Sampler reads host CPU and memory. The production sampler uses gopsutil;
// tests inject fixed readings.
type Sampler interface {
	Sample() (Snapshot, error)
}

// Config holds admission thresholds
type Config struct {
	MaxCPUPercent float64 `toml:"max_cpu_percent" env:"TEMPO_MAX_CPU_PERCENT"`
	MaxMemoryMB   float64 `toml:"max_memory_mb" env:"TEMPO_MAX_MEMORY_MB"`
}

// DefaultConfig returns conservative admission thresholds
func DefaultConfig() Config {
	return Config{
		MaxCPUPercent: 85.0,
		MaxMemoryMB:   4096.0,
	}
}

// Gate decides whether new work may be admitted based on sampled host load.
// Rejection is a deferral, never a failure: callers reschedule rather than
// recording a failed run.
type Gate struct {
	config  Config
	sampler Sampler
	logger  *slog.Logger
}

// NewGate creates a gate backed by the host sampler
func NewGate(config Config, logger *slog.Logger) *Gate {
	return NewGateWithSampler(config, hostSampler{}, logger)
}

// NewGateWithSampler creates a gate with a custom sampler, used by tests
func NewGateWithSampler(config Config, sampler Sampler, logger *slog.Logger) *Gate {
	return &Gate{
		config:  config,
		sampler: sampler,
		logger:  logger,
	}
}

// Admit samples host load and reports whether new work may start. A sampling
// failure fails safe: not admitted.
func (g *Gate) Admit() bool {
	snap, err := g.sampler.Sample()
	if err != nil {
		g.logger.Warn("resource sampling failed, refusing admission", "error", err)
		return false
	}

	if snap.CPUPercent > g.config.MaxCPUPercent {
		g.logger.Info("admission refused: cpu above threshold",
			"cpu_percent", snap.CPUPercent,
			"max_cpu_percent", g.config.MaxCPUPercent)
		return false
	}

	if snap.MemoryUsedMB > g.config.MaxMemoryMB {
		g.logger.Info("admission refused: memory above threshold",
			"memory_used_mb", snap.MemoryUsedMB,
			"max_memory_mb", g.config.MaxMemoryMB)
		return false
	}

	return true
}

// Snapshot returns the current host load sample
func (g *Gate) Snapshot() (Snapshot, error) {
	return g.sampler.Sample()
}

// hostSampler reads real host load via gopsutil
type hostSampler struct{}

func (hostSampler) Sample() (Snapshot, error) {
	// A zero interval compares against the previous call instead of blocking.
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to sample cpu: %w", err)
	}
	if len(percents) == 0 {
		return Snapshot{}, fmt.Errorf("cpu sample returned no values")
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to sample memory: %w", err)
	}

	return Snapshot{
		CPUPercent:    percents[0],
		MemoryUsedMB:  float64(vm.Used) / 1024 / 1024,
		MemoryTotalMB: float64(vm.Total) / 1024 / 1024,
	}, nil
}
