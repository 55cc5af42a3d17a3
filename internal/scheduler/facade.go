package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/avermeer/tempo/internal/engine"
	"github.com/avermeer/tempo/internal/resource"
)

// ResourceProbe is the admission gate plus the snapshot accessor used for
// status reporting. *resource.Gate implements it.
type ResourceProbe interface {
	Admit() bool
	Snapshot() (resource.Snapshot, error)
}

// SystemStatus is the aggregate view returned to operators
type SystemStatus struct {
	Running     bool                    `json:"running"`
	TotalJobs   int                     `json:"total_jobs"`
	EnabledJobs int                     `json:"enabled_jobs"`
	Resource    *resource.Snapshot      `json:"resource,omitempty"`
	Stats       map[string]engine.Stats `json:"stats"`
}

// Facade is the outward scheduling API. It owns the engine lifecycle and adds
// the operations that don't belong inside the scheduling loop: bulk
// registration, backup and restore, and aggregate status.
type Facade struct {
	config Config
	engine *engine.Engine
	probe  ResourceProbe
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a facade and the engine under it with validated configuration
func New(config Config, engineConfig engine.Config, store engine.Store, probe ResourceProbe, registry *engine.Registry, logger *slog.Logger) (*Facade, error) {
	// 1. Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	// 2. Create the engine
	eng, err := engine.New(engineConfig, store, probe, registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution engine: %w", err)
	}

	return &Facade{
		config: config,
		engine: eng,
		probe:  probe,
		logger: logger,
	}, nil
}

// Engine exposes the underlying engine for callers that need its full API
func (f *Facade) Engine() *engine.Engine {
	return f.engine
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start hydrates persisted jobs and launches the scheduling loop. A disabled
// scheduler starts nothing and logs why.
func (f *Facade) Start() error {
	if !f.config.Enabled {
		f.logger.Info("scheduler disabled, not starting")
		return nil
	}

	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = true
	f.mu.Unlock()

	loaded, err := f.engine.LoadFromStore()
	if err != nil {
		return fmt.Errorf("failed to hydrate jobs from store: %w", err)
	}
	f.logger.Info("scheduler starting", "jobs_loaded", loaded)

	f.engine.Start()
	return nil
}

// Stop shuts the engine down. With wait=true in-flight executions get the
// configured shutdown timeout to finish.
func (f *Facade) Stop(wait bool) {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.mu.Unlock()

	if f.config.BackupOnShutdown != "" {
		if err := f.Backup(f.config.BackupOnShutdown); err != nil {
			f.logger.Error("shutdown backup failed",
				"path", f.config.BackupOnShutdown,
				"error", err)
		}
	}

	f.engine.Stop(wait, f.config.ShutdownTimeout)
}

// Run starts the scheduler and blocks until the context is cancelled or the
// process receives SIGINT/SIGTERM, then stops gracefully.
func (f *Facade) Run(ctx context.Context) error {
	if err := f.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		f.logger.Info("context cancelled, shutting down")
	case sig := <-sigChan:
		f.logger.Info("signal received, shutting down", "signal", sig.String())
	}

	f.Stop(true)
	return nil
}

// Running reports whether the scheduling loop is active
func (f *Facade) Running() bool {
	return f.engine.Running()
}

// =============================================================================
// Registration
// =============================================================================

// AddJob registers one job definition
func (f *Facade) AddJob(def engine.JobDefinition, replace bool) error {
	return f.engine.AddJob(def, replace)
}

// RegisterJobs registers a batch of definitions, typically the config's
// initial job list. A bad definition is logged and skipped; the rest still
// register. Returns the number registered.
func (f *Facade) RegisterJobs(defs []engine.JobDefinition) int {
	registered := 0
	for _, def := range defs {
		if err := f.engine.AddJob(def, true); err != nil {
			f.logger.Error("failed to register job, skipping",
				"job_id", def.ID,
				"error", err)
			continue
		}
		registered++
	}
	return registered
}

// RemoveJob removes a job and cancels any pending fire
func (f *Facade) RemoveJob(jobID string) error {
	return f.engine.RemoveJob(jobID)
}

// PauseJob disables a job without removing it
func (f *Facade) PauseJob(jobID string) error {
	return f.engine.PauseJob(jobID)
}

// ResumeJob re-enables a paused job
func (f *Facade) ResumeJob(jobID string) error {
	return f.engine.ResumeJob(jobID)
}

// TriggerJob fires a job immediately, outside its regular schedule
func (f *Facade) TriggerJob(jobID string) error {
	return f.engine.TriggerNow(jobID)
}

// =============================================================================
// Introspection
// =============================================================================

// ListJobs returns the status of every registered job
func (f *Facade) ListJobs() []engine.JobStatus {
	return f.engine.Jobs()
}

// GetJob returns one job's status
func (f *Facade) GetJob(jobID string) (engine.JobStatus, error) {
	return f.engine.Job(jobID)
}

// GetStats returns one job's execution stats
func (f *Facade) GetStats(jobID string) (engine.Stats, bool) {
	return f.engine.StatsFor(jobID)
}

// SystemStatus returns the aggregate operator view. A resource sampling
// failure leaves the snapshot nil rather than failing the whole status call.
func (f *Facade) SystemStatus() SystemStatus {
	jobs := f.engine.Jobs()

	status := SystemStatus{
		Running:   f.engine.Running(),
		TotalJobs: len(jobs),
		Stats:     f.engine.AllStats(),
	}
	for _, job := range jobs {
		if job.Definition.Enabled {
			status.EnabledJobs++
		}
	}

	snap, err := f.probe.Snapshot()
	if err != nil {
		f.logger.Warn("resource snapshot unavailable", "error", err)
	} else {
		status.Resource = &snap
	}

	return status
}
