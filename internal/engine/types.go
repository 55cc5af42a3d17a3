package engine

import (
	"context"
	"time"

	"github.com/avermeer/tempo/internal/trigger"
)

// JobDefinition describes a registered background job: what to run, when to
// run it, and the policies around concurrency and missed fires. The engine
// owns the in-memory definition; the store holds a durable mirror.
type JobDefinition struct {
	ID               string         `json:"job_id"`
	Name             string         `json:"name"`
	Kind             string         `json:"job_kind"`
	Trigger          trigger.Spec   `json:"trigger"`
	MaxInstances     int            `json:"max_instances"`
	Coalesce         bool           `json:"coalesce"`
	MisfireGraceTime time.Duration  `json:"misfire_grace_time"`
	MaxRetries       *int           `json:"max_retries,omitempty"` // nil = engine default
	Enabled          bool           `json:"enabled"`
	Args             []any          `json:"args,omitempty"`
	Kwargs           map[string]any `json:"kwargs,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Result is what a job body returns. Bodies signal failure through
// Success=false (or an error return); the wrapper converts panics and errors
// into the same shape.
type Result struct {
	Success        bool           `json:"success"`
	ItemsProcessed int            `json:"items_processed"`
	Errors         []string       `json:"errors,omitempty"`
	Warnings       []string       `json:"warnings,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// JobFunc is a job body registered under a job kind. The context carries the
// per-run timeout; args, kwargs and metadata come from the job definition.
type JobFunc func(ctx context.Context, args []any, kwargs, metadata map[string]any) (Result, error)

// ExecutionStatus is the lifecycle of one run attempt
type ExecutionStatus string

const (
	StatusRunning   ExecutionStatus = "running"
	StatusCompleted ExecutionStatus = "completed"
	StatusFailed    ExecutionStatus = "failed"
)

// ExecutionRecord captures one run attempt, retries included. Immutable once
// CompletedAt is set.
type ExecutionRecord struct {
	JobID           string          `json:"job_id"`
	ExecutionID     string          `json:"execution_id"`
	Status          ExecutionStatus `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	DurationSeconds *float64        `json:"duration_seconds,omitempty"`
	ItemsProcessed  int             `json:"items_processed"`
	Errors          []string        `json:"errors,omitempty"`
	Warnings        []string        `json:"warnings,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
}

// JobState is the engine's per-job scheduling state
type JobState string

const (
	StateIdle           JobState = "idle"
	StateScheduled      JobState = "scheduled"
	StateDeferred       JobState = "deferred"
	StateRunning        JobState = "running"
	StateRetryScheduled JobState = "retry_scheduled"
	StatePaused         JobState = "paused"
)

// JobStatus is the outward view of a job used by the facade and the API layer
type JobStatus struct {
	Definition  JobDefinition `json:"definition"`
	State       JobState      `json:"state"`
	NextRunTime *time.Time    `json:"next_run_time,omitempty"`
	InFlight    int           `json:"in_flight"`
	RetryCount  int           `json:"retry_count"`
}
