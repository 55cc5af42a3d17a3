package engine

import (
	"sync"
	"time"
)

// Stats holds per-job rolling execution counters. Counters only ever grow;
// rates and averages are derived on read.
type Stats struct {
	TotalExecutions      int            `json:"total_executions"`
	SuccessfulExecutions int            `json:"successful_executions"`
	FailedExecutions     int            `json:"failed_executions"`
	TotalExecutionTime   time.Duration  `json:"total_execution_time"`
	LastExecutionTime    *time.Time     `json:"last_execution_time,omitempty"`
	LastSuccessTime      *time.Time     `json:"last_success_time,omitempty"`
	LastFailureTime      *time.Time     `json:"last_failure_time,omitempty"`
}

// AverageExecutionTime returns the mean run duration, zero before any runs
func (s Stats) AverageExecutionTime() time.Duration {
	if s.TotalExecutions == 0 {
		return 0
	}
	return s.TotalExecutionTime / time.Duration(s.TotalExecutions)
}

// FailureRate returns the fraction of runs that failed, zero before any runs
func (s Stats) FailureRate() float64 {
	if s.TotalExecutions == 0 {
		return 0
	}
	return float64(s.FailedExecutions) / float64(s.TotalExecutions)
}

// StatsTracker aggregates completed execution records per job. Mutated both
// by worker completions and read by status calls, so everything goes through
// one mutex.
type StatsTracker struct {
	mu    sync.Mutex
	byJob map[string]*Stats
}

// NewStatsTracker creates an empty tracker
func NewStatsTracker() *StatsTracker {
	return &StatsTracker{
		byJob: make(map[string]*Stats),
	}
}

// Record folds one completed execution record into the job's stats. Called
// exactly once per finalized record.
func (t *StatsTracker) Record(rec ExecutionRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byJob[rec.JobID]
	if !ok {
		s = &Stats{}
		t.byJob[rec.JobID] = s
	}

	s.TotalExecutions++
	if rec.DurationSeconds != nil {
		s.TotalExecutionTime += time.Duration(*rec.DurationSeconds * float64(time.Second))
	}

	completed := rec.StartedAt
	if rec.CompletedAt != nil {
		completed = *rec.CompletedAt
	}
	s.LastExecutionTime = &completed

	if rec.Status == StatusCompleted {
		s.SuccessfulExecutions++
		s.LastSuccessTime = &completed
	} else {
		s.FailedExecutions++
		s.LastFailureTime = &completed
	}
}

// StatsFor returns a copy of the job's stats
func (t *StatsTracker) StatsFor(jobID string) (Stats, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byJob[jobID]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

// All returns a copy of every job's stats
func (t *StatsTracker) All() map[string]Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Stats, len(t.byJob))
	for id, s := range t.byJob {
		out[id] = *s
	}
	return out
}

// Remove drops stats for a removed job
func (t *StatsTracker) Remove(jobID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byJob, jobID)
}
