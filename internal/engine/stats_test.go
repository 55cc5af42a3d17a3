package engine

import (
	"testing"
	"time"
)

func completedRecord(jobID string, success bool, started time.Time, duration time.Duration) ExecutionRecord {
	completed := started.Add(duration)
	secs := duration.Seconds()
	status := StatusCompleted
	if !success {
		status = StatusFailed
	}
	return ExecutionRecord{
		JobID:           jobID,
		ExecutionID:     "exec",
		Status:          status,
		StartedAt:       started,
		CompletedAt:     &completed,
		DurationSeconds: &secs,
	}
}

// TestStatsTracker_RecordsCounters verifies counter and timestamp updates.
func TestStatsTracker_RecordsCounters(t *testing.T) {
	tracker := NewStatsTracker()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	tracker.Record(completedRecord("job-1", true, base, 10*time.Second))
	tracker.Record(completedRecord("job-1", false, base.Add(time.Minute), 20*time.Second))

	s, ok := tracker.StatsFor("job-1")
	if !ok {
		t.Fatal("expected stats for job-1")
	}

	if s.TotalExecutions != 2 {
		t.Errorf("expected 2 total, got %d", s.TotalExecutions)
	}
	if s.SuccessfulExecutions != 1 || s.FailedExecutions != 1 {
		t.Errorf("expected 1/1 split, got %d/%d", s.SuccessfulExecutions, s.FailedExecutions)
	}
	if s.LastSuccessTime == nil || !s.LastSuccessTime.Equal(base.Add(10*time.Second)) {
		t.Errorf("unexpected last success time: %v", s.LastSuccessTime)
	}
	if s.LastFailureTime == nil || !s.LastFailureTime.Equal(base.Add(time.Minute+20*time.Second)) {
		t.Errorf("unexpected last failure time: %v", s.LastFailureTime)
	}
	if s.LastExecutionTime == nil || !s.LastExecutionTime.Equal(*s.LastFailureTime) {
		t.Errorf("unexpected last execution time: %v", s.LastExecutionTime)
	}
}

// TestStats_DerivedFields verifies the average duration and failure rate.
func TestStats_DerivedFields(t *testing.T) {
	tracker := NewStatsTracker()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	tracker.Record(completedRecord("job-1", true, base, 10*time.Second))
	tracker.Record(completedRecord("job-1", true, base, 20*time.Second))
	tracker.Record(completedRecord("job-1", false, base, 30*time.Second))
	tracker.Record(completedRecord("job-1", false, base, 40*time.Second))

	s, _ := tracker.StatsFor("job-1")

	if got := s.AverageExecutionTime(); got != 25*time.Second {
		t.Errorf("expected average 25s, got %v", got)
	}
	if got := s.FailureRate(); got != 0.5 {
		t.Errorf("expected failure rate 0.5, got %v", got)
	}
}

// TestStats_ZeroValueDerived verifies derived fields before any runs.
func TestStats_ZeroValueDerived(t *testing.T) {
	var s Stats

	if s.AverageExecutionTime() != 0 {
		t.Error("expected zero average with no runs")
	}
	if s.FailureRate() != 0 {
		t.Error("expected zero failure rate with no runs")
	}
}

// TestStatsTracker_RemoveAndAll verifies All snapshots and removal.
func TestStatsTracker_RemoveAndAll(t *testing.T) {
	tracker := NewStatsTracker()
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	tracker.Record(completedRecord("job-1", true, base, time.Second))
	tracker.Record(completedRecord("job-2", true, base, time.Second))

	all := tracker.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}

	tracker.Remove("job-1")

	if _, ok := tracker.StatsFor("job-1"); ok {
		t.Error("expected job-1 stats removed")
	}
	if _, ok := tracker.StatsFor("job-2"); !ok {
		t.Error("expected job-2 stats kept")
	}
}
