package engine

import (
	"testing"
	"time"
)

// =============================================================================
// Backoff Tests
// =============================================================================

// TestRetryPolicy_BackoffGrowth verifies the documented backoff sequence:
// base 60s with multiplier 2 yields 60, 120, 240 before the budget runs out.
func TestRetryPolicy_BackoffGrowth(t *testing.T) {
	p := NewRetryPolicy(60*time.Second, 2.0, 3)

	want := []time.Duration{60 * time.Second, 120 * time.Second, 240 * time.Second}
	for i, expected := range want {
		if !p.ShouldRetry("job-1") {
			t.Fatalf("expected retry budget remaining before failure %d", i+1)
		}
		p.RecordFailure("job-1")

		if got := p.NextDelay("job-1"); got != expected {
			t.Errorf("failure %d: expected delay %v, got %v", i+1, expected, got)
		}
	}

	if p.ShouldRetry("job-1") {
		t.Error("expected budget exhausted after max_retries failures")
	}
	if got := p.RetryCount("job-1"); got != 3 {
		t.Errorf("expected retry_count 3, got %d", got)
	}
}

// TestRetryPolicy_CountCappedAtMax verifies that recording more failures than
// the budget does not grow the counter.
func TestRetryPolicy_CountCappedAtMax(t *testing.T) {
	p := NewRetryPolicy(time.Second, 2.0, 2)

	for i := 0; i < 5; i++ {
		p.RecordFailure("job-1")
	}

	if got := p.RetryCount("job-1"); got != 2 {
		t.Errorf("expected count capped at 2, got %d", got)
	}
}

// TestRetryPolicy_ResetOnSuccess verifies that a success resets the counter
// to zero and restores the base delay.
func TestRetryPolicy_ResetOnSuccess(t *testing.T) {
	p := NewRetryPolicy(60*time.Second, 2.0, 3)

	p.RecordFailure("job-1")
	p.RecordFailure("job-1")
	if got := p.RetryCount("job-1"); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}

	p.Reset("job-1")

	if got := p.RetryCount("job-1"); got != 0 {
		t.Errorf("expected count 0 after reset, got %d", got)
	}
	if !p.ShouldRetry("job-1") {
		t.Error("expected retry budget restored after reset")
	}

	p.RecordFailure("job-1")
	if got := p.NextDelay("job-1"); got != 60*time.Second {
		t.Errorf("expected base delay after reset, got %v", got)
	}
}

// TestRetryPolicy_PerJobOverride verifies that a per-job max retries override
// takes precedence over the default.
func TestRetryPolicy_PerJobOverride(t *testing.T) {
	p := NewRetryPolicy(time.Second, 2.0, 3)
	p.SetMaxRetries("job-1", 1)

	p.RecordFailure("job-1")
	if p.ShouldRetry("job-1") {
		t.Error("expected override budget of 1 to be exhausted")
	}

	// Another job still uses the default budget
	p.RecordFailure("job-2")
	if !p.ShouldRetry("job-2") {
		t.Error("expected default budget for other jobs")
	}
}

// TestRetryPolicy_ZeroBudget verifies that max_retries zero never retries.
func TestRetryPolicy_ZeroBudget(t *testing.T) {
	p := NewRetryPolicy(time.Second, 2.0, 0)

	if p.ShouldRetry("job-1") {
		t.Error("expected no retries with zero budget")
	}
}

// TestRetryPolicy_Forget verifies removal of all per-job state.
func TestRetryPolicy_Forget(t *testing.T) {
	p := NewRetryPolicy(time.Second, 2.0, 3)
	p.SetMaxRetries("job-1", 1)
	p.RecordFailure("job-1")

	p.Forget("job-1")

	if got := p.RetryCount("job-1"); got != 0 {
		t.Errorf("expected count cleared, got %d", got)
	}
	p.RecordFailure("job-1")
	p.RecordFailure("job-1")
	if got := p.RetryCount("job-1"); got != 2 {
		t.Errorf("expected default budget after forget, got %d", got)
	}
}
