package engine

import (
	"math"
	"sync"
	"time"
)

// RetryPolicy tracks per-job retry counters and computes exponential backoff
// delays. Counters are ephemeral: a restart resets backoff to the base delay,
// which is acceptable for this scheduler.
type RetryPolicy struct {
	mu sync.Mutex

	baseDelay  time.Duration
	multiplier float64
	maxRetries int

	counts    map[string]int
	overrides map[string]int // per-job max retries
}

// NewRetryPolicy creates a policy with the given defaults. A multiplier
// below 1 falls back to 2.0 and maxRetries below 0 to 3.
func NewRetryPolicy(baseDelay time.Duration, multiplier float64, maxRetries int) *RetryPolicy {
	if multiplier < 1 {
		multiplier = 2.0
	}
	if maxRetries < 0 {
		maxRetries = 3
	}

	return &RetryPolicy{
		baseDelay:  baseDelay,
		multiplier: multiplier,
		maxRetries: maxRetries,
		counts:     make(map[string]int),
		overrides:  make(map[string]int),
	}
}

// SetMaxRetries installs a per-job override of the retry budget
func (p *RetryPolicy) SetMaxRetries(jobID string, maxRetries int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[jobID] = maxRetries
}

// RecordFailure increments the job's consecutive failure count, capped at
// the job's max retries.
func (p *RetryPolicy) RecordFailure(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.counts[jobID] < p.limit(jobID) {
		p.counts[jobID]++
	}
}

// Reset clears the job's failure count. Called after any success.
func (p *RetryPolicy) Reset(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.counts, jobID)
}

// Forget drops all state for a removed job
func (p *RetryPolicy) Forget(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.counts, jobID)
	delete(p.overrides, jobID)
}

// ShouldRetry reports whether the job still has retry budget. Returns false
// once the consecutive failure count reaches the job's max retries; the
// caller must then treat the failure as exhausted.
func (p *RetryPolicy) ShouldRetry(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[jobID] < p.limit(jobID)
}

// NextDelay computes the backoff delay for the job's current failure count:
// base for the first retry, then multiplied per consecutive failure.
func (p *RetryPolicy) NextDelay(jobID string) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := p.counts[jobID]
	if count < 1 {
		count = 1
	}

	delay := float64(p.baseDelay) * math.Pow(p.multiplier, float64(count-1))
	return time.Duration(delay)
}

// RetryCount returns the job's current consecutive failure count
func (p *RetryPolicy) RetryCount(jobID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[jobID]
}

// limit returns the job's retry budget. Caller must hold the lock.
func (p *RetryPolicy) limit(jobID string) int {
	if override, ok := p.overrides[jobID]; ok {
		return override
	}
	return p.maxRetries
}
