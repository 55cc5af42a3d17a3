package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avermeer/tempo/internal/db"
	"github.com/avermeer/tempo/internal/trigger"
)

// Standard errors surfaced to the registration and trigger API
var (
	ErrJobExists   = errors.New("engine: job already exists")
	ErrJobNotFound = errors.New("engine: job not found")
	ErrNotAdmitted = errors.New("engine: resource gate refused admission")
	ErrSaturated   = errors.New("engine: max concurrent instances reached")
)

// Store is the durable job store consumed by the engine. *db.DB implements
// it; tests substitute fakes to exercise persistence failures.
type Store interface {
	CreateJob(rec *db.JobRecord) error
	PutJob(rec *db.JobRecord) error
	ListJobs() ([]db.JobRecord, error)
	RemoveJob(id string) error
	SetJobEnabled(id string, enabled bool) error
	UpdateJobAfterRun(id string, lastRun time.Time, nextRun *time.Time, success bool) error
	UpdateNextRun(id string, nextRun *time.Time) error
	PutExecutionRecord(row *db.ExecutionRow) error
}

// Gate is the admission control check consulted before dispatching work
type Gate interface {
	Admit() bool
}

// jobEntry is the engine's in-memory scheduling state for one job
type jobEntry struct {
	def      JobDefinition
	nextFire time.Time
	hasNext  bool
	inFlight int
	state    JobState
}

// Engine is the scheduling loop and bounded worker pool. It owns the
// in-memory job map; the scheduling loop and worker completions both mutate
// it, so every access goes through one mutex.
type Engine struct {
	config Config
	loc    *time.Location

	store    Store
	gate     Gate
	registry *Registry
	retry    *RetryPolicy
	stats    *StatsTracker
	history  *historyWriter
	logger   *slog.Logger

	mu       sync.Mutex
	jobs     map[string]*jobEntry
	started  bool
	stopping bool

	workers  chan struct{}
	shutdown chan struct{}
	loopDone chan struct{}
	wg       sync.WaitGroup

	// clock is swapped out by tests to drive backoff without wall-clock waits
	clock func() time.Time
}

// New creates an engine with validated configuration
func New(config Config, store Store, gate Gate, registry *Registry, logger *slog.Logger) (*Engine, error) {
	// 1. Validate configuration
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	// 2. Resolve the scheduler timezone
	loc := time.Local
	if config.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load timezone: %w", err)
		}
	}

	// 3. Initialize engine with empty job map
	e := &Engine{
		config:   config,
		loc:      loc,
		store:    store,
		gate:     gate,
		registry: registry,
		retry:    NewRetryPolicy(config.DefaultRetryDelay, config.RetryBackoffMultiplier, config.DefaultMaxRetries),
		stats:    NewStatsTracker(),
		history:  newHistoryWriter(store, config.HistoryBufferSize, logger),
		logger:   logger,
		jobs:     make(map[string]*jobEntry),
		workers:  make(chan struct{}, config.ThreadPoolSize),
		shutdown: make(chan struct{}),
		loopDone: make(chan struct{}),
		clock:    time.Now,
	}

	return e, nil
}

// Location returns the scheduler timezone
func (e *Engine) Location() *time.Location {
	return e.loc
}

// Registry returns the job kind registry
func (e *Engine) Registry() *Registry {
	return e.registry
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start launches the scheduling loop and the history writer
func (e *Engine) Start() {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return
	}
	e.started = true
	e.mu.Unlock()

	e.logger.Info("starting execution engine",
		"thread_pool_size", e.config.ThreadPoolSize,
		"loop_interval", e.config.LoopInterval,
		"timezone", e.loc.String())

	e.history.Start()
	go e.run()
}

// Stop stops accepting new fires. With wait=true it blocks until in-flight
// executions finish, bounded by the timeout; without it, in-flight work is
// abandoned to finish or die with the process.
func (e *Engine) Stop(wait bool, timeout time.Duration) {
	e.mu.Lock()
	if !e.started || e.stopping {
		e.mu.Unlock()
		return
	}
	e.stopping = true
	e.mu.Unlock()

	e.logger.Info("stopping execution engine", "wait", wait)
	close(e.shutdown)
	<-e.loopDone

	if wait {
		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			e.logger.Info("all in-flight executions finished")
		case <-time.After(timeout):
			e.logger.Warn("shutdown timeout reached, abandoning in-flight executions",
				"timeout", timeout)
		}
	}

	e.history.Stop()
	e.logger.Info("execution engine stopped")
}

// Running reports whether the scheduling loop is active
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started && !e.stopping
}

// run is the main scheduling loop
func (e *Engine) run() {
	defer close(e.loopDone)

	ticker := time.NewTicker(e.config.LoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.shutdown:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

// dueFire is one fire event collected by the loop
type dueFire struct {
	def         JobDefinition
	scheduledAt time.Time
}

// tick collects due fires, applies misfire policy, and dispatches each one
func (e *Engine) tick() {
	now := e.clock()
	for _, fire := range e.collectDue(now) {
		e.dispatch(fire, now, false)
	}
}

// collectDue gathers every enabled job whose next fire time has arrived and
// advances the regular schedule past it. Misfire policy is applied here:
// fires missed by more than the grace time collapse into a single catch-up
// run (coalesce) or are individually logged as skipped before one catch-up.
func (e *Engine) collectDue(now time.Time) []dueFire {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopping {
		return nil
	}

	var due []dueFire
	for id, entry := range e.jobs {
		if !entry.def.Enabled || !entry.hasNext || entry.nextFire.After(now) {
			continue
		}

		scheduledAt := entry.nextFire
		grace := entry.def.MisfireGraceTime

		if trigger.Misfired(scheduledAt, now, grace) {
			missed := e.countMissed(entry, now, grace)

			if entry.def.Coalesce {
				e.logger.Warn("coalescing missed fires into one catch-up run",
					"job_id", id,
					"missed_fires", missed,
					"first_missed", scheduledAt)
			} else {
				for i := 0; i < missed; i++ {
					e.logger.Warn("skipping missed fire",
						"job_id", id,
						"scheduled_at", scheduledAt)
				}
			}

			// One catch-up run now; the next fire is recomputed from now.
			scheduledAt = now
		}

		e.advanceSchedule(entry, scheduledAt)
		due = append(due, dueFire{def: entry.def, scheduledAt: scheduledAt})
	}

	return due
}

// countMissed counts fire times that fell past the grace window. Bounded so a
// tight interval that was down for a long stretch cannot stall the loop.
func (e *Engine) countMissed(entry *jobEntry, now time.Time, grace time.Duration) int {
	const maxCounted = 1000

	missed := 0
	at := entry.nextFire
	for missed < maxCounted && trigger.Misfired(at, now, grace) {
		missed++
		next, ok := entry.def.Trigger.Next(at, e.loc)
		if !ok || !next.Before(now) {
			break
		}
		at = next
	}
	return missed
}

// advanceSchedule moves the entry's regular next fire strictly past the fire
// being dispatched. Caller must hold the lock.
func (e *Engine) advanceSchedule(entry *jobEntry, after time.Time) {
	next, ok := entry.def.Trigger.Next(after, e.loc)
	entry.nextFire = next
	entry.hasNext = ok
	if ok {
		entry.state = StateScheduled
	} else {
		entry.state = StateIdle
	}
}

// =============================================================================
// Fire dispatch
// =============================================================================

// dispatch runs the admission pipeline for one fire event and submits the job
// body to the worker pool. Manual fires (TriggerJob) report refusals to the
// caller through the returned error; scheduled fires log them.
func (e *Engine) dispatch(fire dueFire, now time.Time, manual bool) error {
	jobID := fire.def.ID

	// Step 1: never dispatch new work during shutdown
	e.mu.Lock()
	stopping := e.stopping
	e.mu.Unlock()
	if stopping {
		e.logger.Info("skipping fire during shutdown", "job_id", jobID)
		return ErrNotAdmitted
	}

	// Step 2: resource gate. Rejection of a scheduled fire is a deferral:
	// reschedule and leave stats and retry state untouched. A manual fire
	// just reports the refusal without disturbing the regular schedule.
	if !e.gate.Admit() {
		if manual {
			e.logger.Warn("manual fire refused by resource gate", "job_id", jobID)
			return ErrNotAdmitted
		}
		deferred := now.Add(e.config.DeferralDelay)
		e.deferFire(jobID, deferred)
		e.logger.Warn("fire deferred by resource gate",
			"job_id", jobID,
			"deferred_until", deferred)
		return ErrNotAdmitted
	}

	// Step 3: the definition may have been removed since the fire was
	// collected. Configuration drift must not crash the loop.
	e.mu.Lock()
	entry, ok := e.jobs[jobID]
	if !ok {
		e.mu.Unlock()
		e.logger.Error("fire for unknown job, dropping", "job_id", jobID)
		return ErrJobNotFound
	}

	// Step 4: enforce max_instances. A saturated fire is dropped, not queued.
	if entry.inFlight >= entry.def.MaxInstances {
		e.mu.Unlock()
		e.logger.Warn("max instances reached, skipping fire",
			"job_id", jobID,
			"max_instances", entry.def.MaxInstances)
		return ErrSaturated
	}

	fn, found := e.registry.Resolve(entry.def.Kind)
	if !found {
		e.mu.Unlock()
		e.logger.Error("no job body registered for kind, dropping fire",
			"job_id", jobID,
			"job_kind", entry.def.Kind)
		return ErrJobNotFound
	}

	// Step 5: submit to the worker pool
	executionID := uuid.NewString()
	def := entry.def
	entry.inFlight++
	entry.state = StateRunning
	e.wg.Add(1)
	e.mu.Unlock()

	e.logger.Debug("dispatching job",
		"job_id", jobID,
		"execution_id", executionID,
		"scheduled_at", fire.scheduledAt,
		"manual", manual)

	go e.execute(def, fn, executionID)
	return nil
}

// deferFire pushes a job's next fire out after a resource-gate rejection
func (e *Engine) deferFire(jobID string, until time.Time) {
	e.mu.Lock()
	entry, ok := e.jobs[jobID]
	if ok {
		entry.nextFire = until
		entry.hasNext = true
		entry.state = StateDeferred
	}
	e.mu.Unlock()
	if !ok {
		return
	}

	if err := e.store.UpdateNextRun(jobID, &until); err != nil {
		e.logger.Error("failed to persist deferred fire time",
			"job_id", jobID,
			"error", err)
	}
}

// execute runs the job body inside a worker pool slot and reports completion.
// The pool slot is acquired here rather than in dispatch so the scheduling
// loop never blocks on a full pool.
func (e *Engine) execute(def JobDefinition, fn JobFunc, executionID string) {
	defer e.wg.Done()

	e.workers <- struct{}{}
	defer func() { <-e.workers }()

	started := e.clock()

	// Mark the execution running before the body is invoked; the finalized
	// record for the same execution_id overwrites this row.
	e.history.Enqueue(ExecutionRecord{
		JobID:       def.ID,
		ExecutionID: executionID,
		Status:      StatusRunning,
		StartedAt:   started,
	})

	ctx, cancel := context.WithTimeout(context.Background(), e.config.DefaultJobTimeout)
	defer cancel()

	result, err := invokeBody(ctx, fn, def)

	completed := e.clock()
	duration := completed.Sub(started).Seconds()

	rec := ExecutionRecord{
		JobID:           def.ID,
		ExecutionID:     executionID,
		StartedAt:       started,
		CompletedAt:     &completed,
		DurationSeconds: &duration,
		ItemsProcessed:  result.ItemsProcessed,
		Errors:          result.Errors,
		Warnings:        result.Warnings,
		Metadata:        result.Metadata,
	}

	if err != nil {
		rec.Status = StatusFailed
		rec.Errors = append(rec.Errors, err.Error())
	} else if result.Success {
		rec.Status = StatusCompleted
	} else {
		rec.Status = StatusFailed
	}

	e.complete(def, rec)
}

// invokeBody calls the job body, converting a panic into an error so a broken
// body can never take down the scheduling loop.
func invokeBody(ctx context.Context, fn JobFunc, def JobDefinition) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job body panicked: %v", r)
		}
	}()

	return fn(ctx, def.Args, def.Kwargs, def.Metadata)
}

// complete records one finalized execution and computes the job's next fire:
// the regular trigger on success, backoff on a retryable failure, and the
// regular trigger again once retries are exhausted.
func (e *Engine) complete(def JobDefinition, rec ExecutionRecord) {
	// Record exactly once per completed record
	e.stats.Record(rec)

	success := rec.Status == StatusCompleted
	now := e.clock()

	e.mu.Lock()
	entry, present := e.jobs[def.ID]
	if present {
		entry.inFlight--
	}

	var nextRun *time.Time
	if present {
		if success {
			e.retry.Reset(def.ID)
			e.scheduleRegular(entry, now)
		} else if e.retry.ShouldRetry(def.ID) {
			e.retry.RecordFailure(def.ID)
			delay := e.retry.NextDelay(def.ID)
			retryAt := now.Add(delay)
			entry.nextFire = retryAt
			entry.hasNext = true
			entry.state = StateRetryScheduled
			e.logger.Warn("job failed, retry scheduled",
				"job_id", def.ID,
				"execution_id", rec.ExecutionID,
				"retry_count", e.retry.RetryCount(def.ID),
				"retry_at", retryAt,
				"errors", rec.Errors)
		} else {
			// Exhausted: terminal for this fire cycle. The count stays at
			// its cap so further failures remain exhausted until a success
			// resets it; the regular trigger still fires the next occurrence.
			e.logger.Error("job failed, retries exhausted",
				"job_id", def.ID,
				"execution_id", rec.ExecutionID,
				"retry_count", e.retry.RetryCount(def.ID),
				"errors", rec.Errors)
			e.scheduleRegular(entry, now)
		}
		if entry.hasNext {
			next := entry.nextFire
			nextRun = &next
		}
	}
	e.mu.Unlock()

	if success {
		e.logger.Info("job completed",
			"job_id", def.ID,
			"execution_id", rec.ExecutionID,
			"duration_seconds", *rec.DurationSeconds,
			"items_processed", rec.ItemsProcessed)
	}

	if !present {
		// Removed while running; nothing left to persist against.
		e.logger.Debug("completion for removed job", "job_id", def.ID)
		return
	}

	if err := e.store.UpdateJobAfterRun(def.ID, rec.StartedAt, nextRun, success); err != nil {
		e.logger.Error("failed to persist run outcome",
			"job_id", def.ID,
			"execution_id", rec.ExecutionID,
			"error", err)
	}

	e.history.Enqueue(rec)
}

// scheduleRegular points the entry back at its trigger's next fire time.
// Caller must hold the lock.
func (e *Engine) scheduleRegular(entry *jobEntry, after time.Time) {
	next, ok := entry.def.Trigger.Next(after, e.loc)
	entry.nextFire = next
	entry.hasNext = ok
	if ok {
		entry.state = StateScheduled
		return
	}

	entry.state = StateIdle
	e.logger.Info("trigger has no further runs, job idle", "job_id", entry.def.ID)
}

// =============================================================================
// Registration API
// =============================================================================

// AddJob validates, persists and schedules a job definition. With
// replace=false an existing job_id is an error. A persistence failure leaves
// the in-memory state untouched.
func (e *Engine) AddJob(def JobDefinition, replace bool) error {
	if def.ID == "" {
		return fmt.Errorf("job_id must not be empty")
	}
	if def.MaxInstances <= 0 {
		def.MaxInstances = 1
	}
	if def.MisfireGraceTime <= 0 {
		def.MisfireGraceTime = e.config.DefaultMisfireGrace
	}

	if err := def.Trigger.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", def.ID, err)
	}

	if _, ok := e.registry.Resolve(def.Kind); !ok {
		return fmt.Errorf("job %s: unknown job kind %q (registered: %v)",
			def.ID, def.Kind, e.registry.Kinds())
	}

	e.mu.Lock()
	if _, exists := e.jobs[def.ID]; exists && !replace {
		e.mu.Unlock()
		return fmt.Errorf("job %s: %w", def.ID, ErrJobExists)
	}
	e.mu.Unlock()

	now := e.clock()
	nextFire, hasNext := e.initialFire(def, now)

	rec, err := e.toRecord(def, nextFire, hasNext)
	if err != nil {
		return err
	}
	if replace {
		err = e.store.PutJob(rec)
	} else {
		err = e.store.CreateJob(rec)
	}
	if err != nil {
		if db.IsDuplicate(err) {
			return fmt.Errorf("job %s: %w", def.ID, ErrJobExists)
		}
		return fmt.Errorf("job %s: failed to persist: %w", def.ID, err)
	}

	if def.MaxRetries != nil {
		e.retry.SetMaxRetries(def.ID, *def.MaxRetries)
	}

	state := StateScheduled
	if !def.Enabled {
		state = StatePaused
	} else if !hasNext {
		state = StateIdle
	}

	e.mu.Lock()
	entry := &jobEntry{
		def:      def,
		nextFire: nextFire,
		hasNext:  hasNext,
		state:    state,
	}
	if existing, ok := e.jobs[def.ID]; ok {
		// Executions of the replaced definition may still be running; their
		// completions decrement this counter, so it must carry over or
		// max_instances accounting goes negative.
		entry.inFlight = existing.inFlight
		if entry.inFlight > 0 && def.Enabled {
			entry.state = StateRunning
		}
	}
	e.jobs[def.ID] = entry
	e.mu.Unlock()

	e.logger.Info("job registered",
		"job_id", def.ID,
		"job_kind", def.Kind,
		"schedule", def.Trigger.Describe(),
		"next_fire", nextFire,
		"enabled", def.Enabled)
	return nil
}

// initialFire computes the first fire time for a new job. A one-shot whose
// run time already passed at registration fires once immediately.
func (e *Engine) initialFire(def JobDefinition, now time.Time) (time.Time, bool) {
	if def.Trigger.Kind == trigger.KindOneShot && !def.Trigger.RunAt.After(now) {
		return now, true
	}
	return def.Trigger.Next(now, e.loc)
}

// RemoveJob cancels any pending fire and deletes the job everywhere. A body
// already running is not interrupted; its completion is discarded.
func (e *Engine) RemoveJob(jobID string) error {
	e.mu.Lock()
	_, ok := e.jobs[jobID]
	if ok {
		delete(e.jobs, jobID)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	e.retry.Forget(jobID)
	e.stats.Remove(jobID)

	if err := e.store.RemoveJob(jobID); err != nil && !db.IsNotFound(err) {
		return fmt.Errorf("job %s: failed to remove from store: %w", jobID, err)
	}

	e.logger.Info("job removed", "job_id", jobID)
	return nil
}

// PauseJob disables a job without removing it. Pending fires stop; a running
// body finishes naturally.
func (e *Engine) PauseJob(jobID string) error {
	e.mu.Lock()
	entry, ok := e.jobs[jobID]
	if ok {
		entry.def.Enabled = false
		entry.state = StatePaused
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	if err := e.store.SetJobEnabled(jobID, false); err != nil {
		return fmt.Errorf("job %s: failed to persist pause: %w", jobID, err)
	}

	e.logger.Info("job paused", "job_id", jobID)
	return nil
}

// ResumeJob re-enables a paused job and recomputes its schedule from now, so
// fires missed while paused are not replayed.
func (e *Engine) ResumeJob(jobID string) error {
	now := e.clock()

	e.mu.Lock()
	entry, ok := e.jobs[jobID]
	if ok {
		entry.def.Enabled = true
		e.scheduleRegular(entry, now)
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	if err := e.store.SetJobEnabled(jobID, true); err != nil {
		return fmt.Errorf("job %s: failed to persist resume: %w", jobID, err)
	}

	e.logger.Info("job resumed", "job_id", jobID)
	return nil
}

// TriggerNow fires a job out of band, bypassing the regular trigger but still
// subject to the resource gate and max_instances.
func (e *Engine) TriggerNow(jobID string) error {
	e.mu.Lock()
	entry, ok := e.jobs[jobID]
	var def JobDefinition
	if ok {
		def = entry.def
	}
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}

	now := e.clock()
	return e.dispatch(dueFire{def: def, scheduledAt: now}, now, true)
}

// =============================================================================
// Introspection API
// =============================================================================

// Jobs returns the status of every registered job, sorted by job_id
func (e *Engine) Jobs() []JobStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]JobStatus, 0, len(e.jobs))
	for _, entry := range e.jobs {
		out = append(out, e.statusLocked(entry))
	}
	return out
}

// Job returns one job's status
func (e *Engine) Job(jobID string) (JobStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.jobs[jobID]
	if !ok {
		return JobStatus{}, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	return e.statusLocked(entry), nil
}

func (e *Engine) statusLocked(entry *jobEntry) JobStatus {
	status := JobStatus{
		Definition: entry.def,
		State:      entry.state,
		InFlight:   entry.inFlight,
		RetryCount: e.retry.RetryCount(entry.def.ID),
	}
	if entry.hasNext {
		next := entry.nextFire
		status.NextRunTime = &next
	}
	return status
}

// StatsFor returns the job's execution stats
func (e *Engine) StatsFor(jobID string) (Stats, bool) {
	return e.stats.StatsFor(jobID)
}

// AllStats returns execution stats for every job that has run
func (e *Engine) AllStats() map[string]Stats {
	return e.stats.All()
}

// InFlight returns the job's current number of running executions
func (e *Engine) InFlight(jobID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entry, ok := e.jobs[jobID]; ok {
		return entry.inFlight
	}
	return 0
}

// =============================================================================
// Persistence round-trip
// =============================================================================

// toRecord serializes a definition into its durable row
func (e *Engine) toRecord(def JobDefinition, nextFire time.Time, hasNext bool) (*db.JobRecord, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("job %s: failed to serialize: %w", def.ID, err)
	}

	rec := &db.JobRecord{
		JobID:              def.ID,
		JobName:            def.Name,
		JobKind:            def.Kind,
		JobData:            data,
		ScheduleExpression: def.Trigger.Describe(),
		Enabled:            def.Enabled,
	}
	if hasNext {
		next := nextFire
		rec.NextRunTime = &next
	}
	return rec, nil
}

// LoadFromStore hydrates the engine from the durable job rows after a
// restart. The next fire time is re-derived from the trigger and the last
// run time instead of trusting the stored next_run_time, so a crash between
// a fire and its persisted update cannot cause indefinite double-firing.
// Malformed rows are logged and skipped. Returns the number of jobs loaded.
func (e *Engine) LoadFromStore() (int, error) {
	rows, err := e.store.ListJobs()
	if err != nil {
		return 0, fmt.Errorf("failed to list jobs from store: %w", err)
	}

	now := e.clock()
	loaded := 0

	for _, row := range rows {
		var def JobDefinition
		if err := json.Unmarshal(row.JobData, &def); err != nil {
			e.logger.Error("skipping malformed job row",
				"job_id", row.JobID,
				"error", err)
			continue
		}
		def.Enabled = row.Enabled
		if def.MaxInstances <= 0 {
			def.MaxInstances = 1
		}
		if def.MisfireGraceTime <= 0 {
			def.MisfireGraceTime = e.config.DefaultMisfireGrace
		}

		nextFire, hasNext := e.rederiveFire(def, row.LastRunTime, now)

		state := StateScheduled
		if !def.Enabled {
			state = StatePaused
		} else if !hasNext {
			state = StateIdle
		}

		e.mu.Lock()
		e.jobs[def.ID] = &jobEntry{
			def:      def,
			nextFire: nextFire,
			hasNext:  hasNext,
			state:    state,
		}
		e.mu.Unlock()

		if def.MaxRetries != nil {
			e.retry.SetMaxRetries(def.ID, *def.MaxRetries)
		}

		var persistNext *time.Time
		if hasNext {
			next := nextFire
			persistNext = &next
		}
		if err := e.store.UpdateNextRun(def.ID, persistNext); err != nil {
			e.logger.Error("failed to persist re-derived fire time",
				"job_id", def.ID,
				"error", err)
		}

		loaded++
		e.logger.Info("job loaded from store",
			"job_id", def.ID,
			"schedule", def.Trigger.Describe(),
			"next_fire", nextFire,
			"enabled", def.Enabled)
	}

	return loaded, nil
}

// rederiveFire computes the post-restart fire time. Fires that came due while
// the process was down land in the past here; the loop's misfire policy
// decides whether they coalesce or are skipped.
func (e *Engine) rederiveFire(def JobDefinition, lastRun *time.Time, now time.Time) (time.Time, bool) {
	if def.Trigger.Kind == trigger.KindOneShot {
		if lastRun != nil {
			// Already fired once; one-shots never fire again.
			return time.Time{}, false
		}
		return e.initialFire(def, now)
	}

	after := now
	if lastRun != nil {
		after = *lastRun
	}
	return def.Trigger.Next(after, e.loc)
}
