package db

import (
	"database/sql"
	"time"
)

// JobRecord is the durable mirror of a job definition. The engine owns the
// in-memory definition; this row is the source of truth across restarts.
// JobData carries the serialized trigger, args and policy fields as JSON.
type JobRecord struct {
	JobID              string
	JobName            string
	JobKind            string
	JobData            []byte
	ScheduleExpression string
	NextRunTime        *time.Time
	LastRunTime        *time.Time
	RunCount           int
	SuccessCount       int
	FailureCount       int
	Enabled            bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// =============================================================================
// Job Operations
// =============================================================================

// PutJob inserts or replaces a job row. On replace the run counters and
// last_run_time are preserved; everything else comes from the new record.
func (db *DB) PutJob(rec *JobRecord) error {
	now := time.Now()
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	query := `
		INSERT INTO jobs (job_id, job_name, job_kind, job_data, schedule_expression,
			next_run_time, last_run_time, run_count, success_count, failure_count,
			enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, 0, 0, 0, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			job_name = excluded.job_name,
			job_kind = excluded.job_kind,
			job_data = excluded.job_data,
			schedule_expression = excluded.schedule_expression,
			next_run_time = excluded.next_run_time,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := db.Exec(query,
		rec.JobID,
		rec.JobName,
		rec.JobKind,
		string(rec.JobData),
		rec.ScheduleExpression,
		rec.NextRunTime,
		rec.Enabled,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

// CreateJob inserts a new job row. A job_id that already exists fails with a
// duplicate key error; callers that want replace semantics use PutJob.
func (db *DB) CreateJob(rec *JobRecord) error {
	now := time.Now()
	rec.UpdatedAt = now
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}

	query := `
		INSERT INTO jobs (job_id, job_name, job_kind, job_data, schedule_expression,
			next_run_time, last_run_time, run_count, success_count, failure_count,
			enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, 0, 0, 0, ?, ?, ?)
	`

	_, err := db.Exec(query,
		rec.JobID,
		rec.JobName,
		rec.JobKind,
		string(rec.JobData),
		rec.ScheduleExpression,
		rec.NextRunTime,
		rec.Enabled,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

// GetJob retrieves a job row by ID
func (db *DB) GetJob(id string) (*JobRecord, error) {
	query := `
		SELECT job_id, job_name, job_kind, job_data, schedule_expression,
			next_run_time, last_run_time, run_count, success_count, failure_count,
			enabled, created_at, updated_at
		FROM jobs
		WHERE job_id = ?
	`

	rec, err := scanJob(db.QueryRow(query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// ListJobs retrieves all job rows ordered by creation time
func (db *DB) ListJobs() ([]JobRecord, error) {
	query := `
		SELECT job_id, job_name, job_kind, job_data, schedule_expression,
			next_run_time, last_run_time, run_count, success_count, failure_count,
			enabled, created_at, updated_at
		FROM jobs
		ORDER BY created_at, job_id
	`

	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *rec)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	// Return empty slice instead of nil
	if jobs == nil {
		jobs = []JobRecord{}
	}

	return jobs, nil
}

// RemoveJob deletes a job row and its execution history in one transaction,
// so a removed job never leaves orphaned history rows behind.
func (db *DB) RemoveJob(id string) error {
	return db.WithTransaction(func(tx *Tx) error {
		if _, err := tx.Exec(`DELETE FROM execution_records WHERE job_id = ?`, id); err != nil {
			return err
		}

		result, err := tx.Exec(`DELETE FROM jobs WHERE job_id = ?`, id)
		if err != nil {
			return err
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}

		if rows == 0 {
			return ErrNotFound
		}

		return nil
	})
}

// SetJobEnabled toggles the enabled flag without touching the schedule
func (db *DB) SetJobEnabled(id string, enabled bool) error {
	query := `UPDATE jobs SET enabled = ?, updated_at = ? WHERE job_id = ?`

	result, err := db.Exec(query, enabled, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateJobAfterRun records the outcome of one completed run: last/next run
// times plus the run counters, in a single statement so the row is never
// half-updated.
func (db *DB) UpdateJobAfterRun(id string, lastRun time.Time, nextRun *time.Time, success bool) error {
	successInc := 0
	failureInc := 0
	if success {
		successInc = 1
	} else {
		failureInc = 1
	}

	query := `
		UPDATE jobs
		SET last_run_time = ?,
			next_run_time = ?,
			run_count = run_count + 1,
			success_count = success_count + ?,
			failure_count = failure_count + ?,
			updated_at = ?
		WHERE job_id = ?
	`

	result, err := db.Exec(query, lastRun, nextRun, successInc, failureInc, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// UpdateNextRun rewrites only the next fire time. Used for resource-gate
// deferrals and retry reschedules, which are not completed runs.
func (db *DB) UpdateNextRun(id string, nextRun *time.Time) error {
	query := `UPDATE jobs SET next_run_time = ?, updated_at = ? WHERE job_id = ?`

	result, err := db.Exec(query, nextRun, time.Now(), id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// scanner covers both sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*JobRecord, error) {
	rec := &JobRecord{}
	var data string

	err := s.Scan(
		&rec.JobID,
		&rec.JobName,
		&rec.JobKind,
		&data,
		&rec.ScheduleExpression,
		&rec.NextRunTime,
		&rec.LastRunTime,
		&rec.RunCount,
		&rec.SuccessCount,
		&rec.FailureCount,
		&rec.Enabled,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.JobData = []byte(data)
	return rec, nil
}
