package db

import (
	"time"
)

// ExecutionRow is one persisted run attempt. Errors and warnings are folded
// into a single error string for the history table; the full record lives in
// memory on the engine until the run completes.
type ExecutionRow struct {
	ExecutionID    string
	JobID          string
	Status         string
	StartedAt      time.Time
	CompletedAt    *time.Time
	DurationSecs   *float64
	ItemsProcessed int
	Error          string
}

// =============================================================================
// Execution History Operations
// =============================================================================

// PutExecutionRecord inserts or finalizes one run attempt. A running row is
// written at dispatch; the finalized row for the same execution_id overwrites
// its status and completion fields.
func (db *DB) PutExecutionRecord(row *ExecutionRow) error {
	query := `
		INSERT INTO execution_records (execution_id, job_id, status, started_at,
			completed_at, duration_secs, items_processed, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (execution_id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			duration_secs = excluded.duration_secs,
			items_processed = excluded.items_processed,
			error = excluded.error
	`

	_, err := db.Exec(query,
		row.ExecutionID,
		row.JobID,
		row.Status,
		row.StartedAt,
		row.CompletedAt,
		row.DurationSecs,
		row.ItemsProcessed,
		row.Error,
	)
	return err
}

// RecentExecutions retrieves the most recent run attempts for a job
func (db *DB) RecentExecutions(jobID string, limit int) ([]ExecutionRow, error) {
	query := `
		SELECT execution_id, job_id, status, started_at, completed_at,
			duration_secs, items_processed, error
		FROM execution_records
		WHERE job_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.Query(query, jobID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ExecutionRow
	for rows.Next() {
		var row ExecutionRow
		err := rows.Scan(
			&row.ExecutionID,
			&row.JobID,
			&row.Status,
			&row.StartedAt,
			&row.CompletedAt,
			&row.DurationSecs,
			&row.ItemsProcessed,
			&row.Error,
		)
		if err != nil {
			return nil, err
		}
		records = append(records, row)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if records == nil {
		records = []ExecutionRow{}
	}

	return records, nil
}

// PruneExecutions deletes history rows older than the cutoff, returning the
// number removed. Retention cleanups call this on their own schedule.
func (db *DB) PruneExecutions(before time.Time) (int64, error) {
	result, err := db.Exec(`DELETE FROM execution_records WHERE started_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
