package engine

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/avermeer/tempo/internal/db"
)

// historyWriter persists execution records off the completion path. A running
// row is enqueued at dispatch and the finalized row for the same execution
// overwrites it. Rows are observability data, not scheduling state, so they
// are written by a dedicated goroutine fed through a bounded channel; a full
// channel drops the row with a warning instead of blocking a worker.
type historyWriter struct {
	store  Store
	logger *slog.Logger

	mu     sync.Mutex
	closed bool

	ch chan db.ExecutionRow
	wg sync.WaitGroup
}

func newHistoryWriter(store Store, bufferSize int, logger *slog.Logger) *historyWriter {
	return &historyWriter{
		store:  store,
		logger: logger,
		ch:     make(chan db.ExecutionRow, bufferSize),
	}
}

// Start launches the writer goroutine
func (w *historyWriter) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *historyWriter) run() {
	defer w.wg.Done()

	for row := range w.ch {
		if err := w.store.PutExecutionRecord(&row); err != nil {
			w.logger.Error("failed to write execution record",
				"execution_id", row.ExecutionID,
				"job_id", row.JobID,
				"error", err)
		}
	}

	w.logger.Debug("history writer shut down")
}

// Enqueue queues one record for persistence. An execution abandoned at
// shutdown may complete after Stop; its record is dropped rather than sent on
// the closed channel.
func (w *historyWriter) Enqueue(rec ExecutionRecord) {
	row := db.ExecutionRow{
		ExecutionID:    rec.ExecutionID,
		JobID:          rec.JobID,
		Status:         string(rec.Status),
		StartedAt:      rec.StartedAt,
		CompletedAt:    rec.CompletedAt,
		DurationSecs:   rec.DurationSeconds,
		ItemsProcessed: rec.ItemsProcessed,
		Error:          strings.Join(rec.Errors, "; "),
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.logger.Debug("history writer stopped, dropping execution record",
			"execution_id", rec.ExecutionID,
			"job_id", rec.JobID)
		return
	}

	select {
	case w.ch <- row:
	default:
		w.logger.Warn("history buffer full, dropping execution record",
			"execution_id", rec.ExecutionID,
			"job_id", rec.JobID)
	}
}

// Stop closes the channel and waits for the writer to drain.
// The for range loop processes everything still buffered, then exits when
// the channel is closed and empty. Safe to call more than once.
func (w *historyWriter) Stop() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ch)
	w.mu.Unlock()

	w.wg.Wait()
}
