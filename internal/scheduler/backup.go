package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/avermeer/tempo/internal/engine"
)

const backupVersion = 1

// backupFile is the on-disk backup format: job definitions only, no execution
// history and no runtime state.
type backupFile struct {
	Version   int                    `json:"version"`
	CreatedAt time.Time              `json:"created_at"`
	Jobs      []engine.JobDefinition `json:"jobs"`
}

// Backup writes every registered job definition to a JSON file. The write
// goes through a temp file and rename so a crash mid-write cannot leave a
// truncated backup behind.
func (f *Facade) Backup(path string) error {
	jobs := f.engine.Jobs()

	file := backupFile{
		Version:   backupVersion,
		CreatedAt: time.Now().UTC(),
		Jobs:      make([]engine.JobDefinition, 0, len(jobs)),
	}
	for _, job := range jobs {
		file.Jobs = append(file.Jobs, job.Definition)
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize backup: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tempo-backup-*")
	if err != nil {
		return fmt.Errorf("failed to create backup temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close backup: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to finalize backup: %w", err)
	}

	f.logger.Info("backup written", "path", path, "job_count", len(file.Jobs))
	return nil
}

// Restore replaces the current job set with the definitions in a backup file.
// Existing jobs are removed first; a malformed entry is logged and skipped
// without aborting the rest. Returns the number of jobs restored.
func (f *Facade) Restore(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read backup: %w", err)
	}

	var file backupFile
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("failed to parse backup: %w", err)
	}
	if file.Version != backupVersion {
		return 0, fmt.Errorf("unsupported backup version %d", file.Version)
	}

	// Clear the current job set
	for _, job := range f.engine.Jobs() {
		if err := f.engine.RemoveJob(job.Definition.ID); err != nil {
			f.logger.Error("failed to remove job before restore",
				"job_id", job.Definition.ID,
				"error", err)
		}
	}

	restored := 0
	for _, def := range file.Jobs {
		if err := f.engine.AddJob(def, true); err != nil {
			f.logger.Error("skipping unrestorable job",
				"job_id", def.ID,
				"error", err)
			continue
		}
		restored++
	}

	f.logger.Info("backup restored",
		"path", path,
		"restored", restored,
		"skipped", len(file.Jobs)-restored)
	return restored, nil
}
