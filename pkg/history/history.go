// Package history keeps a persistent record of pipeline runs and the last
// outcome for every input file in a BoltDB database.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketRuns      = "runs"
	bucketProcessed = "processed"
	bucketFailed    = "failed"
)

// DefaultFileName is the database file created next to the settings record.
const DefaultFileName = "history.db"

// RunRecord summarizes one batch.
type RunRecord struct {
	ID         string        `json:"id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Files      []string      `json:"files"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Cancelled  bool          `json:"cancelled"`
	SetupError string        `json:"setup_error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// ProcessedInfo describes the last successful transcription of an input.
type ProcessedInfo struct {
	Input        string        `json:"input"`
	RunID        string        `json:"run_id"`
	Transcript   string        `json:"transcript"`
	ArtifactsDir string        `json:"artifacts_dir"`
	ProcessedAt  time.Time     `json:"processed_at"`
	Duration     time.Duration `json:"duration"`
}

// FailedInfo describes the last failed attempt for an input.
type FailedInfo struct {
	Input      string    `json:"input"`
	RunID      string    `json:"run_id"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failed_at"`
	RetryCount int       `json:"retry_count"`
}

// Store is a BoltDB backed run history.
type Store struct {
	db   *bolt.DB
	path string
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketRuns, bucketProcessed, bucketFailed} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// DefaultPath places the database beside the settings file.
func DefaultPath(settingsPath string) string {
	return filepath.Join(filepath.Dir(settingsPath), DefaultFileName)
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// runKey sorts runs chronologically.
func runKey(r *RunRecord) []byte {
	return []byte(fmt.Sprintf("%019d-%s", r.StartedAt.UnixNano(), r.ID))
}

// inputKey normalizes an input path.
func inputKey(input string) []byte {
	if abs, err := filepath.Abs(input); err == nil {
		input = abs
	}
	return []byte(filepath.Clean(input))
}

// RecordRun stores or replaces a run summary.
func (s *Store) RecordRun(run *RunRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return fmt.Errorf("failed to marshal run: %w", err)
		}
		if err := tx.Bucket([]byte(bucketRuns)).Put(runKey(run), data); err != nil {
			return fmt.Errorf("failed to store run: %w", err)
		}
		return nil
	})
}

// RecentRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			var run RunRecord
			if err := json.Unmarshal(v, &run); err != nil {
				return fmt.Errorf("failed to unmarshal run %s: %w", k, err)
			}
			runs = append(runs, run)
		}
		return nil
	})
	return runs, err
}

// IsProcessed reports whether input last completed successfully.
func (s *Store) IsProcessed(input string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket([]byte(bucketProcessed)).Get(inputKey(input)) != nil
		return nil
	})
	return exists, err
}

// RecordProcessed records a successful transcription and clears any failure.
func (s *Store) RecordProcessed(info *ProcessedInfo) error {
	key := inputKey(info.Input)
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("failed to marshal processed info: %w", err)
		}
		if err := tx.Bucket([]byte(bucketProcessed)).Put(key, data); err != nil {
			return fmt.Errorf("failed to store processed info: %w", err)
		}
		return tx.Bucket([]byte(bucketFailed)).Delete(key)
	})
}

// RecordFailed records a failed attempt, counting retries of the same input.
// A previous success is forgotten.
func (s *Store) RecordFailed(info *FailedInfo) error {
	key := inputKey(info.Input)
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketFailed))

		if existing := bucket.Get(key); existing != nil {
			var prev FailedInfo
			if err := json.Unmarshal(existing, &prev); err == nil {
				info.RetryCount = prev.RetryCount + 1
			}
		}

		data, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("failed to marshal failed info: %w", err)
		}
		if err := bucket.Put(key, data); err != nil {
			return fmt.Errorf("failed to store failed info: %w", err)
		}
		return tx.Bucket([]byte(bucketProcessed)).Delete(key)
	})
}

// GetProcessedInfo returns the last success for input, or nil.
func (s *Store) GetProcessedInfo(input string) (*ProcessedInfo, error) {
	var info *ProcessedInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketProcessed)).Get(inputKey(input))
		if data == nil {
			return nil
		}
		var processed ProcessedInfo
		if err := json.Unmarshal(data, &processed); err != nil {
			return fmt.Errorf("failed to unmarshal processed info: %w", err)
		}
		info = &processed
		return nil
	})
	return info, err
}

// GetFailedInfo returns the last failure for input, or nil.
func (s *Store) GetFailedInfo(input string) (*FailedInfo, error) {
	var info *FailedInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketFailed)).Get(inputKey(input))
		if data == nil {
			return nil
		}
		var failed FailedInfo
		if err := json.Unmarshal(data, &failed); err != nil {
			return fmt.Errorf("failed to unmarshal failed info: %w", err)
		}
		info = &failed
		return nil
	})
	return info, err
}
