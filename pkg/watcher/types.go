package watcher

import (
	"time"

	"github.com/eternnoir/whispscribe/pkg/config"
)

// ProgressCallback is called to report progress
type ProgressCallback func(event *ProgressEvent)

// Progress event types.
const (
	ProgressFound      = "found"
	ProgressProcessing = "processing"
	ProgressCompleted  = "completed"
	ProgressFailed     = "failed"
	ProgressSkipped    = "skipped"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	Type       string
	FilePath   string
	Message    string
	Transcript string
	Error      error
	Timestamp  time.Time
}

// WatchStats contains statistics about the watcher
type WatchStats struct {
	StartTime      time.Time
	ProcessedCount int
	FailedCount    int
	SkippedCount   int
	Queued         int
}

// WatchConfig contains configuration for the file watcher
type WatchConfig struct {
	// Directory to watch
	WatchDir string

	// File name patterns to match (e.g. "*.mp3"). Empty means any
	// supported media extension.
	Patterns []string

	// Whether to watch subdirectories recursively
	Recursive bool

	// Interval between periodic rescans
	Interval time.Duration

	// Time to wait for file stability before processing
	StabilityWait time.Duration

	// Whether to process existing files on startup
	ProcessExisting bool

	// Whether to retry inputs whose last attempt failed
	RetryFailed bool

	// Directory to move processed inputs to (optional)
	MoveToDir string

	// Capacity of the pending queue
	QueueSize int

	// Pipeline settings applied to every file
	Pipeline config.Config
}

// DefaultWatchConfig returns default configuration
func DefaultWatchConfig() *WatchConfig {
	return &WatchConfig{
		Recursive:       false,
		Interval:        30 * time.Second,
		StabilityWait:   2 * time.Second,
		ProcessExisting: true,
		RetryFailed:     false,
		QueueSize:       64,
		Pipeline:        config.DefaultConfig(),
	}
}
