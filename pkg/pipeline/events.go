package pipeline

import (
	"time"
)

// EventType classifies progress events emitted by a run.
type EventType string

const (
	EventRunStarted  EventType = "run_started"
	EventRunFailed   EventType = "run_failed" // setup validation failed, nothing processed
	EventRunFinished EventType = "run_finished"
	EventFileStarted EventType = "file_started"
	EventFileDone    EventType = "file_done"
	EventFileFailed  EventType = "file_failed"
	EventCommand     EventType = "command" // a child process is about to start
	EventLog         EventType = "log"
	EventWarning     EventType = "warning"
)

// Event is one progress message. Consumers must drain the channel until it closes.
type Event struct {
	Type       EventType
	Time       time.Time
	File       string
	Index      int // 1-based position of File in the run
	Total      int
	Message    string
	Argv       []string
	Transcript string
	Err        error
	Result     *FileResult // set on EventFileDone and EventFileFailed
	Summary    *Summary
}

// FileResult is the outcome of processing one input.
type FileResult struct {
	Input        string        `json:"input"`
	ArtifactsDir string        `json:"artifacts_dir,omitempty"`
	Audio        string        `json:"audio,omitempty"`
	Transcript   string        `json:"transcript,omitempty"`
	Extracted    bool          `json:"extracted"`
	Transcribed  bool          `json:"transcribed"`
	Renamed      string        `json:"renamed,omitempty"` // engine output that was renamed to Transcript
	Duration     time.Duration `json:"duration"`
	Err          error         `json:"-"`
}

// OK reports whether the transcript exists.
func (r FileResult) OK() bool { return r.Err == nil }

// Summary aggregates a finished run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	Skipped   int // not attempted because the run was cancelled
	Cancelled bool
	Duration  time.Duration
	Results   []FileResult
}
