package history

import (
	"time"

	"github.com/google/uuid"

	"github.com/eternnoir/whispscribe/pkg/logger"
	"github.com/eternnoir/whispscribe/pkg/pipeline"
)

// Recorder turns the events of one run into history entries.
type Recorder struct {
	store *Store
	run   RunRecord
	log   *logger.Logger
}

// NewRecorder starts recording a run over files. A nil store records nothing.
func NewRecorder(store *Store, files []string) *Recorder {
	id := uuid.NewString()
	return &Recorder{
		store: store,
		run: RunRecord{
			ID:        id,
			StartedAt: time.Now(),
			Files:     append([]string(nil), files...),
		},
		log: logger.WithComponent("history").WithField("run_id", id),
	}
}

// RunID identifies the run being recorded.
func (r *Recorder) RunID() string { return r.run.ID }

// Observe stores per-file outcomes and the final summary. Storage errors are
// logged and returned; the run itself is never affected.
func (r *Recorder) Observe(e pipeline.Event) error {
	if r == nil || r.store == nil {
		return nil
	}

	var err error
	switch e.Type {
	case pipeline.EventFileDone:
		info := &ProcessedInfo{
			Input:       e.File,
			RunID:       r.run.ID,
			Transcript:  e.Transcript,
			ProcessedAt: e.Time,
		}
		if e.Result != nil {
			info.ArtifactsDir = e.Result.ArtifactsDir
			info.Duration = e.Result.Duration
		}
		err = r.store.RecordProcessed(info)
	case pipeline.EventFileFailed:
		msg := e.Message
		if e.Err != nil {
			msg = e.Err.Error()
		}
		err = r.store.RecordFailed(&FailedInfo{
			Input:    e.File,
			RunID:    r.run.ID,
			Error:    msg,
			FailedAt: e.Time,
		})
	case pipeline.EventRunFailed:
		r.run.FinishedAt = e.Time
		r.run.SetupError = e.Message
		err = r.store.RecordRun(&r.run)
	case pipeline.EventRunFinished:
		r.run.FinishedAt = e.Time
		if s := e.Summary; s != nil {
			r.run.Succeeded = s.Succeeded
			r.run.Failed = s.Failed
			r.run.Skipped = s.Skipped
			r.run.Cancelled = s.Cancelled
			r.run.Duration = s.Duration
		}
		err = r.store.RecordRun(&r.run)
	}

	if err != nil {
		r.log.Warn().Err(err).Str("event", string(e.Type)).Msg("Failed to record history")
	}
	return err
}
