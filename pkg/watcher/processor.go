package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/eternnoir/whispscribe/pkg/audio"
	"github.com/eternnoir/whispscribe/pkg/history"
	"github.com/eternnoir/whispscribe/pkg/logger"
	"github.com/eternnoir/whispscribe/pkg/pipeline"
)

// ProcessFile runs the pipeline for a single input unless history says it
// is already done.
func (w *Watcher) ProcessFile(ctx context.Context, filePath string) error {
	log := logger.WithComponent("processor").WithField("file", filePath)

	w.reportProgress(&ProgressEvent{
		Type:      ProgressProcessing,
		FilePath:  filePath,
		Message:   "Starting processing",
		Timestamp: time.Now(),
	})

	if reason := w.skipReason(filePath); reason != "" {
		w.reportProgress(&ProgressEvent{
			Type:      ProgressSkipped,
			FilePath:  filePath,
			Message:   reason,
			Timestamp: time.Now(),
		})
		return nil
	}

	startTime := time.Now()
	rec := history.NewRecorder(w.history, []string{filePath})
	summary, err := w.runner.Execute(ctx, w.config.Pipeline, []string{filePath}, func(e pipeline.Event) {
		_ = rec.Observe(e)
		if w.events != nil {
			w.events(e)
		}
	})
	if err == nil {
		err = resultError(summary)
	}
	if err != nil {
		w.reportProgress(&ProgressEvent{
			Type:      ProgressFailed,
			FilePath:  filePath,
			Message:   "Transcription failed",
			Error:     err,
			Timestamp: time.Now(),
		})
		return fmt.Errorf("transcription failed: %w", err)
	}

	transcript := summary.Results[0].Transcript

	if w.config.MoveToDir != "" {
		if err := moveFile(filePath, w.config.MoveToDir); err != nil {
			log.Warn().Err(err).Msg("Failed to move processed file")
		}
	}

	w.reportProgress(&ProgressEvent{
		Type:       ProgressCompleted,
		FilePath:   filePath,
		Message:    fmt.Sprintf("Transcription completed in %v", time.Since(startTime).Round(time.Millisecond)),
		Transcript: transcript,
		Timestamp:  time.Now(),
	})

	log.Info().
		Dur("duration", time.Since(startTime)).
		Str("transcript", transcript).
		Msg("File processed successfully")

	return nil
}

func resultError(summary *pipeline.Summary) error {
	if summary == nil || len(summary.Results) == 0 {
		if summary != nil && summary.Cancelled {
			return context.Canceled
		}
		return errors.New("file was not processed")
	}
	return summary.Results[0].Err
}

// skipReason explains why filePath should not be processed, or returns "".
func (w *Watcher) skipReason(filePath string) string {
	if w.history == nil {
		return ""
	}
	log := logger.WithComponent("processor").WithField("file", filePath)

	if !w.config.Pipeline.Overwrite {
		processed, err := w.history.IsProcessed(filePath)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to check processing history")
		} else if processed {
			return "File already processed"
		}
	}

	if !w.config.RetryFailed {
		failed, err := w.history.GetFailedInfo(filePath)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to check processing history")
		} else if failed != nil {
			return fmt.Sprintf("Previous attempt failed: %s", failed.Error)
		}
	}
	return ""
}

// CanProcess checks if a file can be processed
func (w *Watcher) CanProcess(filePath string) bool {
	if !w.matches(filePath) {
		return false
	}

	info, err := os.Stat(filePath)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	if w.alreadyHandled(filePath, info) {
		return false
	}

	return w.isFileStable(filePath)
}

// matches checks the file name against the configured patterns. Intermediate
// audio written by the pipeline never matches.
func (w *Watcher) matches(filePath string) bool {
	filename := filepath.Base(filePath)
	if strings.HasSuffix(filename, audio.WavSuffix) {
		return false
	}
	if len(w.config.Patterns) == 0 {
		return audio.IsSupported(filename)
	}
	for _, pattern := range w.config.Patterns {
		if match, _ := filepath.Match(pattern, filename); match {
			return true
		}
	}
	return false
}

// isFileStable checks if a file has been stable for the configured duration
func (w *Watcher) isFileStable(filePath string) bool {
	info1, err := os.Stat(filePath)
	if err != nil {
		return false
	}

	time.Sleep(w.config.StabilityWait)

	info2, err := os.Stat(filePath)
	if err != nil {
		return false
	}

	return info1.Size() == info2.Size() &&
		info1.ModTime().Equal(info2.ModTime())
}

// moveFile moves a processed input into dir, adding a timestamp when the
// name is taken.
func moveFile(filePath, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create move-to directory: %w", err)
	}

	destPath := filepath.Join(dir, filepath.Base(filePath))
	if _, err := os.Stat(destPath); err == nil {
		ext := filepath.Ext(filePath)
		name := strings.TrimSuffix(filepath.Base(filePath), ext)
		timestamp := time.Now().Format("20060102_150405")
		destPath = filepath.Join(dir, fmt.Sprintf("%s_%s%s", name, timestamp, ext))
	}

	err := os.Rename(filePath, destPath)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.EXDEV) {
		return copyThenDelete(filePath, destPath)
	}
	return fmt.Errorf("failed to move file: %w", err)
}

// copyThenDelete copies a file then deletes the original (for cross-filesystem moves)
func copyThenDelete(srcPath, destPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = src.Close() }()

	dest, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() { _ = dest.Close() }()

	if _, err := io.Copy(dest, src); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	if err := dest.Sync(); err != nil {
		_ = os.Remove(destPath)
		return fmt.Errorf("failed to sync destination file: %w", err)
	}
	if srcInfo, err := src.Stat(); err == nil {
		_ = dest.Chmod(srcInfo.Mode())
	}

	_ = dest.Close()
	_ = src.Close()

	if err := os.Remove(srcPath); err != nil {
		return fmt.Errorf("failed to delete original file after copy: %w", err)
	}
	return nil
}
