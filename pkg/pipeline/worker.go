package pipeline

import (
	"context"
	"sync"

	"github.com/eternnoir/whispscribe/pkg/config"
)

// Worker allows at most one run at a time.
type Worker struct {
	runner *Runner

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
}

// NewWorker wraps runner with a single-active guard.
func NewWorker(runner *Runner) *Worker {
	return &Worker{runner: runner}
}

// Start begins a run unless one is already active, in which case it returns
// false and the request is dropped. Active reports false before the returned
// channel is closed.
func (w *Worker) Start(ctx context.Context, cfg config.Config, files []string) (<-chan Event, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.active {
		runLogger(ctx).Warn().Int("files", len(files)).Msg("Run already in progress, ignoring request")
		return nil, false
	}

	ctx, cancel := context.WithCancel(ctx)
	w.active = true
	w.cancel = cancel

	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)
		defer w.finish()
		_, _ = w.runner.Execute(ctx, cfg, files, func(e Event) { out <- e })
	}()
	return out, true
}

// Cancel stops the active run. The current child process is killed and the
// remaining files are not started.
func (w *Worker) Cancel() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active || w.cancel == nil {
		return false
	}
	w.cancel()
	return true
}

// Active reports whether a run is in progress.
func (w *Worker) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

func (w *Worker) finish() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.active = false
}
