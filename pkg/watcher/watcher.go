// Package watcher feeds new media files from a directory into the pipeline
// one at a time.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/eternnoir/whispscribe/pkg/history"
	"github.com/eternnoir/whispscribe/pkg/logger"
	"github.com/eternnoir/whispscribe/pkg/pipeline"
)

const debounceWindow = 5 * time.Second

// Watcher watches a directory and transcribes matching files sequentially.
type Watcher struct {
	config   *WatchConfig
	runner   *pipeline.Runner
	history  *history.Store
	watcher  *fsnotify.Watcher
	progress ProgressCallback
	events   func(pipeline.Event)

	stats     WatchStats
	statsLock sync.RWMutex

	// Event deduplication
	recentEvents    map[string]time.Time
	recentEventsMux sync.Mutex

	// Queued files, and the modification time each input had when handled
	pending    map[string]bool
	handled    map[string]time.Time
	pendingMux sync.Mutex

	// Initial processing tracking
	initialProcessing    sync.WaitGroup
	initialProcessingMap map[string]bool
	initialProcessingMux sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	queue    chan string
	wg       sync.WaitGroup
}

// New creates a watcher. store may be nil, in which case nothing is
// remembered across restarts.
func New(config *WatchConfig, runner *pipeline.Runner, store *history.Store) (*Watcher, error) {
	if config.WatchDir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("pipeline runner is required")
	}
	if config.Interval <= 0 {
		config.Interval = DefaultWatchConfig().Interval
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultWatchConfig().QueueSize
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		config:               config,
		runner:               runner,
		history:              store,
		watcher:              fsw,
		recentEvents:         make(map[string]time.Time),
		pending:              make(map[string]bool),
		handled:              make(map[string]time.Time),
		initialProcessingMap: make(map[string]bool),
		stopCh:               make(chan struct{}),
		queue:                make(chan string, config.QueueSize),
		stats:                WatchStats{StartTime: time.Now()},
	}, nil
}

// SetProgressCallback sets a callback for per-file progress updates.
func (w *Watcher) SetProgressCallback(callback ProgressCallback) {
	w.progress = callback
}

// SetEventHandler forwards the pipeline events of every file.
func (w *Watcher) SetEventHandler(fn func(pipeline.Event)) {
	w.events = fn
}

// Start validates the pipeline settings and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	log := logger.WithComponent("watcher")

	if err := w.runner.Validate(w.config.Pipeline); err != nil {
		return err
	}

	if err := w.addWatchDir(w.config.WatchDir); err != nil {
		return fmt.Errorf("failed to add watch directory: %w", err)
	}

	w.wg.Add(1)
	go w.processWorker(ctx)

	w.wg.Add(1)
	go w.cleanupRoutine()

	if w.config.ProcessExisting {
		log.Info().Msg("Processing existing files")
		if err := w.processExistingFiles(); err != nil {
			log.Warn().Err(err).Msg("Failed to process some existing files")
		}
	}

	w.wg.Add(1)
	go w.watchLoop(ctx)

	log.Info().
		Str("directory", w.config.WatchDir).
		Bool("recursive", w.config.Recursive).
		Strs("patterns", w.config.Patterns).
		Msg("File watcher started")

	return nil
}

// Stop shuts down the watcher after the file in progress finishes.
// The history store is left open.
func (w *Watcher) Stop() error {
	log := logger.WithComponent("watcher")
	log.Info().Msg("Stopping file watcher")

	w.stopOnce.Do(func() { close(w.stopCh) })

	if err := w.watcher.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing watcher")
	}

	w.wg.Wait()

	log.Info().Msg("File watcher stopped")
	return nil
}

// GetStats returns statistics about processed files
func (w *Watcher) GetStats() *WatchStats {
	w.statsLock.RLock()
	stats := w.stats
	w.statsLock.RUnlock()

	w.pendingMux.Lock()
	stats.Queued = len(w.pending)
	w.pendingMux.Unlock()
	return &stats
}

// WaitForInitialProcessing returns a WaitGroup that completes when the files
// found at startup have been handled.
func (w *Watcher) WaitForInitialProcessing() *sync.WaitGroup {
	return &w.initialProcessing
}

// addWatchDir adds a directory to watch
func (w *Watcher) addWatchDir(dir string) error {
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	if !w.config.Recursive {
		return nil
	}
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() && path != dir {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// walkCandidates calls fn for every file under the watch directory,
// honouring the recursive setting.
func (w *Watcher) walkCandidates(fn func(path string) error) error {
	root := w.config.WatchDir
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if !w.config.Recursive && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		return fn(path)
	})
}

// processExistingFiles queues files that already exist in the watch directory
func (w *Watcher) processExistingFiles() error {
	log := logger.WithComponent("watcher")

	return w.walkCandidates(func(path string) error {
		if !w.CanProcess(path) {
			return nil
		}
		log.Debug().Str("file", path).Msg("Queueing existing file")

		w.initialProcessingMux.Lock()
		w.initialProcessingMap[path] = true
		w.initialProcessing.Add(1)
		w.initialProcessingMux.Unlock()

		if !w.enqueue(path, true) {
			w.markInitialDone(path)
			return fmt.Errorf("watcher stopped")
		}
		return nil
	})
}

// watchLoop is the main watch loop
func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()
	log := logger.WithComponent("watcher")

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFileEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")
		case <-ticker.C:
			w.periodicScan()
		}
	}
}

// handleFileEvent handles a file system event
func (w *Watcher) handleFileEvent(event fsnotify.Event) {
	log := logger.WithComponent("watcher").WithField("file", event.Name)

	if event.Op&fsnotify.Create == fsnotify.Create && w.config.Recursive {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addWatchDir(event.Name); err != nil {
				log.Warn().Err(err).Msg("Failed to watch new directory")
			}
			return
		}
	}

	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if w.isDuplicateEvent(event.Name) {
		log.Debug().Msg("Duplicate event ignored")
		return
	}
	if w.CanProcess(event.Name) {
		w.queueFile(event.Name)
	}
}

// periodicScan catches files fsnotify missed and files that settled after
// a debounced event.
func (w *Watcher) periodicScan() {
	_ = w.walkCandidates(func(path string) error {
		if w.CanProcess(path) {
			w.queueFile(path)
		}
		return nil
	})
}

// queueFile queues a file for processing
func (w *Watcher) queueFile(path string) {
	if w.enqueue(path, false) {
		w.reportProgress(&ProgressEvent{
			Type:      ProgressFound,
			FilePath:  path,
			Message:   "File queued for processing",
			Timestamp: time.Now(),
		})
	}
}

// enqueue adds path unless it is already pending. With block set it waits
// for queue space; otherwise a full queue drops the file until the next scan.
func (w *Watcher) enqueue(path string, block bool) bool {
	w.pendingMux.Lock()
	if w.pending[path] {
		w.pendingMux.Unlock()
		return false
	}
	w.pending[path] = true
	w.pendingMux.Unlock()

	if block {
		select {
		case w.queue <- path:
			return true
		case <-w.stopCh:
		}
	} else {
		select {
		case w.queue <- path:
			return true
		default:
			logger.WithComponent("watcher").Warn().Str("file", path).Msg("Queue is full, skipping file")
		}
	}

	w.pendingMux.Lock()
	delete(w.pending, path)
	w.pendingMux.Unlock()
	return false
}

// processWorker drains the queue one file at a time
func (w *Watcher) processWorker(ctx context.Context) {
	defer w.wg.Done()
	log := logger.WithComponent("worker")

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case path := <-w.queue:
			log.Debug().Str("file", path).Msg("Processing file")
			if err := w.ProcessFile(ctx, path); err != nil {
				log.Error().Err(err).Str("file", path).Msg("Failed to process file")
			}
			w.markHandled(path)
			w.markInitialDone(path)
		}
	}
}

// markHandled remembers the input's modification time so rescans skip it
// until it changes.
func (w *Watcher) markHandled(path string) {
	w.pendingMux.Lock()
	defer w.pendingMux.Unlock()
	delete(w.pending, path)
	if info, err := os.Stat(path); err == nil {
		w.handled[path] = info.ModTime()
	}
}

func (w *Watcher) alreadyHandled(path string, info os.FileInfo) bool {
	w.pendingMux.Lock()
	defer w.pendingMux.Unlock()
	if w.pending[path] {
		return true
	}
	mt, ok := w.handled[path]
	return ok && mt.Equal(info.ModTime())
}

func (w *Watcher) markInitialDone(path string) {
	w.initialProcessingMux.Lock()
	defer w.initialProcessingMux.Unlock()
	if w.initialProcessingMap[path] {
		delete(w.initialProcessingMap, path)
		w.initialProcessing.Done()
	}
}

// cleanupRoutine periodically trims the debounce cache
func (w *Watcher) cleanupRoutine() {
	defer w.wg.Done()
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.cleanupRecentEvents()
		}
	}
}

// isDuplicateEvent checks if we've seen this file event recently (debouncing)
func (w *Watcher) isDuplicateEvent(filePath string) bool {
	w.recentEventsMux.Lock()
	defer w.recentEventsMux.Unlock()

	now := time.Now()
	if lastSeen, exists := w.recentEvents[filePath]; exists && now.Sub(lastSeen) < debounceWindow {
		return true
	}
	w.recentEvents[filePath] = now
	return false
}

// cleanupRecentEvents removes old entries from the recent events cache
func (w *Watcher) cleanupRecentEvents() {
	w.recentEventsMux.Lock()
	defer w.recentEventsMux.Unlock()

	now := time.Now()
	for filePath, timestamp := range w.recentEvents {
		if now.Sub(timestamp) > 6*debounceWindow {
			delete(w.recentEvents, filePath)
		}
	}
}

// reportProgress updates stats and forwards the event to the callback
func (w *Watcher) reportProgress(event *ProgressEvent) {
	w.statsLock.Lock()
	switch event.Type {
	case ProgressCompleted:
		w.stats.ProcessedCount++
	case ProgressFailed:
		w.stats.FailedCount++
	case ProgressSkipped:
		w.stats.SkippedCount++
	}
	w.statsLock.Unlock()

	if w.progress != nil {
		w.progress(event)
	}
}
