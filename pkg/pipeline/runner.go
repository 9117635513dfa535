// Package pipeline runs the extract, transcribe, reconcile and cleanup steps
// for a batch of media files and reports progress as a stream of events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alessio/shellescape"

	"github.com/eternnoir/whispscribe/pkg/audio"
	"github.com/eternnoir/whispscribe/pkg/config"
	"github.com/eternnoir/whispscribe/pkg/logger"
	"github.com/eternnoir/whispscribe/pkg/whisper"
)

// ErrMissingTranscript is reported when no transcript can be found after
// the engine ran.
var ErrMissingTranscript = errors.New("could not locate .txt transcript")

const eventBuffer = 64

// Option configures a Runner.
type Option func(*Runner)

// WithLookPath replaces the PATH lookup used to validate the transcoder.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(r *Runner) {
		if fn != nil {
			r.lookPath = fn
		}
	}
}

// Runner processes files one after another through the external tools.
type Runner struct {
	commands CommandRunner
	lookPath func(string) (string, error)
}

// NewRunner creates a runner. A nil commands runner executes real processes
// with their output discarded.
func NewRunner(commands CommandRunner, opts ...Option) *Runner {
	if commands == nil {
		commands = NewExecRunner(nil, nil)
	}
	r := &Runner{
		commands: commands,
		lookPath: Which,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate checks cfg using the runner's PATH lookup.
func (r *Runner) Validate(cfg config.Config) error {
	return Validate(cfg, r.lookPath)
}

// Plan is the validated, immutable input of one run.
type Plan struct {
	Config   config.Config
	Files    []string
	BaseArgs []string

	extractor *audio.Extractor
}

// Prepare snapshots cfg and files, validates the setup and assembles the
// engine arguments shared by every file.
func (r *Runner) Prepare(cfg config.Config, files []string) (*Plan, error) {
	return r.prepare(cfg, files, Validate)
}

// DryPrepare builds the same plan as Prepare but leaves the output
// directory uncreated.
func (r *Runner) DryPrepare(cfg config.Config, files []string) (*Plan, error) {
	return r.prepare(cfg, files, Check)
}

func (r *Runner) prepare(cfg config.Config, files []string, check func(config.Config, func(string) (string, error)) error) (*Plan, error) {
	if len(files) == 0 {
		return nil, &SetupError{Check: CheckFiles, Err: ErrNoFiles}
	}

	cfg = cfg.Clone()
	if err := check(cfg, r.lookPath); err != nil {
		return nil, err
	}

	base, err := whisper.BaseArgs(cfg)
	if err != nil {
		return nil, &SetupError{Check: CheckExtraArgs, Path: cfg.ExtraArgs, Err: err}
	}

	return &Plan{
		Config:    cfg,
		Files:     append([]string(nil), files...),
		BaseArgs:  base,
		extractor: audio.NewExtractor(cfg.FFmpegBin),
	}, nil
}

// Run executes the batch in a new goroutine. The returned channel is closed
// after the final EventRunFinished or EventRunFailed.
func (r *Runner) Run(ctx context.Context, cfg config.Config, files []string) <-chan Event {
	out := make(chan Event, eventBuffer)
	go func() {
		defer close(out)
		_, _ = r.Execute(ctx, cfg, files, func(e Event) { out <- e })
	}()
	return out
}

// Execute runs the batch synchronously, calling emit for every event.
// It returns an error only when setup validation fails; per-file failures
// are reported through events and the summary.
func (r *Runner) Execute(ctx context.Context, cfg config.Config, files []string, emit func(Event)) (*Summary, error) {
	if emit == nil {
		emit = func(Event) {}
	}
	start := time.Now()
	total := len(files)
	send := func(e Event) {
		e.Time = time.Now()
		e.Total = total
		emit(e)
	}

	log := runLogger(ctx)
	plan, err := r.Prepare(cfg, files)
	if err != nil {
		log.Error().Err(err).Msg("Run setup failed")
		send(Event{Type: EventRunFailed, Message: err.Error(), Err: err})
		return nil, err
	}

	log.Info().Int("files", total).Msg("Starting run")
	send(Event{Type: EventRunStarted, Message: fmt.Sprintf("Processing %d file(s)", total)})

	summary := &Summary{Total: total}
	for i, file := range plan.Files {
		if err := ctx.Err(); err != nil {
			summary.Cancelled = true
			summary.Skipped = total - i
			send(Event{
				Type:    EventWarning,
				Message: fmt.Sprintf("Cancelled, %d file(s) not processed", summary.Skipped),
				Err:     err,
			})
			break
		}

		index := i + 1
		fileEmit := func(e Event) {
			e.File = file
			e.Index = index
			send(e)
		}

		fileEmit(Event{Type: EventFileStarted, Message: fmt.Sprintf("[%d/%d] %s", index, total, file)})
		res := r.ProcessOne(ctx, plan, file, fileEmit)
		summary.Results = append(summary.Results, res)

		if res.Err != nil {
			summary.Failed++
			log.Warn().Err(res.Err).Str("file", file).Msg("File failed")
			fileEmit(Event{Type: EventFileFailed, Message: res.Err.Error(), Err: res.Err, Result: &res})
			continue
		}
		summary.Succeeded++
		log.Info().Str("file", file).Str("transcript", res.Transcript).Dur("duration", res.Duration).Msg("File done")
		fileEmit(Event{Type: EventFileDone, Message: "✅ " + res.Transcript, Transcript: res.Transcript, Result: &res})
	}

	if ctx.Err() != nil {
		summary.Cancelled = true
	}
	summary.Duration = time.Since(start)

	log.Info().
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("Run finished")
	send(Event{
		Type:    EventRunFinished,
		Message: fmt.Sprintf("Done. %d succeeded, %d failed", summary.Succeeded, summary.Failed),
		Summary: summary,
	})
	return summary, nil
}

// ProcessOne extracts, transcribes, reconciles and cleans up a single input.
// Steps whose output already exists are skipped unless overwrite is set.
func (r *Runner) ProcessOne(ctx context.Context, plan *Plan, input string, emit func(Event)) (res FileResult) {
	if emit == nil {
		emit = func(Event) {}
	}
	start := time.Now()
	res.Input = input
	defer func() { res.Duration = time.Since(start) }()

	logf := func(format string, args ...any) {
		emit(Event{Type: EventLog, Message: fmt.Sprintf(format, args...)})
	}

	if !isFile(input) {
		res.Err = fmt.Errorf("input not found: %s", input)
		return res
	}

	cfg := plan.Config
	stem := audio.Stem(input)

	base := strings.TrimSpace(cfg.OutputDir)
	if base == "" {
		base = filepath.Dir(input)
	}
	dir, err := artifactsDir(base, stem, cfg.PerFileSubdir, cfg.Overwrite)
	if err != nil {
		res.Err = fmt.Errorf("create artifacts directory: %w", err)
		return res
	}
	res.ArtifactsDir = dir
	logf("Artifacts dir: %s", dir)

	wav := audio.WavPath(dir, stem)
	txt := filepath.Join(dir, stem+".txt")
	res.Audio = wav

	if isFile(wav) && !cfg.Overwrite {
		logf("Audio exists, skipping extraction: %s", wav)
	} else {
		logf("Extracting audio → %s", wav)
		if err := r.run(ctx, plan.extractor.Command(input, wav), emit); err != nil {
			res.Err = fmt.Errorf("extract audio: %w", err)
			return res
		}
		if !isFile(wav) {
			res.Err = fmt.Errorf("extract audio: %s was not produced", wav)
			return res
		}
		res.Extracted = true
	}

	if isFile(txt) && !cfg.Overwrite {
		logf("Transcript exists, skipping transcription: %s", txt)
	} else {
		logf("Transcribing %s", wav)
		if err := r.run(ctx, whisper.Command(plan.BaseArgs, wav), emit); err != nil {
			res.Err = fmt.Errorf("transcribe: %w", err)
			return res
		}
		res.Transcribed = true

		if !isFile(txt) {
			found := NewestExisting(append(transcriptCandidates(dir, stem), wav+".txt"))
			if found != "" && found != txt {
				emit(Event{
					Type:    EventWarning,
					Message: fmt.Sprintf("Engine wrote %s, renaming to %s", filepath.Base(found), filepath.Base(txt)),
				})
				if err := os.Rename(found, txt); err != nil {
					res.Err = fmt.Errorf("rename transcript: %w", err)
					return res
				}
				res.Renamed = found
			}
		}
	}

	if !cfg.KeepAudio && isFile(wav) {
		if err := os.Remove(wav); err != nil {
			emit(Event{Type: EventWarning, Message: fmt.Sprintf("Could not remove %s: %v", wav, err), Err: err})
		} else {
			logf("Removed %s", wav)
		}
	}

	if !isFile(txt) {
		res.Err = fmt.Errorf("%w in %s", ErrMissingTranscript, dir)
		return res
	}
	res.Transcript = txt
	return res
}

func (r *Runner) run(ctx context.Context, argv []string, emit func(Event)) error {
	emit(Event{Type: EventCommand, Message: "$ " + shellescape.QuoteCommand(argv), Argv: argv})
	runLogger(ctx).Debug().Strs("argv", argv).Msg("Running command")
	return r.commands.Run(ctx, argv)
}

// runLogger returns the logger carried by ctx, tagged for this package.
func runLogger(ctx context.Context) *logger.Logger {
	return logger.FromContext(ctx).WithComponent("pipeline")
}

// artifactsDir returns, creating it if needed, the directory that receives
// the intermediate audio and the transcript.
func artifactsDir(base, stem string, perFile, overwrite bool) (string, error) {
	dir := base
	if perFile {
		if overwrite {
			dir = filepath.Join(base, stem)
		} else {
			dir = UniqueDir(base, stem)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
