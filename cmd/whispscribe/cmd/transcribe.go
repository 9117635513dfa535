package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/alessio/shellescape"
	"github.com/spf13/cobra"

	"github.com/eternnoir/whispscribe/pkg/audio"
	"github.com/eternnoir/whispscribe/pkg/config"
	"github.com/eternnoir/whispscribe/pkg/history"
	"github.com/eternnoir/whispscribe/pkg/logger"
	"github.com/eternnoir/whispscribe/pkg/pipeline"
	"github.com/eternnoir/whispscribe/pkg/whisper"
)

// transcribeCmd represents the transcribe command
var transcribeCmd = &cobra.Command{
	Use:   "transcribe [files...]",
	Short: "Transcribe audio/video files to text",
	Long: `Transcribe audio or video files with ffmpeg and whisper-cli.

Files are processed one at a time. For every input the audio track is
extracted to <stem>.16k.mono.wav, transcribed, and the transcript is
saved as <stem>.txt. Steps whose output already exists are skipped
unless overwrite is enabled.

Examples:
  # Transcribe two recordings with the saved settings
  whispscribe transcribe talk.mp3 meeting.mkv

  # One-off overrides that are not saved
  whispscribe transcribe interview.m4a --set lang=en --set keep_wav=1

  # Print the commands without running them
  whispscribe transcribe *.mp4 --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().StringArray("set", nil, "override a setting for this run (key=value, repeatable)")
	transcribeCmd.Flags().StringP("outdir", "o", "", "output base directory for this run")
	transcribeCmd.Flags().Bool("dry-run", false, "print the commands that would run and exit")
	transcribeCmd.Flags().Bool("show-output", false, "stream ffmpeg and whisper-cli output to stderr")
	transcribeCmd.Flags().Bool("no-history", false, "do not record this run")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("transcribe")
	out := cmd.OutOrStdout()

	svc, err := loadService()
	if err != nil {
		return err
	}

	cfg, err := runConfig(cmd, svc.Effective())
	if err != nil {
		return err
	}

	files, err := resolveInputs(args)
	if err != nil {
		return err
	}
	log.Info().Int("file_count", len(files)).Msg("Starting transcription")

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		return printPlan(out, pipeline.NewRunner(nil), cfg, files)
	}

	var childOut, childErr io.Writer
	if show, _ := cmd.Flags().GetBool("show-output"); show {
		childOut, childErr = cmd.ErrOrStderr(), cmd.ErrOrStderr()
	}
	runner := pipeline.NewRunner(pipeline.NewExecRunner(childOut, childErr))
	worker := pipeline.NewWorker(runner)

	var store *history.Store
	if noHistory, _ := cmd.Flags().GetBool("no-history"); !noHistory {
		if store = openHistory(svc); store != nil {
			defer func() { _ = store.Close() }()
		}
	}
	rec := history.NewRecorder(store, files)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, logger.WithField("run_id", rec.RunID()))

	events, ok := worker.Start(ctx, cfg, files)
	if !ok {
		return errors.New("a run is already in progress")
	}

	var (
		summary  *pipeline.Summary
		setupErr error
	)
	for e := range events {
		_ = rec.Observe(e)
		printEvent(out, e)
		switch e.Type {
		case pipeline.EventRunFinished:
			summary = e.Summary
		case pipeline.EventRunFailed:
			setupErr = e.Err
		}
	}
	if setupErr != nil {
		return setupErr
	}

	rememberDirs(svc, files, cfg.OutputDir)

	if summary == nil {
		return errors.New("run ended without a summary")
	}
	if summary.Cancelled {
		return fmt.Errorf("cancelled after %d of %d files", summary.Succeeded+summary.Failed, summary.Total)
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", summary.Failed, summary.Total)
	}
	return nil
}

// runConfig applies --set and --outdir to a copy of the effective settings.
func runConfig(cmd *cobra.Command, cfg config.Config) (config.Config, error) {
	sets, _ := cmd.Flags().GetStringArray("set")
	for _, kv := range sets {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			return cfg, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		if err := config.Apply(&cfg, strings.TrimSpace(key), value); err != nil {
			return cfg, err
		}
	}
	if cmd.Flags().Changed("outdir") {
		cfg.OutputDir, _ = cmd.Flags().GetString("outdir")
	}
	return cfg, nil
}

// resolveInputs makes paths absolute and drops duplicates, keeping order.
func resolveInputs(args []string) ([]string, error) {
	seen := make(map[string]bool, len(args))
	files := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", arg, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		files = append(files, abs)
	}
	return files, nil
}

// rememberDirs saves the last used input and output directories. Save
// failures are only logged.
func rememberDirs(svc *config.Service, files []string, outdir string) {
	if len(files) > 0 {
		_ = svc.SetAndPersist(config.KeyRecentInputDir, filepath.Dir(files[0]))
	}
	if outdir != "" {
		_ = svc.SetAndPersist(config.KeyRecentOutputDir, outdir)
	}
}

// printPlan validates the setup and prints each command a run would execute.
// Nothing is created on disk.
func printPlan(w io.Writer, runner *pipeline.Runner, cfg config.Config, files []string) error {
	plan, err := runner.DryPrepare(cfg, files)
	if err != nil {
		return err
	}
	extractor := audio.NewExtractor(plan.Config.FFmpegBin)
	for _, file := range plan.Files {
		stem := audio.Stem(file)
		base := plan.Config.OutputDir
		if base == "" {
			base = filepath.Dir(file)
		}
		dir := base
		if plan.Config.PerFileSubdir {
			dir = filepath.Join(base, stem)
			if !plan.Config.Overwrite {
				dir = pipeline.UniqueDir(base, stem)
			}
		}
		wav := audio.WavPath(dir, stem)
		fmt.Fprintf(w, "# %s\n", file)
		fmt.Fprintf(w, "%s\n", shellescape.QuoteCommand(extractor.Command(file, wav)))
		fmt.Fprintf(w, "%s\n", shellescape.QuoteCommand(whisper.Command(plan.BaseArgs, wav)))
	}
	return nil
}

// printEvent renders a pipeline event as a console line.
func printEvent(w io.Writer, e pipeline.Event) {
	switch e.Type {
	case pipeline.EventRunStarted:
		fmt.Fprintf(w, "▶ %s\n", e.Message)
	case pipeline.EventRunFailed:
		fmt.Fprintf(w, "❌ %s\n", e.Message)
	case pipeline.EventFileStarted:
		fmt.Fprintf(w, "\n%s\n", e.Message)
	case pipeline.EventCommand:
		fmt.Fprintf(w, "%s\n", e.Message)
	case pipeline.EventLog:
		fmt.Fprintf(w, "   %s\n", e.Message)
	case pipeline.EventWarning:
		fmt.Fprintf(w, "⚠️  %s\n", e.Message)
	case pipeline.EventFileDone:
		fmt.Fprintf(w, "%s\n", e.Message)
	case pipeline.EventFileFailed:
		fmt.Fprintf(w, "❌ %s: %s\n", filepath.Base(e.File), e.Message)
	case pipeline.EventRunFinished:
		s := e.Summary
		fmt.Fprintf(w, "\n%s\n", e.Message)
		if s != nil {
			fmt.Fprintf(w, "   Total: %d  Succeeded: %d  Failed: %d  Skipped: %d  Duration: %v\n",
				s.Total, s.Succeeded, s.Failed, s.Skipped, s.Duration.Round(time.Second))
		}
	}
}
