package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/eternnoir/whispscribe/pkg/logger"
	"github.com/eternnoir/whispscribe/pkg/pipeline"
	"github.com/eternnoir/whispscribe/pkg/watcher"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch [directory]",
	Short: "Watch a directory and transcribe new media files",
	Long: `Watch a directory for new audio/video files and transcribe them one at a time
with the saved settings.

Inputs that already have a successful run in the history are skipped unless
overwrite is enabled. Inputs whose last attempt failed are skipped unless
--retry-failed is given.

Examples:
  # Watch the current directory
  whispscribe watch .

  # Watch recursively and move finished inputs away
  whispscribe watch ./inbox -r --move-to ./processed

  # Process existing files once and exit
  whispscribe watch ./batch --once

  # Only pick up some file types
  whispscribe watch ./audio --pattern "*.mp3,*.m4a"`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringSlice("pattern", nil, "file patterns to watch (default: any supported media)")
	watchCmd.Flags().BoolP("recursive", "r", false, "watch subdirectories recursively")
	watchCmd.Flags().Duration("interval", 30*time.Second, "rescan interval for missed files")
	watchCmd.Flags().Duration("stability-wait", 2*time.Second, "time to wait for file stability")
	watchCmd.Flags().Bool("once", false, "process existing files and exit")
	watchCmd.Flags().Bool("no-existing", false, "skip processing existing files on startup")
	watchCmd.Flags().Bool("retry-failed", false, "retry previously failed files")
	watchCmd.Flags().String("move-to", "", "move processed files to this directory")
	watchCmd.Flags().StringArray("set", nil, "override a setting for this session (key=value, repeatable)")
	watchCmd.Flags().StringP("outdir", "o", "", "output base directory for this session")
	watchCmd.Flags().Bool("show-output", false, "stream ffmpeg and whisper-cli output to stderr")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")
	out := cmd.OutOrStdout()

	watchDir := args[0]
	info, err := os.Stat(watchDir)
	if err != nil {
		return fmt.Errorf("invalid watch directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch path must be a directory")
	}

	svc, err := loadService()
	if err != nil {
		return err
	}
	pipelineCfg, err := runConfig(cmd, svc.Effective())
	if err != nil {
		return err
	}

	cfg := watcher.DefaultWatchConfig()
	cfg.WatchDir = watchDir
	cfg.Pipeline = pipelineCfg
	cfg.Patterns, _ = cmd.Flags().GetStringSlice("pattern")
	cfg.Recursive, _ = cmd.Flags().GetBool("recursive")
	cfg.Interval, _ = cmd.Flags().GetDuration("interval")
	cfg.StabilityWait, _ = cmd.Flags().GetDuration("stability-wait")
	cfg.RetryFailed, _ = cmd.Flags().GetBool("retry-failed")
	cfg.MoveToDir, _ = cmd.Flags().GetString("move-to")
	noExisting, _ := cmd.Flags().GetBool("no-existing")
	cfg.ProcessExisting = !noExisting

	store := openHistory(svc)
	if store != nil {
		defer func() { _ = store.Close() }()
	}

	runner := pipeline.NewRunner(nil)
	if show, _ := cmd.Flags().GetBool("show-output"); show {
		runner = pipeline.NewRunner(pipeline.NewExecRunner(cmd.ErrOrStderr(), cmd.ErrOrStderr()))
	}

	fileWatcher, err := watcher.New(cfg, runner, store)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	fileWatcher.SetProgressCallback(func(event *watcher.ProgressEvent) {
		switch event.Type {
		case watcher.ProgressFound:
			fmt.Fprintf(out, "📁 Found: %s\n", event.FilePath)
		case watcher.ProgressProcessing:
			fmt.Fprintf(out, "⏳ Processing: %s\n", event.FilePath)
		case watcher.ProgressCompleted:
			fmt.Fprintf(out, "✅ Completed: %s → %s\n", event.FilePath, event.Transcript)
		case watcher.ProgressFailed:
			fmt.Fprintf(out, "❌ Failed: %s - %v\n", event.FilePath, event.Error)
		case watcher.ProgressSkipped:
			fmt.Fprintf(out, "⏭️  Skipped: %s - %s\n", event.FilePath, event.Message)
		}
	})
	fileWatcher.SetEventHandler(func(e pipeline.Event) {
		switch e.Type {
		case pipeline.EventCommand, pipeline.EventWarning:
			printEvent(out, e)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, logger.WithField("watch_dir", cfg.WatchDir))

	if err := fileWatcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file watcher: %w", err)
	}

	if once, _ := cmd.Flags().GetBool("once"); once {
		log.Info().Msg("Running in once mode, will exit after processing existing files")
		done := make(chan struct{})
		go func() {
			fileWatcher.WaitForInitialProcessing().Wait()
			close(done)
		}()
		select {
		case <-done:
			log.Info().Msg("Initial processing completed, exiting")
		case <-ctx.Done():
		}
	} else {
		fmt.Fprintf(out, "\n👀 Watching directory: %s\n", watchDir)
		if cfg.Recursive {
			fmt.Fprintln(out, "   Recursive: Yes")
		}
		if len(cfg.Patterns) > 0 {
			fmt.Fprintf(out, "   Patterns: %s\n", strings.Join(cfg.Patterns, ", "))
		}
		if cfg.Pipeline.OutputDir != "" {
			fmt.Fprintf(out, "   Output: %s\n", cfg.Pipeline.OutputDir)
		}
		if cfg.MoveToDir != "" {
			fmt.Fprintf(out, "   Move to: %s\n", cfg.MoveToDir)
		}
		fmt.Fprintln(out, "\nPress Ctrl+C to stop watching...")

		<-ctx.Done()
		fmt.Fprintln(out, "\n\n🛑 Shutting down...")
	}

	if err := fileWatcher.Stop(); err != nil {
		return fmt.Errorf("error stopping file watcher: %w", err)
	}

	stats := fileWatcher.GetStats()
	fmt.Fprintf(out, "\n📊 Final Statistics:\n")
	fmt.Fprintf(out, "   Processed: %d files\n", stats.ProcessedCount)
	fmt.Fprintf(out, "   Failed: %d files\n", stats.FailedCount)
	fmt.Fprintf(out, "   Skipped: %d files\n", stats.SkippedCount)
	fmt.Fprintf(out, "   Duration: %v\n", time.Since(stats.StartTime).Round(time.Second))

	return nil
}
