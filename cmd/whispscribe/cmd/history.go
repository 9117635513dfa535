package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/eternnoir/whispscribe/pkg/history"
)

var historyCmd = &cobra.Command{
	Use:   "history [file]",
	Short: "Show recent runs, or the last result for a file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 10, "number of runs to show (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	svc, err := loadService()
	if err != nil {
		return err
	}
	store, err := history.Open(historyPath(svc))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		input, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		return printFileHistory(out, store, input)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.RecentRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tFILES\tOK\tFAILED\tSKIPPED\tDURATION\tNOTE")
	for _, r := range runs {
		note := r.SetupError
		if r.Cancelled {
			note = "cancelled"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%v\t%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			len(r.Files), r.Succeeded, r.Failed, r.Skipped,
			r.Duration.Round(time.Second), note)
	}
	return tw.Flush()
}

func printFileHistory(out io.Writer, store *history.Store, input string) error {
	processed, err := store.GetProcessedInfo(input)
	if err != nil {
		return err
	}
	if processed != nil {
		fmt.Fprintf(out, "✅ %s\n   transcript: %s\n   at: %s (run %s)\n",
			input, processed.Transcript, processed.ProcessedAt.Local().Format(time.DateTime), processed.RunID)
		return nil
	}

	failed, err := store.GetFailedInfo(input)
	if err != nil {
		return err
	}
	if failed != nil {
		fmt.Fprintf(out, "❌ %s\n   error: %s\n   at: %s (run %s, retries %d)\n",
			input, failed.Error, failed.FailedAt.Local().Format(time.DateTime), failed.RunID, failed.RetryCount)
		return nil
	}

	fmt.Fprintf(out, "%s has no recorded result\n", input)
	return nil
}
