package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [document-id]",
	Short: "Show the evaluation audit log",
	Long: `Show recorded evaluations, newest first. The audit log is kept by the
sqlite corpus backend only.

Examples:
  novelty history
  novelty history 3f2a9c0d1b4e5f60 --limit 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum number of entries (0 for all)")
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, GetConfig(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.sqlite == nil {
		return fmt.Errorf("the audit log requires the sqlite corpus backend")
	}

	documentID := ""
	if len(args) == 1 {
		documentID = args[0]
	}

	scores, err := a.sqlite.Scores(ctx, documentID, historyLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(scores) == 0 {
		fmt.Fprintln(out, "No evaluations recorded.")
		return nil
	}
	for _, s := range scores {
		fmt.Fprintf(out, "%s  %s  %-9s  uniqueness=%.4f  match=%s  file=%s\n",
			s.Timestamp.UTC().Format("2006-01-02T15:04:05Z"), s.DocumentID, s.Action,
			s.UniquenessScore, s.MatchFilename, s.Filename)
	}
	return nil
}
