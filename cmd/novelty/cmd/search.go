package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	searchLimit  int
	searchFormat string
)

var searchCmd = &cobra.Command{
	Use:   "search [file]",
	Short: "Show the nearest corpus documents",
	Long: `Show the corpus documents closest to a file without changing the corpus.

Examples:
  # Three nearest documents
  novelty search US10123456.txt

  # JSON output for scripting
  novelty search US10123456.txt --limit 10 --format json`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVar(&searchLimit, "limit", 3, "Maximum number of results")
	searchCmd.Flags().StringVar(&searchFormat, "format", "text", "Output format: text or json")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	up, err := readUpload(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, GetConfig(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.pipeline.Search(ctx, up, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if searchFormat == "json" {
		output, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(output))
		return nil
	}

	fmt.Fprintf(out, "Found %d results:\n\n", len(results))
	for i, r := range results {
		fmt.Fprintf(out, "─── Result %d ───\n", i+1)
		fmt.Fprintf(out, "Filename:   %s\n", r.Filename)
		fmt.Fprintf(out, "ID:         %s\n", r.ID)
		fmt.Fprintf(out, "Distance:   %.4f\n", r.Distance)
		fmt.Fprintf(out, "Similarity: %.4f\n\n", r.Similarity)
	}
	return nil
}
