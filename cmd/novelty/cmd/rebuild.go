package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/mfenderov/patent-novelty/internal/storage"
	"github.com/spf13/cobra"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Load the persisted corpus and report its size",
	Long: `Load every persisted corpus document into the in-memory index and report
what was loaded. Documents without an embedding or with a different
dimension are skipped.

Example:
  novelty rebuild`,
	Args: cobra.NoArgs,
	RunE: runRebuild,
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Corpus rebuilt (%s backend):\n", cfg.Corpus.Backend)
	fmt.Fprintf(out, "  Loaded:    %d\n", a.loaded.Loaded)
	fmt.Fprintf(out, "  Skipped:   %d\n", a.loaded.Skipped)
	fmt.Fprintf(out, "  Dimension: %d\n", a.index.Dimension())

	if a.storage != nil {
		manifest, err := a.storage.GetManifest(ctx, storage.CorpusPrefix)
		if err != nil {
			slog.Debug("no seed manifest", "error", err)
			return nil
		}
		fmt.Fprintf(out, "\nLast seed run:\n")
		fmt.Fprintf(out, "  Source:    %s\n", manifest.Source)
		fmt.Fprintf(out, "  At:        %s\n", manifest.Timestamp.Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "  Admitted:  %d\n", len(manifest.Admitted))
		fmt.Fprintf(out, "  Failed:    %d\n", len(manifest.Failed))
	}
	return nil
}
