package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mfenderov/patent-novelty/internal/pipeline"
	"github.com/spf13/cobra"
)

var assessOutput string

var assessCmd = &cobra.Command{
	Use:   "assess [file]",
	Short: "Assess a patent document for novelty",
	Long: `Assess a document against the prior-art corpus.

A document closer to the corpus than the novelty threshold is admitted as
new prior art; a unique document is reported and discarded. The result is
printed as JSON.

Examples:
  # Assess a plain-text patent
  novelty assess US10123456.txt

  # Save the result to a file
  novelty assess US10123456.html --output results/US10123456.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)

	assessCmd.Flags().StringVarP(&assessOutput, "output", "o", "", "Write the JSON result to this file")
}

func runAssess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	up, err := readUpload(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{judgment: true})
	if err != nil {
		return err
	}
	defer a.Close()

	slog.Debug("assess command starting", "file", args[0], "corpus_size", a.index.Len())

	assessment, err := a.pipeline.Assess(ctx, up)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(assessment.Record, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))

	if assessOutput != "" {
		if err := pipeline.WriteResult(assessOutput, assessment.Record); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Result saved to %s\n", assessOutput)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Corpus action: %s\n", assessment.Mutation.Action)
	return nil
}

func readUpload(path string) (pipeline.Upload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Upload{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return pipeline.Upload{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
	}, nil
}
