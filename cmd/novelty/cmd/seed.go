package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/mfenderov/patent-novelty/internal/config"
	"github.com/mfenderov/patent-novelty/internal/ingestion"
	"github.com/spf13/cobra"
)

var (
	seedDir    string
	seedPrefix string
	seedURL    string
	seedSource string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the prior-art corpus",
	Long: `Admit documents to the corpus unconditionally.

Without flags, every configured source is seeded, falling back to
corpus.seed_dir when no sources are configured.

Examples:
  # Seed from a local directory of accepted patents
  novelty seed --dir data/prior_patents

  # Seed from an object-store prefix
  novelty seed --prefix seeds/uspto-2024

  # Crawl patent pages
  novelty seed --url https://patents.example.com/list

  # Seed a single configured source
  novelty seed --source uspto`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedDir, "dir", "", "Directory of documents to seed")
	seedCmd.Flags().StringVar(&seedPrefix, "prefix", "", "Object-store prefix to seed")
	seedCmd.Flags().StringVar(&seedURL, "url", "", "URL to crawl for documents")
	seedCmd.Flags().StringVar(&seedSource, "source", "", "Source name from config to seed")
	seedCmd.MarkFlagsMutuallyExclusive("dir", "prefix", "url", "source")
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()
	sources, err := seedSources(cfg)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	seeder, err := a.seeder(cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, src := range sources {
		slog.Debug("seeding source", "name", src.Name)
		fmt.Fprintf(out, "Seeding: %s\n", describeSource(src))

		var result *ingestion.Result
		switch {
		case src.Dir != "":
			result, err = seeder.SeedDir(ctx, src.Dir)
		case src.Prefix != "":
			result, err = seeder.SeedPrefix(ctx, src.Prefix)
		default:
			result, err = seeder.SeedURL(ctx, src.URL)
		}
		if result != nil {
			printSeedResult(cmd, result)
		}
		if err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}
	}

	fmt.Fprintf(out, "\nCorpus size: %d\n", a.index.Len())
	return nil
}

func seedSources(cfg config.Config) ([]config.Source, error) {
	switch {
	case seedDir != "":
		return []config.Source{{Name: "dir", Dir: seedDir}}, nil
	case seedPrefix != "":
		return []config.Source{{Name: "prefix", Prefix: seedPrefix}}, nil
	case seedURL != "":
		return []config.Source{{Name: "url", URL: seedURL}}, nil
	}

	if seedSource != "" {
		for _, src := range cfg.Sources {
			if src.Name == seedSource {
				return []config.Source{src}, nil
			}
		}
		return nil, fmt.Errorf("source %q not found in config", seedSource)
	}

	if len(cfg.Sources) > 0 {
		return cfg.Sources, nil
	}
	if cfg.Corpus.SeedDir != "" {
		return []config.Source{{Name: "seed_dir", Dir: cfg.Corpus.SeedDir}}, nil
	}
	return nil, fmt.Errorf("no sources configured and no --dir, --prefix or --url provided")
}

func describeSource(src config.Source) string {
	switch {
	case src.Dir != "":
		return "dir " + src.Dir
	case src.Prefix != "":
		return "prefix " + src.Prefix
	default:
		return "url " + src.URL
	}
}

func printSeedResult(cmd *cobra.Command, result *ingestion.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "  Admitted: %d\n", result.Admitted)
	fmt.Fprintf(out, "  Skipped:  %d\n", result.Skipped)
	fmt.Fprintf(out, "  Duration: %v\n", result.Duration)

	if len(result.Errors) > 0 {
		fmt.Fprintf(out, "  Failed: %d\n", result.Failed)
		for _, e := range result.Errors {
			fmt.Fprintf(out, "    - %s\n", e)
		}
	}
}
