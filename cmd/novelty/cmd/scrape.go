package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/mfenderov/patent-novelty/internal/scraper"
	"github.com/spf13/cobra"
)

var (
	scrapeURL    string
	scrapeSource string
	scrapeOut    string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Download patent pages without admitting them",
	Long: `Crawl a URL and save every fetched page to a directory. The directory can
be reviewed and then admitted with seed --dir.

Examples:
  # Save pages from a listing
  novelty scrape --url https://patents.example.com/list --out data/fetched

  # Save pages from a configured source
  novelty scrape --source uspto --out data/fetched`,
	Args: cobra.NoArgs,
	RunE: runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)

	scrapeCmd.Flags().StringVar(&scrapeURL, "url", "", "URL to crawl")
	scrapeCmd.Flags().StringVar(&scrapeSource, "source", "", "Configured URL source to crawl")
	scrapeCmd.Flags().StringVarP(&scrapeOut, "out", "o", "", "Directory to write pages to")
	scrapeCmd.MarkFlagsMutuallyExclusive("url", "source")
	scrapeCmd.MarkFlagRequired("out")
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := GetConfig()

	target := scrapeURL
	if target == "" {
		if scrapeSource == "" {
			return fmt.Errorf("one of --url or --source is required")
		}
		for _, src := range cfg.Sources {
			if src.Name == scrapeSource {
				target = src.URL
				break
			}
		}
		if target == "" {
			return fmt.Errorf("source %q not found in config or has no url", scrapeSource)
		}
	}

	s, err := newScraper(cfg)
	if err != nil {
		return err
	}

	pages, err := s.Scrape(ctx, target)
	if err != nil {
		return err
	}

	written, err := writePages(scrapeOut, pages)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scraped %s:\n", target)
	fmt.Fprintf(out, "  Pages:   %d\n", len(pages))
	fmt.Fprintf(out, "  Written: %s\n", scrapeOut)
	for _, name := range written {
		fmt.Fprintf(out, "    %s\n", name)
	}
	return nil
}

// writePages saves pages under dir and returns the file names used.
// Pages sharing a name get a numeric suffix.
func writePages(dir string, pages []scraper.Page) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	used := make(map[string]bool, len(pages))
	names := make([]string, 0, len(pages))
	for _, p := range pages {
		name := filepath.Base(p.Filename)
		if name == "." || name == string(filepath.Separator) || name == "" {
			name = "page.html"
		}
		if used[name] {
			ext := filepath.Ext(name)
			stem := strings.TrimSuffix(name, ext)
			for i := 2; ; i++ {
				candidate := fmt.Sprintf("%s-%d%s", stem, i, ext)
				if !used[candidate] {
					name = candidate
					break
				}
			}
		}
		used[name] = true

		if err := os.WriteFile(filepath.Join(dir, name), p.Body, 0o644); err != nil {
			return names, fmt.Errorf("writing %s: %w", name, err)
		}
		slog.Debug("page saved", "url", p.URL, "file", name)
		names = append(names, name)
	}
	return names, nil
}
