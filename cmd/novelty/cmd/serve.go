package cmd

import (
	"context"
	"fmt"

	"github.com/mfenderov/patent-novelty/internal/mcp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server for novelty assessment.

The server communicates via stdio and provides three tools:
  - assess_document: Assess a document and apply the admission decision
  - search_corpus: Find the nearest corpus documents
  - get_corpus_entry: Get a corpus document by token or document ID

Example:
  novelty serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	a, err := newApp(context.Background(), cfg, appOptions{judgment: true})
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := mcp.NewServer(mcp.Config{
		Name:    cfg.MCP.Name,
		Version: cfg.MCP.Version,
	}, a.pipeline)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Starting MCP server (corpus: %d documents)...\n", a.index.Len())

	return server.ServeStdio()
}
