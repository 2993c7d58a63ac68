// Package mcp exposes novelty assessment and corpus lookup as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mfenderov/patent-novelty/internal/corpus"
	"github.com/mfenderov/patent-novelty/internal/pipeline"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

const defaultSearchLimit = 3

// Service is the assessment backend behind the tools.
type Service interface {
	Assess(ctx context.Context, up pipeline.Upload) (*pipeline.Assessment, error)
	Search(ctx context.Context, up pipeline.Upload, k int) ([]models.SimilarityResult, error)
	Lookup(ctx context.Context, id string) (*corpus.Record, error)
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
}

// Server wraps the MCP server with the assessment service.
type Server struct {
	mcpServer *server.MCPServer
	service   Service
}

// assessResponse is the assess_document payload: the result record plus the corpus action.
type assessResponse struct {
	models.ResultRecord
	Action string `json:"action"`
}

// entryResponse is the get_corpus_entry payload.
type entryResponse struct {
	Token      string          `json:"token"`
	DocumentID string          `json:"document_id"`
	Filename   string          `json:"filename"`
	Sections   models.Sections `json:"sections"`
	AdmittedAt string          `json:"admitted_at"`
	Dimensions int             `json:"dimensions"`
	RawText    string          `json:"raw_text"`
}

// NewServer creates a new MCP server with the novelty tools.
func NewServer(config Config, service Service) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("assessment service is required")
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		service:   service,
	}

	assessTool := mcp.NewTool("assess_document",
		mcp.WithDescription("Assess a patent document for novelty against the prior-art corpus. Near-duplicates are admitted to the corpus; unique documents are discarded."),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Document text (plain text, markdown or HTML)"),
		),
		mcp.WithString("filename",
			mcp.Required(),
			mcp.Description("Original filename of the document"),
		),
		mcp.WithString("content_type",
			mcp.Description("MIME type of the content, e.g. text/plain or text/html"),
		),
	)
	mcpServer.AddTool(assessTool, s.assessHandler)

	searchTool := mcp.NewTool("search_corpus",
		mcp.WithDescription("Find the closest prior-art documents for a text without changing the corpus."),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Document text to compare"),
		),
		mcp.WithString("filename",
			mcp.Description("Filename used to detect the content format"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results to return (default: 3)"),
		),
	)
	mcpServer.AddTool(searchTool, s.searchHandler)

	getEntryTool := mcp.NewTool("get_corpus_entry",
		mcp.WithDescription("Get a corpus document by token or document ID"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Full token or 16-character document ID"),
		),
	)
	mcpServer.AddTool(getEntryTool, s.getEntryHandler)

	return s, nil
}

// assessHandler handles the assess_document tool call.
func (s *Server) assessHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content parameter is required"), nil
	}
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError("filename parameter is required"), nil
	}

	assessment, err := s.service.Assess(ctx, pipeline.Upload{
		Filename:    filename,
		ContentType: req.GetString("content_type", ""),
		Data:        []byte(content),
	})
	if err != nil {
		return toolError("assessment failed", err), nil
	}

	return jsonResult(assessResponse{
		ResultRecord: assessment.Record,
		Action:       string(assessment.Mutation.Action),
	})
}

// searchHandler handles the search_corpus tool call.
func (s *Server) searchHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError("content parameter is required"), nil
	}

	limit := req.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	results, err := s.service.Search(ctx, pipeline.Upload{
		Filename: req.GetString("filename", ""),
		Data:     []byte(content),
	}, limit)
	if err != nil {
		return toolError("search failed", err), nil
	}

	return jsonResult(results)
}

// getEntryHandler handles the get_corpus_entry tool call.
func (s *Server) getEntryHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	rec, err := s.service.Lookup(ctx, id)
	if err != nil {
		return toolError("get corpus entry failed", err), nil
	}

	return jsonResult(entryResponse{
		Token:      rec.Key,
		DocumentID: models.DocumentIDFromToken(rec.Key),
		Filename:   rec.Filename,
		Sections:   rec.Sections,
		AdmittedAt: rec.AdmittedAt.UTC().Format(time.RFC3339),
		Dimensions: len(rec.Embedding),
		RawText:    rec.RawText,
	})
}

func toolError(prefix string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s [%s]: %v", prefix, models.ErrorKind(err), err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
