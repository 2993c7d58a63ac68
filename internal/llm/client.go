// Package llm runs the free-text judgment step against a chat-completions model.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// Generator produces a completion for a prompt, capped at maxTokens (0 = no cap).
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Provider names accepted in Config.Provider.
const (
	ProviderDMR    = "dmr"
	ProviderOpenAI = "openai"
)

// Config holds LLM client configuration.
type Config struct {
	Provider   string
	SocketPath string // Unix socket path for Docker Model Runner
	BaseURL    string // OpenAI-compatible endpoint, empty for api.openai.com
	APIKey     string
	Model      string // Model name (e.g., "ai/gemma3")
}

// New builds the generator selected by config.Provider.
func New(config Config) (Generator, error) {
	switch config.Provider {
	case ProviderDMR, "":
		return NewDMR(config)
	case ProviderOpenAI:
		return NewOpenAI(config)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}
}

const dmrChatURL = "http://localhost/exp/vDD4.40/engines/llama.cpp/v1/chat/completions"

// DMRClient wraps the Docker Model Runner chat completions API.
type DMRClient struct {
	httpClient *http.Client
	model      string
}

// NewDMR creates a Docker Model Runner chat client.
func NewDMR(config Config) (*DMRClient, error) {
	if config.SocketPath == "" {
		return nil, fmt.Errorf("socket path is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", config.SocketPath)
		},
	}

	return &DMRClient{
		httpClient: &http.Client{Transport: transport},
		model:      config.Model,
	}, nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends a single user message and returns the trimmed reply.
func (c *DMRClient) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:     c.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	slog.Debug("generating completion", "provider", ProviderDMR, "model", c.model, "prompt_len", len(prompt), "max_tokens", maxTokens)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, dmrChatURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if chatResp.Error != nil {
		return "", fmt.Errorf("API error: %s", chatResp.Error.Message)
	}

	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no response returned")
	}

	return strings.TrimSpace(chatResp.Choices[0].Message.Content), nil
}
