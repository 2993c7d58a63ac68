// Package embeddings turns document text into fixed-length vectors.
//
// Three providers are available: Docker Model Runner over a unix socket, any
// OpenAI-compatible endpoint, and a deterministic feature-hashing embedder for
// offline use.
package embeddings

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// Embedder maps text to a vector. Every call for the same provider returns
// vectors of the same dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Provider names accepted in Config.Provider.
const (
	ProviderDMR    = "dmr"
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

// DefaultDimensions is the vector length used when none is configured.
const DefaultDimensions = 384

// MaxInputChars limits input to stay within the model context window.
const MaxInputChars = 20000

// Config holds embeddings configuration for every provider.
type Config struct {
	Provider   string
	SocketPath string // Unix socket path for Docker Model Runner
	BaseURL    string // OpenAI-compatible endpoint, empty for api.openai.com
	APIKey     string
	Model      string
	Dimensions int
}

// New builds the embedder selected by config.Provider.
func New(config Config) (Embedder, error) {
	switch config.Provider {
	case ProviderDMR, "":
		return NewDMR(config)
	case ProviderOpenAI:
		return NewOpenAI(config)
	case ProviderHash:
		dim := config.Dimensions
		if dim <= 0 {
			dim = Dimensions(config.Model)
		}
		return NewHash(dim), nil
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", config.Provider)
	}
}

// Dimensions returns the expected embedding dimensions for common models.
func Dimensions(model string) int {
	switch model {
	case "ai/all-minilm", "sentence-transformers/all-MiniLM-L6-v2":
		return 384
	case "ai/embeddinggemma":
		return 768
	case "ai/snowflake-arctic-embed":
		return 1024
	case "text-embedding-3-small":
		return 1536
	case "text-embedding-3-large":
		return 3072
	default:
		return DefaultDimensions
	}
}

// truncate cuts text to at most MaxInputChars bytes without splitting a rune.
func truncate(text string) string {
	if len(text) <= MaxInputChars {
		return text
	}
	end := MaxInputChars
	for end > 0 && !utf8.RuneStart(text[end]) {
		end--
	}
	return text[:end]
}
