package config

import (
	"fmt"
	"time"
)

// Corpus backends.
const (
	BackendSQLite        = "sqlite"
	BackendElasticsearch = "elasticsearch"
	BackendMemory        = "memory"
)

// Config holds all application configuration.
type Config struct {
	Novelty       Novelty       `mapstructure:"novelty"`
	Embeddings    Embeddings    `mapstructure:"embeddings"`
	LLM           LLM           `mapstructure:"llm"`
	Corpus        Corpus        `mapstructure:"corpus"`
	SQLite        SQLite        `mapstructure:"sqlite"`
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Storage       Storage       `mapstructure:"storage"`
	Scraper       Scraper       `mapstructure:"scraper"`
	MCP           MCP           `mapstructure:"mcp"`
	Sources       []Source      `mapstructure:"sources"`
}

// Novelty holds the decision parameters.
type Novelty struct {
	Threshold         float64       `mapstructure:"threshold"`
	TopK              int           `mapstructure:"top_k"`
	EmbedTimeout      time.Duration `mapstructure:"embed_timeout"`
	GenerateTimeout   time.Duration `mapstructure:"generate_timeout"`
	MaxJudgmentTokens int           `mapstructure:"max_judgment_tokens"`
}

// Embeddings holds embedding provider configuration.
type Embeddings struct {
	Provider   string `mapstructure:"provider"` // dmr, openai or hash
	SocketPath string `mapstructure:"socket_path"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLM holds judgment generator configuration.
type LLM struct {
	Enabled    bool   `mapstructure:"enabled"`
	Provider   string `mapstructure:"provider"` // dmr or openai
	SocketPath string `mapstructure:"socket_path"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
}

// Corpus selects where admitted documents are persisted.
type Corpus struct {
	Backend     string `mapstructure:"backend"` // sqlite, elasticsearch or memory
	SeedDir     string `mapstructure:"seed_dir"`
	Concurrency int    `mapstructure:"concurrency"`
}

// SQLite holds the SQLite database location.
type SQLite struct {
	Path string `mapstructure:"path"`
}

// Elasticsearch holds ES connection configuration.
type Elasticsearch struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Storage holds S3/MinIO configuration. An empty endpoint disables staging.
type Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// Scraper holds web scraping configuration.
type Scraper struct {
	Delay       time.Duration `mapstructure:"delay"`
	MaxDepth    int           `mapstructure:"max_depth"`
	FollowLinks bool          `mapstructure:"follow_links"`
	LinkPattern string        `mapstructure:"link_pattern"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	MaxPages    int           `mapstructure:"max_pages"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Source defines a named prior-art source to seed the corpus from.
// Exactly one of URL, Dir and Prefix is set.
type Source struct {
	Name   string `mapstructure:"name"`
	URL    string `mapstructure:"url"`
	Dir    string `mapstructure:"dir"`
	Prefix string `mapstructure:"prefix"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Novelty: Novelty{
			Threshold:         0.3,
			TopK:              3,
			EmbedTimeout:      30 * time.Second,
			GenerateTimeout:   60 * time.Second,
			MaxJudgmentTokens: 150,
		},
		Embeddings: Embeddings{
			Provider:   "dmr",
			SocketPath: "", // User must provide their Docker socket path
			Model:      "ai/all-minilm",
			Dimensions: 384,
		},
		LLM: LLM{
			Enabled:  false, // Disabled by default, requires DMR setup
			Provider: "dmr",
			Model:    "ai/gemma3",
		},
		Corpus: Corpus{
			Backend:     BackendSQLite,
			Concurrency: 4,
		},
		SQLite: SQLite{
			Path: "data/novelty.db",
		},
		Elasticsearch: Elasticsearch{
			Addresses: []string{"http://localhost:9200"},
			Index:     "patent-corpus",
		},
		Storage: Storage{
			Endpoint:        "",
			Bucket:          "patent-novelty",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
		},
		Scraper: Scraper{
			Delay:       1 * time.Second,
			MaxDepth:    2,
			FollowLinks: true,
			Timeout:     30 * time.Second,
			UserAgent:   "patent-novelty/1.0",
			MaxPages:    100,
		},
		MCP: MCP{
			Name:    "patent-novelty",
			Version: "1.0.0",
		},
	}
}

// Validate reports the first configuration value that cannot work.
func (c Config) Validate() error {
	if c.Novelty.Threshold < 0 || c.Novelty.Threshold > 1 {
		return fmt.Errorf("novelty.threshold must be within [0, 1], got %v", c.Novelty.Threshold)
	}
	if c.Novelty.TopK <= 0 {
		return fmt.Errorf("novelty.top_k must be positive, got %d", c.Novelty.TopK)
	}
	if c.Novelty.MaxJudgmentTokens < 0 {
		return fmt.Errorf("novelty.max_judgment_tokens must not be negative, got %d", c.Novelty.MaxJudgmentTokens)
	}
	switch c.Corpus.Backend {
	case BackendSQLite:
		if c.SQLite.Path == "" {
			return fmt.Errorf("sqlite.path is required for the sqlite backend")
		}
	case BackendElasticsearch:
		if len(c.Elasticsearch.Addresses) == 0 || c.Elasticsearch.Index == "" {
			return fmt.Errorf("elasticsearch.addresses and elasticsearch.index are required for the elasticsearch backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown corpus backend %q", c.Corpus.Backend)
	}
	for _, src := range c.Sources {
		set := 0
		for _, v := range []string{src.URL, src.Dir, src.Prefix} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("source %q must set exactly one of url, dir or prefix", src.Name)
		}
	}
	return nil
}
