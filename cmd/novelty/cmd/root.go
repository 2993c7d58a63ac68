package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mfenderov/patent-novelty/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "novelty",
	Short: "Patent novelty assessment against a prior-art corpus",
	Long: `novelty compares uploaded patent documents against a corpus of prior art.

Near-duplicates of known documents are admitted to the corpus; unique
documents are reported and discarded.

Commands:
  assess   Assess a document and apply the admission decision
  seed     Seed the corpus from a directory, object prefix or URL
  scrape   Download patent pages to a directory without admitting them
  rebuild  Load the persisted corpus and report its size
  search   Show the nearest corpus documents without admission
  history  Show the evaluation audit log
  serve    Start the MCP server`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Validate()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// envKeys lists every config key settable through a NOVELTY_* variable.
var envKeys = []string{
	"novelty.threshold",
	"novelty.top_k",
	"novelty.embed_timeout",
	"novelty.generate_timeout",
	"novelty.max_judgment_tokens",
	"embeddings.provider",
	"embeddings.socket_path",
	"embeddings.base_url",
	"embeddings.api_key",
	"embeddings.model",
	"embeddings.dimensions",
	"llm.enabled",
	"llm.provider",
	"llm.socket_path",
	"llm.base_url",
	"llm.api_key",
	"llm.model",
	"corpus.backend",
	"corpus.seed_dir",
	"corpus.concurrency",
	"sqlite.path",
	"elasticsearch.addresses",
	"elasticsearch.index",
	"elasticsearch.username",
	"elasticsearch.password",
	"storage.endpoint",
	"storage.bucket",
	"storage.access_key_id",
	"storage.secret_access_key",
	"storage.use_ssl",
	"scraper.delay",
	"scraper.max_depth",
	"scraper.follow_links",
	"scraper.link_pattern",
	"scraper.timeout",
	"scraper.user_agent",
	"scraper.max_pages",
	"mcp.name",
	"mcp.version",
}

// envName maps a config key to its environment variable: scraper.max_pages -> NOVELTY_SCRAPER_MAX_PAGES.
func envName(key string) string {
	return "NOVELTY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func initConfig() {
	// .env values are exported before viper reads the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/patent-novelty")
		viper.AddConfigPath(".")
	}

	// NOVELTY_NOVELTY_THRESHOLD -> novelty.threshold
	viper.SetEnvPrefix("NOVELTY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so nested env vars are bound explicitly.
	for _, key := range envKeys {
		viper.BindEnv(key, envName(key))
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	// Addresses arrive as a comma-separated string from the environment.
	if addrs := os.Getenv("NOVELTY_ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
	// OPENAI_API_KEY is the conventional variable for OpenAI-compatible providers.
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Embeddings.APIKey == "" {
			cfg.Embeddings.APIKey = key
		}
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = key
		}
	}
}
