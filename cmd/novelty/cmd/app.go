package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mfenderov/patent-novelty/internal/admission"
	"github.com/mfenderov/patent-novelty/internal/config"
	"github.com/mfenderov/patent-novelty/internal/corpus"
	"github.com/mfenderov/patent-novelty/internal/elasticsearch"
	"github.com/mfenderov/patent-novelty/internal/embeddings"
	"github.com/mfenderov/patent-novelty/internal/events"
	"github.com/mfenderov/patent-novelty/internal/ingestion"
	"github.com/mfenderov/patent-novelty/internal/llm"
	"github.com/mfenderov/patent-novelty/internal/novelty"
	"github.com/mfenderov/patent-novelty/internal/pipeline"
	"github.com/mfenderov/patent-novelty/internal/scraper"
	"github.com/mfenderov/patent-novelty/internal/sqlite"
	"github.com/mfenderov/patent-novelty/internal/storage"
	"github.com/mfenderov/patent-novelty/internal/vectorstore"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

// app holds the components shared by the commands.
type app struct {
	store     corpus.Store
	sqlite    *sqlite.Store // nil unless the sqlite backend is used
	storage   *storage.Client
	index     *vectorstore.Index
	engine    *novelty.Engine
	admission *admission.Admission
	pipeline  *pipeline.Pipeline
	loaded    corpus.LoadResult
	closers   []func() error
}

// appOptions selects the optional parts of the wiring.
type appOptions struct {
	judgment bool // build the LLM generator
}

func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	a := &app{index: vectorstore.New(0)}

	if err := a.openStore(ctx, cfg); err != nil {
		return nil, err
	}

	loaded, err := ingestion.Rebuild(ctx, a.store, a.index)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.loaded = loaded

	embedder, err := embeddings.New(embeddings.Config{
		Provider:   cfg.Embeddings.Provider,
		SocketPath: cfg.Embeddings.SocketPath,
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey,
		Model:      cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create embeddings client: %w", err)
	}

	var generator llm.Generator
	if opts.judgment && cfg.LLM.Enabled {
		generator, err = llm.New(llm.Config{
			Provider:   cfg.LLM.Provider,
			SocketPath: cfg.LLM.SocketPath,
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		slog.Info("LLM judgment enabled", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	a.engine = novelty.New(novelty.Config{
		Threshold:         cfg.Novelty.Threshold,
		TopK:              cfg.Novelty.TopK,
		EmbedTimeout:      cfg.Novelty.EmbedTimeout,
		GenerateTimeout:   cfg.Novelty.GenerateTimeout,
		MaxJudgmentTokens: cfg.Novelty.MaxJudgmentTokens,
	}, embedder, a.index, generator)

	if cfg.Storage.Endpoint != "" {
		a.storage, err = storage.New(storage.Config{
			Endpoint:        cfg.Storage.Endpoint,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UseSSL:          cfg.Storage.UseSSL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if err := a.storage.EnsureBucket(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	admOpts := []admission.Option{admission.WithNotify(logAdmission)}
	pipeOpts := []pipeline.Option{}
	if a.storage != nil {
		admOpts = append(admOpts, admission.WithStaging(a.storage))
		pipeOpts = append(pipeOpts, pipeline.WithStaging(a.storage))
	}
	if a.sqlite != nil {
		pipeOpts = append(pipeOpts, pipeline.WithScoreRecorder(a.sqlite))
	}

	a.admission = admission.New(a.store, a.index, admOpts...)
	a.pipeline = pipeline.New(a.engine, a.admission, a.store, a.index, pipeOpts...)
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.Corpus.Backend {
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			return err
		}
		a.store = store
		a.sqlite = store
		a.closers = append(a.closers, store.Close)
		slog.Debug("corpus backend ready", "backend", "sqlite", "path", store.Path())
	case config.BackendElasticsearch:
		client, err := elasticsearch.New(elasticsearch.Config{
			Addresses:  cfg.Elasticsearch.Addresses,
			Index:      cfg.Elasticsearch.Index,
			Username:   cfg.Elasticsearch.Username,
			Password:   cfg.Elasticsearch.Password,
			Dimensions: cfg.Embeddings.Dimensions,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
		}
		if !client.Ping(ctx) {
			return fmt.Errorf("elasticsearch not reachable at %s", strings.Join(cfg.Elasticsearch.Addresses, ", "))
		}
		if err := client.CreateIndex(ctx); err != nil {
			return err
		}
		a.store = client
		slog.Debug("corpus backend ready", "backend", "elasticsearch", "index", cfg.Elasticsearch.Index)
	case config.BackendMemory:
		a.store = corpus.NewMemoryStore()
		slog.Warn("using in-memory corpus; admissions are lost on exit")
	default:
		return fmt.Errorf("unknown corpus backend %q", cfg.Corpus.Backend)
	}
	return nil
}

// seeder builds the ingestion engine with every configured source.
func (a *app) seeder(cfg config.Config) (*ingestion.Engine, error) {
	opts := []ingestion.Option{ingestion.WithConcurrency(cfg.Corpus.Concurrency)}
	if a.storage != nil {
		opts = append(opts, ingestion.WithObjectSource(a.storage), ingestion.WithArchive(a.storage))
	}

	s, err := newScraper(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, ingestion.WithPageSource(s))

	return ingestion.New(a.engine, a.admission, opts...), nil
}

func newScraper(cfg config.Config) (*scraper.Scraper, error) {
	return scraper.New(scraper.Config{
		Delay:       cfg.Scraper.Delay,
		MaxDepth:    cfg.Scraper.MaxDepth,
		FollowLinks: cfg.Scraper.FollowLinks,
		LinkPattern: cfg.Scraper.LinkPattern,
		UserAgent:   cfg.Scraper.UserAgent,
		Timeout:     cfg.Scraper.Timeout,
		MaxPages:    cfg.Scraper.MaxPages,
	})
}

// Close releases the corpus backend.
func (a *app) Close() {
	for _, closer := range a.closers {
		if err := closer(); err != nil {
			slog.Warn("failed to close", "error", err)
		}
	}
	a.closers = nil
}

func logAdmission(e events.AdmissionEvent) {
	slog.Debug("admission event",
		"document_id", models.DocumentIDFromToken(e.Token),
		"filename", e.Filename,
		"action", e.Action,
		"replaced", e.Replaced)
}
