// Package ingestion seeds the reference corpus and rebuilds the in-memory
// index from persistent storage on start-up.
package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mfenderov/patent-novelty/internal/admission"
	"github.com/mfenderov/patent-novelty/internal/corpus"
	"github.com/mfenderov/patent-novelty/internal/events"
	"github.com/mfenderov/patent-novelty/internal/novelty"
	"github.com/mfenderov/patent-novelty/internal/processor"
	"github.com/mfenderov/patent-novelty/internal/storage"
	"github.com/mfenderov/patent-novelty/internal/vectorstore"
)

// DefaultConcurrency is the number of documents embedded in parallel.
const DefaultConcurrency = 4

// ObjectSource enumerates and reads seed documents from an object store.
type ObjectSource interface {
	List(ctx context.Context, prefix string) ([]storage.Object, error)
	Get(ctx context.Context, key string) ([]byte, string, error)
}

// Archive keeps a copy of every seeded document.
type Archive interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	PutManifest(ctx context.Context, prefix string, manifest storage.SeedManifest) error
}

// PageSource streams fetched web pages.
type PageSource interface {
	Stream(ctx context.Context, startURL string, out chan<- events.DocumentFetchedEvent) (int, error)
}

// Result holds seeding execution results.
type Result struct {
	Source   string
	Admitted int
	Skipped  int
	Failed   int
	Duration time.Duration
	Errors   []string
}

// Engine embeds source documents and commits them to the corpus unconditionally.
type Engine struct {
	novelty     *novelty.Engine
	admission   *admission.Admission
	processor   *processor.Processor
	objects     ObjectSource
	archive     Archive
	pages       PageSource
	concurrency int
}

// Option configures an Engine.
type Option func(*Engine)

// WithObjectSource enables SeedPrefix.
func WithObjectSource(src ObjectSource) Option {
	return func(e *Engine) { e.objects = src }
}

// WithArchive copies each admitted seed document under the corpus prefix and
// writes a manifest per run.
func WithArchive(a Archive) Option {
	return func(e *Engine) { e.archive = a }
}

// WithPageSource enables SeedURL.
func WithPageSource(src PageSource) Option {
	return func(e *Engine) { e.pages = src }
}

// WithConcurrency sets how many documents are embedded in parallel.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// New creates a new ingestion engine.
func New(engine *novelty.Engine, adm *admission.Admission, opts ...Option) *Engine {
	e := &Engine{
		novelty:     engine,
		admission:   adm,
		processor:   processor.New(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rebuild loads every persisted corpus record into index.
func Rebuild(ctx context.Context, store corpus.Store, index *vectorstore.Index) (corpus.LoadResult, error) {
	start := time.Now()
	result, err := corpus.Load(ctx, store, index)
	if err != nil {
		return result, err
	}
	slog.Debug("corpus rebuild finished", "loaded", result.Loaded, "duration", time.Since(start))
	return result, nil
}

// SeedDir admits every regular file under dir. Hidden files are skipped.
func (e *Engine) SeedDir(ctx context.Context, dir string) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("seed source %s is not a directory", dir)
	}

	return e.run(ctx, dir, func(ctx context.Context, out chan<- events.DocumentFetchedEvent) error {
		var paths []string
		err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if strings.HasPrefix(d.Name(), ".") && p != dir {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() {
				paths = append(paths, p)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", dir, err)
		}
		sort.Strings(paths)

		for _, p := range paths {
			data, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", p, err)
			}
			event := events.DocumentFetchedEvent{
				Source:      p,
				Filename:    filepath.Base(p),
				ContentType: mime.TypeByExtension(filepath.Ext(p)),
				Data:        data,
				FetchedAt:   time.Now().UTC(),
			}
			if err := send(ctx, out, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// SeedPrefix admits every object stored under prefix.
func (e *Engine) SeedPrefix(ctx context.Context, prefix string) (*Result, error) {
	if e.objects == nil {
		return nil, fmt.Errorf("object storage is not configured")
	}

	return e.run(ctx, prefix, func(ctx context.Context, out chan<- events.DocumentFetchedEvent) error {
		objects, err := e.objects.List(ctx, prefix)
		if err != nil {
			return err
		}
		slog.Info("found objects to seed", "prefix", prefix, "count", len(objects))

		for _, obj := range objects {
			data, contentType, err := e.objects.Get(ctx, obj.Key)
			if err != nil {
				return err
			}
			event := events.DocumentFetchedEvent{
				Source:      obj.Key,
				Filename:    filepath.Base(obj.Key),
				ContentType: contentType,
				Data:        data,
				FetchedAt:   time.Now().UTC(),
			}
			if err := send(ctx, out, event); err != nil {
				return err
			}
		}
		return nil
	})
}

// SeedURL crawls startURL and admits every fetched page.
func (e *Engine) SeedURL(ctx context.Context, startURL string) (*Result, error) {
	if e.pages == nil {
		return nil, fmt.Errorf("scraper is not configured")
	}

	return e.run(ctx, startURL, func(ctx context.Context, out chan<- events.DocumentFetchedEvent) error {
		n, err := e.pages.Stream(ctx, startURL, out)
		slog.Debug("scrape finished", "url", startURL, "pages", n)
		return err
	})
}

func send(ctx context.Context, out chan<- events.DocumentFetchedEvent, event events.DocumentFetchedEvent) error {
	select {
	case out <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run connects one producer to a pool of consumers that embed and commit.
func (e *Engine) run(ctx context.Context, source string, produce func(context.Context, chan<- events.DocumentFetchedEvent) error) (*Result, error) {
	start := time.Now()
	result := &Result{Source: source}
	var (
		mu       sync.Mutex
		admitted []string
		failed   []string
	)

	slog.Info("starting corpus seeding", "source", source, "concurrency", e.concurrency)

	g, gctx := errgroup.WithContext(ctx)
	docs := make(chan events.DocumentFetchedEvent, e.concurrency)

	g.Go(func() error {
		defer close(docs)
		return produce(gctx, docs)
	})

	for range e.concurrency {
		g.Go(func() error {
			for event := range docs {
				name, outcome, err := e.ingest(gctx, event)

				mu.Lock()
				switch {
				case err != nil:
					slog.Warn("failed to seed document", "source", event.Source, "error", err)
					result.Failed++
					result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", event.Source, err))
					failed = append(failed, event.Filename)
				case outcome == outcomeSkipped:
					result.Skipped++
				default:
					result.Admitted++
					admitted = append(admitted, name)
				}
				mu.Unlock()

				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
	}

	err := g.Wait()
	result.Duration = time.Since(start)

	if e.archive != nil && result.Admitted+result.Failed > 0 {
		sort.Strings(admitted)
		sort.Strings(failed)
		manifest := storage.SeedManifest{
			Source:    source,
			Timestamp: time.Now().UTC(),
			Admitted:  admitted,
			Failed:    failed,
		}
		if merr := e.archive.PutManifest(ctx, storage.CorpusPrefix, manifest); merr != nil {
			slog.Warn("failed to write seed manifest", "source", source, "error", merr)
		}
	}

	slog.Info("corpus seeding complete",
		"source", source,
		"admitted", result.Admitted,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", result.Duration)

	if err != nil {
		return result, fmt.Errorf("seeding %s: %w", source, err)
	}
	return result, nil
}

type outcome int

const (
	outcomeAdmitted outcome = iota
	outcomeSkipped
)

// ingest embeds one document and commits it. It returns the archived object
// name of an admitted document.
func (e *Engine) ingest(ctx context.Context, event events.DocumentFetchedEvent) (string, outcome, error) {
	text := e.processor.Extract(event.Filename, event.ContentType, event.Data).Text
	if strings.TrimSpace(text) == "" {
		slog.Warn("skipping document without text", "source", event.Source, "filename", event.Filename)
		return "", outcomeSkipped, nil
	}

	doc := e.novelty.Prepare(novelty.Submission{Filename: event.Filename, RawText: text})
	vec, err := e.novelty.Embed(ctx, text)
	if err != nil {
		return "", outcomeAdmitted, err
	}
	doc.Embedding = vec

	m, err := e.admission.Commit(ctx, doc)
	if err != nil {
		return "", outcomeAdmitted, err
	}

	key := storage.CorpusKey(doc.Token, doc.Filename)
	if e.archive != nil {
		if err := e.archive.Put(ctx, key, event.ContentType, event.Data); err != nil {
			slog.Warn("failed to archive seed document", "document_id", doc.DocumentID(), "key", key, "error", err)
		}
	}

	slog.Debug("seeded document", "document_id", doc.DocumentID(), "filename", doc.Filename, "replaced", m.Replaced)
	return key, outcomeAdmitted, nil
}
