// Package novelty decides whether a submission is unique relative to the
// reference corpus held in a vectorstore.Index.
package novelty

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mfenderov/patent-novelty/internal/embeddings"
	"github.com/mfenderov/patent-novelty/internal/extractor"
	"github.com/mfenderov/patent-novelty/internal/judgment"
	"github.com/mfenderov/patent-novelty/internal/llm"
	"github.com/mfenderov/patent-novelty/internal/vectorstore"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

// NotPatentNote is attached to verdicts for inputs without patent markers.
const NotPatentNote = "Test document may not be a valid US patent (missing 'United States Patent' header or US patent number)."

// Config holds the decision parameters.
type Config struct {
	// Threshold is compared against the uniqueness score; strictly greater means unique.
	Threshold float64
	// TopK is how many neighbours are reported. The decision always uses the closest.
	TopK            int
	EmbedTimeout    time.Duration
	GenerateTimeout time.Duration
	// MaxJudgmentTokens caps the generated judgment; 0 uses judgment.MaxTokens.
	MaxJudgmentTokens int
}

// DefaultConfig returns the standard decision parameters.
func DefaultConfig() Config {
	return Config{
		Threshold:         0.3,
		TopK:              3,
		EmbedTimeout:      30 * time.Second,
		GenerateTimeout:   60 * time.Second,
		MaxJudgmentTokens: judgment.MaxTokens,
	}
}

// Submission is an uploaded document awaiting evaluation.
type Submission struct {
	Filename string
	RawText  string
}

// TextLookup returns the raw text stored for a corpus entry.
type TextLookup func(ctx context.Context, id string) (string, error)

// Evaluation is the outcome of Evaluate: the embedded document and its verdict.
type Evaluation struct {
	Document models.DocumentRecord
	Verdict  models.Verdict
}

// Engine runs the embed, search, score and judge steps.
type Engine struct {
	config    Config
	embedder  embeddings.Embedder
	index     *vectorstore.Index
	generator llm.Generator
	extractor *extractor.Extractor
	now       func() time.Time
}

// New creates an Engine. A nil generator skips the judgment step.
func New(config Config, embedder embeddings.Embedder, index *vectorstore.Index, generator llm.Generator) *Engine {
	if config.TopK <= 0 {
		config.TopK = DefaultConfig().TopK
	}
	return &Engine{
		config:    config,
		embedder:  embedder,
		index:     index,
		generator: generator,
		extractor: extractor.New(),
		now:       time.Now,
	}
}

// Config returns the engine's decision parameters.
func (e *Engine) Config() Config {
	return e.config
}

// Normalize converts a raw L2 distance into the uniqueness and similarity scores.
// Both are in [0, 1] and always sum to 1.
func Normalize(distance float64) (uniqueness, similarity float64) {
	uniqueness = clamp01(distance)
	return uniqueness, 1 - uniqueness
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// Prepare extracts sections and the identity of a submission without calling
// any external capability.
func (e *Engine) Prepare(sub Submission) models.DocumentRecord {
	doc := models.DocumentRecord{
		Token:    models.GenerateToken(sub.RawText),
		Filename: sub.Filename,
		RawText:  sub.RawText,
		Sections: e.extractor.Extract(sub.RawText),
	}
	if missing := doc.Sections.Missing(); len(missing) > 0 {
		slog.Warn("extraction degraded", "filename", sub.Filename, "document_id", doc.DocumentID(), "missing", missing)
	}
	return doc
}

// Embed embeds text under the configured timeout.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := withTimeout(ctx, e.config.EmbedTimeout)
	defer cancel()

	vec, err := e.embedder.Embed(embedCtx, text)
	if err != nil {
		return nil, capabilityError(ctx, embedCtx, "embedding", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding: empty vector: %w", models.ErrExternalCapability)
	}
	if err := vectorstore.CheckFinite(vec); err != nil {
		return nil, fmt.Errorf("embedding: %w: %w", models.ErrExternalCapability, err)
	}
	return vec, nil
}

// Nearest embeds text and returns up to k scored neighbours, closest first.
func (e *Engine) Nearest(ctx context.Context, text string, k int) ([]models.SimilarityResult, error) {
	if e.index.Len() == 0 {
		return nil, models.ErrEmptyCorpus
	}

	vec, err := e.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return e.search(vec, k)
}

func (e *Engine) search(vec []float32, k int) ([]models.SimilarityResult, error) {
	hits, err := e.index.SearchNearest(vec, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search corpus: %w", err)
	}

	results := make([]models.SimilarityResult, len(hits))
	for i, hit := range hits {
		_, similarity := Normalize(hit.Distance)
		results[i] = models.SimilarityResult{
			ID:         hit.ID,
			Filename:   hit.Filename,
			Distance:   hit.Distance,
			Similarity: similarity,
		}
	}
	return results, nil
}

// Evaluate scores a submission against the corpus and produces a verdict.
// The corpus is not modified. textFor resolves the matched entry's raw text for
// the judgment prompt; it may be nil.
func (e *Engine) Evaluate(ctx context.Context, sub Submission, textFor TextLookup) (*Evaluation, error) {
	doc := e.Prepare(sub)

	if e.index.Len() == 0 {
		return nil, models.ErrEmptyCorpus
	}

	vec, err := e.Embed(ctx, sub.RawText)
	if err != nil {
		return nil, err
	}
	doc.Embedding = vec

	candidates, err := e.search(vec, e.config.TopK)
	if err != nil {
		return nil, err
	}
	match := candidates[0]

	uniqueness, similarity := Normalize(match.Distance)
	verdict := models.Verdict{
		IsUnique:        uniqueness > e.config.Threshold,
		UniquenessScore: uniqueness,
		SimilarityScore: similarity,
		Match:           match,
		Candidates:      candidates,
		Token:           doc.Token,
		DocumentID:      doc.DocumentID(),
	}
	if !extractor.LooksLikePatent(sub.RawText) {
		verdict.Diagnostic = NotPatentNote
	}

	slog.Debug("novelty scored",
		"document_id", verdict.DocumentID,
		"match", match.Filename,
		"distance", match.Distance,
		"uniqueness", uniqueness,
		"is_unique", verdict.IsUnique)

	if e.generator != nil {
		matchSections := e.matchSections(ctx, match, textFor)
		verdict.Judgment, err = e.judge(ctx, doc.Sections, matchSections, similarity)
		if err != nil {
			return nil, err
		}
	}

	verdict.EvaluatedAt = e.now().UTC()
	return &Evaluation{Document: doc, Verdict: verdict}, nil
}

// matchSections resolves the matched entry's text. A lookup failure degrades
// the prompt to empty prior-art fields.
func (e *Engine) matchSections(ctx context.Context, match models.SimilarityResult, textFor TextLookup) models.Sections {
	if textFor == nil {
		return models.Sections{}
	}
	text, err := textFor(ctx, match.ID)
	if err != nil {
		slog.Warn("failed to load matched document text", "id", match.ID, "filename", match.Filename, "error", err)
		return models.Sections{}
	}
	return e.extractor.Extract(text)
}

func (e *Engine) judge(ctx context.Context, query, match models.Sections, similarity float64) (string, error) {
	genCtx, cancel := withTimeout(ctx, e.config.GenerateTimeout)
	defer cancel()

	out, err := judgment.Judge(genCtx, e.generator, query, match, similarity, e.config.MaxJudgmentTokens)
	if err != nil {
		return "", capabilityError(ctx, genCtx, "generation", err)
	}
	return out, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// capabilityError classifies a failed external call. A caller cancellation is
// returned as is; an expired per-call deadline becomes ErrCapabilityTimeout.
func capabilityError(parent, call context.Context, op string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%s: %w", op, parent.Err())
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %v", op, models.ErrCapabilityTimeout, err)
	}
	return fmt.Errorf("%s: %w: %v", op, models.ErrExternalCapability, err)
}
