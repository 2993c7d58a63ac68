package novelty

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfenderov/patent-novelty/internal/vectorstore"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

const patentText = `United States Patent 10,123,456
Drone docking station
Abstract
A docking station for unmanned aerial vehicles with a charging pad.
What is claimed is:
1. A docking station comprising a pad and a charger.`

// mapEmbedder returns a fixed vector per text.
type mapEmbedder struct {
	vectors map[string][]float32
	err     error
	block   bool
	calls   int
}

func (m *mapEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.calls++
	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.vectors[text], nil
}

type stubGenerator struct {
	reply     string
	err       error
	block     bool
	prompt    string
	maxTokens int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	g.prompt = prompt
	g.maxTokens = maxTokens
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.reply, g.err
}

func newIndex(t *testing.T, entries map[string][]float32) *vectorstore.Index {
	t.Helper()
	x := vectorstore.New(0)
	// Deterministic insertion order.
	for _, id := range []string{"prior-a", "prior-b", "prior-c"} {
		if vec, ok := entries[id]; ok {
			require.NoError(t, x.Upsert(id, id+".txt", vec))
		}
	}
	return x
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		distance   float64
		uniqueness float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.25, 0.25},
		{1, 1},
		{7.3, 1},
	}
	for _, tt := range tests {
		u, s := Normalize(tt.distance)
		assert.Equal(t, tt.uniqueness, u, "distance %v", tt.distance)
		assert.Equal(t, 1.0, u+s, "distance %v", tt.distance)
	}
}

func TestNormalize_ScoresAlwaysSumToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		u, s := Normalize(rng.Float64()*3 - 1)
		assert.GreaterOrEqual(t, u, 0.0)
		assert.LessOrEqual(t, u, 1.0)
		assert.InDelta(t, 1.0, u+s, 1e-12)
	}
}

func TestEvaluate_NearDuplicateIsNotUnique(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}, "prior-b": {3, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {0.125, 0}}}
	gen := &stubGenerator{reply: " (c) Possibly plagiarized "}

	engine := New(DefaultConfig(), emb, index, gen)
	eval, err := engine.Evaluate(context.Background(), Submission{Filename: "upload.txt", RawText: patentText}, nil)
	require.NoError(t, err)

	v := eval.Verdict
	assert.False(t, v.IsUnique)
	assert.Equal(t, 0.125, v.UniquenessScore)
	assert.Equal(t, 0.875, v.SimilarityScore)
	assert.Equal(t, "prior-a.txt", v.Match.Filename)
	assert.Equal(t, "(c) Possibly plagiarized", v.Judgment)
	assert.Empty(t, v.Diagnostic)
	assert.Equal(t, models.GenerateToken(patentText), v.Token)
	assert.Equal(t, v.Token[:16], v.DocumentID)
	assert.False(t, v.EvaluatedAt.IsZero())
	assert.Equal(t, time.UTC, v.EvaluatedAt.Location())

	assert.Equal(t, []float32{0.125, 0}, eval.Document.Embedding)
	assert.Equal(t, "upload.txt", eval.Document.Filename)
	assert.Contains(t, eval.Document.Sections.Title, "United States Patent")
}

func TestEvaluate_DistantDocumentIsUnique(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {4, 3}}}

	engine := New(DefaultConfig(), emb, index, &stubGenerator{reply: "(a) Clearly novel"})
	eval, err := engine.Evaluate(context.Background(), Submission{RawText: patentText}, nil)
	require.NoError(t, err)

	assert.True(t, eval.Verdict.IsUnique)
	assert.Equal(t, 1.0, eval.Verdict.UniquenessScore)
	assert.Equal(t, 0.0, eval.Verdict.SimilarityScore)
	assert.Equal(t, 5.0, eval.Verdict.Match.Distance)
}

func TestEvaluate_ThresholdIsStrict(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {0.5, 0}}}

	config := DefaultConfig()
	config.Threshold = 0.5
	eval, err := New(config, emb, index, nil).Evaluate(context.Background(), Submission{RawText: patentText}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0.5, eval.Verdict.UniquenessScore)
	assert.False(t, eval.Verdict.IsUnique, "a score equal to the threshold is not unique")
}

func TestEvaluate_CandidatesOrdered(t *testing.T) {
	index := newIndex(t, map[string][]float32{
		"prior-a": {0.9, 0},
		"prior-b": {0.1, 0},
		"prior-c": {0.5, 0},
	})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {0, 0}}}

	config := DefaultConfig()
	config.TopK = 2
	eval, err := New(config, emb, index, nil).Evaluate(context.Background(), Submission{RawText: patentText}, nil)
	require.NoError(t, err)

	require.Len(t, eval.Verdict.Candidates, 2)
	assert.Equal(t, "prior-b", eval.Verdict.Candidates[0].ID)
	assert.Equal(t, "prior-c", eval.Verdict.Candidates[1].ID)
	assert.Equal(t, eval.Verdict.Candidates[0], eval.Verdict.Match)
	assert.InDelta(t, 0.5, eval.Verdict.Candidates[1].Similarity, 1e-6)
}

func TestEvaluate_EmptyCorpus(t *testing.T) {
	emb := &mapEmbedder{}
	gen := &stubGenerator{}

	eval, err := New(DefaultConfig(), emb, vectorstore.New(0), gen).Evaluate(context.Background(), Submission{RawText: patentText}, nil)

	assert.ErrorIs(t, err, models.ErrEmptyCorpus)
	assert.Equal(t, models.KindEmptyCorpus, models.ErrorKind(err))
	assert.Nil(t, eval)
	assert.Zero(t, emb.calls)
	assert.Empty(t, gen.prompt)
}

func TestEvaluate_DiagnosticForNonPatentInput(t *testing.T) {
	text := "Shopping list\neggs\nmilk\nbread"
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{text: {2, 0}}}

	eval, err := New(DefaultConfig(), emb, index, nil).Evaluate(context.Background(), Submission{RawText: text}, nil)
	require.NoError(t, err)

	assert.Equal(t, NotPatentNote, eval.Verdict.Diagnostic)
	assert.Empty(t, eval.Verdict.Judgment)
}

func TestEvaluate_UsesMatchedTextInPrompt(t *testing.T) {
	prior := "United States Patent 9,999,999\nAbstract\nA landing pad for drones.\n1. A landing pad comprising a frame."
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {0.2, 0}}}
	gen := &stubGenerator{reply: "(b) An obvious modification"}

	var lookedUp string
	lookup := func(_ context.Context, id string) (string, error) {
		lookedUp = id
		return prior, nil
	}

	_, err := New(DefaultConfig(), emb, index, gen).Evaluate(context.Background(), Submission{RawText: patentText}, lookup)
	require.NoError(t, err)

	assert.Equal(t, "prior-a", lookedUp)
	assert.Contains(t, gen.prompt, "Known Prior Art:\nTitle: United States Patent 9,999,999\n")
	assert.Contains(t, gen.prompt, "is: 0.80\n")
}

func TestEvaluate_LookupFailureDegradesPrompt(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {0.2, 0}}}
	gen := &stubGenerator{reply: "ok"}

	lookup := func(context.Context, string) (string, error) { return "", models.ErrNotFound }

	eval, err := New(DefaultConfig(), emb, index, gen).Evaluate(context.Background(), Submission{RawText: patentText}, lookup)
	require.NoError(t, err)

	assert.Equal(t, "ok", eval.Verdict.Judgment)
	assert.Contains(t, gen.prompt, "Known Prior Art:\nTitle: \nAbstract: \nClaim 1: \n")
}

func TestEvaluate_EmbeddingFailure(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})

	_, err := New(DefaultConfig(), &mapEmbedder{err: errors.New("connection refused")}, index, nil).
		Evaluate(context.Background(), Submission{RawText: patentText}, nil)

	assert.ErrorIs(t, err, models.ErrExternalCapability)
	assert.Equal(t, models.KindCapabilityFailure, models.ErrorKind(err))
	assert.Contains(t, err.Error(), "connection refused")
}

func TestEvaluate_EmptyEmbeddingIsCapabilityFailure(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})

	_, err := New(DefaultConfig(), &mapEmbedder{vectors: map[string][]float32{}}, index, nil).
		Evaluate(context.Background(), Submission{RawText: patentText}, nil)

	assert.ErrorIs(t, err, models.ErrExternalCapability)
}

func TestEvaluate_NonFiniteEmbeddingIsCapabilityFailure(t *testing.T) {
	for name, vec := range map[string][]float32{
		"nan": {float32(math.NaN()), 0},
		"inf": {0, float32(math.Inf(1))},
	} {
		t.Run(name, func(t *testing.T) {
			index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
			emb := &mapEmbedder{vectors: map[string][]float32{patentText: vec}}

			eval, err := New(DefaultConfig(), emb, index, nil).
				Evaluate(context.Background(), Submission{RawText: patentText}, nil)

			assert.Nil(t, eval)
			assert.ErrorIs(t, err, models.ErrExternalCapability)
			assert.ErrorIs(t, err, vectorstore.ErrNonFinite)
			assert.Equal(t, models.KindCapabilityFailure, models.ErrorKind(err))
			assert.Equal(t, 1, index.Len())
		})
	}
}

func TestEvaluate_JudgmentTokenCap(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {0.1, 0}}}
	gen := &stubGenerator{reply: "ok"}

	config := DefaultConfig()
	config.MaxJudgmentTokens = 42
	_, err := New(config, emb, index, gen).Evaluate(context.Background(), Submission{RawText: patentText}, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, gen.maxTokens)
}

func TestEvaluate_EmbeddingTimeout(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	config := DefaultConfig()
	config.EmbedTimeout = 10 * time.Millisecond

	_, err := New(config, &mapEmbedder{block: true}, index, nil).
		Evaluate(context.Background(), Submission{RawText: patentText}, nil)

	assert.ErrorIs(t, err, models.ErrCapabilityTimeout)
	assert.Equal(t, models.KindCapabilityTimeout, models.ErrorKind(err))
}

func TestEvaluate_GenerationFailureAndTimeout(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {0.1, 0}}}

	_, err := New(DefaultConfig(), emb, index, &stubGenerator{err: errors.New("oom")}).
		Evaluate(context.Background(), Submission{RawText: patentText}, nil)
	assert.ErrorIs(t, err, models.ErrExternalCapability)

	config := DefaultConfig()
	config.GenerateTimeout = 10 * time.Millisecond
	_, err = New(config, emb, index, &stubGenerator{block: true}).
		Evaluate(context.Background(), Submission{RawText: patentText}, nil)
	assert.ErrorIs(t, err, models.ErrCapabilityTimeout)
}

func TestEvaluate_CallerCancellation(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultConfig(), &mapEmbedder{block: true}, index, nil).
		Evaluate(ctx, Submission{RawText: patentText}, nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, models.ErrCapabilityTimeout)
}

func TestEvaluate_DimensionMismatch(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {0, 0, 0}}}

	_, err := New(DefaultConfig(), emb, index, nil).Evaluate(context.Background(), Submission{RawText: patentText}, nil)

	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
}

func TestEvaluate_DoesNotMutateCorpus(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {0, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{patentText: {0.1, 0}}}

	_, err := New(DefaultConfig(), emb, index, nil).Evaluate(context.Background(), Submission{RawText: patentText}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, index.Len())
}

func TestNearest(t *testing.T) {
	index := newIndex(t, map[string][]float32{"prior-a": {1, 0}, "prior-b": {0.25, 0}})
	emb := &mapEmbedder{vectors: map[string][]float32{"query": {0, 0}}}

	results, err := New(DefaultConfig(), emb, index, nil).Nearest(context.Background(), "query", 5)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "prior-b", results[0].ID)
	assert.Equal(t, 0.75, results[0].Similarity)
	assert.Equal(t, 0.0, results[1].Similarity)
}

func TestPrepare_ExtractsWithoutCapabilities(t *testing.T) {
	emb := &mapEmbedder{}
	doc := New(DefaultConfig(), emb, vectorstore.New(0), nil).Prepare(Submission{Filename: "a.txt", RawText: "no sections here"})

	assert.Equal(t, models.GenerateToken("no sections here"), doc.Token)
	assert.Empty(t, doc.Sections.Title)
	assert.True(t, strings.HasPrefix(doc.Token, doc.DocumentID()))
	assert.Zero(t, emb.calls)
}
