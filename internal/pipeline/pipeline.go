// Package pipeline runs a single upload through text extraction, the novelty
// decision, corpus admission and the audit log.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mfenderov/patent-novelty/internal/admission"
	"github.com/mfenderov/patent-novelty/internal/corpus"
	"github.com/mfenderov/patent-novelty/internal/novelty"
	"github.com/mfenderov/patent-novelty/internal/processor"
	"github.com/mfenderov/patent-novelty/internal/sqlite"
	"github.com/mfenderov/patent-novelty/internal/vectorstore"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

// Upload is a document submitted for assessment.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Staging keeps a copy of the upload while it is evaluated.
type Staging interface {
	Stage(ctx context.Context, token, filename, contentType string, data []byte) (string, error)
	Discard(ctx context.Context, token, filename string) error
}

// ScoreRecorder appends evaluation outcomes to an audit log.
type ScoreRecorder interface {
	RecordScore(ctx context.Context, score sqlite.Score) error
}

// Assessment is the outcome of Assess.
type Assessment struct {
	RequestID string
	Record    models.ResultRecord
	Mutation  admission.Mutation
	Kind      processor.Kind
}

// Pipeline orchestrates the assessment flow.
type Pipeline struct {
	engine    *novelty.Engine
	admission *admission.Admission
	store     corpus.Store
	index     *vectorstore.Index
	processor *processor.Processor
	staging   Staging
	scores    ScoreRecorder
	newID     func() string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithStaging stages every upload before evaluation.
func WithStaging(s Staging) Option {
	return func(p *Pipeline) { p.staging = s }
}

// WithScoreRecorder records every comparison in an audit log.
func WithScoreRecorder(r ScoreRecorder) Option {
	return func(p *Pipeline) { p.scores = r }
}

// New creates a new Pipeline.
func New(engine *novelty.Engine, adm *admission.Admission, store corpus.Store, index *vectorstore.Index, opts ...Option) *Pipeline {
	p := &Pipeline{
		engine:    engine,
		admission: adm,
		store:     store,
		index:     index,
		processor: processor.New(),
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Assess evaluates an upload and applies the admission decision. When the
// evaluation fails the corpus is unchanged and no record is produced.
func (p *Pipeline) Assess(ctx context.Context, up Upload) (*Assessment, error) {
	start := time.Now()
	requestID := p.newID()

	extracted := p.processor.Extract(up.Filename, up.ContentType, up.Data)
	token := models.GenerateToken(extracted.Text)

	slog.Debug("assessing upload",
		"request_id", requestID,
		"filename", up.Filename,
		"kind", extracted.Kind,
		"document_id", models.DocumentIDFromToken(token))

	staged := false
	if p.staging != nil {
		if _, err := p.staging.Stage(ctx, token, up.Filename, up.ContentType, up.Data); err != nil {
			slog.Warn("failed to stage upload", "request_id", requestID, "filename", up.Filename, "error", err)
		} else {
			staged = true
		}
	}

	eval, err := p.engine.Evaluate(ctx, novelty.Submission{Filename: up.Filename, RawText: extracted.Text}, corpus.TextLookup(p.store))
	if err != nil {
		if staged {
			if derr := p.staging.Discard(context.WithoutCancel(ctx), token, up.Filename); derr != nil {
				slog.Warn("failed to discard staged upload", "request_id", requestID, "error", derr)
			}
		}
		return nil, fmt.Errorf("assessing %s: %w", up.Filename, err)
	}

	mutation, err := p.admission.AdmitOrDiscard(ctx, eval.Document, eval.Verdict)
	if err != nil {
		return nil, fmt.Errorf("assessing %s: %w", up.Filename, err)
	}

	p.recordScore(ctx, requestID, eval, mutation)

	record := models.NewResultRecord(eval.Verdict)
	slog.Info("assessment complete",
		"request_id", requestID,
		"document_id", record.DocumentID,
		"is_unique", record.IsUnique,
		"uniqueness", record.UniquenessScore,
		"match", record.MatchedPatent.Filename,
		"action", mutation.Action,
		"duration", time.Since(start))

	return &Assessment{
		RequestID: requestID,
		Record:    record,
		Mutation:  mutation,
		Kind:      extracted.Kind,
	}, nil
}

func (p *Pipeline) recordScore(ctx context.Context, requestID string, eval *novelty.Evaluation, m admission.Mutation) {
	if p.scores == nil {
		return
	}
	v := eval.Verdict
	err := p.scores.RecordScore(ctx, sqlite.Score{
		ID:              requestID,
		DocumentID:      v.DocumentID,
		Filename:        eval.Document.Filename,
		MatchFilename:   v.Match.Filename,
		SimilarityScore: v.SimilarityScore,
		UniquenessScore: v.UniquenessScore,
		IsUnique:        v.IsUnique,
		Action:          string(m.Action),
		Timestamp:       v.EvaluatedAt,
	})
	if err != nil {
		slog.Warn("failed to record score", "request_id", requestID, "document_id", v.DocumentID, "error", err)
	}
}

// Search returns the k nearest corpus entries for an upload without touching the corpus.
func (p *Pipeline) Search(ctx context.Context, up Upload, k int) ([]models.SimilarityResult, error) {
	text := p.processor.Extract(up.Filename, up.ContentType, up.Data).Text
	return p.engine.Nearest(ctx, text, k)
}

// Lookup returns a corpus record by its full token or its document id prefix.
func (p *Pipeline) Lookup(ctx context.Context, id string) (*corpus.Record, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if id == "" {
		return nil, fmt.Errorf("corpus entry id is required")
	}

	key := id
	if len(id) < 64 {
		var matches []string
		for _, e := range p.index.Entries() {
			if strings.HasPrefix(e.ID, id) {
				matches = append(matches, e.ID)
			}
		}
		switch len(matches) {
		case 0:
			return nil, fmt.Errorf("corpus entry %s: %w", id, models.ErrNotFound)
		case 1:
			key = matches[0]
		default:
			return nil, fmt.Errorf("corpus entry id %s is ambiguous (%d matches)", id, len(matches))
		}
	}

	rec, err := p.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get corpus entry %s: %w", id, err)
	}
	return rec, nil
}

// WriteResult saves a result record as indented JSON, creating parent directories.
func WriteResult(path string, record models.ResultRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	return nil
}
