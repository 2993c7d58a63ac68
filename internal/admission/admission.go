// Package admission applies a verdict to the corpus: near-duplicates are
// admitted as new prior art, unique uploads are discarded.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mfenderov/patent-novelty/internal/corpus"
	"github.com/mfenderov/patent-novelty/internal/events"
	"github.com/mfenderov/patent-novelty/internal/vectorstore"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

// Action is the corpus mutation applied to an upload.
type Action string

const (
	Admitted  Action = "admitted"
	Discarded Action = "discarded"
)

// Mutation describes what AdmitOrDiscard did.
type Mutation struct {
	Action   Action
	Token    string
	Filename string
	Replaced bool
}

// Staging holds uploads while they are evaluated. Implementations must
// tolerate a missing object.
type Staging interface {
	Promote(ctx context.Context, token, filename string) error
	Discard(ctx context.Context, token, filename string) error
}

// Admission serializes corpus writes per document identity.
type Admission struct {
	store   corpus.Store
	index   *vectorstore.Index
	staging Staging
	group   singleflight.Group
	notify  func(events.AdmissionEvent)
	now     func() time.Time
}

// Option configures an Admission.
type Option func(*Admission)

// WithStaging promotes or discards staged uploads alongside the decision.
func WithStaging(s Staging) Option {
	return func(a *Admission) { a.staging = s }
}

// WithNotify registers a callback invoked after every decision.
func WithNotify(fn func(events.AdmissionEvent)) Option {
	return func(a *Admission) { a.notify = fn }
}

// New creates an Admission writing to store and index.
func New(store corpus.Store, index *vectorstore.Index, opts ...Option) *Admission {
	a := &Admission{
		store: store,
		index: index,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AdmitOrDiscard applies verdict to doc. A unique document is discarded and
// the corpus is left untouched; anything else is committed. A document with no
// text is discarded whatever the verdict, since every such upload shares one
// identity.
func (a *Admission) AdmitOrDiscard(ctx context.Context, doc models.DocumentRecord, verdict models.Verdict) (Mutation, error) {
	if !hasText(doc) {
		slog.Warn("upload has no extractable text; not admitted", "document_id", doc.DocumentID(), "filename", doc.Filename)
		return a.discard(ctx, doc), nil
	}
	if verdict.IsUnique {
		slog.Info("upload discarded", "document_id", doc.DocumentID(), "uniqueness", verdict.UniquenessScore)
		return a.discard(ctx, doc), nil
	}

	m, err := a.Commit(ctx, doc)
	if err != nil {
		return Mutation{}, err
	}

	if a.staging != nil {
		if err := a.staging.Promote(ctx, doc.Token, doc.Filename); err != nil {
			slog.Warn("failed to promote staged upload", "document_id", doc.DocumentID(), "filename", doc.Filename, "error", err)
		}
	}
	return m, nil
}

func (a *Admission) discard(ctx context.Context, doc models.DocumentRecord) Mutation {
	if a.staging != nil {
		if err := a.staging.Discard(ctx, doc.Token, doc.Filename); err != nil {
			slog.Warn("failed to discard staged upload", "document_id", doc.DocumentID(), "filename", doc.Filename, "error", err)
		}
	}
	m := Mutation{Action: Discarded, Token: doc.Token, Filename: doc.Filename}
	a.emit(m)
	return m
}

func hasText(doc models.DocumentRecord) bool {
	return strings.TrimSpace(doc.RawText) != ""
}

// Commit persists doc and adds it to the index unconditionally. Concurrent
// commits of the same identity share one write. Every check the index applies
// runs before the durable write, and the durable write happens before the
// index update, so a failure leaves neither a record without an index entry
// nor an index entry without backing.
func (a *Admission) Commit(ctx context.Context, doc models.DocumentRecord) (Mutation, error) {
	if doc.Token == "" {
		return Mutation{}, fmt.Errorf("document token is required")
	}
	if !hasText(doc) {
		return Mutation{}, fmt.Errorf("document %s has no text", doc.DocumentID())
	}
	if len(doc.Embedding) == 0 {
		return Mutation{}, fmt.Errorf("document %s has no embedding", doc.DocumentID())
	}
	if err := vectorstore.CheckFinite(doc.Embedding); err != nil {
		return Mutation{}, fmt.Errorf("document %s: %w", doc.DocumentID(), err)
	}

	v, err, shared := a.group.Do(doc.Token, func() (any, error) {
		return a.commit(ctx, doc)
	})
	if err != nil {
		return Mutation{}, err
	}

	m := v.(Mutation)
	if shared {
		slog.Debug("admission shared with a concurrent request", "document_id", doc.DocumentID())
	}
	return m, nil
}

func (a *Admission) commit(ctx context.Context, doc models.DocumentRecord) (Mutation, error) {
	// Reserve is atomic, so distinct identities racing on an empty index
	// cannot both pass with different dimensions.
	if err := a.index.Reserve(len(doc.Embedding)); err != nil {
		return Mutation{}, fmt.Errorf("document %s: %w", doc.DocumentID(), err)
	}

	_, replaced := a.index.Get(doc.Token)

	if err := a.store.Put(ctx, corpus.RecordFromDocument(doc, a.now())); err != nil {
		return Mutation{}, fmt.Errorf("persisting %s: %w: %w", doc.DocumentID(), models.ErrCorpusStorage, err)
	}
	if err := a.index.Upsert(doc.Token, doc.Filename, doc.Embedding); err != nil {
		return Mutation{}, fmt.Errorf("indexing %s: %w", doc.DocumentID(), err)
	}

	m := Mutation{Action: Admitted, Token: doc.Token, Filename: doc.Filename, Replaced: replaced}
	a.emit(m)
	slog.Info("document admitted to corpus", "document_id", doc.DocumentID(), "filename", doc.Filename, "replaced", replaced, "corpus_size", a.index.Len())
	return m, nil
}

func (a *Admission) emit(m Mutation) {
	if a.notify == nil {
		return
	}
	a.notify(events.AdmissionEvent{
		Token:     m.Token,
		Filename:  m.Filename,
		Action:    string(m.Action),
		Replaced:  m.Replaced,
		Timestamp: a.now().UTC(),
	})
}
