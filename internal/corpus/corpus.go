// Package corpus defines durable storage for admitted documents and rebuilds
// the in-memory index from it.
package corpus

import (
	"context"
	"time"

	"github.com/mfenderov/patent-novelty/pkg/models"
)

// Record is a persisted corpus entry. Key is the document's content token.
type Record struct {
	Key        string
	Filename   string
	RawText    string
	Sections   models.Sections
	Embedding  []float32
	AdmittedAt time.Time
}

// RecordFromDocument converts an evaluated document into a Record.
func RecordFromDocument(doc models.DocumentRecord, admittedAt time.Time) Record {
	return Record{
		Key:        doc.Token,
		Filename:   doc.Filename,
		RawText:    doc.RawText,
		Sections:   doc.Sections,
		Embedding:  doc.Embedding,
		AdmittedAt: admittedAt.UTC(),
	}
}

// Store persists corpus records. Put is an upsert keyed by Record.Key.
// Get and Delete return an error wrapping models.ErrNotFound for unknown keys.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, key string) (*Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, key string) error
}

// TextLookup resolves a corpus key to its stored raw text.
func TextLookup(store Store) func(ctx context.Context, key string) (string, error) {
	return func(ctx context.Context, key string) (string, error) {
		rec, err := store.Get(ctx, key)
		if err != nil {
			return "", err
		}
		return rec.RawText, nil
	}
}
