package corpus

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfenderov/patent-novelty/internal/vectorstore"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

func TestMemoryStore_PutGetListDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, Record{Key: "k1", Filename: "one.txt", RawText: "one", Embedding: []float32{1}}))
	require.NoError(t, store.Put(ctx, Record{Key: "k2", Filename: "two.txt", RawText: "two", Embedding: []float32{2}}))
	require.NoError(t, store.Put(ctx, Record{Key: "k1", Filename: "one-v2.txt", RawText: "one", Embedding: []float32{3}}))

	rec, err := store.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "one-v2.txt", rec.Filename)
	assert.Equal(t, []float32{3}, rec.Embedding)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "k1", all[0].Key, "replacement keeps first-insertion order")
	assert.Equal(t, "k2", all[1].Key)

	require.NoError(t, store.Delete(ctx, "k1"))
	_, err = store.Get(ctx, "k1")
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "k1"), models.ErrNotFound)

	all, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStore_RejectsEmptyKey(t *testing.T) {
	assert.Error(t, NewMemoryStore().Put(context.Background(), Record{}))
}

func TestMemoryStore_CopiesEmbeddings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	vec := []float32{1, 2}
	require.NoError(t, store.Put(ctx, Record{Key: "k", Embedding: vec}))

	vec[0] = 9
	rec, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, float32(1), rec.Embedding[0])
}

func TestRecordFromDocument(t *testing.T) {
	doc := models.DocumentRecord{
		Token:     models.GenerateToken("text"),
		Filename:  "a.txt",
		RawText:   "text",
		Sections:  models.Sections{Title: "T"},
		Embedding: []float32{0.5},
	}
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))

	rec := RecordFromDocument(doc, at)

	assert.Equal(t, doc.Token, rec.Key)
	assert.Equal(t, "a.txt", rec.Filename)
	assert.Equal(t, "T", rec.Sections.Title)
	assert.Equal(t, time.UTC, rec.AdmittedAt.Location())
	assert.True(t, rec.AdmittedAt.Equal(at))
}

func TestTextLookup(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, Record{Key: "k", RawText: "prior art text"}))

	lookup := TextLookup(store)

	text, err := lookup(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "prior art text", text)

	_, err = lookup(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, Record{Key: "a", Filename: "a.txt", Embedding: []float32{0, 0}}))
	require.NoError(t, store.Put(ctx, Record{Key: "b", Filename: "b.txt"}))
	require.NoError(t, store.Put(ctx, Record{Key: "c", Filename: "c.txt", Embedding: []float32{1, 1}}))
	require.NoError(t, store.Put(ctx, Record{Key: "d", Filename: "d.txt", Embedding: []float32{1, 1, 1}}))

	index := vectorstore.New(0)
	result, err := Load(ctx, store, index)
	require.NoError(t, err)

	assert.Equal(t, LoadResult{Loaded: 2, Skipped: 2}, result)
	assert.Equal(t, 2, index.Len())

	hits, err := index.SearchNearest([]float32{1, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, "c", hits[0].ID)
	assert.Equal(t, "c.txt", hits[0].Filename)
}

func TestLoad_SkipsNonFiniteEmbeddings(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, Record{Key: "poison", Filename: "poison.txt", Embedding: []float32{float32(math.NaN()), 0}}))
	require.NoError(t, store.Put(ctx, Record{Key: "far", Filename: "far.txt", Embedding: []float32{5, 5}}))
	require.NoError(t, store.Put(ctx, Record{Key: "exact", Filename: "exact.txt", Embedding: []float32{0, 0}}))

	index := vectorstore.New(0)
	result, err := Load(ctx, store, index)
	require.NoError(t, err)

	assert.Equal(t, LoadResult{Loaded: 2, Skipped: 1}, result)
	hits, err := index.SearchNearest([]float32{0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "exact", hits[0].ID)
}

type failingStore struct{ *MemoryStore }

func (failingStore) List(context.Context) ([]Record, error) { return nil, errors.New("disk gone") }

func TestLoad_ListError(t *testing.T) {
	_, err := Load(context.Background(), failingStore{NewMemoryStore()}, vectorstore.New(0))
	assert.ErrorContains(t, err, "disk gone")
}
