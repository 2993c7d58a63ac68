package admission

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfenderov/patent-novelty/internal/corpus"
	"github.com/mfenderov/patent-novelty/internal/events"
	"github.com/mfenderov/patent-novelty/internal/vectorstore"
	"github.com/mfenderov/patent-novelty/pkg/models"
)

type recordingStaging struct {
	mu        sync.Mutex
	promoted  []string
	discarded []string
	err       error
}

func (s *recordingStaging) Promote(_ context.Context, token, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.promoted = append(s.promoted, token)
	return s.err
}

func (s *recordingStaging) Discard(_ context.Context, token, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discarded = append(s.discarded, token)
	return s.err
}

type failingStore struct {
	*corpus.MemoryStore
	err error
}

func (f failingStore) Put(context.Context, corpus.Record) error {
	return f.err
}

// slowStore delays every Put so concurrent commits overlap.
type slowStore struct {
	*corpus.MemoryStore
	delay time.Duration
}

func (s slowStore) Put(ctx context.Context, rec corpus.Record) error {
	time.Sleep(s.delay)
	return s.MemoryStore.Put(ctx, rec)
}

// gatedStore blocks the first Put until released and counts every Put.
type gatedStore struct {
	*corpus.MemoryStore
	puts    atomic.Int32
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Put(ctx context.Context, rec corpus.Record) error {
	g.puts.Add(1)
	g.once.Do(func() {
		close(g.entered)
		<-g.release
	})
	return g.MemoryStore.Put(ctx, rec)
}

func document(text string, vec []float32) models.DocumentRecord {
	return models.DocumentRecord{
		Token:     models.GenerateToken(text),
		Filename:  "upload.txt",
		RawText:   text,
		Embedding: vec,
	}
}

func TestAdmitOrDiscard_UniqueIsDiscarded(t *testing.T) {
	ctx := context.Background()
	store := corpus.NewMemoryStore()
	index := vectorstore.New(0)
	staging := &recordingStaging{}
	doc := document("novel", []float32{1, 0})

	m, err := New(store, index, WithStaging(staging)).AdmitOrDiscard(ctx, doc, models.Verdict{IsUnique: true, UniquenessScore: 0.9})
	require.NoError(t, err)

	assert.Equal(t, Discarded, m.Action)
	assert.Equal(t, 0, index.Len())
	all, _ := store.List(ctx)
	assert.Empty(t, all)
	assert.Equal(t, []string{doc.Token}, staging.discarded)
	assert.Empty(t, staging.promoted)
}

func TestAdmitOrDiscard_NotUniqueIsAdmitted(t *testing.T) {
	ctx := context.Background()
	store := corpus.NewMemoryStore()
	index := vectorstore.New(0)
	staging := &recordingStaging{}
	doc := document("near duplicate", []float32{0.5, 0.5})

	m, err := New(store, index, WithStaging(staging)).AdmitOrDiscard(ctx, doc, models.Verdict{IsUnique: false})
	require.NoError(t, err)

	assert.Equal(t, Admitted, m.Action)
	assert.False(t, m.Replaced)

	entry, ok := index.Get(doc.Token)
	require.True(t, ok)
	assert.Equal(t, doc.Embedding, entry.Vector)

	rec, err := store.Get(ctx, doc.Token)
	require.NoError(t, err)
	assert.Equal(t, "near duplicate", rec.RawText)
	assert.Equal(t, []string{doc.Token}, staging.promoted)
}

func TestAdmitOrDiscard_StagingFailureIsNotFatal(t *testing.T) {
	staging := &recordingStaging{err: errors.New("bucket gone")}
	a := New(corpus.NewMemoryStore(), vectorstore.New(0), WithStaging(staging))

	_, err := a.AdmitOrDiscard(context.Background(), document("x", []float32{1}), models.Verdict{IsUnique: true})
	assert.NoError(t, err)

	_, err = a.AdmitOrDiscard(context.Background(), document("y", []float32{1}), models.Verdict{IsUnique: false})
	assert.NoError(t, err)
}

func TestCommit_PersistFailureLeavesIndexUntouched(t *testing.T) {
	index := vectorstore.New(0)
	disk := errors.New("disk I/O error")
	a := New(failingStore{MemoryStore: corpus.NewMemoryStore(), err: disk}, index)

	_, err := a.AdmitOrDiscard(context.Background(), document("x", []float32{1, 2}), models.Verdict{})

	assert.ErrorIs(t, err, models.ErrCorpusStorage)
	assert.ErrorIs(t, err, disk)
	assert.Equal(t, models.KindCorpusStorage, models.ErrorKind(err))
	assert.Equal(t, 0, index.Len())
}

func TestCommit_BackendConflictKeepsItsKind(t *testing.T) {
	index := vectorstore.New(0)
	busy := fmt.Errorf("saving patent: %w: database is locked", models.ErrCorpusWriteConflict)
	a := New(failingStore{MemoryStore: corpus.NewMemoryStore(), err: busy}, index)

	_, err := a.Commit(context.Background(), document("x", []float32{1, 2}))

	assert.ErrorIs(t, err, models.ErrCorpusWriteConflict)
	assert.Equal(t, models.KindCorpusWriteConflict, models.ErrorKind(err))
	assert.Equal(t, 0, index.Len())
}

func TestCommit_ConcurrentDistinctDimensions(t *testing.T) {
	ctx := context.Background()
	store := slowStore{MemoryStore: corpus.NewMemoryStore(), delay: 20 * time.Millisecond}
	index := vectorstore.New(0)
	a := New(store, index)

	docs := []models.DocumentRecord{
		document("two dimensions", []float32{1, 2}),
		document("three dimensions", []float32{1, 2, 3}),
	}

	errs := make([]error, len(docs))
	var wg sync.WaitGroup
	for i, doc := range docs {
		wg.Add(1)
		go func(i int, doc models.DocumentRecord) {
			defer wg.Done()
			_, errs[i] = a.Commit(ctx, doc)
		}(i, doc)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err == nil {
			continue
		}
		failed++
		assert.ErrorIs(t, err, models.ErrDimensionMismatch)
		assert.Equal(t, models.KindDimensionMismatch, models.ErrorKind(err))
	}
	assert.Equal(t, 1, failed)

	stored, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 1)
	assert.Equal(t, 1, index.Len())
	_, ok := index.Get(stored[0].Key)
	assert.True(t, ok, "the stored record must be indexed")
}

func TestCommit_RejectsNonFiniteEmbedding(t *testing.T) {
	ctx := context.Background()
	store := corpus.NewMemoryStore()
	index := vectorstore.New(0)

	_, err := New(store, index).Commit(ctx, document("poison", []float32{float32(math.NaN()), 0}))

	assert.ErrorIs(t, err, vectorstore.ErrNonFinite)
	all, _ := store.List(ctx)
	assert.Empty(t, all)
	assert.Equal(t, 0, index.Dimension())
}

func TestAdmitOrDiscard_EmptyTextIsNeverAdmitted(t *testing.T) {
	ctx := context.Background()
	store := corpus.NewMemoryStore()
	index := vectorstore.New(0)
	staging := &recordingStaging{}
	doc := document(" \n\t", []float32{0.1, 0.1})

	m, err := New(store, index, WithStaging(staging)).AdmitOrDiscard(ctx, doc, models.Verdict{IsUnique: false})
	require.NoError(t, err)

	assert.Equal(t, Discarded, m.Action)
	assert.Equal(t, 0, index.Len())
	all, _ := store.List(ctx)
	assert.Empty(t, all)
	assert.Equal(t, []string{doc.Token}, staging.discarded)
	assert.Empty(t, staging.promoted)
}

func TestCommit_DimensionMismatchPersistsNothing(t *testing.T) {
	ctx := context.Background()
	store := corpus.NewMemoryStore()
	index := vectorstore.New(0)
	require.NoError(t, index.Upsert("existing", "e.txt", []float32{1, 2, 3}))

	_, err := New(store, index).Commit(ctx, document("short", []float32{1, 2}))

	assert.ErrorIs(t, err, models.ErrDimensionMismatch)
	all, _ := store.List(ctx)
	assert.Empty(t, all)
}

func TestCommit_RequiresEmbeddingAndToken(t *testing.T) {
	a := New(corpus.NewMemoryStore(), vectorstore.New(0))

	_, err := a.Commit(context.Background(), document("x", nil))
	assert.Error(t, err)

	_, err = a.Commit(context.Background(), models.DocumentRecord{Embedding: []float32{1}})
	assert.Error(t, err)

	_, err = a.Commit(context.Background(), document("", []float32{1}))
	assert.Error(t, err)
}

func TestCommit_ReuploadReplaces(t *testing.T) {
	ctx := context.Background()
	index := vectorstore.New(0)
	a := New(corpus.NewMemoryStore(), index)

	doc := document("same text", []float32{1, 1})
	first, err := a.Commit(ctx, doc)
	require.NoError(t, err)
	assert.False(t, first.Replaced)

	doc.Embedding = []float32{2, 2}
	second, err := a.Commit(ctx, doc)
	require.NoError(t, err)
	assert.True(t, second.Replaced)

	assert.Equal(t, 1, index.Len())
	entry, _ := index.Get(doc.Token)
	assert.Equal(t, []float32{2, 2}, entry.Vector)
}

func TestCommit_ConcurrentSameIdentityCollapses(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		MemoryStore: corpus.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	index := vectorstore.New(0)
	a := New(store, index)
	doc := document("raced", []float32{0.1, 0.2})

	const callers = 8
	results := make(chan error, callers)

	go func() {
		_, err := a.Commit(ctx, doc)
		results <- err
	}()
	<-store.entered

	for i := 1; i < callers; i++ {
		go func() {
			_, err := a.Commit(ctx, doc)
			results <- err
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(store.release)

	for i := 0; i < callers; i++ {
		require.NoError(t, <-results)
	}

	assert.Equal(t, int32(1), store.puts.Load())
	assert.Equal(t, 1, index.Len())
}

func TestCommit_ConcurrentDistinctIdentities(t *testing.T) {
	ctx := context.Background()
	store := corpus.NewMemoryStore()
	index := vectorstore.New(0)
	a := New(store, index)

	texts := []string{"a", "b", "c", "d", "e", "f"}
	var wg sync.WaitGroup
	for _, text := range texts {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := a.Commit(ctx, document(text, []float32{1, 1}))
			assert.NoError(t, err)
		}(text)
	}
	wg.Wait()

	assert.Equal(t, len(texts), index.Len())
	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(texts))
}

func TestNotify(t *testing.T) {
	var got []events.AdmissionEvent
	a := New(corpus.NewMemoryStore(), vectorstore.New(0), WithNotify(func(e events.AdmissionEvent) {
		got = append(got, e)
	}))

	_, err := a.AdmitOrDiscard(context.Background(), document("keep", []float32{1}), models.Verdict{})
	require.NoError(t, err)
	_, err = a.AdmitOrDiscard(context.Background(), document("drop", []float32{1}), models.Verdict{IsUnique: true})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "admitted", got[0].Action)
	assert.Equal(t, "discarded", got[1].Action)
	assert.Equal(t, models.GenerateToken("drop"), got[1].Token)
}
