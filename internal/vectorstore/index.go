// Package vectorstore holds one embedding per corpus document in memory and
// answers exact L2 nearest-neighbour queries.
package vectorstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mfenderov/patent-novelty/pkg/models"
)

// Entry is a stored corpus embedding.
type Entry struct {
	ID       string
	Filename string
	Vector   []float32
}

// Hit is a single search result.
type Hit struct {
	ID       string
	Filename string
	Distance float64
}

type entry struct {
	Entry
	seq uint64
}

// Index is a brute-force exact L2 index.
// Reads run concurrently; Upsert and Remove are exclusive.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq uint64
	dim     int
}

// New creates an empty index. A dimension of 0 is fixed by the first Upsert.
func New(dim int) *Index {
	return &Index{
		entries: make(map[string]*entry),
		dim:     dim,
	}
}

// Upsert inserts or replaces the embedding stored under id.
// A replaced entry keeps its original insertion position for tie-breaking.
func (x *Index) Upsert(id, filename string, vec []float32) error {
	if id == "" {
		return fmt.Errorf("vectorstore: empty id")
	}
	if len(vec) == 0 {
		return fmt.Errorf("vectorstore: empty embedding for %s", id)
	}
	if err := CheckFinite(vec); err != nil {
		return fmt.Errorf("vectorstore: embedding for %s: %w", id, err)
	}

	copied := make([]float32, len(vec))
	copy(copied, vec)

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim == 0 {
		x.dim = len(vec)
	}
	if len(vec) != x.dim {
		return fmt.Errorf("%w: got %d, index has %d", models.ErrDimensionMismatch, len(vec), x.dim)
	}

	if existing, ok := x.entries[id]; ok {
		existing.Filename = filename
		existing.Vector = copied
		return nil
	}

	x.entries[id] = &entry{
		Entry: Entry{ID: id, Filename: filename, Vector: copied},
		seq:   x.nextSeq,
	}
	x.nextSeq++
	return nil
}

// Reserve fixes the index dimension to dim if none is set yet, or checks that
// dim matches the fixed one. A reservation is never released.
func (x *Index) Reserve(dim int) error {
	if dim <= 0 {
		return fmt.Errorf("vectorstore: invalid dimension %d", dim)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim == 0 {
		x.dim = dim
		return nil
	}
	if dim != x.dim {
		return fmt.Errorf("%w: got %d, index has %d", models.ErrDimensionMismatch, dim, x.dim)
	}
	return nil
}

// Remove deletes the entry stored under id and reports whether it existed.
func (x *Index) Remove(id string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.entries[id]; !ok {
		return false
	}
	delete(x.entries, id)
	return true
}

// Get returns a copy of the entry stored under id.
func (x *Index) Get(id string) (Entry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	e, ok := x.entries[id]
	if !ok {
		return Entry{}, false
	}
	return copyEntry(e.Entry), true
}

// Len returns the number of stored entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Dimension returns the embedding dimension, or 0 if not yet fixed.
func (x *Index) Dimension() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Entries returns copies of all entries in insertion order.
func (x *Index) Entries() []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()

	ordered := x.ordered()
	out := make([]Entry, len(ordered))
	for i, e := range ordered {
		out[i] = copyEntry(e.Entry)
	}
	return out
}

// SearchNearest returns up to k entries ordered by ascending L2 distance.
// Equal distances keep insertion order. k <= 0 returns every entry.
func (x *Index) SearchNearest(query []float32, k int) ([]Hit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.entries) == 0 {
		return nil, models.ErrEmptyCorpus
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", models.ErrDimensionMismatch, len(query), x.dim)
	}
	if err := CheckFinite(query); err != nil {
		return nil, fmt.Errorf("vectorstore: query: %w", err)
	}

	ordered := x.ordered()
	hits := make([]Hit, 0, len(ordered))
	for _, e := range ordered {
		d, err := L2Distance(query, e.Vector)
		if err != nil {
			return nil, err
		}
		hits = append(hits, Hit{ID: e.ID, Filename: e.Filename, Distance: d})
	}

	sort.SliceStable(hits, func(a, b int) bool { return hits[a].Distance < hits[b].Distance })

	if k > 0 && k < len(hits) {
		hits = hits[:k]
	}
	return hits, nil
}

// ordered must be called with the lock held.
func (x *Index) ordered() []*entry {
	out := make([]*entry, 0, len(x.entries))
	for _, e := range x.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].seq < out[b].seq })
	return out
}

func copyEntry(e Entry) Entry {
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	return Entry{ID: e.ID, Filename: e.Filename, Vector: vec}
}
