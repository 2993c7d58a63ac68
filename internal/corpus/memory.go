package corpus

import (
	"context"
	"fmt"
	"sync"

	"github.com/mfenderov/patent-novelty/pkg/models"
)

// MemoryStore keeps records in process memory. Nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Put(_ context.Context, rec Record) error {
	if rec.Key == "" {
		return fmt.Errorf("record key is required")
	}
	rec.Embedding = append([]float32(nil), rec.Embedding...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.Key]; !ok {
		m.order = append(m.order, rec.Key)
	}
	m.records[rec.Key] = rec
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[key]
	if !ok {
		return nil, fmt.Errorf("corpus record %s: %w", key, models.ErrNotFound)
	}
	rec.Embedding = append([]float32(nil), rec.Embedding...)
	return &rec, nil
}

// List returns records in first-insertion order.
func (m *MemoryStore) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.order))
	for _, key := range m.order {
		rec := m.records[key]
		rec.Embedding = append([]float32(nil), rec.Embedding...)
		out = append(out, rec)
	}
	return out, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; !ok {
		return fmt.Errorf("corpus record %s: %w", key, models.ErrNotFound)
	}
	delete(m.records, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}
