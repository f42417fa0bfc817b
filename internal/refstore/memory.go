package refstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"folio/api/internal/reference"
)

// MemoryStore keeps references in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (m *MemoryStore) Put(_ context.Context, id reference.ID, md reference.Metadata) (Record, error) {
	rec := NewRecord(id, md)
	m.mu.Lock()
	m.records[rec.StorageID] = rec
	m.mu.Unlock()
	return rec, nil
}

func (m *MemoryStore) Get(_ context.Context, storageID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[storageID]
	if !ok {
		return Record{}, fmt.Errorf("reference %s: %w", storageID, reference.ErrNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) GetMetadata(ctx context.Context, key string) (reference.Metadata, error) {
	return metadataFor(ctx, m.Get, key)
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	records := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].CitationKey < records[j].CitationKey })
	if limit = normalizeLimit(limit); len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (m *MemoryStore) Search(ctx context.Context, text string, limit int) ([]Record, error) {
	m.mu.RLock()
	total := len(m.records)
	m.mu.RUnlock()
	all, err := m.List(ctx, total+1)
	if err != nil {
		return nil, err
	}
	limit = normalizeLimit(limit)
	var hits []Record
	for _, rec := range all {
		if matches(rec, text) {
			hits = append(hits, rec)
			if len(hits) == limit {
				break
			}
		}
	}
	return hits, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
