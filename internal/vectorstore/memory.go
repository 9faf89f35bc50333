package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"contractaid/internal/contextutil"
	"contractaid/internal/document"
)

// MemoryIndex is an in-process index using brute-force cosine similarity.
type MemoryIndex struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]Record
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]Record)}
}

// Upsert adds or replaces records. All vectors must share one dimension.
func (m *MemoryIndex) Upsert(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dim := m.dimension
	for _, r := range records {
		if len(r.Vector) == 0 {
			return &IndexError{Backend: "memory", Op: "upsert", Err: fmt.Errorf("empty vector for %s", r.Segment.Key())}
		}
		if dim == 0 {
			dim = len(r.Vector)
		}
		if len(r.Vector) != dim {
			return &IndexError{Backend: "memory", Op: "upsert", Err: fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, len(r.Vector))}
		}
	}
	m.dimension = dim
	for _, r := range records {
		m.records[r.Segment.Key()] = r
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "upserted records", "backend", "memory", "count", len(records), "total", len(m.records))
	return nil
}

// Search ranks stored records by maximal marginal relevance.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, params SearchParams) ([]document.Segment, error) {
	m.mu.RLock()
	pool := make([]candidate, 0, len(m.records))
	for _, r := range m.records {
		pool = append(pool, candidate{segment: r.Segment, vector: r.Vector})
	}
	m.mu.RUnlock()

	// Map iteration is random; fix the order so ties rank deterministically.
	sort.Slice(pool, func(i, j int) bool {
		a, b := pool[i].segment, pool[j].segment
		if a.SourcePath != b.SourcePath {
			return a.SourcePath < b.SourcePath
		}
		return a.SequenceIndex < b.SequenceIndex
	})

	return rankMMR(query, pool, params), nil
}

// Drop removes all records.
func (m *MemoryIndex) Drop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]Record)
	m.dimension = 0
	return nil
}

// Len returns the number of stored records.
func (m *MemoryIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
