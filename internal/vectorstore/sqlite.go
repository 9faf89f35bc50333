package vectorstore

import (
	"context"

	"contractaid/internal/contextutil"
	"contractaid/internal/document"
	"contractaid/internal/storage"
)

// SQLiteIndex stores records in the segments table under one namespace
// and ranks them in process.
type SQLiteIndex struct {
	store     storage.SegmentStore
	namespace string
}

// NewSQLiteIndex creates the namespace and returns an index bound to it.
func NewSQLiteIndex(ctx context.Context, store storage.SegmentStore, namespace string) (*SQLiteIndex, error) {
	if err := store.EnsureNamespace(ctx, namespace); err != nil {
		return nil, &IndexError{Backend: "sqlite", Op: "create", Err: err}
	}
	return &SQLiteIndex{store: store, namespace: namespace}, nil
}

// Upsert writes records in one transaction.
func (s *SQLiteIndex) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]*storage.SegmentRecord, len(records))
	for i, r := range records {
		rows[i] = &storage.SegmentRecord{
			ID:          r.ID(),
			Namespace:   s.namespace,
			SourcePath:  r.Segment.SourcePath,
			SeqIndex:    r.Segment.SequenceIndex,
			StartOffset: r.Segment.StartOffset,
			EndOffset:   r.Segment.EndOffset,
			Text:        r.Segment.Text,
			Vector:      r.Vector,
		}
	}

	if err := s.store.UpsertBatch(ctx, s.namespace, rows); err != nil {
		return &IndexError{Backend: "sqlite", Op: "upsert", Err: err}
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "upserted records", "backend", "sqlite", "namespace", s.namespace, "count", len(records))
	return nil
}

// Search loads the namespace and ranks it by maximal marginal relevance.
func (s *SQLiteIndex) Search(ctx context.Context, query []float32, params SearchParams) ([]document.Segment, error) {
	rows, err := s.store.ListByNamespace(ctx, s.namespace)
	if err != nil {
		return nil, &IndexError{Backend: "sqlite", Op: "search", Err: err}
	}

	pool := make([]candidate, len(rows))
	for i, row := range rows {
		pool[i] = candidate{
			segment: document.Segment{
				Text:          row.Text,
				SourcePath:    row.SourcePath,
				SequenceIndex: row.SeqIndex,
				StartOffset:   row.StartOffset,
				EndOffset:     row.EndOffset,
			},
			vector: row.Vector,
		}
	}

	return rankMMR(query, pool, params), nil
}

// Drop deletes the namespace and its records.
func (s *SQLiteIndex) Drop(ctx context.Context) error {
	if err := s.store.DeleteNamespace(ctx, s.namespace); err != nil {
		return &IndexError{Backend: "sqlite", Op: "drop", Err: err}
	}
	return nil
}
