package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_segment_store.go -package=mocks contractaid/internal/storage SegmentStore

import (
	"context"
	"database/sql"
	"fmt"
)

// SegmentStore defines the interface for namespaced segment storage.
type SegmentStore interface {
	// EnsureNamespace creates the namespace if it does not exist.
	EnsureNamespace(ctx context.Context, namespace string) error
	// UpsertBatch inserts or replaces segments in one transaction,
	// keyed by (namespace, source_path, seq_index).
	UpsertBatch(ctx context.Context, namespace string, records []*SegmentRecord) error
	// ListByNamespace returns every segment of a namespace ordered by source path and sequence.
	ListByNamespace(ctx context.Context, namespace string) ([]*SegmentRecord, error)
	// CountByNamespace returns the number of segments in a namespace.
	CountByNamespace(ctx context.Context, namespace string) (int, error)
	// DeleteNamespace removes a namespace and, by cascade, its segments.
	DeleteNamespace(ctx context.Context, namespace string) error
}

// SegmentRepo provides methods for segment operations.
// It implements the SegmentStore interface.
type SegmentRepo struct {
	db *sql.DB
}

// NewSegmentRepo creates a new SegmentRepo.
func NewSegmentRepo(db *sql.DB) *SegmentRepo {
	return &SegmentRepo{db: db}
}

// DB returns the underlying database connection.
func (r *SegmentRepo) DB() *sql.DB {
	return r.db
}

// EnsureNamespace creates the namespace if it does not exist.
func (r *SegmentRepo) EnsureNamespace(ctx context.Context, namespace string) error {
	_, err := r.db.ExecContext(ctx, "INSERT OR IGNORE INTO namespaces (name) VALUES (?)", namespace)
	if err != nil {
		return fmt.Errorf("failed to create namespace: %w", err)
	}
	return nil
}

// UpsertBatch inserts or replaces segments in one transaction.
// The namespace must exist.
func (r *SegmentRepo) UpsertBatch(ctx context.Context, namespace string, records []*SegmentRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO segments (id, namespace, source_path, seq_index, start_offset, end_offset, text, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(namespace, source_path, seq_index) DO UPDATE SET
			id = excluded.id,
			start_offset = excluded.start_offset,
			end_offset = excluded.end_offset,
			text = excluded.text,
			vector = excluded.vector`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer func() {
		_ = stmt.Close()
	}()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			rec.ID, namespace, rec.SourcePath, rec.SeqIndex, rec.StartOffset, rec.EndOffset, rec.Text, floatsToBytes(rec.Vector),
		); err != nil {
			return fmt.Errorf("failed to upsert segment %s#%d: %w", rec.SourcePath, rec.SeqIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// ListByNamespace returns every segment of a namespace ordered by source path and sequence.
// Returns an empty slice if the namespace holds nothing (not an error).
func (r *SegmentRepo) ListByNamespace(ctx context.Context, namespace string) ([]*SegmentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, namespace, source_path, seq_index, start_offset, end_offset, text, vector
		FROM segments WHERE namespace = ?
		ORDER BY source_path, seq_index`,
		namespace,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var records []*SegmentRecord
	for rows.Next() {
		var (
			rec  SegmentRecord
			blob []byte
		)
		if err := rows.Scan(&rec.ID, &rec.Namespace, &rec.SourcePath, &rec.SeqIndex, &rec.StartOffset, &rec.EndOffset, &rec.Text, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		rec.Vector = bytesToFloats(blob)
		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// CountByNamespace returns the number of segments in a namespace.
func (r *SegmentRepo) CountByNamespace(ctx context.Context, namespace string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM segments WHERE namespace = ?", namespace).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count segments: %w", err)
	}
	return count, nil
}

// DeleteNamespace removes a namespace and its segments.
// Deleting a missing namespace is not an error.
func (r *SegmentRepo) DeleteNamespace(ctx context.Context, namespace string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM namespaces WHERE name = ?", namespace)
	if err != nil {
		return fmt.Errorf("failed to delete namespace: %w", err)
	}
	return nil
}
