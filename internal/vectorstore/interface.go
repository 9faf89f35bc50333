package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_index.go -package=mocks contractaid/internal/vectorstore Index

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"contractaid/internal/document"
)

// DefaultFetchK is the size of the nearest-neighbour pool MMR selects from.
const DefaultFetchK = 8

// DefaultLambda weighs relevance against diversity equally.
const DefaultLambda = 0.5

// pointNamespace seeds deterministic point IDs.
var pointNamespace = uuid.MustParse("6f1c1f43-8d0e-4b8a-9d55-3f6a5b8c2e10")

// Record is an embedded segment ready to be stored.
type Record struct {
	Segment document.Segment
	Vector  []float32
}

// ID returns the record's stable identifier, derived from (sourcePath, sequenceIndex),
// so re-upserting the same segment replaces the earlier record.
func (r Record) ID() string {
	return uuid.NewSHA1(pointNamespace, []byte(r.Segment.Key())).String()
}

// SearchParams controls maximal marginal relevance retrieval.
type SearchParams struct {
	// K is the number of results. K <= 0 means the whole pool.
	K int
	// FetchK is the size of the nearest-neighbour candidate pool. FetchK <= 0 means DefaultFetchK.
	FetchK int
	// Lambda trades relevance (1) against diversity (0).
	Lambda float64
}

// DefaultSearchParams returns fetchK=8, k=auto, lambda=0.5.
func DefaultSearchParams() SearchParams {
	return SearchParams{FetchK: DefaultFetchK, Lambda: DefaultLambda}
}

// normalize resolves defaults and caps K at FetchK.
func (p SearchParams) normalize() SearchParams {
	if p.FetchK <= 0 {
		p.FetchK = DefaultFetchK
	}
	if p.K <= 0 || p.K > p.FetchK {
		p.K = p.FetchK
	}
	if p.Lambda < 0 {
		p.Lambda = 0
	}
	if p.Lambda > 1 {
		p.Lambda = 1
	}
	return p
}

// Index is a session-scoped vector index. Every Index is bound to one
// namespace at construction; two sessions never share one.
type Index interface {
	// Upsert adds or replaces records keyed by (sourcePath, sequenceIndex).
	Upsert(ctx context.Context, records []Record) error

	// Search returns up to K segments chosen by maximal marginal relevance
	// from the FetchK nearest neighbours of query, in selection order.
	Search(ctx context.Context, query []float32, params SearchParams) ([]document.Segment, error)

	// Drop removes every record of the namespace. Dropping twice is not an error.
	Drop(ctx context.Context) error
}

// IndexError reports that the backing store failed or is unreachable.
type IndexError struct {
	Backend string
	Op      string
	Err     error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index error (%s %s): %v", e.Backend, e.Op, e.Err)
}

func (e *IndexError) Unwrap() error {
	return e.Err
}
