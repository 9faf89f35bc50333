package rag

import (
	"context"
	"fmt"

	"contractaid/internal/contextutil"
	"contractaid/internal/document"
	"contractaid/internal/llm"
	"contractaid/internal/retry"
	"contractaid/internal/vectorstore"
)

// Retrieval is the outcome of one retrieval: the segments in rank order and
// the context string built from them.
type Retrieval struct {
	Segments []document.Segment
	Context  string
}

// Sources returns the distinct source paths of the retrieved segments in rank order.
func (r Retrieval) Sources() []string {
	seen := make(map[string]struct{}, len(r.Segments))
	var out []string
	for _, seg := range r.Segments {
		if _, ok := seen[seg.SourcePath]; ok {
			continue
		}
		seen[seg.SourcePath] = struct{}{}
		out = append(out, seg.SourcePath)
	}
	return out
}

// Retriever embeds a question and selects supporting segments by maximal
// marginal relevance.
type Retriever struct {
	embedder llm.Embedder
	index    vectorstore.Index
	params   vectorstore.SearchParams
	retry    retry.Policy
}

// NewRetriever creates a Retriever over index.
func NewRetriever(embedder llm.Embedder, index vectorstore.Index, params vectorstore.SearchParams, policy retry.Policy) *Retriever {
	return &Retriever{embedder: embedder, index: index, params: params, retry: policy}
}

// Retrieve returns the segments that best support question.
func (r *Retriever) Retrieve(ctx context.Context, question string) (*Retrieval, error) {
	logger := contextutil.LoggerFromContext(ctx)

	var queryVector []float32
	err := retry.Do(ctx, r.retry, "embed question", func(ctx context.Context) error {
		vecs, err := r.embedder.EmbedTexts(ctx, []string{question})
		if err != nil {
			return err
		}
		if len(vecs) != 1 {
			return llm.NewFatalError(llm.ServiceEmbedding, fmt.Errorf("expected 1 embedding, got %d", len(vecs)))
		}
		queryVector = vecs[0]
		return nil
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed question", "error", err)
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	segments, err := r.index.Search(ctx, queryVector, r.params)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search index", "error", err)
		return nil, fmt.Errorf("failed to search index: %w", err)
	}

	for i, seg := range segments {
		logger.DebugContext(ctx, "retrieved segment",
			"rank", i+1,
			"source_path", seg.SourcePath,
			"sequence_index", seg.SequenceIndex,
			"text_preview", preview(seg.Text, 100),
			"text_length", seg.Len(),
		)
	}

	retrieval := &Retrieval{Segments: segments, Context: formatContext(segments)}
	logger.InfoContext(ctx, "retrieval completed",
		"segments", len(segments),
		"sources", len(retrieval.Sources()),
		"context_length", len(retrieval.Context),
	)
	return retrieval, nil
}
