package indexer

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"contractaid/internal/contextutil"
	"contractaid/internal/document"
	"contractaid/internal/llm"
	"contractaid/internal/retry"
	"contractaid/internal/vectorstore"
)

const (
	// DefaultBatchSize is the number of segments per embedding request.
	DefaultBatchSize = 16
	// DefaultConcurrency is the number of embedding requests in flight.
	DefaultConcurrency = 4
)

// BuilderConfig tunes a Builder.
type BuilderConfig struct {
	BatchSize   int
	Concurrency int
	Retry       retry.Policy
	// Model names the embedding model; it only feeds the index version.
	Model string
}

// Builder turns documents into a populated vector index:
// chunk, embed in bounded concurrent batches, then upsert in order.
type Builder struct {
	chunker  *RecursiveChunker
	lang     document.LanguageSpec
	embedder llm.Embedder
	cfg      BuilderConfig
}

// NewBuilder creates a Builder. Zero config values fall back to defaults.
func NewBuilder(chunker *RecursiveChunker, lang document.LanguageSpec, embedder llm.Embedder, cfg BuilderConfig) *Builder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	return &Builder{
		chunker:  chunker,
		lang:     lang,
		embedder: embedder,
		cfg:      cfg,
	}
}

// Build chunks docs, embeds every segment and upserts the records into index.
// On any failure, including cancellation, the partial index is dropped
// before the error is returned. Errors keep their type: *ChunkError,
// *llm.ServiceError, *vectorstore.IndexError or the context error.
func (b *Builder) Build(ctx context.Context, docs []document.Document, index vectorstore.Index) (*BuildStats, error) {
	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	stats, err := b.build(ctx, docs, index)
	if err != nil {
		// The caller's context may already be done.
		dropCtx := context.WithoutCancel(ctx)
		if dropErr := index.Drop(dropCtx); dropErr != nil {
			logger.ErrorContext(ctx, "failed to drop partial index", "error", dropErr)
		} else {
			logger.InfoContext(ctx, "partial index dropped")
		}
		return nil, err
	}

	logger.InfoContext(ctx, "index built",
		"documents", stats.Documents,
		"empty_documents", stats.DocsWith0Segments,
		"segments", stats.Segments,
		"batches", stats.Batches,
		"segment_min", stats.SegmentSizeStats.Min,
		"segment_max", stats.SegmentSizeStats.Max,
		"segment_mean", stats.SegmentSizeStats.Mean,
		"segment_p95", stats.SegmentSizeStats.P95,
		"index_version", stats.IndexVersion,
		"duration", time.Since(start),
	)
	return stats, nil
}

func (b *Builder) build(ctx context.Context, docs []document.Document, index vectorstore.Index) (*BuildStats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	segments, err := b.chunker.SplitAll(docs, b.lang)
	if err != nil {
		return nil, err
	}
	logger.DebugContext(ctx, "documents chunked", "documents", len(docs), "segments", len(segments))

	batches := batchSegments(segments, b.cfg.BatchSize)
	vectors, err := b.embedBatches(ctx, batches)
	if err != nil {
		return nil, err
	}

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		records := make([]vectorstore.Record, len(batch))
		for j, seg := range batch {
			records[j] = vectorstore.Record{Segment: seg, Vector: vectors[i][j]}
		}
		if err := index.Upsert(ctx, records); err != nil {
			return nil, err
		}
	}

	return computeBuildStats(docs, segments, len(batches), b.cfg.Model, b.chunker.Size(), b.chunker.Overlap()), nil
}

// embedBatches embeds batches concurrently and returns vectors indexed
// like batches. The first failure cancels the remaining batches.
func (b *Builder) embedBatches(ctx context.Context, batches [][]document.Segment) ([][][]float32, error) {
	results := make([][][]float32, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Concurrency)

	for i, batch := range batches {
		// Stop scheduling once cancelled or a batch failed.
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			texts := make([]string, len(batch))
			for j, seg := range batch {
				texts[j] = seg.Text
			}

			op := fmt.Sprintf("embed batch %d/%d", i+1, len(batches))
			return retry.Do(gctx, b.cfg.Retry, op, func(ctx context.Context) error {
				vecs, err := b.embedder.EmbedTexts(ctx, texts)
				if err != nil {
					return err
				}
				if len(vecs) != len(texts) {
					return llm.NewFatalError(llm.ServiceEmbedding,
						fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vecs)))
				}
				results[i] = vecs
				return nil
			})
		})
	}

	if err := g.Wait(); err != nil {
		// Prefer the caller's cancellation over the errors it caused.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	// Cancelled before anything was scheduled.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// batchSegments splits segments into consecutive batches of at most size.
func batchSegments(segments []document.Segment, size int) [][]document.Segment {
	var batches [][]document.Segment
	for start := 0; start < len(segments); start += size {
		end := min(start+size, len(segments))
		batches = append(batches, segments[start:end])
	}
	return batches
}
