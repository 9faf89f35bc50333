package session

import (
	"context"
	"errors"
	"fmt"

	"contractaid/internal/indexer"
	"contractaid/internal/vectorstore"
)

// ErrEmptyAnswer is returned when the synthesizer produced no content.
var ErrEmptyAnswer = errors.New("empty answer")

// Sub-steps reported with a failure.
const (
	StepLoad        = "load"
	StepChunk       = "chunk"
	StepEmbed       = "embed"
	StepIndex       = "index"
	StepRewrite     = "rewrite"
	StepRetrieve    = "retrieve"
	StepSynthesize  = "synthesize"
	StepEmptyAnswer = "empty_answer"
	StepCancelled   = "cancelled"
)

// FailedError describes a session that ended in Failed(stage).
type FailedError struct {
	// Stage is the state the session was in, e.g. "Building" or "Querying(2)".
	Stage string
	// Step is the operation that failed within the stage.
	Step string
	Err  error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("session failed in %s (%s): %v", e.Stage, e.Step, e.Err)
}

func (e *FailedError) Unwrap() error {
	return e.Err
}

// buildStep classifies a builder error.
func buildStep(ctx context.Context, err error) string {
	var (
		chunkErr *indexer.ChunkError
		idxErr   *vectorstore.IndexError
	)
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return StepCancelled
	case errors.As(err, &chunkErr):
		return StepChunk
	case errors.As(err, &idxErr):
		return StepIndex
	default:
		return StepEmbed
	}
}
