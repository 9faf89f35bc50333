// Package session runs one review: build a per-session index over the
// source tree, then ask the review questions in order.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"contractaid/internal/contextutil"
	"contractaid/internal/conversation"
	"contractaid/internal/document"
	"contractaid/internal/indexer"
	"contractaid/internal/llm"
	"contractaid/internal/rag"
	"contractaid/internal/report"
	"contractaid/internal/retry"
	"contractaid/internal/source"
	"contractaid/internal/vectorstore"
)

// DocumentLoader reads the source tree. *source.Loader implements it.
type DocumentLoader interface {
	Load(ctx context.Context, root string) ([]document.Document, []source.LoadWarning, error)
}

// IndexBuilder populates an index from documents. *indexer.Builder implements it.
type IndexBuilder interface {
	Build(ctx context.Context, docs []document.Document, index vectorstore.Index) (*indexer.BuildStats, error)
}

// IndexFactory opens an empty index scoped to namespace.
type IndexFactory func(ctx context.Context, namespace string) (vectorstore.Index, error)

// Dependencies are the collaborators a session drives.
type Dependencies struct {
	Loader   DocumentLoader
	Builder  IndexBuilder
	Indexes  IndexFactory
	Embedder llm.Embedder
	Model    rag.ChatModel
}

// Config holds per-session settings.
type Config struct {
	SourceDir string
	// Language is only used for logging; the loader and builder already carry it.
	Language string
	// Questions defaults to FixedQuestions.
	Questions []string
	Search    vectorstore.SearchParams
	Chat      llm.ChatParams
	Retry     retry.Policy
}

// Result is the outcome of a successful session.
type Result struct {
	SessionID string
	// Answer is the answer to the last question.
	Answer      string
	Turns       []conversation.Turn
	Stats       *indexer.BuildStats
	Warnings    []source.LoadWarning
	Inspection  report.Inspection
	Transitions []State
}

// Orchestrator drives a single session through its state machine.
// Run may be called once.
type Orchestrator struct {
	deps Dependencies
	cfg  Config
	id   string

	mu          sync.Mutex
	state       State
	transitions []State
}

// New creates an orchestrator in the Idle state with a fresh session id.
func New(deps Dependencies, cfg Config) *Orchestrator {
	if len(cfg.Questions) == 0 {
		cfg.Questions = FixedQuestions()
	}
	initial := State{Phase: PhaseIdle}
	return &Orchestrator{
		deps:        deps,
		cfg:         cfg,
		id:          uuid.New().String(),
		state:       initial,
		transitions: []State{initial},
	}
}

// ID returns the session id. It also names the session's index namespace.
func (o *Orchestrator) ID() string {
	return o.id
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Transitions returns every state entered so far, starting with Idle.
func (o *Orchestrator) Transitions() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]State, len(o.transitions))
	copy(out, o.transitions)
	return out
}

func (o *Orchestrator) transition(ctx context.Context, to State) {
	o.mu.Lock()
	from := o.state
	if !canTransition(from, to) {
		o.mu.Unlock()
		panic(fmt.Sprintf("session: illegal transition %s -> %s", from, to))
	}
	o.state = to
	o.transitions = append(o.transitions, to)
	o.mu.Unlock()

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "session state changed", "from", from.String(), "to", to.String())
}

// fail moves to Failed(current) and returns the matching error.
func (o *Orchestrator) fail(ctx context.Context, step string, err error) error {
	stage := o.State().String()
	o.transition(ctx, State{Phase: PhaseFailed, Stage: stage})

	contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "session failed", "stage", stage, "step", step, "error", err)
	return &FailedError{Stage: stage, Step: step, Err: err}
}

// Run builds the index and answers every question. It returns either the
// final answer or a *FailedError; no partial result is returned on failure.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if st := o.State(); st.Phase != PhaseIdle {
		return nil, fmt.Errorf("session %s already ran (state %s)", o.id, st)
	}

	logger := contextutil.LoggerFromContext(ctx).With(
		slog.String("session_id", o.id),
		slog.String("language", o.cfg.Language),
	)
	ctx = contextutil.WithLogger(ctx, logger)
	start := time.Now()

	o.transition(ctx, State{Phase: PhaseBuilding})

	docs, warnings, err := o.deps.Loader.Load(ctx, o.cfg.SourceDir)
	if err != nil {
		step := StepLoad
		if ctx.Err() != nil {
			step = StepCancelled
		}
		return nil, o.fail(ctx, step, err)
	}
	for _, w := range warnings {
		logger.WarnContext(ctx, "skipped unreadable file", "path", w.Path, "error", w.Err)
	}

	index, err := o.deps.Indexes(ctx, o.id)
	if err != nil {
		return nil, o.fail(ctx, StepIndex, err)
	}
	// The index belongs to this session only.
	defer func() {
		if err := index.Drop(context.WithoutCancel(ctx)); err != nil {
			logger.WarnContext(ctx, "failed to drop session index", "error", err)
		}
	}()

	stats, err := o.deps.Builder.Build(ctx, docs, index)
	if err != nil {
		return nil, o.fail(ctx, buildStep(ctx, err), err)
	}

	o.transition(ctx, State{Phase: PhaseReady})

	rewriter := rag.NewQueryRewriter(o.deps.Model, o.cfg.Chat, o.cfg.Retry)
	retriever := rag.NewRetriever(o.deps.Embedder, index, o.cfg.Search, o.cfg.Retry)
	synthesizer := rag.NewSynthesizer(o.deps.Model, o.cfg.Chat, o.cfg.Retry)

	var (
		transcript conversation.Transcript
		inspection report.Inspection
	)
	for i, question := range o.cfg.Questions {
		o.transition(ctx, State{Phase: PhaseQuerying, Turn: i + 1})

		if err := ctx.Err(); err != nil {
			return nil, o.fail(ctx, StepCancelled, err)
		}

		standalone, err := rewriter.Rewrite(ctx, transcript, question)
		if err != nil {
			return nil, o.fail(ctx, queryStep(ctx, StepRewrite), err)
		}

		retrieval, err := retriever.Retrieve(ctx, standalone)
		if err != nil {
			return nil, o.fail(ctx, queryStep(ctx, StepRetrieve), err)
		}

		answer, err := synthesizer.Synthesize(ctx, transcript, standalone, retrieval.Context)
		if err != nil {
			return nil, o.fail(ctx, queryStep(ctx, StepSynthesize), err)
		}

		inspection = report.Inspect(answer)
		if inspection.Empty() {
			return nil, o.fail(ctx, StepEmptyAnswer, ErrEmptyAnswer)
		}
		logger.InfoContext(ctx, "turn answered",
			"turn", i+1,
			"sources", retrieval.Sources(),
			"answer_length", inspection.Length,
			"tables", inspection.Tables,
			"table_rows", inspection.Rows,
			"high", inspection.Severities[report.SeverityHigh],
			"medium", inspection.Severities[report.SeverityMedium],
			"low", inspection.Severities[report.SeverityLow],
		)

		transcript = transcript.Append(conversation.Turn{
			Question:  question,
			Answer:    answer,
			Timestamp: time.Now(),
		})
	}

	o.transition(ctx, State{Phase: PhaseDone})
	logger.InfoContext(ctx, "session completed", "turns", transcript.Len(), "duration", time.Since(start))

	last, _ := transcript.Last()
	return &Result{
		SessionID:   o.id,
		Answer:      last.Answer,
		Turns:       transcript.Turns(),
		Stats:       stats,
		Warnings:    warnings,
		Inspection:  inspection,
		Transitions: o.Transitions(),
	}, nil
}

// queryStep reports cancellation instead of the step it interrupted.
func queryStep(ctx context.Context, step string) string {
	if err := ctx.Err(); err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return StepCancelled
	}
	return step
}
