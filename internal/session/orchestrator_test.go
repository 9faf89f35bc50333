package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"contractaid/internal/document"
	"contractaid/internal/indexer"
	"contractaid/internal/llm"
	llm_mocks "contractaid/internal/llm/mocks"
	"contractaid/internal/retry"
	"contractaid/internal/source"
	"contractaid/internal/vectorstore"
	vectorstore_mocks "contractaid/internal/vectorstore/mocks"
)

var fastRetry = retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

const vaultSol = `pragma solidity ^0.8.0;

contract Vault {
    mapping(address => uint256) public balances;

    function withdraw(uint256 amount) external {
        (bool ok, ) = msg.sender.call{value: amount}("");
        require(ok);
        balances[msg.sender] -= amount;
    }
}
`

const tokenSol = `pragma solidity ^0.8.0;

contract Token {
    mapping(address => uint256) balances;

    function transfer(address to, uint256 amount) public {
        balances[msg.sender] -= amount;
        balances[to] += amount;
    }
}
`

func writeSources(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"contracts/Vault.sol": vaultSol,
		"contracts/Token.sol": tokenSol,
		"README.md":           "not solidity",
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// echoModel answers with the last user message.
type echoModel struct {
	mu    sync.Mutex
	calls int
	// answer overrides the echo when set.
	answer func(call int, last string) (string, error)
}

func (m *echoModel) ChatWithMessages(ctx context.Context, messages []llm.Message, params llm.ChatParams) (string, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()

	last := messages[len(messages)-1].Content
	if m.answer != nil {
		return m.answer(call, last)
	}
	return last, nil
}

// trackingIndex records calls on top of a memory index.
type trackingIndex struct {
	*vectorstore.MemoryIndex
	mu       sync.Mutex
	searches int
	drops    int
}

func (ti *trackingIndex) Search(ctx context.Context, query []float32, params vectorstore.SearchParams) ([]document.Segment, error) {
	ti.mu.Lock()
	ti.searches++
	ti.mu.Unlock()
	return ti.MemoryIndex.Search(ctx, query, params)
}

func (ti *trackingIndex) Drop(ctx context.Context) error {
	ti.mu.Lock()
	ti.drops++
	ti.mu.Unlock()
	return ti.MemoryIndex.Drop(ctx)
}

type fixture struct {
	deps  Dependencies
	cfg   Config
	index *trackingIndex
	model *echoModel
}

func newFixture(t *testing.T, embedder llm.Embedder) *fixture {
	t.Helper()
	lang, err := document.Lookup("sol")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	chunker, err := indexer.NewRecursiveChunker(200, 20)
	if err != nil {
		t.Fatalf("NewRecursiveChunker() error = %v", err)
	}
	if embedder == nil {
		embedder = llm.NewHashEmbedder(64)
	}

	f := &fixture{
		index: &trackingIndex{MemoryIndex: vectorstore.NewMemoryIndex()},
		model: &echoModel{},
	}
	f.deps = Dependencies{
		Loader:  source.NewLoader(lang),
		Builder: indexer.NewBuilder(chunker, lang, embedder, indexer.BuilderConfig{BatchSize: 2, Concurrency: 2, Retry: fastRetry}),
		Indexes: func(ctx context.Context, namespace string) (vectorstore.Index, error) {
			return f.index, nil
		},
		Embedder: embedder,
		Model:    f.model,
	}
	f.cfg = Config{
		SourceDir: writeSources(t),
		Language:  "sol",
		Search:    vectorstore.DefaultSearchParams(),
		Retry:     fastRetry,
	}
	return f
}

func stateStrings(states []State) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.String()
	}
	return out
}

func TestOrchestrator_Run_EndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	o := New(f.deps, f.cfg)

	res, err := o.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The second answer answers the follow-up, not the first question.
	if !strings.Contains(res.Answer, "create a table") {
		t.Errorf("Answer = %q, want it to reflect the follow-up question", res.Answer)
	}
	if strings.Contains(res.Answer, "summarize") {
		t.Errorf("Answer = %q, want no trace of the first question", res.Answer)
	}

	if len(res.Turns) != 2 {
		t.Fatalf("Turns = %d, want 2", len(res.Turns))
	}
	if res.Turns[0].Question != FirstQuestion || res.Turns[1].Question != SecondQuestion {
		t.Errorf("turn questions = %q, %q", res.Turns[0].Question, res.Turns[1].Question)
	}

	want := []string{"Idle", "Building", "Ready", "Querying(1)", "Querying(2)", "Done"}
	got := stateStrings(res.Transitions)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Transitions = %v, want %v", got, want)
	}
	if o.State().Phase != PhaseDone {
		t.Errorf("State() = %s, want Done", o.State())
	}

	if res.Stats == nil || res.Stats.Documents != 2 || res.Stats.Segments == 0 {
		t.Errorf("Stats = %+v, want 2 documents and some segments", res.Stats)
	}
	if res.SessionID != o.ID() {
		t.Errorf("SessionID = %q, want %q", res.SessionID, o.ID())
	}

	// Turn 1 skips the rewrite: synthesize, then rewrite + synthesize.
	if f.model.calls != 3 {
		t.Errorf("model calls = %d, want 3", f.model.calls)
	}
	if f.index.searches != 2 {
		t.Errorf("index searches = %d, want 2", f.index.searches)
	}
	if f.index.drops != 1 {
		t.Errorf("index drops = %d, want 1 at teardown", f.index.drops)
	}
}

func TestOrchestrator_Run_FatalEmbeddingFailsBuilding(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	embedder := llm_mocks.NewMockEmbedder(ctrl)
	embedder.EXPECT().EmbedTexts(gomock.Any(), gomock.Any()).
		Return(nil, llm.NewFatalError(llm.ServiceEmbedding, errors.New("401 invalid api key"))).
		MinTimes(1)

	// Strict mock: Search and Upsert must never be called.
	index := vectorstore_mocks.NewMockIndex(ctrl)
	index.EXPECT().Drop(gomock.Any()).Return(nil).MinTimes(1)

	f := newFixture(t, embedder)
	f.deps.Indexes = func(ctx context.Context, namespace string) (vectorstore.Index, error) {
		return index, nil
	}

	o := New(f.deps, f.cfg)
	res, err := o.Run(context.Background())
	if res != nil {
		t.Errorf("Run() result = %+v, want nil on failure", res)
	}

	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Run() error = %v, want *FailedError", err)
	}
	if failed.Stage != "Building" || failed.Step != StepEmbed {
		t.Errorf("failure = %s/%s, want Building/embed", failed.Stage, failed.Step)
	}
	if !errors.Is(err, llm.ErrEmbeddingService) {
		t.Errorf("Run() error does not wrap the embedding error: %v", err)
	}
	if got := o.State().String(); got != "Failed(Building)" {
		t.Errorf("State() = %s, want Failed(Building)", got)
	}
	for _, s := range o.Transitions() {
		if s.Phase == PhaseQuerying {
			t.Error("session entered Querying after a failed build")
		}
	}
	if f.model.calls != 0 {
		t.Errorf("model calls = %d, want 0", f.model.calls)
	}
}

func TestOrchestrator_Run_EmptyAnswer(t *testing.T) {
	f := newFixture(t, nil)
	f.model.answer = func(int, string) (string, error) { return " \n ", nil }

	o := New(f.deps, f.cfg)
	_, err := o.Run(context.Background())

	if !errors.Is(err, ErrEmptyAnswer) {
		t.Fatalf("Run() error = %v, want ErrEmptyAnswer", err)
	}
	if errors.Is(err, llm.ErrCompletionService) {
		t.Error("an empty answer must not look like a service error")
	}
	var failed *FailedError
	if errors.As(err, &failed) && (failed.Stage != "Querying(1)" || failed.Step != StepEmptyAnswer) {
		t.Errorf("failure = %s/%s, want Querying(1)/empty_answer", failed.Stage, failed.Step)
	}
	if f.index.drops != 1 {
		t.Errorf("index drops = %d, want 1", f.index.drops)
	}
}

func TestOrchestrator_Run_QueryFailures(t *testing.T) {
	fatal := llm.NewFatalError(llm.ServiceCompletion, errors.New("400 bad request"))

	tests := []struct {
		name      string
		answer    func(call int, last string) (string, error)
		wantStage string
		wantStep  string
	}{
		{
			name:      "synthesis fails on turn 1",
			answer:    func(int, string) (string, error) { return "", fatal },
			wantStage: "Querying(1)",
			wantStep:  StepSynthesize,
		},
		{
			name: "rewrite fails on turn 2",
			answer: func(call int, last string) (string, error) {
				if call == 2 {
					return "", fatal
				}
				return "| High | reentrancy |", nil
			},
			wantStage: "Querying(2)",
			wantStep:  StepRewrite,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.model.answer = tt.answer

			o := New(f.deps, f.cfg)
			_, err := o.Run(context.Background())

			var failed *FailedError
			if !errors.As(err, &failed) {
				t.Fatalf("Run() error = %v, want *FailedError", err)
			}
			if failed.Stage != tt.wantStage || failed.Step != tt.wantStep {
				t.Errorf("failure = %s/%s, want %s/%s", failed.Stage, failed.Step, tt.wantStage, tt.wantStep)
			}
			if !errors.Is(err, llm.ErrCompletionService) {
				t.Errorf("Run() error does not wrap the completion error: %v", err)
			}
		})
	}
}

func TestOrchestrator_Run_TransientCompletionIsRetried(t *testing.T) {
	f := newFixture(t, nil)
	f.model.answer = func(call int, last string) (string, error) {
		if call == 1 {
			return "", llm.NewTransientError(llm.ServiceCompletion, errors.New("429"))
		}
		return last, nil
	}

	if _, err := New(f.deps, f.cfg).Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if f.model.calls != 4 {
		t.Errorf("model calls = %d, want 4", f.model.calls)
	}
}

func TestOrchestrator_Run_CancelledBetweenTurns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, nil)
	f.model.answer = func(call int, last string) (string, error) {
		cancel()
		return "first answer", nil
	}

	o := New(f.deps, f.cfg)
	_, err := o.Run(ctx)

	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Run() error = %v, want *FailedError", err)
	}
	if failed.Stage != "Querying(2)" || failed.Step != StepCancelled {
		t.Errorf("failure = %s/%s, want Querying(2)/cancelled", failed.Stage, failed.Step)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if f.model.calls != 1 {
		t.Errorf("model calls = %d, want 1", f.model.calls)
	}
	if f.index.drops != 1 || f.index.Len() != 0 {
		t.Errorf("index not dropped: drops=%d len=%d", f.index.drops, f.index.Len())
	}
}

func TestOrchestrator_Run_CancelledBeforeBuild(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFixture(t, nil)
	_, err := New(f.deps, f.cfg).Run(ctx)

	var failed *FailedError
	if !errors.As(err, &failed) {
		t.Fatalf("Run() error = %v, want *FailedError", err)
	}
	if failed.Stage != "Building" || failed.Step != StepCancelled {
		t.Errorf("failure = %s/%s, want Building/cancelled", failed.Stage, failed.Step)
	}
	if f.index.Len() != 0 || f.index.searches != 0 {
		t.Errorf("aborted build left a queryable index: len=%d searches=%d", f.index.Len(), f.index.searches)
	}
}

func TestOrchestrator_Run_LoadFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.cfg.SourceDir = filepath.Join(t.TempDir(), "missing")
	indexOpened := false
	f.deps.Indexes = func(ctx context.Context, namespace string) (vectorstore.Index, error) {
		indexOpened = true
		return f.index, nil
	}

	_, err := New(f.deps, f.cfg).Run(context.Background())

	var ioErr *source.IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("Run() error = %v, want *source.IOError", err)
	}
	var failed *FailedError
	if errors.As(err, &failed) && failed.Step != StepLoad {
		t.Errorf("Step = %s, want load", failed.Step)
	}
	if indexOpened {
		t.Error("index opened although loading failed")
	}
}

func TestOrchestrator_Run_IndexFactoryFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.deps.Indexes = func(ctx context.Context, namespace string) (vectorstore.Index, error) {
		return nil, &vectorstore.IndexError{Backend: "qdrant", Op: "create", Err: errors.New("connection refused")}
	}

	_, err := New(f.deps, f.cfg).Run(context.Background())
	var failed *FailedError
	if !errors.As(err, &failed) || failed.Stage != "Building" || failed.Step != StepIndex {
		t.Errorf("Run() error = %v, want Building/index failure", err)
	}
}

func TestOrchestrator_Run_Once(t *testing.T) {
	f := newFixture(t, nil)
	o := New(f.deps, f.cfg)
	if _, err := o.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := o.Run(context.Background()); err == nil {
		t.Error("second Run() should fail")
	}
}

func TestOrchestrator_NamespacesAreDistinct(t *testing.T) {
	f := newFixture(t, nil)
	var namespaces []string
	f.deps.Indexes = func(ctx context.Context, namespace string) (vectorstore.Index, error) {
		namespaces = append(namespaces, namespace)
		return vectorstore.NewMemoryIndex(), nil
	}

	for i := 0; i < 2; i++ {
		if _, err := New(f.deps, f.cfg).Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	if len(namespaces) != 2 || namespaces[0] == namespaces[1] {
		t.Errorf("namespaces = %v, want two distinct values", namespaces)
	}
}
