package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"contractaid/internal/config"
	"contractaid/internal/contextutil"
	"contractaid/internal/document"
	"contractaid/internal/indexer"
	"contractaid/internal/llm"
	"contractaid/internal/publish"
	"contractaid/internal/report"
	"contractaid/internal/retry"
	"contractaid/internal/session"
	"contractaid/internal/source"
	"contractaid/internal/storage"
	"contractaid/internal/vectorstore"
)

type reviewOptions struct {
	dir          string
	lang         string
	backend      string
	fallback     string
	post         string
	githubAPIURL string
}

func newReviewCmd() *cobra.Command {
	opts := &reviewOptions{}
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Review a contract source tree",
		Long: "Load every source file of one language under --dir, build a session index, " +
			"ask the review questions, and publish the final answer. When the session fails " +
			"the fallback report is published instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReview(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.dir, "dir", "", "Source directory (overrides SOURCE_DIR)")
	cmd.Flags().StringVar(&opts.lang, "lang", "", "Source language: "+fmt.Sprint(document.SupportedTags())+" (overrides SOURCE_LANGUAGE)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Index backend: memory, sqlite or qdrant (overrides INDEX_BACKEND)")
	cmd.Flags().StringVar(&opts.fallback, "fallback", "", "Fallback report file (overrides FALLBACK_REPORT_PATH)")
	cmd.Flags().StringVar(&opts.post, "post", "", "Post the review as a comment on owner/repo#number (requires GITHUB_TOKEN)")
	cmd.Flags().StringVar(&opts.githubAPIURL, "github-api-url", "", "GitHub API base URL for GitHub Enterprise")
	return cmd
}

// apply copies explicitly set flags over cfg.
func (o *reviewOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("dir") {
		cfg.SourceDir = o.dir
	}
	if flags.Changed("lang") {
		cfg.SourceLanguage = o.lang
	}
	if flags.Changed("backend") {
		cfg.IndexBackend = o.backend
	}
	if flags.Changed("fallback") {
		cfg.FallbackReportPath = o.fallback
	}
}

func runReview(cmd *cobra.Command, opts *reviewOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	opts.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := newLogger(cfg, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	logger.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = contextutil.WithLogger(ctx, logger)

	poster, err := newPoster(ctx, cfg, opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	result, runErr := review(ctx, cfg)
	body := reviewBody(ctx, result, runErr, cfg.FallbackReportPath)

	// Publish even when the review was interrupted.
	if err := poster.Post(context.WithoutCancel(ctx), body); err != nil {
		logger.ErrorContext(ctx, "failed to deliver review", "error", err)
	}

	if runErr != nil {
		return &exitError{code: ExitReviewFailed, err: runErr}
	}
	return nil
}

// review wires the collaborators from cfg and runs one session.
func review(ctx context.Context, cfg *config.Config) (*session.Result, error) {
	logger := contextutil.LoggerFromContext(ctx)

	lang, err := document.Lookup(cfg.SourceLanguage)
	if err != nil {
		return nil, err
	}
	chunker, err := indexer.NewRecursiveChunker(cfg.SegmentSize, cfg.SegmentOverlap)
	if err != nil {
		return nil, err
	}

	embedder, embeddingModel := newEmbedder(cfg)
	chat := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName).
		WithRateLimit(cfg.RequestsPerSecond).
		WithTimeout(cfg.RequestTimeout)

	if cfg.LLMPreloadModels {
		preloadModels(ctx, cfg)
	}

	dim, err := llm.ProbeDimension(ctx, embedder)
	if err != nil {
		return nil, fmt.Errorf("embedding service unavailable: %w", err)
	}
	logger.InfoContext(ctx, "embedding service ready", "model", embeddingModel, "dimension", dim)

	indexes, closeIndexes, err := newIndexFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeIndexes()

	policy := retry.Policy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
		MaxDelay:   retry.DefaultMaxDelay,
	}

	builder := indexer.NewBuilder(chunker, lang, embedder, indexer.BuilderConfig{
		BatchSize:   cfg.EmbeddingBatchSize,
		Concurrency: cfg.EmbedConcurrency,
		Retry:       policy,
		Model:       embeddingModel,
	})

	orchestrator := session.New(session.Dependencies{
		Loader:   source.NewLoader(lang),
		Builder:  builder,
		Indexes:  indexes,
		Embedder: embedder,
		Model:    chat,
	}, session.Config{
		SourceDir: cfg.SourceDir,
		Language:  string(lang.Tag),
		Search: vectorstore.SearchParams{
			K:      cfg.RetrievalK,
			FetchK: cfg.RetrievalFetchK,
			Lambda: cfg.RetrievalLambda,
		},
		Chat:  llm.ChatParams{Temperature: float32(cfg.LLMTemperature)},
		Retry: policy,
	})

	logger.InfoContext(ctx, "starting review",
		"session_id", orchestrator.ID(),
		"source_dir", cfg.SourceDir,
		"backend", cfg.IndexBackend,
	)
	return orchestrator.Run(ctx)
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// newEmbedder returns the configured embedder and the model name recorded
// in the index version.
func newEmbedder(cfg *config.Config) (llm.Embedder, string) {
	if cfg.EmbeddingProvider == config.ProviderHash {
		e := llm.NewHashEmbedder(cfg.EmbeddingVectorSize)
		return e, e.Name()
	}
	e := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize).
		WithRateLimit(cfg.RequestsPerSecond).
		WithTimeout(cfg.RequestTimeout)
	return e, cfg.EmbeddingModelName
}

// preloadModels asks the model servers to load their models. Failures are
// logged; the first real request reports them again.
func preloadModels(ctx context.Context, cfg *config.Config) {
	logger := contextutil.LoggerFromContext(ctx)

	if err := llm.NewModelLoader(cfg.LLMBaseURL).WithTimeout(cfg.RequestTimeout).EnsureLoaded(ctx, cfg.LLMModelName); err != nil {
		logger.WarnContext(ctx, "failed to preload completion model", "model", cfg.LLMModelName, "error", err)
	}
	if cfg.EmbeddingProvider == config.ProviderOpenAI {
		if err := llm.NewModelLoader(cfg.EmbeddingBaseURL).WithTimeout(cfg.RequestTimeout).EnsureLoaded(ctx, cfg.EmbeddingModelName); err != nil {
			logger.WarnContext(ctx, "failed to preload embedding model", "model", cfg.EmbeddingModelName, "error", err)
		}
	}
}

// newIndexFactory opens the configured backend. The returned func releases
// the backend connection after the session has dropped its index.
func newIndexFactory(ctx context.Context, cfg *config.Config) (session.IndexFactory, func(), error) {
	logger := contextutil.LoggerFromContext(ctx)

	switch cfg.IndexBackend {
	case config.BackendSQLite:
		db, err := storage.New(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := storage.Migrate(db); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.InfoContext(ctx, "Database initialized", "path", cfg.DBPath)

		repo := storage.NewSegmentRepo(db)
		factory := func(ctx context.Context, namespace string) (vectorstore.Index, error) {
			index, err := vectorstore.NewSQLiteIndex(ctx, repo, namespace)
			if err != nil {
				return nil, err
			}
			return index, nil
		}
		return factory, func() { _ = db.Close() }, nil

	case config.BackendQdrant:
		client, err := vectorstore.NewQdrantClient(cfg.QdrantURL, cfg.QdrantAPIKey)
		if err != nil {
			return nil, nil, err
		}
		logger.InfoContext(ctx, "Qdrant client initialized", "url", cfg.QdrantURL)

		factory := func(ctx context.Context, namespace string) (vectorstore.Index, error) {
			index := vectorstore.NewQdrantIndex(client, namespace)
			contextutil.LoggerFromContext(ctx).DebugContext(ctx, "session collection", "collection", index.Collection())
			return index, nil
		}
		return factory, func() { _ = client.Close() }, nil

	default:
		factory := func(ctx context.Context, namespace string) (vectorstore.Index, error) {
			return vectorstore.NewMemoryIndex(), nil
		}
		return factory, func() {}, nil
	}
}

// newPoster posts to GitHub when a target is given, otherwise writes to w.
func newPoster(ctx context.Context, cfg *config.Config, opts *reviewOptions, w io.Writer) (publish.Poster, error) {
	if opts.post == "" {
		return publish.NewWriterPoster(w), nil
	}
	target, err := publish.ParseTarget(opts.post)
	if err != nil {
		return nil, err
	}
	if cfg.GitHubToken == "" {
		return nil, fmt.Errorf("--post requires GITHUB_TOKEN")
	}

	poster := publish.NewGitHubPoster(ctx, cfg.GitHubToken, target)
	if opts.githubAPIURL != "" {
		if poster, err = poster.WithBaseURL(opts.githubAPIURL); err != nil {
			return nil, err
		}
	}
	return poster, nil
}

// reviewBody returns the final answer, or the fallback report when the
// session produced none.
func reviewBody(ctx context.Context, result *session.Result, runErr error, fallbackPath string) string {
	if runErr == nil && result != nil {
		return result.Answer
	}

	logger := contextutil.LoggerFromContext(ctx)
	logger.WarnContext(ctx, "review failed, publishing fallback report",
		"error", runErr,
		"transient", llm.IsTransient(runErr),
	)

	body, err := report.LoadFallback(fallbackPath)
	if err != nil {
		logger.ErrorContext(ctx, "failed to load fallback report, using built-in report", "path", fallbackPath, "error", err)
		return report.DefaultFallback()
	}
	return body
}
