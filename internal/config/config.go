package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"contractaid/internal/document"
)

// FileEnv names the optional YAML file applied beneath the environment.
const FileEnv = "CONTRACTAID_CONFIG"

const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"

	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// Config holds all configuration for a review run.
type Config struct {
	SourceDir      string
	SourceLanguage string

	SegmentSize    int
	SegmentOverlap int

	RetrievalK      int
	RetrievalFetchK int
	RetrievalLambda float64

	EmbeddingProvider   string
	EmbeddingBaseURL    string
	EmbeddingModelName  string
	EmbeddingVectorSize int
	EmbeddingBatchSize  int

	LLMBaseURL       string
	LLMModelName     string
	LLMAPIKey        string
	LLMTemperature   float64
	LLMPreloadModels bool

	MaxRetries        int
	RetryBaseDelay    time.Duration
	EmbedConcurrency  int
	RequestsPerSecond float64
	RequestTimeout    time.Duration

	IndexBackend string
	DBPath       string
	QdrantURL    string
	QdrantAPIKey string

	FallbackReportPath string
	GitHubToken        string

	LogLevel  slog.Level
	LogFormat string
}

// Load reads configuration and returns a validated Config.
//
// Values are resolved in order: process environment, .env file (current
// directory, then up to five parent directories), the YAML file named by
// CONTRACTAID_CONFIG, then built-in defaults. YAML keys are the lower-case
// environment names, e.g. "segment_size: 1500".
func Load() (*Config, error) {
	// godotenv never overrides variables that are already set.
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	file, err := loadFile(os.Getenv(FileEnv))
	if err != nil {
		return nil, err
	}
	r := &resolver{file: file}

	cfg := &Config{
		SourceDir:          r.get("SOURCE_DIR", "."),
		SourceLanguage:     r.get("SOURCE_LANGUAGE", string(document.Solidity)),
		EmbeddingProvider:  r.get("EMBEDDING_PROVIDER", ProviderOpenAI),
		EmbeddingBaseURL:   r.get("EMBEDDING_BASE_URL", "http://localhost:8081"),
		EmbeddingModelName: r.get("EMBEDDING_MODEL_NAME", "granite-embedding-278m-multilingual"),
		LLMBaseURL:         r.get("LLM_BASE_URL", "http://localhost:8080"),
		LLMModelName:       r.get("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		LLMAPIKey:          r.get("LLM_API_KEY", "dummy-key"),
		IndexBackend:       r.get("INDEX_BACKEND", BackendMemory),
		DBPath:             r.get("DB_PATH", "./data/contractaid.db"),
		QdrantURL:          r.get("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:       r.get("QDRANT_API_KEY", ""),
		FallbackReportPath: r.get("FALLBACK_REPORT_PATH", ""),
		GitHubToken:        r.get("GITHUB_TOKEN", ""),
		LogFormat:          strings.ToLower(r.get("LOG_FORMAT", "text")),
	}

	cfg.SegmentSize = r.getInt("SEGMENT_SIZE", 2000)
	cfg.SegmentOverlap = r.getInt("SEGMENT_OVERLAP", 200)
	cfg.RetrievalK = r.getInt("RETRIEVAL_K", 0)
	cfg.RetrievalFetchK = r.getInt("RETRIEVAL_FETCH_K", 8)
	cfg.RetrievalLambda = r.getFloat("RETRIEVAL_LAMBDA", 0.5)
	// Must match the embedding model's output size; 0 skips the check.
	cfg.EmbeddingVectorSize = r.getInt("EMBEDDING_VECTOR_SIZE", 0)
	cfg.EmbeddingBatchSize = r.getInt("EMBEDDING_BATCH_SIZE", 16)
	cfg.LLMTemperature = r.getFloat("LLM_TEMPERATURE", 0)
	cfg.LLMPreloadModels = r.getBool("LLM_PRELOAD_MODELS", false)
	cfg.MaxRetries = r.getInt("MAX_RETRIES", 3)
	cfg.RetryBaseDelay = r.getDuration("RETRY_BASE_DELAY", time.Second)
	cfg.EmbedConcurrency = r.getInt("EMBED_CONCURRENCY", 4)
	cfg.RequestsPerSecond = r.getFloat("REQUESTS_PER_SECOND", 0)
	cfg.RequestTimeout = r.getDuration("REQUEST_TIMEOUT", 60*time.Second)

	if err := cfg.LogLevel.UnmarshalText([]byte(r.get("LOG_LEVEL", "info"))); err != nil {
		r.errs = append(r.errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error: %w", err))
	}

	if len(r.errs) > 0 {
		return nil, errors.Join(r.errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IndexBackend == BackendSQLite {
		dataDir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
// Call it again after applying command-line overrides.
func (c *Config) Validate() error {
	var errs []error

	if c.SourceDir == "" {
		errs = append(errs, fmt.Errorf("SOURCE_DIR is required"))
	}
	if _, err := document.Lookup(c.SourceLanguage); err != nil {
		errs = append(errs, fmt.Errorf("SOURCE_LANGUAGE: %w", err))
	}
	if c.SegmentSize <= 0 {
		errs = append(errs, fmt.Errorf("SEGMENT_SIZE must be greater than 0"))
	}
	if c.SegmentOverlap < 0 {
		errs = append(errs, fmt.Errorf("SEGMENT_OVERLAP must not be negative"))
	} else if c.SegmentSize > 0 && c.SegmentOverlap >= c.SegmentSize {
		errs = append(errs, fmt.Errorf("SEGMENT_OVERLAP (%d) must be less than SEGMENT_SIZE (%d)", c.SegmentOverlap, c.SegmentSize))
	} else if c.SegmentOverlap > 0 && c.SegmentOverlap < utf8.UTFMax {
		errs = append(errs, fmt.Errorf("SEGMENT_OVERLAP must be 0 or at least %d, got %d", utf8.UTFMax, c.SegmentOverlap))
	} else if c.SegmentSize > 0 && c.SegmentSize-c.SegmentOverlap < utf8.UTFMax {
		errs = append(errs, fmt.Errorf("SEGMENT_SIZE must exceed SEGMENT_OVERLAP by at least %d", utf8.UTFMax))
	}
	if c.RetrievalK < 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_K must not be negative"))
	}
	if c.RetrievalFetchK <= 0 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_FETCH_K must be greater than 0"))
	} else if c.RetrievalK > c.RetrievalFetchK {
		errs = append(errs, fmt.Errorf("RETRIEVAL_K (%d) must not exceed RETRIEVAL_FETCH_K (%d)", c.RetrievalK, c.RetrievalFetchK))
	}
	if c.RetrievalLambda < 0 || c.RetrievalLambda > 1 {
		errs = append(errs, fmt.Errorf("RETRIEVAL_LAMBDA must be between 0 and 1, got %g", c.RetrievalLambda))
	}

	switch c.EmbeddingProvider {
	case ProviderOpenAI:
		if c.EmbeddingBaseURL == "" {
			errs = append(errs, fmt.Errorf("EMBEDDING_BASE_URL is required for provider %q", ProviderOpenAI))
		}
	case ProviderHash:
		if c.EmbeddingVectorSize <= 0 {
			errs = append(errs, fmt.Errorf("EMBEDDING_VECTOR_SIZE is required for provider %q", ProviderHash))
		}
	default:
		errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderHash, c.EmbeddingProvider))
	}
	if c.EmbeddingVectorSize < 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_VECTOR_SIZE must not be negative"))
	}
	if c.EmbeddingBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_BATCH_SIZE must be greater than 0"))
	}
	if c.LLMBaseURL == "" {
		errs = append(errs, fmt.Errorf("LLM_BASE_URL is required"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must not be negative"))
	}
	if c.RetryBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("RETRY_BASE_DELAY must not be negative"))
	}
	if c.EmbedConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_CONCURRENCY must be greater than 0"))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("REQUESTS_PER_SECOND must not be negative"))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be greater than 0"))
	}

	switch c.IndexBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.DBPath == "" {
			errs = append(errs, fmt.Errorf("DB_PATH is required for backend %q", BackendSQLite))
		}
	case BackendQdrant:
		if c.QdrantURL == "" {
			errs = append(errs, fmt.Errorf("QDRANT_URL is required for backend %q", BackendQdrant))
		}
	default:
		errs = append(errs, fmt.Errorf("INDEX_BACKEND must be one of memory, sqlite, qdrant, got %q", c.IndexBackend))
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}

// loadFile reads a flat YAML mapping into environment-style keys.
// An empty path yields no values.
func loadFile(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, v := range raw {
		switch v.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("config file %s: %s must be a scalar", path, key)
		case nil:
			continue
		}
		values[strings.ToUpper(key)] = fmt.Sprint(v)
	}
	return values, nil
}

// resolver looks keys up in the environment, then the config file.
// Parse failures are collected so Load reports all of them at once.
type resolver struct {
	file map[string]string
	errs []error
}

func (r *resolver) get(key, defaultValue string) string {
	if value := getEnv(key, ""); value != "" {
		return value
	}
	if value, ok := r.file[key]; ok && value != "" {
		return value
	}
	return defaultValue
}

func (r *resolver) getInt(key string, defaultValue int) int {
	s := r.get(key, "")
	if s == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a valid integer: %w", key, err))
		return defaultValue
	}
	return v
}

func (r *resolver) getFloat(key string, defaultValue float64) float64 {
	s := r.get(key, "")
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a valid number: %w", key, err))
		return defaultValue
	}
	return v
}

func (r *resolver) getBool(key string, defaultValue bool) bool {
	s := r.get(key, "")
	if s == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be true or false: %w", key, err))
		return defaultValue
	}
	return v
}

func (r *resolver) getDuration(key string, defaultValue time.Duration) time.Duration {
	s := r.get(key, "")
	if s == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s must be a valid duration: %w", key, err))
		return defaultValue
	}
	return v
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
