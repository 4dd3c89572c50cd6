package config

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidVDBURL indicates the vector database URL is missing.
	ErrInvalidVDBURL = errors.New("invalid vector database URL")

	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidCollection indicates the collection name is empty.
	ErrInvalidCollection = errors.New("invalid collection name")

	// ErrInvalidMetric indicates the distance metric is not supported.
	ErrInvalidMetric = errors.New("invalid metric")

	// ErrInvalidTopK indicates the top-k value is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidContextChars indicates the context budget is out of range.
	ErrInvalidContextChars = errors.New("invalid context_chars")

	// ErrInvalidHistoryWindow indicates the history window is out of range.
	ErrInvalidHistoryWindow = errors.New("invalid history_window")

	// ErrInvalidChunking indicates the chunking configuration is unusable.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidBatchSize indicates the ingestion batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch_size")

	// ErrInvalidRateLimit indicates the embedding rate limit is negative.
	ErrInvalidRateLimit = errors.New("invalid rate_limit")
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.VDBURL == "" {
		return fmt.Errorf("%w: vdb_url cannot be empty", ErrInvalidVDBURL)
	}

	switch c.Provider {
	case ProviderOllama:
		if c.OllamaHost == "" {
			return fmt.Errorf("%w: ollama_host cannot be empty for the ollama provider", ErrInvalidProvider)
		}
	case ProviderOpenAI:
		if os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required for the openai provider",
				ErrMissingAPIKey)
		}
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidProvider, c.Provider, ProviderOllama, ProviderOpenAI)
	}

	if c.ChatModel == "" {
		return fmt.Errorf("%w: chat_model cannot be empty", ErrInvalidModelName)
	}
	if c.EmbedModel == "" {
		return fmt.Errorf("%w: embed_model cannot be empty", ErrInvalidModelName)
	}

	if c.Collection == "" {
		return fmt.Errorf("%w: collection cannot be empty", ErrInvalidCollection)
	}
	if c.Metric != MetricCosine && c.Metric != MetricDot {
		return fmt.Errorf("%w: %q (supported: %s, %s)", ErrInvalidMetric, c.Metric, MetricCosine, MetricDot)
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: must be between 1 and 50, got %d", ErrInvalidTopK, c.TopK)
	}
	if c.ContextChars < 800 || c.ContextChars > 20000 {
		return fmt.Errorf("%w: must be between 800 and 20000, got %d", ErrInvalidContextChars, c.ContextChars)
	}
	if c.HistoryWindow < 2 || c.HistoryWindow > 50 {
		return fmt.Errorf("%w: must be between 2 and 50, got %d", ErrInvalidHistoryWindow, c.HistoryWindow)
	}

	if c.ChunkStrategy != ChunkSemantic && c.ChunkStrategy != ChunkWindow {
		return fmt.Errorf("%w: strategy %q (supported: %s, %s)",
			ErrInvalidChunking, c.ChunkStrategy, ChunkSemantic, ChunkWindow)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be non-negative and smaller than chunk_size %d",
			ErrInvalidChunking, c.ChunkOverlap, c.ChunkSize)
	}

	if c.BatchSize < 1 || c.BatchSize > 1000 {
		return fmt.Errorf("%w: must be between 1 and 1000, got %d", ErrInvalidBatchSize, c.BatchSize)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: must not be negative, got %.2f", ErrInvalidRateLimit, c.RateLimit)
	}

	return nil
}
