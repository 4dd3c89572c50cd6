// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.kissrag/config.yaml, or ./config.yaml)
//  3. Default values
//
// Validation runs immediately after loading so a bad value fails at startup
// instead of mid-session. Sentinel errors support errors.Is() checks.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Provider identifiers used in Config.Provider.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Distance metrics accepted by the vector store.
const (
	MetricCosine = "cosine"
	MetricDot    = "dot"
)

// Chunking strategies used in Config.ChunkStrategy.
const (
	ChunkSemantic = "semantic"
	ChunkWindow   = "window"
)

// Config stores application configuration.
type Config struct {
	// Vector database connection
	VDBURL     string        `mapstructure:"vdb_url"`
	VDBAPIKey  string        `mapstructure:"vdb_api_key"` // sensitive, never logged
	VDBTimeout time.Duration `mapstructure:"vdb_timeout"`

	// Model provider configuration
	Provider      string `mapstructure:"provider"` // "ollama" (default) or "openai"
	OllamaHost    string `mapstructure:"ollama_host"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	ChatModel     string `mapstructure:"chat_model"`
	EmbedModel    string `mapstructure:"embed_model"`

	// Retrieval configuration
	Collection    string `mapstructure:"collection"`
	Metric        string `mapstructure:"metric"` // "cosine" or "dot"
	TopK          int    `mapstructure:"top_k"`
	ContextChars  int    `mapstructure:"context_chars"`
	HistoryWindow int    `mapstructure:"history_window"`

	// Ingestion configuration
	ChunkStrategy string  `mapstructure:"chunk_strategy"` // "semantic" or "window"
	ChunkSize     int     `mapstructure:"chunk_size"`
	ChunkOverlap  int     `mapstructure:"chunk_overlap"`
	BatchSize     int     `mapstructure:"batch_size"`
	RateLimit     float64 `mapstructure:"rate_limit"` // embed batches per second, 0 = unlimited

	// Chat session
	Session string `mapstructure:"session"` // empty means generate a fresh id
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".kissrag")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Vector database defaults
	viper.SetDefault("vdb_url", "http://localhost:8080")
	viper.SetDefault("vdb_timeout", "10s")

	// Provider defaults
	viper.SetDefault("provider", ProviderOllama)
	viper.SetDefault("ollama_host", "http://localhost:11434")
	viper.SetDefault("openai_base_url", "")
	viper.SetDefault("chat_model", "llama3.2")
	viper.SetDefault("embed_model", "nomic-embed-text")

	// Retrieval defaults
	viper.SetDefault("collection", "docs")
	viper.SetDefault("metric", MetricCosine)
	viper.SetDefault("top_k", 5)
	viper.SetDefault("context_chars", 4000)
	viper.SetDefault("history_window", 10)

	// Ingestion defaults
	viper.SetDefault("chunk_strategy", ChunkSemantic)
	viper.SetDefault("chunk_size", 1200)
	viper.SetDefault("chunk_overlap", 150)
	viper.SetDefault("batch_size", 16)
	viper.SetDefault("rate_limit", 0.0)

	viper.SetDefault("session", "")
}

// bindEnvVariables binds environment overrides explicitly.
//
// NOTE: OPENAI_API_KEY is read directly by the provider, not via Viper;
// Validate checks its presence when the openai provider is selected.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("vdb_url", "KISSRAG_VDB_URL")
	mustBind("vdb_api_key", "KISSRAG_VDB_API_KEY")
	mustBind("vdb_timeout", "KISSRAG_VDB_TIMEOUT")

	mustBind("provider", "KISSRAG_PROVIDER")
	mustBind("ollama_host", "KISSRAG_OLLAMA_HOST")
	mustBind("openai_base_url", "KISSRAG_OPENAI_BASE_URL")
	mustBind("chat_model", "KISSRAG_CHAT_MODEL")
	mustBind("embed_model", "KISSRAG_EMBED_MODEL")

	mustBind("collection", "KISSRAG_COLLECTION")
	mustBind("session", "KISSRAG_SESSION")
}
