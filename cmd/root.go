// Package cmd wires configuration, the vector store client, and the model
// providers into the kissrag CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rustkissvdb/kissrag/internal/config"
	"github.com/rustkissvdb/kissrag/internal/kissvdb"
	"github.com/rustkissvdb/kissrag/internal/log"
	"github.com/rustkissvdb/kissrag/internal/provider"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "kissrag",
	Short: "Retrieval-augmented chat over a RustKissVDB instance",
	Long: `kissrag ingests text documents into a RustKissVDB collection and answers
questions about them in an interactive chat, grounding every answer in the
retrieved passages and citing their pages.

Running kissrag without a subcommand starts the chat.`,
	SilenceUsage: true,
	RunE:         runChat,
}

// Execute runs the root command. It is the single entry point called from
// main.
func Execute() error {
	// A .env file is a development convenience, not a requirement.
	_ = godotenv.Load()
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// deps bundles everything a command needs at runtime.
type deps struct {
	cfg      *config.Config
	logger   log.Logger
	client   *kissvdb.Client
	embedder provider.Embedder
	model    provider.ChatModel
}

// buildDeps loads configuration and constructs the shared clients.
func buildDeps() (*deps, error) {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	client, err := kissvdb.New(kissvdb.Config{
		BaseURL: cfg.VDBURL,
		APIKey:  cfg.VDBAPIKey,
		Timeout: cfg.VDBTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	embedder, model, err := newProviders(cfg)
	if err != nil {
		return nil, err
	}

	return &deps{cfg: cfg, logger: logger, client: client, embedder: embedder, model: model}, nil
}

// newProviders builds the embedding and chat backends for the configured
// provider. Both roles are served by one client.
func newProviders(cfg *config.Config) (provider.Embedder, provider.ChatModel, error) {
	switch cfg.Provider {
	case config.ProviderOllama:
		o, err := provider.NewOllama(provider.OllamaConfig{
			BaseURL:    cfg.OllamaHost,
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return o, o, nil
	case config.ProviderOpenAI:
		o, err := provider.NewOpenAI(provider.OpenAIConfig{
			BaseURL:    cfg.OpenAIBaseURL,
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			EmbedModel: cfg.EmbedModel,
			ChatModel:  cfg.ChatModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return o, o, nil
	default:
		return nil, nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}

func newLogger() log.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}
