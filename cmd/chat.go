package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rustkissvdb/kissrag/internal/ingest"
	"github.com/rustkissvdb/kissrag/internal/kissvdb"
	"github.com/rustkissvdb/kissrag/internal/memory"
	"github.com/rustkissvdb/kissrag/internal/rag"
	"github.com/rustkissvdb/kissrag/internal/repl"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat over an ingested collection",
	RunE:  runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	d, err := buildDeps()
	if err != nil {
		return err
	}

	if err := d.client.Health(ctx); err != nil {
		return fmt.Errorf("vector service at %s is not responding: %w", d.cfg.VDBURL, err)
	}

	manifest, err := ingest.LoadManifest(ctx, d.client, d.cfg.Collection)
	if err != nil {
		if errors.Is(err, kissvdb.ErrNotFound) {
			printKnownCollections(cmd, d)
			return fmt.Errorf("collection %q has no ingestion manifest, run: kissrag ingest <dir>", d.cfg.Collection)
		}
		return err
	}
	d.logger.Info("collection ready",
		"collection", manifest.Collection, "chunks", manifest.ChunkCount,
		"embed_model", manifest.EmbedModel, "dim", manifest.Dim)

	// Fail fast when the live embedding model no longer matches what the
	// collection was ingested with.
	bootstrap := rag.NewBootstrap(d.client, d.embedder, d.logger)
	if err := bootstrap.VerifyDimension(ctx, manifest.Dim); err != nil {
		if errors.Is(err, rag.ErrDimensionMismatch) {
			return fmt.Errorf("%w; re-ingest with the current embed model (%s) or switch back to %s",
				err, d.embedder.Name(), manifest.EmbedModel)
		}
		return err
	}

	session := d.cfg.Session
	if session == "" {
		session = uuid.NewString()
	}
	history, err := memory.Open(ctx, d.client, session, d.logger)
	if err != nil {
		return err
	}

	engine, err := rag.NewEngine(rag.Config{
		Vectors:       d.client,
		Embedder:      d.embedder,
		Model:         d.model,
		History:       history,
		Logger:        d.logger,
		Collection:    d.cfg.Collection,
		TopK:          d.cfg.TopK,
		ContextChars:  d.cfg.ContextChars,
		HistoryWindow: d.cfg.HistoryWindow,
	})
	if err != nil {
		return err
	}

	return repl.New(engine, os.Stdin, cmd.OutOrStdout(), d.logger).Run(ctx)
}

// printKnownCollections lists collections that do have a manifest, to help
// after a typo in the collection name.
func printKnownCollections(cmd *cobra.Command, d *deps) {
	items, err := d.client.StateList(cmd.Context(), "docs:", 50)
	if err != nil || len(items) == 0 {
		return
	}
	cmd.Println("Ingested collections:")
	for _, item := range items {
		name := strings.TrimSuffix(strings.TrimPrefix(item.Key, "docs:"), ":manifest")
		cmd.Printf("  %s\n", name)
	}
}
