package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustkissvdb/kissrag/internal/chunk"
	"github.com/rustkissvdb/kissrag/internal/config"
	"github.com/rustkissvdb/kissrag/internal/ingest"
	"github.com/rustkissvdb/kissrag/internal/rag"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Chunk, embed, and upsert the text files in a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	dir := args[0]

	d, err := buildDeps()
	if err != nil {
		return err
	}

	if err := d.client.Health(ctx); err != nil {
		return fmt.Errorf("vector service at %s is not responding: %w", d.cfg.VDBURL, err)
	}

	pages, err := ingest.LoadTextFiles(dir)
	if err != nil {
		return err
	}

	splitter, err := newSplitter(d.cfg)
	if err != nil {
		return err
	}

	bootstrap := rag.NewBootstrap(d.client, d.embedder, d.logger)
	dim, err := bootstrap.EnsureCollection(ctx, d.cfg.Collection, d.cfg.Metric)
	if err != nil {
		return err
	}

	pipeline, err := ingest.NewPipeline(ingest.Config{
		Splitter:   splitter,
		Embedder:   d.embedder,
		Vectors:    d.client,
		State:      d.client,
		Logger:     d.logger,
		Collection: d.cfg.Collection,
		Origin:     dir,
		Dim:        dim,
		BatchSize:  d.cfg.BatchSize,
		RateLimit:  d.cfg.RateLimit,
	})
	if err != nil {
		return err
	}

	report, err := pipeline.Run(ctx, pages)
	if err != nil {
		return err
	}

	cmd.Printf("Ingested %d of %d chunks into %q (%d pages)\n",
		report.Upserted, report.Chunks, d.cfg.Collection, len(pages))
	if report.FailedBatches > 0 {
		cmd.Printf("Warning: %d batches failed and were skipped; re-run to fill the gaps\n",
			report.FailedBatches)
	}
	return nil
}

func newSplitter(cfg *config.Config) (chunk.Splitter, error) {
	switch cfg.ChunkStrategy {
	case config.ChunkSemantic:
		return chunk.NewSemanticSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	case config.ChunkWindow:
		return chunk.NewWindowSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	default:
		return nil, fmt.Errorf("unsupported chunk strategy %q", cfg.ChunkStrategy)
	}
}
