// Package ingest turns source documents into embedded chunks inside a
// vector collection, and records a manifest describing the run.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/rustkissvdb/kissrag/internal/chunk"
	"github.com/rustkissvdb/kissrag/internal/kissvdb"
	"github.com/rustkissvdb/kissrag/internal/log"
	"github.com/rustkissvdb/kissrag/internal/provider"
)

const defaultBatchSize = 16

// VectorWriter is the slice of the kissvdb vector API ingestion needs.
type VectorWriter interface {
	UpsertBatch(ctx context.Context, collection string, items []kissvdb.VectorItem) error
}

// Config holds the constructor parameters for Pipeline.
type Config struct {
	Splitter   chunk.Splitter
	Embedder   provider.Embedder
	Vectors    VectorWriter
	State      StateStore
	Logger     log.Logger
	Collection string
	Origin     string // recorded in the manifest, e.g. the source directory

	Dim       int     // embedding dimension, recorded in the manifest
	BatchSize int     // chunks per embed+upsert batch; defaults to 16
	RateLimit float64 // embedding batches per second; 0 means unlimited
}

// Report summarizes one ingestion run.
type Report struct {
	Chunks        int // chunks produced by splitting
	Upserted      int // chunks actually written to the collection
	FailedBatches int // batches dropped after an embed or upsert failure
}

// Pipeline ingests pages batch by batch. A failed batch is logged and
// skipped rather than aborting the run: a long ingestion should survive a
// transient provider hiccup, and the manifest records only what actually
// landed.
type Pipeline struct {
	splitter chunk.Splitter
	embedder provider.Embedder
	vectors  VectorWriter
	state    StateStore
	logger   log.Logger
	limiter  *rate.Limiter

	collection string
	origin     string
	dim        int
	batchSize  int
}

// NewPipeline creates a Pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Splitter == nil:
		return nil, errors.New("ingest: splitter is required")
	case cfg.Embedder == nil:
		return nil, errors.New("ingest: embedder is required")
	case cfg.Vectors == nil:
		return nil, errors.New("ingest: vector writer is required")
	case cfg.State == nil:
		return nil, errors.New("ingest: state store is required")
	case cfg.Collection == "":
		return nil, errors.New("ingest: collection is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &Pipeline{
		splitter:   cfg.Splitter,
		embedder:   cfg.Embedder,
		vectors:    cfg.Vectors,
		state:      cfg.State,
		logger:     logger,
		limiter:    rate.NewLimiter(limit, 1),
		collection: cfg.Collection,
		origin:     cfg.Origin,
		dim:        cfg.Dim,
		batchSize:  batchSize,
	}, nil
}

// chunkRecord is one chunk waiting for embedding.
type chunkRecord struct {
	id     string
	text   string
	page   int
	index  int
	origin string
}

// Run splits pages, embeds the chunks in batches, and upserts them.
// Context cancellation aborts the run; any other batch failure is counted
// and skipped. The manifest is written last with the upserted count, so a
// partially failed run never overstates what the collection holds.
func (p *Pipeline) Run(ctx context.Context, pages []Page) (*Report, error) {
	var records []chunkRecord
	for _, page := range pages {
		for i, text := range p.splitter.Split(page.Text) {
			records = append(records, chunkRecord{
				id:     fmt.Sprintf("p%d_c%d", page.Number, i),
				text:   text,
				page:   page.Number,
				index:  i,
				origin: page.Origin,
			})
		}
	}

	report := &Report{Chunks: len(records)}
	p.logger.Info("ingestion started",
		"collection", p.collection, "pages", len(pages), "chunks", len(records), "batch_size", p.batchSize)

	for start := 0; start < len(records); start += p.batchSize {
		end := start + p.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		if err := p.limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("ingestion aborted: %w", err)
		}
		if err := p.runBatch(ctx, batch); err != nil {
			if ctx.Err() != nil {
				return report, fmt.Errorf("ingestion aborted: %w", ctx.Err())
			}
			report.FailedBatches++
			p.logger.Warn("batch failed, skipping",
				"from", batch[0].id, "to", batch[len(batch)-1].id, "error", err)
			continue
		}
		report.Upserted += len(batch)
	}

	manifest := Manifest{
		Origin:     p.origin,
		Collection: p.collection,
		EmbedModel: p.embedder.Name(),
		ChunkCount: report.Upserted,
		Dim:        p.dim,
	}
	if err := writeManifest(ctx, p.state, manifest); err != nil {
		return report, err
	}

	p.logger.Info("ingestion finished",
		"collection", p.collection, "upserted", report.Upserted, "failed_batches", report.FailedBatches)
	return report, nil
}

// runBatch embeds and upserts one batch.
func (p *Pipeline) runBatch(ctx context.Context, batch []chunkRecord) error {
	texts := make([]string, len(batch))
	for i, rec := range batch {
		texts[i] = rec.text
	}

	vectors, err := p.embedder.EmbedMany(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedding returned %d vectors for %d texts", len(vectors), len(batch))
	}

	items := make([]kissvdb.VectorItem, len(batch))
	for i, rec := range batch {
		items[i] = kissvdb.VectorItem{
			ID:     rec.id,
			Vector: vectors[i],
			Meta: map[string]any{
				"page":        rec.page,
				"chunk_index": rec.index,
				"origin":      rec.origin,
				"text":        rec.text,
			},
		}
	}

	if err := p.vectors.UpsertBatch(ctx, p.collection, items); err != nil {
		return fmt.Errorf("upserting: %w", err)
	}
	return nil
}
