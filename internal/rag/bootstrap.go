package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rustkissvdb/kissrag/internal/kissvdb"
	"github.com/rustkissvdb/kissrag/internal/log"
	"github.com/rustkissvdb/kissrag/internal/provider"
)

// dimensionProbeText is the throwaway input used to learn the active
// embedding model's output dimension.
const dimensionProbeText = "dimension_probe"

// Bootstrap ensures collections exist with a dimension consistent with the
// active embedding model. The probed dimension is cached for the lifetime of
// the Bootstrap so repeated calls do not re-embed.
//
// Bootstrap is safe for concurrent use.
type Bootstrap struct {
	vectors  VectorStore
	embedder provider.Embedder
	logger   log.Logger

	mu  sync.Mutex
	dim int // 0 until probed
}

// NewBootstrap creates a Bootstrap. logger may be nil.
func NewBootstrap(vectors VectorStore, embedder provider.Embedder, logger log.Logger) *Bootstrap {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Bootstrap{vectors: vectors, embedder: embedder, logger: logger}
}

// ProbeDimension returns the embedding model's output dimension, issuing at
// most one probe embedding call per Bootstrap lifetime.
func (b *Bootstrap) ProbeDimension(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dim > 0 {
		return b.dim, nil
	}

	vec, err := b.embedder.Embed(ctx, dimensionProbeText)
	if err != nil {
		return 0, fmt.Errorf("probing embedding dimension: %w", err)
	}
	if len(vec) == 0 {
		return 0, errors.New("probing embedding dimension: empty vector")
	}
	b.dim = len(vec)
	b.logger.Debug("probed embedding dimension", "model", b.embedder.Name(), "dim", b.dim)
	return b.dim, nil
}

// EnsureCollection makes sure the named collection exists and returns its
// dimension.
//
// An existing collection's recorded dimension is returned as-is, without
// checking it against the active embedding model; the probe call that check
// would cost on every startup is deliberately avoided, so switching models
// without re-ingesting can go unnoticed here. VerifyDimension covers that
// case at chat startup.
//
// When the collection is missing, the model is probed and the collection
// created with the probed dimension. Losing a creation race to a concurrent
// bootstrapper is treated as success.
func (b *Bootstrap) EnsureCollection(ctx context.Context, collection, metric string) (int, error) {
	info, err := b.vectors.GetCollection(ctx, collection)
	if err == nil {
		b.logger.Debug("collection exists", "collection", collection, "dim", info.Dim)
		return info.Dim, nil
	}
	if !errors.Is(err, kissvdb.ErrNotFound) {
		return 0, fmt.Errorf("checking collection %q: %w", collection, err)
	}

	dim, err := b.ProbeDimension(ctx)
	if err != nil {
		return 0, err
	}

	if err := b.vectors.CreateCollection(ctx, collection, dim, metric); err != nil {
		if errors.Is(err, kissvdb.ErrAlreadyExists) {
			// Benign race against a concurrent bootstrapper.
			b.logger.Debug("collection created concurrently", "collection", collection)
			return dim, nil
		}
		return 0, fmt.Errorf("creating collection %q: %w", collection, err)
	}

	b.logger.Info("created collection", "collection", collection, "dim", dim, "metric", metric)
	return dim, nil
}

// VerifyDimension compares a recorded ingestion dimension against the live
// embedding model. Zero recorded dimensions are skipped (older manifests).
func (b *Bootstrap) VerifyDimension(ctx context.Context, recorded int) error {
	if recorded == 0 {
		return nil
	}
	live, err := b.ProbeDimension(ctx)
	if err != nil {
		return err
	}
	if live != recorded {
		return fmt.Errorf("%w: model %q outputs %d, collection was ingested with %d",
			ErrDimensionMismatch, b.embedder.Name(), live, recorded)
	}
	return nil
}
