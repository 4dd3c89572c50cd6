package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rustkissvdb/kissrag/internal/kissvdb"
)

// fakeVectors is an in-memory VectorStore.
type fakeVectors struct {
	collections map[string]*kissvdb.CollectionInfo
	hits        []kissvdb.SearchHit

	createCalls int
	searchErr   error

	// beforeCreate runs just before a create is applied, to simulate races.
	beforeCreate func()
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{collections: map[string]*kissvdb.CollectionInfo{}}
}

func (f *fakeVectors) GetCollection(_ context.Context, collection string) (*kissvdb.CollectionInfo, error) {
	info, ok := f.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, kissvdb.ErrNotFound)
	}
	return info, nil
}

func (f *fakeVectors) CreateCollection(_ context.Context, collection string, dim int, metric string) error {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}
	f.createCalls++
	if _, ok := f.collections[collection]; ok {
		return fmt.Errorf("collection %q: %w", collection, kissvdb.ErrAlreadyExists)
	}
	f.collections[collection] = &kissvdb.CollectionInfo{Collection: collection, Dim: dim, Metric: metric}
	return nil
}

func (f *fakeVectors) Search(_ context.Context, collection string, _ []float32, _ kissvdb.SearchOptions) ([]kissvdb.SearchHit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if _, ok := f.collections[collection]; !ok {
		return nil, fmt.Errorf("collection %q: %w", collection, kissvdb.ErrNotFound)
	}
	return f.hits, nil
}

// fakeEmbedder returns a fixed-dimension vector for any input.
type fakeEmbedder struct {
	dim        int
	embedCalls int
	err        error
}

func (f *fakeEmbedder) Name() string { return "fake-embed" }

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.embedCalls++
	if f.err != nil {
		return nil, f.err
	}
	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = float32(i)
	}
	return vec, nil
}

func (f *fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func TestProbeDimensionCached(t *testing.T) {
	emb := &fakeEmbedder{dim: 8}
	b := NewBootstrap(newFakeVectors(), emb, nil)

	for i := 0; i < 3; i++ {
		dim, err := b.ProbeDimension(context.Background())
		if err != nil {
			t.Fatalf("ProbeDimension() error = %v", err)
		}
		if dim != 8 {
			t.Fatalf("ProbeDimension() = %d, want 8", dim)
		}
	}
	if emb.embedCalls != 1 {
		t.Errorf("embed calls = %d, want 1 (cached after first probe)", emb.embedCalls)
	}
}

func TestEnsureCollectionCreatesOnce(t *testing.T) {
	vectors := newFakeVectors()
	b := NewBootstrap(vectors, &fakeEmbedder{dim: 4}, nil)

	dim, err := b.EnsureCollection(context.Background(), "docs", kissvdb.MetricCosine)
	if err != nil {
		t.Fatalf("first EnsureCollection() error = %v", err)
	}
	if dim != 4 {
		t.Fatalf("dim = %d, want 4", dim)
	}

	// Second call finds the collection and must not create again.
	dim, err = b.EnsureCollection(context.Background(), "docs", kissvdb.MetricCosine)
	if err != nil {
		t.Fatalf("second EnsureCollection() error = %v", err)
	}
	if dim != 4 {
		t.Fatalf("dim = %d, want 4", dim)
	}
	if vectors.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", vectors.createCalls)
	}
}

func TestEnsureCollectionExistingSkipsProbe(t *testing.T) {
	vectors := newFakeVectors()
	vectors.collections["docs"] = &kissvdb.CollectionInfo{Collection: "docs", Dim: 16}
	emb := &fakeEmbedder{dim: 4}
	b := NewBootstrap(vectors, emb, nil)

	dim, err := b.EnsureCollection(context.Background(), "docs", kissvdb.MetricCosine)
	if err != nil {
		t.Fatalf("EnsureCollection() error = %v", err)
	}
	if dim != 16 {
		t.Errorf("dim = %d, want the stored 16", dim)
	}
	if emb.embedCalls != 0 {
		t.Errorf("embed calls = %d, want 0 for an existing collection", emb.embedCalls)
	}
}

func TestEnsureCollectionCreationRace(t *testing.T) {
	// Another client creates the collection between our existence check and
	// our create. The already-exists answer counts as success.
	vectors := newFakeVectors()
	vectors.beforeCreate = func() {
		vectors.beforeCreate = nil
		vectors.collections["docs"] = &kissvdb.CollectionInfo{Collection: "docs", Dim: 4}
	}
	b := NewBootstrap(vectors, &fakeEmbedder{dim: 4}, nil)

	dim, err := b.EnsureCollection(context.Background(), "docs", kissvdb.MetricCosine)
	if err != nil {
		t.Fatalf("EnsureCollection() error = %v, want race treated as success", err)
	}
	if dim != 4 {
		t.Errorf("dim = %d, want 4", dim)
	}
}

func TestEnsureCollectionProbeFailure(t *testing.T) {
	b := NewBootstrap(newFakeVectors(), &fakeEmbedder{dim: 4, err: errors.New("provider down")}, nil)

	if _, err := b.EnsureCollection(context.Background(), "docs", kissvdb.MetricCosine); err == nil {
		t.Fatal("EnsureCollection() succeeded with an unreachable embedder")
	}
}

func TestVerifyDimension(t *testing.T) {
	tests := []struct {
		name     string
		recorded int
		liveDim  int
		wantErr  error
	}{
		{name: "match", recorded: 8, liveDim: 8, wantErr: nil},
		{name: "mismatch", recorded: 8, liveDim: 16, wantErr: ErrDimensionMismatch},
		{name: "nothing recorded", recorded: 0, liveDim: 16, wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBootstrap(newFakeVectors(), &fakeEmbedder{dim: tt.liveDim}, nil)
			err := b.VerifyDimension(context.Background(), tt.recorded)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("VerifyDimension() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("VerifyDimension() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
