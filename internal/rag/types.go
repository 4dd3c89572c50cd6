// Package rag ties retrieval and generation together: it bootstraps the
// vector collection, assembles a bounded context from search hits, and
// drives one chat turn from query embedding through memory commit.
package rag

import (
	"context"
	"errors"

	"github.com/rustkissvdb/kissrag/internal/kissvdb"
)

// Sentinel errors surfaced by the package.
var (
	// ErrCollectionMissing indicates the target collection does not exist.
	// This signals a configuration mismatch (wrong collection name or a
	// skipped ingestion), not transient unavailability.
	ErrCollectionMissing = errors.New("collection missing")

	// ErrDimensionMismatch indicates the live embedding model's output
	// dimension does not match the dimension recorded at ingestion time.
	// Proceeding would write or compare incompatible vectors, so startup
	// fails fast instead.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// VectorStore is the slice of the kissvdb vector API the pipeline needs.
type VectorStore interface {
	GetCollection(ctx context.Context, collection string) (*kissvdb.CollectionInfo, error)
	CreateCollection(ctx context.Context, collection string, dim int, metric string) error
	Search(ctx context.Context, collection string, vector []float32, opts kissvdb.SearchOptions) ([]kissvdb.SearchHit, error)
}

// Source is one retrieved chunk decoded from a search hit's metadata.
type Source struct {
	Page       int     // page number, 0 when unknown
	Score      float32 // relevance score as ranked by the store
	Text       string  // retrievable chunk text
	ChunkIndex int     // sequence index within the source document
	Origin     string  // originating document, e.g. a file name
}

// Turn is the result of one completed chat turn.
type Turn struct {
	Answer  string   // generated (or inline failure) answer text
	Sources []Source // ranked sources backing the answer
	Pages   []int    // distinct pages cited, in rank order
}

// SourcesFromHits decodes hit metadata into Sources, preserving the store's
// ranking order. Hits without metadata become empty-text sources.
func SourcesFromHits(hits []kissvdb.SearchHit) []Source {
	sources := make([]Source, 0, len(hits))
	for _, hit := range hits {
		s := Source{Score: hit.Score}
		if page, ok := hit.Meta["page"].(float64); ok {
			s.Page = int(page)
		}
		if idx, ok := hit.Meta["chunk_index"].(float64); ok {
			s.ChunkIndex = int(idx)
		}
		if origin, ok := hit.Meta["origin"].(string); ok {
			s.Origin = origin
		}
		if text, ok := hit.Meta["text"].(string); ok {
			s.Text = text
		} else if text, ok := hit.Meta["full_text"].(string); ok {
			s.Text = text
		}
		sources = append(sources, s)
	}
	return sources
}

// DistinctPages returns the de-duplicated pages of sources in rank order.
func DistinctPages(sources []Source) []int {
	var pages []int
	seen := map[int]bool{}
	for _, s := range sources {
		if s.Page == 0 || seen[s.Page] {
			continue
		}
		seen[s.Page] = true
		pages = append(pages, s.Page)
	}
	return pages
}
