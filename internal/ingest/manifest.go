package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rustkissvdb/kissrag/internal/kissvdb"
)

// Manifest records what a completed ingestion run wrote into a collection.
// It is the handshake between ingestion and chat startup: the chat side
// reads it to verify the embedding model and dimension still match.
type Manifest struct {
	Origin     string `json:"origin"`      // ingested source, e.g. a directory
	Collection string `json:"collection"`  // target collection
	EmbedModel string `json:"embed_model"` // embedding model identifier
	ChunkCount int    `json:"chunk_count"` // chunks actually upserted
	Dim        int    `json:"dim"`         // embedding dimension used
}

// ManifestKey returns the state-store key holding a collection's manifest.
func ManifestKey(collection string) string {
	return fmt.Sprintf("docs:%s:manifest", collection)
}

// StateStore is the slice of the kissvdb state API the manifest needs.
type StateStore interface {
	StateGet(ctx context.Context, key string) (*kissvdb.StateItem, error)
	StatePut(ctx context.Context, key string, value any, ifRevision *uint64) (uint64, error)
}

// LoadManifest reads the manifest for collection. A missing manifest
// surfaces as kissvdb.ErrNotFound so callers can distinguish "never
// ingested" from transport failures.
func LoadManifest(ctx context.Context, store StateStore, collection string) (*Manifest, error) {
	item, err := store.StateGet(ctx, ManifestKey(collection))
	if err != nil {
		return nil, fmt.Errorf("loading manifest for %q: %w", collection, err)
	}
	var m Manifest
	if err := json.Unmarshal(item.Value, &m); err != nil {
		return nil, fmt.Errorf("decoding manifest for %q: %w", collection, err)
	}
	return &m, nil
}

// writeManifest stores the manifest unconditionally; the latest completed
// run wins.
func writeManifest(ctx context.Context, store StateStore, m Manifest) error {
	if _, err := store.StatePut(ctx, ManifestKey(m.Collection), m, nil); err != nil {
		return fmt.Errorf("writing manifest for %q: %w", m.Collection, err)
	}
	return nil
}
