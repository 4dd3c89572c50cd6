package kissvdb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Distance metrics supported by the service.
const (
	MetricCosine = "cosine"
	MetricDot    = "dot"
)

// CollectionInfo describes an existing vector collection.
type CollectionInfo struct {
	Collection   string `json:"collection"`
	Dim          int    `json:"dim"`
	Metric       string `json:"metric"`
	LiveCount    int64  `json:"live_count"`
	TotalRecords int64  `json:"total_records"`
	UpsertCount  int64  `json:"upsert_count"`
}

// VectorItem is one record to upsert into a collection.
type VectorItem struct {
	ID     string         `json:"id"`
	Vector []float32      `json:"vector"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// SearchHit is one nearest-neighbor result, ordered by descending relevance
// as returned by the service.
type SearchHit struct {
	ID    string         `json:"id"`
	Score float32        `json:"score"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// SearchOptions configures a vector search.
type SearchOptions struct {
	K           int            // number of hits to request
	IncludeMeta bool           // attach record metadata to each hit
	Filters     map[string]any // optional metadata filters
}

// GetCollection fetches metadata for an existing collection.
// A missing collection yields ErrNotFound.
func (c *Client) GetCollection(ctx context.Context, collection string) (*CollectionInfo, error) {
	var info CollectionInfo
	path := "/v1/vector/" + url.PathEscape(collection)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &info); err != nil {
		return nil, fmt.Errorf("get collection %q: %w", collection, err)
	}
	return &info, nil
}

// CreateCollection creates a collection with a fixed dimension and metric.
// Creating an existing collection yields ErrAlreadyExists.
func (c *Client) CreateCollection(ctx context.Context, collection string, dim int, metric string) error {
	body := map[string]any{"dim": dim, "metric": metric}
	path := "/v1/vector/" + url.PathEscape(collection)
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("create collection %q: %w", collection, err)
	}
	return nil
}

// Upsert writes a single vector record.
func (c *Client) Upsert(ctx context.Context, collection string, item VectorItem) error {
	path := "/v1/vector/" + url.PathEscape(collection) + "/upsert"
	if err := c.do(ctx, http.MethodPost, path, nil, item, nil); err != nil {
		return fmt.Errorf("upsert %q into %q: %w", item.ID, collection, err)
	}
	return nil
}

// UpsertBatch writes a batch of vector records in one call.
func (c *Client) UpsertBatch(ctx context.Context, collection string, items []VectorItem) error {
	if len(items) == 0 {
		return nil
	}
	body := map[string]any{"items": items}
	path := "/v1/vector/" + url.PathEscape(collection) + "/upsert_batch"
	if err := c.do(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("upsert batch of %d into %q: %w", len(items), collection, err)
	}
	return nil
}

// Search returns the opts.K nearest neighbors of vector in the collection.
// A missing collection yields ErrNotFound.
func (c *Client) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchHit, error) {
	k := opts.K
	if k <= 0 {
		k = 5
	}
	body := map[string]any{
		"vector":       vector,
		"k":            k,
		"include_meta": opts.IncludeMeta,
	}
	if len(opts.Filters) > 0 {
		body["filters"] = opts.Filters
	}

	var resp struct {
		Hits []SearchHit `json:"hits"`
	}
	path := "/v1/vector/" + url.PathEscape(collection) + "/search"
	if err := c.do(ctx, http.MethodPost, path, nil, body, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", collection, err)
	}
	return resp.Hits, nil
}
