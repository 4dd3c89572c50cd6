package kissvdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// StateItem is the envelope for one key in the revisioned state store.
// Revision increases monotonically with every successful write.
type StateItem struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Revision    uint64          `json:"revision"`
	ExpiresAtMS *int64          `json:"expires_at_ms,omitempty"`
}

// StateGet reads one state key. A missing key yields ErrNotFound.
func (c *Client) StateGet(ctx context.Context, key string) (*StateItem, error) {
	var item StateItem
	path := "/v1/state/" + url.PathEscape(key)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &item); err != nil {
		return nil, fmt.Errorf("state get %q: %w", key, err)
	}
	return &item, nil
}

// StatePut writes value under key and returns the new revision.
//
// When ifRevision is non-nil the write is conditional: it succeeds only if
// the stored revision still equals *ifRevision, otherwise the call yields
// ErrRevisionMismatch and the stored value is left untouched.
func (c *Client) StatePut(ctx context.Context, key string, value any, ifRevision *uint64) (uint64, error) {
	body := map[string]any{"value": value}
	if ifRevision != nil {
		body["if_revision"] = *ifRevision
	}

	var resp struct {
		Key      string `json:"key"`
		Revision uint64 `json:"revision"`
	}
	path := "/v1/state/" + url.PathEscape(key)
	if err := c.do(ctx, http.MethodPut, path, nil, body, &resp); err != nil {
		return 0, fmt.Errorf("state put %q: %w", key, err)
	}
	return resp.Revision, nil
}

// StateList returns up to limit items whose keys start with prefix.
func (c *Client) StateList(ctx context.Context, prefix string, limit int) ([]StateItem, error) {
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{}
	if prefix != "" {
		query.Set("prefix", prefix)
	}
	query.Set("limit", strconv.Itoa(limit))

	var items []StateItem
	if err := c.do(ctx, http.MethodGet, "/v1/state", query, nil, &items); err != nil {
		return nil, fmt.Errorf("state list %q: %w", prefix, err)
	}
	return items, nil
}

// StateDelete removes a key and reports whether it existed.
func (c *Client) StateDelete(ctx context.Context, key string) (bool, error) {
	var resp struct {
		Deleted bool `json:"deleted"`
	}
	path := "/v1/state/" + url.PathEscape(key)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, &resp); err != nil {
		return false, fmt.Errorf("state delete %q: %w", key, err)
	}
	return resp.Deleted, nil
}
