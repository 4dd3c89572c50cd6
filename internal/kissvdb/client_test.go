package kissvdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustkissvdb/kissrag/internal/log"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, APIKey: "test-key"}, log.NewNop())
	require.NoError(t, err)
	return c
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "message": message})
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{}, log.NewNop())
	assert.Error(t, err)
}

func TestHealthSendsBearerToken(t *testing.T) {
	var gotAuth string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v1/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))

	require.NoError(t, c.Health(context.Background()))
	assert.Equal(t, "Bearer test-key", gotAuth)
}

func TestGetCollection(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/vector/docs", r.URL.Path)
		_ = json.NewEncoder(w).Encode(CollectionInfo{
			Collection: "docs", Dim: 384, Metric: MetricCosine, LiveCount: 12,
		})
	}))

	info, err := c.GetCollection(context.Background(), "docs")
	require.NoError(t, err)
	assert.Equal(t, 384, info.Dim)
	assert.Equal(t, MetricCosine, info.Metric)
}

func TestGetCollectionNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "collection or id not found")
	}))

	_, err := c.GetCollection(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "not_found", apiErr.Code)
}

func TestCreateCollectionAlreadyExists(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusConflict, "already_exists", "collection already exists")
	}))

	err := c.CreateCollection(context.Background(), "docs", 384, MetricCosine)
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestUpsertBatch(t *testing.T) {
	var got struct {
		Items []VectorItem `json:"items"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/vector/docs/upsert_batch", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))

	items := []VectorItem{
		{ID: "a", Vector: []float32{1, 2}, Meta: map[string]any{"page": 1}},
		{ID: "b", Vector: []float32{3, 4}},
	}
	require.NoError(t, c.UpsertBatch(context.Background(), "docs", items))
	require.Len(t, got.Items, 2)
	assert.Equal(t, "a", got.Items[0].ID)
}

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty batch")
	}))
	require.NoError(t, c.UpsertBatch(context.Background(), "docs", nil))
}

func TestSearch(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/vector/docs/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hits": []SearchHit{
				{ID: "h1", Score: 0.92, Meta: map[string]any{"page": float64(3)}},
				{ID: "h2", Score: 0.81},
			},
		})
	}))

	hits, err := c.Search(context.Background(), "docs", []float32{0.1, 0.2}, SearchOptions{
		K: 2, IncludeMeta: true,
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "h1", hits[0].ID)
	assert.InDelta(t, 0.92, hits[0].Score, 1e-6)

	assert.Equal(t, float64(2), got["k"])
	assert.Equal(t, true, got["include_meta"])
	_, hasFilters := got["filters"]
	assert.False(t, hasFilters, "empty filters must be omitted")
}

func TestStatePutConditional(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"key": "k", "revision": 7})
	}))

	rev := uint64(6)
	newRev, err := c.StatePut(context.Background(), "k", map[string]any{"x": 1}, &rev)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), newRev)
	assert.Equal(t, float64(6), got["if_revision"])
}

func TestStatePutRevisionMismatch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusConflict, "revision_mismatch", "if_revision mismatch")
	}))

	rev := uint64(3)
	_, err := c.StatePut(context.Background(), "k", "v", &rev)
	assert.ErrorIs(t, err, ErrRevisionMismatch)
}

func TestStatePutUnconditionalOmitsRevision(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"key": "k", "revision": 1})
	}))

	_, err := c.StatePut(context.Background(), "k", "v", nil)
	require.NoError(t, err)
	_, has := got["if_revision"]
	assert.False(t, has)
}

func TestStateGetEscapesKey(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "chat:abc:history", r.URL.Path[len("/v1/state/"):])
		_ = json.NewEncoder(w).Encode(StateItem{Key: "chat:abc:history", Revision: 2})
	}))

	item, err := c.StateGet(context.Background(), "chat:abc:history")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), item.Revision)
}

func TestStateList(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/state", r.URL.Path)
		assert.Equal(t, "docs:", r.URL.Query().Get("prefix"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode([]StateItem{{Key: "docs:a:manifest", Revision: 1}})
	}))

	items, err := c.StateList(context.Background(), "docs:", 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "docs:a:manifest", items[0].Key)
}

func TestStateDelete(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		_ = json.NewEncoder(w).Encode(map[string]bool{"deleted": true})
	}))

	deleted, err := c.StateDelete(context.Background(), "chat:x:history")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestTransportFailureIsClassified(t *testing.T) {
	c, err := New(Config{BaseURL: "http://127.0.0.1:1"}, log.NewNop())
	require.NoError(t, err)

	healthErr := c.Health(context.Background())
	assert.ErrorIs(t, healthErr, ErrUnreachable)
}

func TestNonJSONErrorBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))

	err := c.Health(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "http_error", apiErr.Code)
	assert.False(t, errors.Is(err, ErrNotFound))
}
