// Package kissvdb is an HTTP client for the KISS vector/state database
// service. It exposes the vector collection API and the revisioned key-value
// state API consumed by the RAG pipeline.
//
// Server failures are decoded into *APIError values that match the package
// sentinel errors through errors.Is, so callers branch on classified
// outcomes instead of inspecting error strings.
package kissvdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rustkissvdb/kissrag/internal/log"
)

// Sentinel errors for classified server outcomes.
var (
	// ErrNotFound indicates a missing collection, vector id, or state key.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the collection (or id) already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrRevisionMismatch indicates a conditional state write lost a race:
	// the stored revision no longer matches the if_revision the writer read.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrDimMismatch indicates a vector's dimension does not match the
	// collection's fixed dimension.
	ErrDimMismatch = errors.New("dimension mismatch")

	// ErrUnreachable indicates a transport-level failure before any server
	// response was received.
	ErrUnreachable = errors.New("service unreachable")
)

// APIError is a classified error returned by the service.
type APIError struct {
	Status  int    // HTTP status code
	Code    string // machine-readable code from the error envelope
	Message string // human-readable message
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kissvdb: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Is maps server error codes onto the package sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == "not_found" || e.Status == http.StatusNotFound
	case ErrAlreadyExists:
		return e.Code == "already_exists"
	case ErrRevisionMismatch:
		return e.Code == "revision_mismatch"
	case ErrDimMismatch:
		return e.Code == "dim_mismatch"
	}
	return false
}

// DefaultTimeout bounds each request when Config.Timeout is zero.
const DefaultTimeout = 60 * time.Second

// Config holds connection settings for the service.
type Config struct {
	BaseURL string        // e.g. http://localhost:9917
	APIKey  string        // bearer token; empty disables the header
	Timeout time.Duration // per-request timeout; DefaultTimeout if zero
}

// Client talks to one KISS vector/state service instance.
// It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  log.Logger
}

// New creates a Client. logger may be nil.
func New(cfg Config, logger log.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("kissvdb: base URL is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// Health verifies the service is reachable and responding.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil, nil)
}

// do issues one JSON request. body and out may be nil. Query parameters are
// appended when query is non-nil. Error responses are decoded into *APIError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("kissvdb: encoding request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return fmt.Errorf("kissvdb: building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.decodeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("kissvdb: decoding response: %w", err)
		}
	}
	return nil
}

// decodeError reads the {error, message} envelope the server sends with
// every non-2xx status.
func (c *Client) decodeError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var envelope struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Error == "" {
		return &APIError{
			Status:  resp.StatusCode,
			Code:    "http_error",
			Message: strings.TrimSpace(string(raw)),
		}
	}

	apiErr := &APIError{
		Status:  resp.StatusCode,
		Code:    envelope.Error,
		Message: envelope.Message,
	}
	c.logger.Debug("kissvdb error response",
		"status", resp.StatusCode, "code", apiErr.Code, "message", apiErr.Message)
	return apiErr
}
