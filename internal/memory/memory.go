// Package memory persists ordered conversation turns in the revisioned
// state store, protecting concurrent writers with optimistic concurrency:
// every write is conditioned on the revision observed at read time.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rustkissvdb/kissrag/internal/kissvdb"
	"github.com/rustkissvdb/kissrag/internal/log"
)

// Sentinel errors for history operations.
var (
	// ErrConflict indicates an append lost a revision race to a concurrent
	// writer. The message was not stored; the caller decides whether to
	// reload and retry.
	ErrConflict = errors.New("concurrent history update")

	// ErrContention indicates Clear exhausted its retry budget without
	// winning a conditional write.
	ErrContention = errors.New("history contention not resolved")
)

const (
	// clearAttempts bounds the Clear read-modify-write loop.
	clearAttempts = 5

	// clearBackoff is the pause between Clear attempts.
	clearBackoff = 50 * time.Millisecond
)

// Message is one persisted conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	TS      int64  `json:"ts"` // epoch seconds
}

// historyDoc is the stored value under the session's history key.
// Messages are kept as raw JSON so one malformed entry cannot poison the
// whole document.
type historyDoc struct {
	Messages []json.RawMessage `json:"messages"`
}

// now is stubbed in tests.
var now = func() int64 { return time.Now().Unix() }

// StateStore is the slice of the kissvdb state API the history needs.
type StateStore interface {
	StateGet(ctx context.Context, key string) (*kissvdb.StateItem, error)
	StatePut(ctx context.Context, key string, value any, ifRevision *uint64) (uint64, error)
}

// History is the persistent chat history of one session.
// All methods issue synchronous state-store calls.
type History struct {
	store   StateStore
	session string
	key     string
	logger  log.Logger
}

// Key returns the state-store key holding this session's history.
func Key(session string) string {
	return fmt.Sprintf("chat:%s:history", session)
}

// Open returns the history for session, creating an empty one if none is
// stored yet. The initial write is unconditional: if two sessions race on
// first use, both write the same empty document, which is idempotent.
func Open(ctx context.Context, store StateStore, session string, logger log.Logger) (*History, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	h := &History{
		store:   store,
		session: session,
		key:     Key(session),
		logger:  logger,
	}

	_, err := store.StateGet(ctx, h.key)
	switch {
	case err == nil:
		return h, nil
	case errors.Is(err, kissvdb.ErrNotFound):
		if _, putErr := store.StatePut(ctx, h.key, historyDoc{Messages: []json.RawMessage{}}, nil); putErr != nil {
			return nil, fmt.Errorf("initializing history %q: %w", h.key, putErr)
		}
		logger.Debug("created empty history", "session", session, "key", h.key)
		return h, nil
	default:
		return nil, fmt.Errorf("opening history %q: %w", h.key, err)
	}
}

// Session returns the session identifier.
func (h *History) Session() string { return h.session }

// StateKey returns the underlying state-store key.
func (h *History) StateKey() string { return h.key }

// Load returns the stored messages in order. Entries missing a role or
// content are dropped silently; unknown extra fields are ignored. This
// tolerance lets older clients read histories written by newer ones.
func (h *History) Load(ctx context.Context) ([]Message, error) {
	messages, _, err := h.read(ctx)
	return messages, err
}

// Append adds one message, conditioned on the revision read just before.
// If a concurrent writer advanced the revision first, Append fails with
// ErrConflict and does not retry; the turn is lost unless the caller acts.
func (h *History) Append(ctx context.Context, role, content string) error {
	item, err := h.store.StateGet(ctx, h.key)
	if err != nil {
		return fmt.Errorf("reading history %q: %w", h.key, err)
	}

	var doc historyDoc
	if len(item.Value) > 0 {
		// A corrupt document is replaced rather than failing the append.
		_ = json.Unmarshal(item.Value, &doc)
	}

	entry, err := json.Marshal(Message{Role: role, Content: content, TS: now()})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	doc.Messages = append(doc.Messages, entry)

	if _, err := h.store.StatePut(ctx, h.key, doc, &item.Revision); err != nil {
		if errors.Is(err, kissvdb.ErrRevisionMismatch) {
			return fmt.Errorf("%w: history %q changed under us", ErrConflict, h.key)
		}
		return fmt.Errorf("writing history %q: %w", h.key, err)
	}
	return nil
}

// Clear resets the history to an empty message list. Conditional-write
// conflicts are retried up to clearAttempts times with a short backoff;
// exhausting the budget yields ErrContention.
func (h *History) Clear(ctx context.Context) error {
	for attempt := 0; attempt < clearAttempts; attempt++ {
		item, err := h.store.StateGet(ctx, h.key)
		if err != nil {
			return fmt.Errorf("reading history %q: %w", h.key, err)
		}

		_, err = h.store.StatePut(ctx, h.key, historyDoc{Messages: []json.RawMessage{}}, &item.Revision)
		if err == nil {
			h.logger.Debug("cleared history", "session", h.session, "attempts", attempt+1)
			return nil
		}
		if !errors.Is(err, kissvdb.ErrRevisionMismatch) {
			return fmt.Errorf("clearing history %q: %w", h.key, err)
		}

		select {
		case <-time.After(clearBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: gave up after %d attempts", ErrContention, clearAttempts)
}

// read fetches and validates the stored document.
func (h *History) read(ctx context.Context) ([]Message, uint64, error) {
	item, err := h.store.StateGet(ctx, h.key)
	if err != nil {
		return nil, 0, fmt.Errorf("reading history %q: %w", h.key, err)
	}

	var doc historyDoc
	if len(item.Value) > 0 {
		if err := json.Unmarshal(item.Value, &doc); err != nil {
			return nil, 0, fmt.Errorf("decoding history %q: %w", h.key, err)
		}
	}

	messages := make([]Message, 0, len(doc.Messages))
	for _, raw := range doc.Messages {
		var m Message
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		if m.Role == "" || m.Content == "" {
			continue
		}
		messages = append(messages, m)
	}
	return messages, item.Revision, nil
}
