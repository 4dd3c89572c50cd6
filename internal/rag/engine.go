package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/rustkissvdb/kissrag/internal/kissvdb"
	"github.com/rustkissvdb/kissrag/internal/log"
	"github.com/rustkissvdb/kissrag/internal/memory"
	"github.com/rustkissvdb/kissrag/internal/provider"
)

// Tunable parameter bounds, shared with the interactive surface.
const (
	MinTopK, MaxTopK                 = 1, 50
	MinContextChars, MaxContextChars = 800, 20000
	MinHistoryWindow, MaxHistoryWindow = 2, 50
)

// EmptyContextMarker is inserted into the system instruction when retrieval
// produced no usable context, so the model is told explicitly instead of
// receiving a silently empty section.
const EmptyContextMarker = "(no context found)"

// Config holds the constructor parameters for Engine.
type Config struct {
	Vectors    VectorStore
	Embedder   provider.Embedder
	Model      provider.ChatModel
	History    *memory.History
	Logger     log.Logger
	Collection string

	TopK          int // hits requested per query
	ContextChars  int // context character budget
	HistoryWindow int // trailing turns sent to the model
}

func (cfg Config) validate() error {
	if cfg.Vectors == nil {
		return errors.New("vector store is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Model == nil {
		return errors.New("chat model is required")
	}
	if cfg.History == nil {
		return errors.New("history is required")
	}
	if cfg.Collection == "" {
		return errors.New("collection is required")
	}
	return nil
}

// Engine drives one chat turn: embed the question, retrieve, assemble
// context, generate, and commit the turn to persistent memory.
//
// Engine methods issue blocking network calls one at a time; it is meant to
// be driven by a single caller, so the tunable setters are not synchronized.
type Engine struct {
	vectors  VectorStore
	embedder provider.Embedder
	model    provider.ChatModel
	history  *memory.History
	logger   log.Logger

	collection    string
	topK          int
	contextChars  int
	historyWindow int
}

// NewEngine creates an Engine. Tunables outside their bounds are clamped.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("rag engine: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{
		vectors:       cfg.Vectors,
		embedder:      cfg.Embedder,
		model:         cfg.Model,
		history:       cfg.History,
		logger:        logger,
		collection:    cfg.Collection,
		topK:          clamp(cfg.TopK, MinTopK, MaxTopK),
		contextChars:  clamp(cfg.ContextChars, MinContextChars, MaxContextChars),
		historyWindow: clamp(cfg.HistoryWindow, MinHistoryWindow, MaxHistoryWindow),
	}, nil
}

// Collection returns the target collection name.
func (e *Engine) Collection() string { return e.collection }

// History returns the engine's persistent memory.
func (e *Engine) History() *memory.History { return e.history }

// TopK returns the current hit count per query.
func (e *Engine) TopK() int { return e.topK }

// ContextChars returns the current context character budget.
func (e *Engine) ContextChars() int { return e.contextChars }

// HistoryWindow returns the current trailing-turn window size.
func (e *Engine) HistoryWindow() int { return e.historyWindow }

// SetTopK applies a clamped top-k and returns the value in effect.
func (e *Engine) SetTopK(k int) int {
	e.topK = clamp(k, MinTopK, MaxTopK)
	return e.topK
}

// SetContextChars applies a clamped context budget and returns the value in
// effect.
func (e *Engine) SetContextChars(n int) int {
	e.contextChars = clamp(n, MinContextChars, MaxContextChars)
	return e.contextChars
}

// SetHistoryWindow applies a clamped history window and returns the value in
// effect.
func (e *Engine) SetHistoryWindow(n int) int {
	e.historyWindow = clamp(n, MinHistoryWindow, MaxHistoryWindow)
	return e.historyWindow
}

// Ask runs one full chat turn for question.
//
// Failures before generation abort the turn with no memory mutation.
// Generation failures do not abort: they are converted into a visible
// inline answer and the turn still commits. A commit failure (for example a
// lost append race) is returned alongside the completed Turn so the caller
// can still show the answer; check the error with errors.Is against
// memory.ErrConflict.
func (e *Engine) Ask(ctx context.Context, question string) (*Turn, error) {
	// Embed the question. Nothing has been committed yet, so an error here
	// leaves no partial trace of the turn.
	queryVec, err := e.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	hits, err := e.vectors.Search(ctx, e.collection, queryVec, kissvdb.SearchOptions{
		K:           e.topK,
		IncludeMeta: true,
	})
	if err != nil {
		if errors.Is(err, kissvdb.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q (is the collection name right, and was it ingested?)",
				ErrCollectionMissing, e.collection)
		}
		return nil, fmt.Errorf("searching %q: %w", e.collection, err)
	}

	sources := SourcesFromHits(hits)
	contextStr := BuildContext(sources, e.contextChars)
	system := systemInstruction(contextStr)

	window, err := e.trailingWindow(ctx)
	if err != nil {
		return nil, err
	}
	turns := append(window, provider.Message{Role: provider.RoleUser, Content: question})

	answer, err := e.model.Generate(ctx, system, turns)
	if err != nil {
		// Keep the session alive: surface the failure inside the answer.
		e.logger.Warn("generation failed", "error", err)
		answer = fmt.Sprintf("[error] generation failed: %v", err)
	}

	turn := &Turn{
		Answer:  answer,
		Sources: sources,
		Pages:   DistinctPages(sources),
	}

	if err := e.commit(ctx, question, answer); err != nil {
		return turn, err
	}
	return turn, nil
}

// trailingWindow loads history and keeps the most recent turns, oldest
// dropped first.
func (e *Engine) trailingWindow(ctx context.Context) ([]provider.Message, error) {
	messages, err := e.history.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if len(messages) > e.historyWindow {
		messages = messages[len(messages)-e.historyWindow:]
	}
	window := make([]provider.Message, len(messages))
	for i, m := range messages {
		window[i] = provider.Message{Role: m.Role, Content: m.Content}
	}
	return window, nil
}

// commit appends the user question and the answer as two sequential writes.
func (e *Engine) commit(ctx context.Context, question, answer string) error {
	if err := e.history.Append(ctx, provider.RoleUser, question); err != nil {
		return fmt.Errorf("committing user turn: %w", err)
	}
	if err := e.history.Append(ctx, provider.RoleAssistant, answer); err != nil {
		return fmt.Errorf("committing assistant turn: %w", err)
	}
	return nil
}

// systemInstruction builds the generation instruction around the assembled
// context (or the explicit empty marker).
func systemInstruction(contextStr string) string {
	if contextStr == "" {
		contextStr = EmptyContextMarker
	}
	return "You are an assistant answering questions about an ingested document set.\n" +
		"Rules:\n" +
		"1) Use the CONTEXT below whenever it is relevant.\n" +
		"2) If the context is not sufficient to answer, say so explicitly; do not invent facts.\n" +
		"3) When you use the context, cite the page (p.X).\n\n" +
		"CONTEXT:\n" + contextStr + "\n"
}

func clamp(x, lo, hi int) int {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
