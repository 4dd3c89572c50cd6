// Package provider defines the embedding and language-model capabilities the
// RAG pipeline consumes, with implementations for the Ollama native API and
// OpenAI-compatible APIs.
//
// Both are thin, synchronous HTTP clients; retries and failure policy belong
// to the callers.
package provider

import (
	"context"
	"strings"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one conversation turn sent to a language model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Embedder converts text into fixed-dimension float vectors.
type Embedder interface {
	// Name returns the embedding model identifier, recorded in manifests.
	Name() string

	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMany returns one vector per input text, in input order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel synthesizes an answer from a system instruction and prior turns.
type ChatModel interface {
	// Generate returns the model's answer text. Non-streaming.
	Generate(ctx context.Context, system string, turns []Message) (string, error)
}

// flatten removes newlines before embedding; embedding models treat the
// input as one passage and literal newlines skew some tokenizers.
func flatten(text string) string {
	return strings.ReplaceAll(text, "\n", " ")
}
