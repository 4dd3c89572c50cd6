package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig holds connection settings for a local Ollama instance.
type OllamaConfig struct {
	BaseURL    string        // e.g. http://localhost:11434
	EmbedModel string        // e.g. embeddinggemma:300m
	ChatModel  string        // e.g. gemma3:4b
	Timeout    time.Duration // per-request timeout; 120s if zero
}

// Ollama implements Embedder and ChatModel against the Ollama native API.
type Ollama struct {
	baseURL    string
	embedModel string
	chatModel  string
	http       *http.Client
}

// NewOllama creates an Ollama provider.
func NewOllama(cfg OllamaConfig) (*Ollama, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("ollama: base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Ollama{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		embedModel: cfg.EmbedModel,
		chatModel:  cfg.ChatModel,
		http:       &http.Client{Timeout: timeout},
	}, nil
}

// Name returns the embedding model identifier.
func (o *Ollama) Name() string { return o.embedModel }

// Embed generates one embedding via POST /api/embeddings.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float32, error) {
	body := map[string]any{
		"model":  o.embedModel,
		"prompt": flatten(text),
	}

	var resp struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := o.post(ctx, "/api/embeddings", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("ollama: model %q returned no embedding", o.embedModel)
	}
	return resp.Embedding, nil
}

// EmbedMany embeds each text with one call per text; the Ollama embeddings
// endpoint has no batch form.
func (o *Ollama) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := o.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d of %d: %w", i+1, len(texts), err)
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Generate answers via POST /api/chat with stream disabled.
func (o *Ollama) Generate(ctx context.Context, system string, turns []Message) (string, error) {
	messages := make([]Message, 0, len(turns)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: system})
	messages = append(messages, turns...)

	body := map[string]any{
		"model":    o.chatModel,
		"stream":   false,
		"messages": messages,
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := o.post(ctx, "/api/chat", body, &resp); err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (o *Ollama) post(ctx context.Context, path string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("ollama: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("ollama: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return fmt.Errorf("ollama: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ollama: %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ollama: decoding %s response: %w", path, err)
	}
	return nil
}
