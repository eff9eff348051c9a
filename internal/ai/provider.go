package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ChatModel generates a completion for a conversation.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// Provider identifiers accepted in configuration.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderOllama     = "ollama"
)

// ProviderConfig carries the knobs shared by all providers.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	OllamaHost  string
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// NormalizeProvider maps user spellings onto a provider id.
func NormalizeProvider(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "openrouter":
		return ProviderOpenRouter, nil
	case "openai":
		return ProviderOpenAI, nil
	case "ollama", "local":
		return ProviderOllama, nil
	}
	return "", fmt.Errorf("unknown provider %q (use openrouter, openai or ollama)", name)
}

// Backend serves both chat and embeddings.
type Backend interface {
	ChatModel
	Embedder
}

// NewBackend returns the backend for provider.
func NewBackend(provider string, cfg ProviderConfig) (Backend, error) {
	id, err := NormalizeProvider(provider)
	if err != nil {
		return nil, err
	}
	if id == ProviderOllama {
		return NewOllamaClient(cfg.OllamaHost, cfg.HTTPTimeout, cfg.RetryMax), nil
	}
	base := cfg.BaseURL
	if id == ProviderOpenAI && (base == "" || base == DefaultBaseURL) {
		base = "https://api.openai.com/v1"
	}
	c, err := NewClient(Options{
		APIKey:      cfg.APIKey,
		BaseURL:     base,
		HTTPTimeout: cfg.HTTPTimeout,
		RetryMax:    cfg.RetryMax,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
