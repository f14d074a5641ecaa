package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"NewsDigest/internal/config"
	"NewsDigest/internal/ports"
)

var (
	// ErrEmptyResponse is returned when a provider answers without text.
	ErrEmptyResponse = errors.New("generation returned no text")
	// ErrMissingAPIKey is returned for a known provider configured without a key.
	ErrMissingAPIKey = errors.New("api key is empty")
)

const systemPrompt = "You write short, spoken-style news scripts for vertical video."

// Provider is a Generator that holds network resources.
type Provider interface {
	ports.Generator
	io.Closer
}

// New builds the configured provider. Provider "none" returns nil, which makes
// every script fall back to the local numbered summary.
func New(ctx context.Context, cfg config.GenerationConfig) (Provider, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "none" || provider == "" {
		return nil, nil
	}
	switch provider {
	case "gemini", "openai", "cohere":
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.Provider)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("generation provider %s: %w", provider, ErrMissingAPIKey)
	}

	switch provider {
	case "gemini":
		return NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	default:
		return NewCohere(cfg.APIKey, cfg.Model), nil
	}
}
