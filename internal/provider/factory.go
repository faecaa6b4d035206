package provider

import (
	"context"
	"fmt"
)

// Config selects and configures a provider.
type Config struct {
	Name            string // "gemini" or "chat"
	APIKey          string
	Model           string
	BaseURL         string
	MaxTokens       int
	IncludeThoughts bool
}

// New creates the provider named in cfg.
func New(ctx context.Context, cfg Config) (Provider, error) {
	switch cfg.Name {
	case "gemini", "":
		return NewGemini(ctx, GeminiConfig{
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
			BaseURL:         cfg.BaseURL,
			IncludeThoughts: cfg.IncludeThoughts,
		})
	case "chat":
		return NewChat(ChatConfig{
			APIURL:    cfg.BaseURL,
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Name)
	}
}
