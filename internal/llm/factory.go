package llm

import (
	"context"
	"fmt"

	"smartchef/internal/config"
)

// New returns the Gemini client selected by GEMINI_TRANSPORT ("rest" or "sdk").
// Without an API key it returns the REST client, which answers every call
// with ErrNotConfigured.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	if cfg.GeminiTransport == "sdk" && cfg.HasGeminiKey() {
		c, err := NewGeminiClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to init gemini sdk: %w", err)
		}
		return c, nil
	}
	return NewGeminiRESTClient(cfg), nil
}
