package llm_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"smartchef/internal/config"
	"smartchef/internal/llm"
)

// TestGeminiIntegration calls the real API when GEMINI_API_KEY is set.
func TestGeminiIntegration(t *testing.T) {
	cfg, err := config.NewFromEnv()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if !cfg.HasGeminiKey() {
		t.Skip("Skipping Gemini integration test: GEMINI_API_KEY not set")
	}

	for _, transport := range []string{"rest", "sdk"} {
		t.Run(transport, func(t *testing.T) {
			cfg.GeminiTransport = transport
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()

			client, err := llm.New(ctx, cfg)
			if err != nil {
				t.Fatalf("Failed to create client: %v", err)
			}
			defer client.Close()

			schema := &llm.Schema{Type: llm.TypeArray, Items: &llm.Schema{Type: llm.TypeString}}
			resp, err := client.GenerateJSON(ctx, "List three kitchen herbs as a JSON array of strings.", schema)
			if err != nil {
				t.Fatalf("GenerateJSON failed: %v", err)
			}

			var herbs []string
			if err := json.Unmarshal([]byte(resp.Content), &herbs); err != nil {
				t.Fatalf("Response is not a JSON string array: %v (%s)", err, resp.Content)
			}
			if len(herbs) == 0 {
				t.Error("Expected at least one herb")
			}
		})
	}
}
