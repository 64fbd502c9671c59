package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"smartchef/internal/config"
	"smartchef/internal/shared"
)

// geminiRESTClient talks to the generateContent endpoint over plain HTTP.
type geminiRESTClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewGeminiRESTClient creates a Gemini client using the public REST API.
func NewGeminiRESTClient(cfg *config.Config) Client {
	return newGeminiRESTClient(cfg, &http.Client{Timeout: 60 * time.Second})
}

func newGeminiRESTClient(cfg *config.Config, httpClient *http.Client) *geminiRESTClient {
	apiKey := cfg.GeminiAPIKey
	if !cfg.HasGeminiKey() {
		apiKey = ""
	}
	return &geminiRESTClient{
		apiKey:     apiKey,
		endpoint:   strings.TrimRight(cfg.GeminiEndpoint, "/"),
		model:      cfg.GeminiModel,
		httpClient: httpClient,
	}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string  `json:"responseMimeType"`
	ResponseSchema   *Schema `json:"responseSchema,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// GenerateJSON posts the prompt with a response schema and returns the first candidate's text.
func (c *geminiRESTClient) GenerateJSON(ctx context.Context, prompt string, schema *Schema) (ContentResponse, error) {
	if c.apiKey == "" {
		return ContentResponse{}, ErrNotConfigured
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   schema,
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	reqURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.endpoint, c.model, url.QueryEscape(c.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(jsonBody))
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ContentResponse{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ContentResponse{}, fmt.Errorf("gemini api error: status=%d body=%s", resp.StatusCode, string(bodyBytes))
	}

	var gr geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return ContentResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(gr.Candidates) == 0 || len(gr.Candidates[0].Content.Parts) == 0 {
		return ContentResponse{}, fmt.Errorf("no content generated")
	}

	return ContentResponse{
		Content: gr.Candidates[0].Content.Parts[0].Text,
		Usage: shared.TokenUsage{
			PromptTokens:     gr.UsageMetadata.PromptTokenCount,
			CompletionTokens: gr.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      gr.UsageMetadata.TotalTokenCount,
			Model:            c.model,
		},
	}, nil
}

// Close is a no-op; the HTTP client holds no dedicated resources.
func (c *geminiRESTClient) Close() error {
	return nil
}
