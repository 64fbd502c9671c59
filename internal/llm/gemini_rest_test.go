package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"smartchef/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(endpoint string) *config.Config {
	return &config.Config{
		GeminiAPIKey:   "test-key",
		GeminiModel:    "gemini-test",
		GeminiEndpoint: endpoint,
	}
}

var arraySchema = &Schema{
	Type: TypeArray,
	Items: &Schema{
		Type:       TypeObject,
		Properties: map[string]*Schema{"recipeName": {Type: TypeString}},
		Required:   []string{"recipeName"},
	},
}

func TestGeminiRESTClient_GenerateJSON(t *testing.T) {
	t.Run("SendsWireFormat", func(t *testing.T) {
		var got map[string]interface{}
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/models/gemini-test:generateContent", r.URL.Path)
			assert.Equal(t, "test-key", r.URL.Query().Get("key"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

			w.Write([]byte(`{
				"candidates": [{"content": {"parts": [{"text": "[{\"recipeName\":\"Tacos\"}]"}]}}],
				"usageMetadata": {"promptTokenCount": 120, "candidatesTokenCount": 80, "totalTokenCount": 200}
			}`))
		}))
		defer server.Close()

		client := newGeminiRESTClient(testConfig(server.URL+"/"), server.Client())
		resp, err := client.GenerateJSON(context.Background(), "make tacos", arraySchema)
		require.NoError(t, err)

		assert.Equal(t, `[{"recipeName":"Tacos"}]`, resp.Content)
		assert.Equal(t, 120, resp.Usage.PromptTokens)
		assert.Equal(t, 80, resp.Usage.CompletionTokens)
		assert.Equal(t, 200, resp.Usage.TotalTokens)
		assert.Equal(t, "gemini-test", resp.Usage.Model)

		contents := got["contents"].([]interface{})
		parts := contents[0].(map[string]interface{})["parts"].([]interface{})
		assert.Equal(t, "make tacos", parts[0].(map[string]interface{})["text"])

		genCfg := got["generationConfig"].(map[string]interface{})
		assert.Equal(t, "application/json", genCfg["responseMimeType"])
		schema := genCfg["responseSchema"].(map[string]interface{})
		assert.Equal(t, "ARRAY", schema["type"])
		assert.Equal(t, "OBJECT", schema["items"].(map[string]interface{})["type"])
	})

	t.Run("NonOKStatus", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"API key not valid"}}`, http.StatusBadRequest)
		}))
		defer server.Close()

		client := newGeminiRESTClient(testConfig(server.URL), server.Client())
		_, err := client.GenerateJSON(context.Background(), "p", arraySchema)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status=400")
	})

	t.Run("NoCandidates", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"candidates": []}`))
		}))
		defer server.Close()

		client := newGeminiRESTClient(testConfig(server.URL), server.Client())
		_, err := client.GenerateJSON(context.Background(), "p", arraySchema)
		assert.EqualError(t, err, "no content generated")
	})

	t.Run("MalformedBody", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}))
		defer server.Close()

		client := newGeminiRESTClient(testConfig(server.URL), server.Client())
		_, err := client.GenerateJSON(context.Background(), "p", arraySchema)
		assert.Error(t, err)
	})

	t.Run("NotConfigured", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.GeminiAPIKey = config.GeminiKeyPlaceholder

		client := newGeminiRESTClient(cfg, http.DefaultClient)
		_, err := client.GenerateJSON(context.Background(), "p", arraySchema)
		assert.True(t, errors.Is(err, ErrNotConfigured))
	})
}

func TestToGenaiSchema(t *testing.T) {
	s := toGenaiSchema(arraySchema)
	require.NotNil(t, s)
	require.NotNil(t, s.Items)
	assert.Equal(t, []string{"recipeName"}, s.Items.Required)
	assert.Contains(t, s.Items.Properties, "recipeName")
	assert.Nil(t, toGenaiSchema(nil))
}

func TestNew(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.GeminiTransport = "sdk"
	cfg.GeminiAPIKey = ""

	client, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.GenerateJSON(context.Background(), "p", arraySchema)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}
