package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/adapters/driven/llm/prompt"
	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func newTestGenerator(t *testing.T, url string) *Generator {
	t.Helper()
	g, err := NewGenerator(Config{APIKey: "key", BaseURL: url})
	require.NoError(t, err)
	g.prompts.WithCounter(prompt.EstimateTokens)
	return g
}

func TestNewGenerator_RequiresAPIKey(t *testing.T) {
	_, err := NewGenerator(Config{})
	require.Error(t, err)
}

func TestGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req.System)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, DefaultMaxTokens, req.MaxTokens)

		_, _ = w.Write([]byte(`{
			"content":[{"type":"text","text":"Fifty "},{"type":"tool_use","text":"x"},{"type":"text","text":"dollars."}],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":100,"output_tokens":8}
		}`))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL)
	sources := []domain.SearchResult{{DocumentID: "doc_a", Text: "Meals up to fifty dollars."}}

	ans, err := g.Generate(context.Background(), "meal limit?", sources)
	require.NoError(t, err)

	assert.Equal(t, "Fifty dollars.", ans.Text)
	assert.Equal(t, 108, ans.TokensUsed)
	assert.Equal(t, DefaultModel, ans.Model)
	assert.Equal(t, "anthropic", g.Name())
}

func TestGenerator_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"bad model"}}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(t, server.URL).Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}

func TestGenerator_Generate_EmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer server.Close()

	_, err := newTestGenerator(t, server.URL).Generate(context.Background(), "q", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response content")
}

func TestGenerator_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/models", r.URL.Path)
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("denied"))
	}))
	defer server.Close()

	err := newTestGenerator(t, server.URL).Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
