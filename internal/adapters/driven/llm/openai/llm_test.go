package openai

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
	g, err := NewGenerator(Config{APIKey: "sk-test", BaseURL: url, MaxContextTokens: 500})
	require.NoError(t, err)
	g.prompts.WithCounter(prompt.EstimateTokens)
	return g
}

func testSources() []domain.SearchResult {
	return []domain.SearchResult{{
		ChunkID:    "doc_a_chunk_0",
		DocumentID: "doc_a",
		Text:       "Meals are reimbursed up to fifty dollars per day.",
		Title:      "Travel Policy",
		Score:      0.91,
	}}
}

func TestNewGenerator_RequiresAPIKey(t *testing.T) {
	_, err := NewGenerator(Config{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNewGenerator_Defaults(t *testing.T) {
	g, err := NewGenerator(Config{APIKey: "sk-test"})
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, g.ModelName())
	assert.Equal(t, DefaultBaseURL, g.baseURL)
	assert.Equal(t, "openai", g.Name())
	assert.NoError(t, g.Close())
}

func TestGenerator_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Contains(t, req.Messages[1].Content, "[Source 1] Travel Policy")
		assert.Contains(t, req.Messages[1].Content, "What is the meal limit?")

		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"content":"  Fifty dollars per day [Source 1]. "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":80,"completion_tokens":12,"total_tokens":92}
		}`))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL)
	sources := testSources()

	ans, err := g.Generate(context.Background(), "What is the meal limit?", sources)
	require.NoError(t, err)

	assert.Equal(t, "Fifty dollars per day [Source 1].", ans.Text)
	assert.Equal(t, 92, ans.TokensUsed)
	assert.Equal(t, DefaultModel, ans.Model)
	assert.Equal(t, "What is the meal limit?", ans.Question)
	assert.Equal(t, sources, ans.Sources)
}

func TestGenerator_Generate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL)

	_, err := g.Generate(context.Background(), "q", testSources())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, err.Error(), "rate limited")
}

func TestGenerator_Generate_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL)

	_, err := g.Generate(context.Background(), "q", testSources())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no response choices")
}

func TestGenerator_Ping(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer server.Close()

	g := newTestGenerator(t, server.URL)
	assert.NoError(t, g.Ping(context.Background()))

	status = http.StatusUnauthorized
	assert.Error(t, g.Ping(context.Background()))
}
