package prompt

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

type stubStore struct {
	prompts map[string]string
}

func (s *stubStore) Load(name string) (string, error) {
	p, ok := s.prompts[name]
	if !ok {
		return "", errors.New("not found")
	}
	return p, nil
}

func (s *stubStore) Reload() {}

func results(n int, text string) []domain.SearchResult {
	out := make([]domain.SearchResult, n)
	for i := range out {
		out[i] = domain.SearchResult{
			ChunkID:    domain.ChunkID("doc_a", i),
			DocumentID: "doc_a",
			Text:       text,
			Title:      "Travel Policy",
			Score:      0.9 - float64(i)*0.1,
		}
	}
	return out
}

func TestFormatSource(t *testing.T) {
	r := domain.SearchResult{
		DocumentID: "doc_a",
		Text:       "Meals are reimbursed.",
		Title:      "Travel Policy",
		Score:      0.8765,
		Page:       domain.IntPtr(3),
	}

	got := FormatSource(2, r)

	assert.Equal(t, "[Source 2] Travel Policy (Page 3)\nRelevance Score: 0.877\nContent: Meals are reimbursed.", got)
}

func TestFormatSource_NameFallbacks(t *testing.T) {
	byFile := domain.SearchResult{DocumentID: "doc_a", Metadata: domain.RecordMetadata{Filename: "travel.pdf"}}
	byID := domain.SearchResult{DocumentID: "doc_a"}

	assert.True(t, strings.HasPrefix(FormatSource(1, byFile), "[Source 1] travel.pdf\n"))
	assert.True(t, strings.HasPrefix(FormatSource(1, byID), "[Source 1] doc_a\n"))
}

func TestFormatSource_TruncatesLongContent(t *testing.T) {
	r := domain.SearchResult{DocumentID: "doc_a", Text: strings.Repeat("a", maxSourceChars+100)}

	got := FormatSource(1, r)

	assert.True(t, strings.HasSuffix(got, " [truncated]"))
	assert.Less(t, len(got), maxSourceChars+100)
}

func TestBuilder_Build_Defaults(t *testing.T) {
	b := NewBuilder(0).WithCounter(EstimateTokens)

	p := b.Build("What is the meal limit?", results(2, "Meals are reimbursed up to fifty dollars."))

	assert.Equal(t, defaultSystemPrompt, p.System)
	assert.Contains(t, p.User, "[Source 1] Travel Policy")
	assert.Contains(t, p.User, "[Source 2] Travel Policy")
	assert.Contains(t, p.User, "QUESTION:\nWhat is the meal limit?")
	assert.Equal(t, 2, p.Included)
}

func TestBuilder_Build_TrimsToBudget(t *testing.T) {
	b := NewBuilder(100).WithCounter(EstimateTokens)
	// Each source is roughly 60 tokens, so only the first fits.
	chunks := results(5, strings.Repeat("word ", 40))

	p := b.Build("q", chunks)

	assert.Equal(t, 1, p.Included)
	assert.Contains(t, p.User, "[Source 1]")
	assert.NotContains(t, p.User, "[Source 2]")
}

func TestBuilder_Build_TruncatesOversizedFirstSource(t *testing.T) {
	b := NewBuilder(20).WithCounter(EstimateTokens)

	p := b.Build("q", results(2, strings.Repeat("policy ", 100)))

	require.Equal(t, 1, p.Included)
	assert.NotContains(t, p.User, "[Source 2]")
	assert.Contains(t, p.User, "[Source 1]")
}

func TestBuilder_Build_NoChunks(t *testing.T) {
	b := NewBuilder(100).WithCounter(EstimateTokens)

	p := b.Build("q", nil)

	assert.Equal(t, 0, p.Included)
	assert.Contains(t, p.User, "No sources provided.")
}

func TestBuilder_Build_UsesPromptStore(t *testing.T) {
	b := NewBuilder(100).WithCounter(EstimateTokens)
	b.SetPromptStore(&stubStore{prompts: map[string]string{
		driven.PromptAnswerSystem: "custom system",
		driven.PromptAnswer:       "CTX=%s Q=%s",
	}})

	p := b.Build("why?", results(1, "because"))

	assert.Equal(t, "custom system", p.System)
	assert.True(t, strings.HasPrefix(p.User, "CTX=[Source 1]"))
	assert.True(t, strings.HasSuffix(p.User, "Q=why?"))
}

func TestBuilder_Build_StoreErrorFallsBack(t *testing.T) {
	b := NewBuilder(100).WithCounter(EstimateTokens)
	b.SetPromptStore(&stubStore{prompts: map[string]string{}})

	p := b.Build("q", nil)

	assert.Equal(t, defaultSystemPrompt, p.System)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
