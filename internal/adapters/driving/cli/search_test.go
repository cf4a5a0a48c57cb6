package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func sampleResults() []domain.SearchResult {
	page := 4
	return []domain.SearchResult{
		{
			ChunkID: "d1_0", DocumentID: "d1", Title: "Leave Policy", Score: 0.912,
			Text: "Employees accrue twenty days of annual leave.", Page: &page,
		},
		{
			ChunkID: "d2_3", DocumentID: "d2", Score: 0.41,
			Text:     "Remote work requires manager approval.",
			Metadata: domain.RecordMetadata{Filename: "remote.txt"},
		},
	}
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	useApp(t, &App{Query: &mockQueryService{}})

	_, err := execute(t, "search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestSearchCmd_HasFlags(t *testing.T) {
	limit := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "n", limit.Shorthand)
	assert.Equal(t, "10", limit.DefValue)
	assert.NotNil(t, searchCmd.Flags().Lookup("mode"))
	assert.NotNil(t, searchCmd.Flags().Lookup("min-score"))
}

func TestSearchCmd_PrintsResults(t *testing.T) {
	q := &mockQueryService{results: sampleResults()}
	useApp(t, &App{Query: q})

	out, err := execute(t, "search", "-n", "2", "--mode", "keyword", "annual", "leave")
	require.NoError(t, err)

	assert.Equal(t, "annual leave", q.lastQuery)
	assert.Equal(t, 2, q.lastOpts.TopK)
	assert.Equal(t, domain.SearchModeKeyword, q.lastOpts.Mode)
	assert.Contains(t, out, "Results (2)")
	assert.Contains(t, out, "Leave Policy")
	assert.Contains(t, out, "(0.912)")
	assert.Contains(t, out, "page 4")
	assert.Contains(t, out, "remote.txt")
}

func TestSearchCmd_NoResults(t *testing.T) {
	useApp(t, &App{Query: &mockQueryService{}})

	out, err := execute(t, "search", "nothing")
	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestSearchCmd_JSONOutput(t *testing.T) {
	useApp(t, &App{Query: &mockQueryService{results: sampleResults()}})

	out, err := execute(t, "search", "--json", "leave")
	require.NoError(t, err)

	var decoded []domain.SearchResult
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(out)), &decoded))
	assert.Len(t, decoded, 2)
}

func TestSearchCmd_ServiceError(t *testing.T) {
	useApp(t, &App{Query: &mockQueryService{err: domain.ErrCircuitOpen}})

	_, err := execute(t, "search", "leave")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCircuitOpen)
	assert.Contains(t, err.Error(), "search failed")
}

func TestAskCmd_PrintsAnswerAndSources(t *testing.T) {
	q := &mockQueryService{answer: &domain.Answer{
		Question:   "leave?",
		Text:       "Employees get twenty days.",
		Sources:    sampleResults()[:1],
		Model:      "llama3.2",
		TokensUsed: 321,
	}}
	useApp(t, &App{Query: q})

	out, err := execute(t, "ask", "-n", "3", "how", "much", "leave?")
	require.NoError(t, err)

	assert.Equal(t, "how much leave?", q.lastQuery)
	assert.Equal(t, 3, q.lastOpts.TopK)
	assert.Contains(t, out, "twenty days")
	assert.Contains(t, out, "[1] Leave Policy (page 4)")
	assert.Contains(t, out, "llama3.2, 321 tokens")
}

func TestAskCmd_GeneratorUnavailable(t *testing.T) {
	useApp(t, &App{Query: &mockQueryService{err: domain.ErrAnswerGeneratorUnavailable}})

	_, err := execute(t, "ask", "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrAnswerGeneratorUnavailable)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n  b\tc", 10))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
}
