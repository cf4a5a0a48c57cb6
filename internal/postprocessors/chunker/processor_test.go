package chunker

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func mustNew(t *testing.T, opts ...Option) *Processor {
	t.Helper()
	p, err := New(opts...)
	require.NoError(t, err)
	return p
}

// reconstruct rebuilds the source text from overlapping spans.
func reconstruct(text string, spans []Span) string {
	var b strings.Builder
	prev := 0
	for _, s := range spans {
		from := max(prev, s.Start)
		if s.End > from {
			b.WriteString(text[from:s.End])
		}
		prev = max(prev, s.End)
	}
	return b.String()
}

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := mustNew(t)
		assert.Equal(t, DefaultChunkSize, p.ChunkSize())
		assert.Equal(t, DefaultChunkOverlap, p.Overlap())
	})

	t.Run("custom values", func(t *testing.T) {
		p := mustNew(t, WithChunkSize(500), WithOverlap(100))
		assert.Equal(t, 500, p.ChunkSize())
		assert.Equal(t, 100, p.Overlap())
	})

	invalid := []struct {
		name string
		opts []Option
	}{
		{"zero chunk size", []Option{WithChunkSize(0)}},
		{"negative chunk size", []Option{WithChunkSize(-5)}},
		{"negative overlap", []Option{WithOverlap(-1)}},
		{"overlap equals chunk size", []Option{WithChunkSize(100), WithOverlap(100)}},
		{"overlap exceeds chunk size", []Option{WithChunkSize(100), WithOverlap(150)}},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.opts...)
			assert.Nil(t, p)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrConfiguration))

			var cfgErr *domain.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestProcessor_Name(t *testing.T) {
	assert.Equal(t, "chunker", mustNew(t).Name())
}

func TestSplit_RejectsEmptyText(t *testing.T) {
	p := mustNew(t)
	for _, text := range []string{"", "   ", "\n\t \n"} {
		spans, err := p.Split(text)
		assert.Nil(t, spans)
		assert.True(t, errors.Is(err, domain.ErrProcessing), "text %q", text)
	}
}

func TestSplit_ShortTextIsOneChunk(t *testing.T) {
	p := mustNew(t, WithChunkSize(100), WithOverlap(20))
	text := "This is a small piece of content."

	spans, err := p.Split(text)
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, Span{Start: 0, End: len(text), Text: text}, spans[0])
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	p := mustNew(t, WithChunkSize(20), WithOverlap(0))
	text := strings.Repeat("a", 16) + ". " + strings.Repeat("b", 30)

	spans, err := p.Split(text)
	require.NoError(t, err)
	require.NotEmpty(t, spans)
	assert.Equal(t, strings.Repeat("a", 16)+".", spans[0].Text)
	assert.Equal(t, 17, spans[1].Start)
}

func TestSplit_IgnoresBoundaryOutsideFinalFifth(t *testing.T) {
	p := mustNew(t, WithChunkSize(20), WithOverlap(0))
	text := "aaaa. " + strings.Repeat("b", 40)

	spans, err := p.Split(text)
	require.NoError(t, err)
	assert.Equal(t, 20, spans[0].End, "expected a hard cut")
}

func TestSplit_HardCutWithoutTerminator(t *testing.T) {
	p := mustNew(t, WithChunkSize(100), WithOverlap(20))
	text := strings.Repeat("x", 250)

	spans, err := p.Split(text)
	require.NoError(t, err)
	require.Len(t, spans, 3)
	assert.Equal(t, Span{Start: 0, End: 100, Text: text[:100]}, spans[0])
	assert.Equal(t, 80, spans[1].Start)
	assert.Equal(t, 160, spans[2].Start)
	assert.Equal(t, 250, spans[2].End)
}

func TestSplit_DegenerateOverlapEmitsTail(t *testing.T) {
	p := mustNew(t, WithChunkSize(10), WithOverlap(9))
	text := strings.Repeat("a", 8) + ". " + strings.Repeat("b", 20)

	spans, err := p.Split(text)
	require.NoError(t, err)
	require.Len(t, spans, 2)
	assert.Equal(t, 9, spans[0].End)
	assert.Equal(t, Span{Start: 9, End: len(text), Text: text[9:]}, spans[1])
}

func TestSplit_Coverage(t *testing.T) {
	sentence := "The quick brown fox jumps over the lazy dog. Is it? Yes! "
	texts := []string{
		strings.Repeat(sentence, 50),
		strings.Repeat("word ", 700),
		strings.Repeat("Ünïcødé täxt wïth äccents. ", 90),
		strings.Repeat("日本語の文章です。", 200),
	}
	configs := []struct{ size, overlap int }{
		{1000, 200},
		{100, 0},
		{64, 63},
		{7, 3},
		{1, 0},
	}

	for _, cfg := range configs {
		p := mustNew(t, WithChunkSize(cfg.size), WithOverlap(cfg.overlap))
		for _, text := range texts {
			spans, err := p.Split(text)
			require.NoError(t, err)
			require.NotEmpty(t, spans)

			assert.Equal(t, 0, spans[0].Start)
			assert.Equal(t, len(text), spans[len(spans)-1].End)
			for i, s := range spans {
				assert.Equal(t, text[s.Start:s.End], s.Text)
				assert.True(t, utf8.ValidString(s.Text), "span %d splits a rune", i)
				if i > 0 {
					assert.Greater(t, s.Start, spans[i-1].Start, "no forward progress")
					assert.LessOrEqual(t, s.Start, spans[i-1].End, "gap before span %d", i)
				}
			}
			assert.Equal(t, text, reconstruct(text, spans))
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	p := mustNew(t)
	text := strings.Repeat("Policies apply to every employee. Exceptions need approval! ", 80)

	first, err := p.Split(text)
	require.NoError(t, err)
	second, err := p.Split(text)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestProcessor_Process(t *testing.T) {
	p := mustNew(t, WithChunkSize(60), WithOverlap(10))
	doc := &domain.Document{
		ID: "doc_abc",
		Elements: []domain.TextElement{
			{Content: strings.Repeat("First page text. ", 5), Page: domain.IntPtr(1)},
			{Content: strings.Repeat("Second page text. ", 5), Page: domain.IntPtr(2)},
		},
	}

	chunks, err := p.Process(context.Background(), doc, nil)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	for i, c := range chunks {
		assert.Equal(t, "doc_abc_chunk_"+strconv.Itoa(i), c.ID)
		assert.Equal(t, doc.ID, c.DocumentID)
		assert.Equal(t, i, c.Index)
		assert.Equal(t, utf8.RuneCountInString(c.Content), c.CharCount)
		assert.Equal(t, len(strings.Fields(c.Content)), c.WordCount)
		require.NotNil(t, c.Page)
	}
	assert.Equal(t, 1, *chunks[0].Page)
	assert.Equal(t, 2, *chunks[len(chunks)-1].Page)

	again, err := p.Process(context.Background(), doc, nil)
	require.NoError(t, err)
	assert.Equal(t, chunks, again)
}

func TestProcessor_Process_EmptyDocument(t *testing.T) {
	p := mustNew(t)
	doc := &domain.Document{ID: "doc_empty", Elements: []domain.TextElement{{Content: "  "}}}

	chunks, err := p.Process(context.Background(), doc, nil)
	assert.Nil(t, chunks)

	var perr *domain.ProcessingError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "doc_empty", perr.DocumentID)
}
