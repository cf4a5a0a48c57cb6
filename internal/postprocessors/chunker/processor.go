// Package chunker provides a boundary-aware, overlapping text chunker.
package chunker

import (
	"context"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure Processor implements the interface.
var _ driven.PostProcessor = (*Processor)(nil)

// DefaultChunkSize is the default number of bytes per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping bytes.
const DefaultChunkOverlap = 200

// boundaryWindow is the trailing fraction of a window searched for a
// sentence terminator, expressed as a divisor of the window length.
const boundaryWindow = 5

var errEmptyText = errors.New("text is empty")

// Span is a chunk boundary in the source text. Offsets are byte offsets
// and always fall on rune boundaries.
type Span struct {
	Start int
	End   int
	Text  string
}

// Processor splits document text into overlapping chunks, preferring to
// end a chunk at a sentence terminator near the window end.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in bytes.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		p.chunkSize = size
	}
}

// WithOverlap sets the overlap between chunks in bytes.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		p.overlap = overlap
	}
}

// New creates a chunker processor. The chunk size must be positive and
// the overlap must lie in [0, chunkSize).
func New(opts ...Option) (*Processor, error) {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.chunkSize <= 0 {
		return nil, &domain.ConfigurationError{Field: "chunking.size", Reason: "must be greater than zero"}
	}
	if p.overlap < 0 || p.overlap >= p.chunkSize {
		return nil, &domain.ConfigurationError{Field: "chunking.overlap", Reason: "must be in [0, chunk size)"}
	}

	return p, nil
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// ChunkSize returns the configured chunk size.
func (p *Processor) ChunkSize() int { return p.chunkSize }

// Overlap returns the configured overlap.
func (p *Processor) Overlap() int { return p.overlap }

// Split divides text into spans that together cover it with no gaps.
// The result depends only on the text and the processor configuration.
func (p *Processor) Split(text string) ([]Span, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &domain.ProcessingError{Stage: "chunk", Err: errEmptyText}
	}

	n := len(text)
	if n <= p.chunkSize {
		return []Span{{Start: 0, End: n, Text: text}}, nil
	}

	spans := make([]Span, 0, n/(p.chunkSize-p.overlap)+1)
	start := 0

	for start < n {
		end := start + p.chunkSize
		if end >= n {
			spans = append(spans, Span{Start: start, End: n, Text: text[start:n]})
			break
		}

		end = runeFloor(text, start, end)
		if cut := sentenceEnd(text, start, end); cut > start {
			end = cut
		}
		spans = append(spans, Span{Start: start, End: end, Text: text[start:end]})

		next := runeFloor(text, start, end-p.overlap)
		if next <= start {
			// No forward progress is possible; the tail becomes the last chunk.
			if end < n {
				spans = append(spans, Span{Start: end, End: n, Text: text[end:n]})
			}
			break
		}
		start = next
	}

	return spans, nil
}

// Process splits the document's combined text into chunks.
// Input chunks are ignored; this processor creates new chunks from the document.
func (p *Processor) Process(_ context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	text, elements := doc.CombinedText()

	spans, err := p.Split(text)
	if err != nil {
		var perr *domain.ProcessingError
		if errors.As(err, &perr) {
			perr.DocumentID = doc.ID
		}
		return nil, err
	}

	chunks := make([]domain.Chunk, 0, len(spans))
	for i, s := range spans {
		chunks = append(chunks, domain.Chunk{
			ID:          domain.ChunkID(doc.ID, i),
			DocumentID:  doc.ID,
			Index:       i,
			Content:     s.Text,
			CharCount:   utf8.RuneCountInString(s.Text),
			WordCount:   len(strings.Fields(s.Text)),
			Page:        domain.PageAt(elements, s.Start),
			StartOffset: s.Start,
			EndOffset:   s.End,
		})
	}

	return chunks, nil
}

// runeFloor moves pos back to the nearest rune start after start.
// If that lands on start, it moves forward past one rune instead.
func runeFloor(text string, start, pos int) int {
	if pos <= start {
		return pos
	}
	for pos > start && pos < len(text) && !utf8.RuneStart(text[pos]) {
		pos--
	}
	if pos == start {
		_, size := utf8.DecodeRuneInString(text[start:])
		pos = start + size
	}
	return pos
}

// sentenceEnd returns the offset just past the last sentence terminator
// followed by whitespace within the final fifth of [start, end), or -1.
func sentenceEnd(text string, start, end int) int {
	from := end - (end-start)/boundaryWindow
	for i := end - 1; i >= from && i > start; i-- {
		switch text[i] {
		case '.', '!', '?':
			if i+1 < len(text) {
				r, _ := utf8.DecodeRuneInString(text[i+1:])
				if unicode.IsSpace(r) {
					return i + 1
				}
			}
		}
	}
	return -1
}
