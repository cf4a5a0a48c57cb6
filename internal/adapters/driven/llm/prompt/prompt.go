// Package prompt assembles answer prompts shared by the LLM adapters.
//
// Retrieved chunks are formatted as numbered sources and added in rank
// order until the context token budget is spent. Token counts come from
// tiktoken's cl100k encoding, with a length based estimate when the
// encoding cannot be loaded.
package prompt

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// DefaultMaxContextTokens bounds the context section when none is configured.
const DefaultMaxContextTokens = 3000

// maxSourceChars truncates a single source before token trimming.
const maxSourceChars = 1500

const defaultSystemPrompt = `You are a policy assistant. Answer questions using only the documents provided.
Cite the numbered sources you rely on. If the documents do not contain the answer, say so.`

const defaultAnswerPrompt = `Answer the question using the documents below as context.

CONTEXT:
%s

QUESTION:
%s

ANSWER:`

// TokenCounter returns the number of tokens in text.
type TokenCounter func(text string) int

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// CountTokens counts tokens with the gpt-3.5-turbo encoding.
func CountTokens(text string) int {
	encOnce.Do(func() {
		e, err := tiktoken.EncodingForModel("gpt-3.5-turbo")
		if err == nil {
			enc = e
		}
	})
	if enc == nil {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// EstimateTokens approximates a token count at four bytes per token.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// Builder renders the system and user prompts for a question.
type Builder struct {
	mu        sync.RWMutex
	store     driven.PromptStore
	maxTokens int
	count     TokenCounter
}

// NewBuilder creates a builder. A non-positive maxContextTokens uses the default.
func NewBuilder(maxContextTokens int) *Builder {
	if maxContextTokens <= 0 {
		maxContextTokens = DefaultMaxContextTokens
	}
	return &Builder{maxTokens: maxContextTokens, count: CountTokens}
}

// WithCounter replaces the token counter.
func (b *Builder) WithCounter(c TokenCounter) *Builder {
	b.count = c
	return b
}

// SetPromptStore sets the prompt store for loading customisable prompts.
func (b *Builder) SetPromptStore(store driven.PromptStore) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.store = store
}

// Result is a rendered prompt.
type Result struct {
	System string
	User   string

	// Included is the number of sources that fit in the budget.
	Included int
}

// Build formats chunks as sources, trims them to the token budget and
// fills the answer template. The top ranked source is always included,
// truncated if it alone exceeds the budget.
func (b *Builder) Build(question string, chunks []domain.SearchResult) Result {
	var parts []string
	used := 0
	for i, c := range chunks {
		src := FormatSource(i+1, c)
		n := b.count(src)
		if used+n > b.maxTokens {
			if i == 0 {
				parts = append(parts, b.truncate(src, b.maxTokens))
			}
			break
		}
		parts = append(parts, src)
		used += n
	}

	context := "No sources provided."
	if len(parts) > 0 {
		context = strings.Join(parts, "\n\n")
	}

	return Result{
		System:   b.load(driven.PromptAnswerSystem, defaultSystemPrompt),
		User:     fmt.Sprintf(b.load(driven.PromptAnswer, defaultAnswerPrompt), context, question),
		Included: len(parts),
	}
}

// FormatSource renders one retrieved chunk as a numbered source.
func FormatSource(n int, r domain.SearchResult) string {
	name := r.Title
	if name == "" {
		name = r.Metadata.Filename
	}
	if name == "" {
		name = r.DocumentID
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "[Source %d] %s", n, name)
	if r.Page != nil {
		fmt.Fprintf(&sb, " (Page %d)", *r.Page)
	}
	fmt.Fprintf(&sb, "\nRelevance Score: %.3f\n", r.Score)

	text := r.Text
	if len(text) > maxSourceChars {
		text = strings.ToValidUTF8(text[:maxSourceChars], "") + " [truncated]"
	}
	sb.WriteString("Content: ")
	sb.WriteString(text)
	return sb.String()
}

// truncate shortens s until it fits in limit tokens.
func (b *Builder) truncate(s string, limit int) string {
	for len(s) > 0 && b.count(s) > limit {
		cut := len(s) * 3 / 4
		s = strings.ToValidUTF8(s[:cut], "")
	}
	return s
}

func (b *Builder) load(name, fallback string) string {
	b.mu.RLock()
	store := b.store
	b.mu.RUnlock()
	if store == nil {
		return fallback
	}
	p, err := store.Load(name)
	if err != nil || p == "" {
		return fallback
	}
	return p
}
