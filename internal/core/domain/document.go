package domain

import (
	"crypto/md5" //nolint:gosec // Used for id derivation, not security.
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// elementSeparator joins text elements into a document's combined text.
const elementSeparator = "\n\n"

// TextElement is one ordered piece of extracted document text.
type TextElement struct {
	// Content is the extracted text.
	Content string

	// Page is the 1-based page number, if the format has pages.
	Page *int
}

// DocumentMetadata holds descriptive metadata extracted at load time.
type DocumentMetadata struct {
	// Title is the human-readable title.
	Title string

	// Author is the document author, if known.
	Author string

	// PageCount is the number of pages, zero when the format is unpaged.
	PageCount int

	// Tags are free-form labels supplied at ingestion.
	Tags []string

	// MIMEType is the detected content type.
	MIMEType string

	// SizeBytes is the size of the source file.
	SizeBytes int64
}

// Document is a loaded document ready for chunking.
// It is created once per ingestion request and is read-only thereafter.
type Document struct {
	// ID is derived from the content hash, filename and load time.
	ID string

	// Filename is the base name of the source file.
	Filename string

	// Elements are the ordered extracted text elements.
	Elements []TextElement

	// Metadata describes the document.
	Metadata DocumentMetadata

	// CreatedAt is when the document was loaded.
	CreatedAt time.Time
}

// Chunk represents a searchable unit within a document.
// Chunks are produced by the chunker and never mutated after creation,
// apart from attaching exactly one embedding before indexing.
type Chunk struct {
	// ID is deterministic per document and chunk index.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Index is the ordinal position within the document.
	Index int

	// Content is the text content of this chunk.
	Content string

	// CharCount is the number of characters (runes) in Content.
	CharCount int

	// WordCount is the number of whitespace-separated words in Content.
	WordCount int

	// Page is the page the chunk starts on, if known.
	Page *int

	// StartOffset is the byte offset into the combined text.
	StartOffset int

	// EndOffset is the exclusive end byte offset into the combined text.
	EndOffset int

	// Embedding is the vector representation for semantic search.
	Embedding []float32
}

// ElementSpan locates a text element inside the combined text.
type ElementSpan struct {
	Start int
	End   int
	Page  *int
}

// CombinedText joins all elements into a single string and returns the
// span of every element so chunk offsets can be mapped back to pages.
func (d *Document) CombinedText() (string, []ElementSpan) {
	var b strings.Builder
	spans := make([]ElementSpan, 0, len(d.Elements))
	for i, el := range d.Elements {
		if i > 0 {
			b.WriteString(elementSeparator)
		}
		start := b.Len()
		b.WriteString(el.Content)
		spans = append(spans, ElementSpan{Start: start, End: b.Len(), Page: el.Page})
	}
	return b.String(), spans
}

// PageAt returns the page of the element containing offset, or nil.
// Offsets falling on a separator resolve to the following element.
func PageAt(spans []ElementSpan, offset int) *int {
	for _, s := range spans {
		if offset < s.End {
			return s.Page
		}
	}
	if len(spans) > 0 {
		return spans[len(spans)-1].Page
	}
	return nil
}

// NewDocumentID derives a document id from its content, filename and time.
// The format is doc_<sha256(content)[:16]>_<md5(filename)[:8]>_<unix%1e6>.
func NewDocumentID(content []byte, filename string, at time.Time) string {
	contentSum := sha256.Sum256(content)
	nameSum := md5.Sum([]byte(filename)) //nolint:gosec // Not used for security.
	ts := strconv.FormatInt(at.Unix(), 10)
	if len(ts) > 6 {
		ts = ts[len(ts)-6:]
	}
	return fmt.Sprintf("doc_%s_%s_%s",
		hex.EncodeToString(contentSum[:])[:16],
		hex.EncodeToString(nameSum[:])[:8],
		ts)
}

// NewDocument builds a loaded document. The id is derived from content,
// filename and now; an empty title falls back to the filename.
func NewDocument(
	filename string, content []byte, elements []TextElement, meta DocumentMetadata, now time.Time,
) *Document {
	if meta.Title == "" {
		meta.Title = TitleFromFilename(filename)
	}
	if meta.SizeBytes == 0 {
		meta.SizeBytes = int64(len(content))
	}
	return &Document{
		ID:        NewDocumentID(content, filename, now),
		Filename:  filename,
		Elements:  elements,
		Metadata:  meta,
		CreatedAt: now,
	}
}

// TitleFromFilename turns a file name into a human-readable title.
func TitleFromFilename(filename string) string {
	name := filepath.Base(filename)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

// ChunkID returns the deterministic id of a document's chunk.
func ChunkID(documentID string, index int) string {
	return documentID + "_chunk_" + strconv.Itoa(index)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
