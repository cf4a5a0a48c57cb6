package domain

import "time"

// RecordMetadata is the structured metadata stored with every index record.
type RecordMetadata struct {
	Filename    string   `json:"filename,omitempty"`
	ChunkIndex  int      `json:"chunk_index"`
	Page        *int     `json:"page,omitempty"`
	StartOffset int      `json:"start_offset"`
	EndOffset   int      `json:"end_offset"`
	WordCount   int      `json:"word_count"`
	CharCount   int      `json:"char_count"`
	Author      string   `json:"author,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// IndexRecord is the persisted unit of the hybrid index.
// ChunkID is the primary key: re-indexing the same id overwrites.
type IndexRecord struct {
	ChunkID    string
	DocumentID string
	Text       string
	Title      string
	Vector     []float32
	Metadata   RecordMetadata
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// NewIndexRecord builds the index record for an embedded chunk.
func NewIndexRecord(doc *Document, chunk Chunk, now time.Time) IndexRecord {
	return IndexRecord{
		ChunkID:    chunk.ID,
		DocumentID: chunk.DocumentID,
		Text:       chunk.Content,
		Title:      doc.Metadata.Title,
		Vector:     chunk.Embedding,
		Metadata: RecordMetadata{
			Filename:    doc.Filename,
			ChunkIndex:  chunk.Index,
			Page:        chunk.Page,
			StartOffset: chunk.StartOffset,
			EndOffset:   chunk.EndOffset,
			WordCount:   chunk.WordCount,
			CharCount:   chunk.CharCount,
			Author:      doc.Metadata.Author,
			Tags:        doc.Metadata.Tags,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RecordError reports the failure to index a single record.
type RecordError struct {
	ChunkID string
	Err     error
}

// IndexBatchResult summarises a batch upsert. Partial failure is reported
// per record and never aborts the batch.
type IndexBatchResult struct {
	Indexed int
	Failed  int
	Errors  []RecordError
}

// IndexStats describes the contents of the index.
type IndexStats struct {
	Records   int `json:"records"`
	Documents int `json:"documents"`
}
