package bleve

import (
	blevesearch "github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Index field names.
const (
	fieldChunkID     = "chunk_id"
	fieldDocumentID  = "document_id"
	fieldText        = "text"
	fieldTextExact   = "text_exact"
	fieldTitle       = "title"
	fieldVector      = "vector"
	fieldFilename    = "filename"
	fieldChunkIndex  = "chunk_index"
	fieldPage        = "page"
	fieldStartOffset = "start_offset"
	fieldEndOffset   = "end_offset"
	fieldWordCount   = "word_count"
	fieldCharCount   = "char_count"
	fieldAuthor      = "author"
	fieldTags        = "tags"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
)

// Field boosts for lexical matching.
const (
	textBoost  = 2.0
	titleBoost = 1.5
	fuzziness  = 1
)

// storedFields are returned with every hit.
var storedFields = []string{
	fieldChunkID, fieldDocumentID, fieldText, fieldTitle, fieldFilename,
	fieldChunkIndex, fieldPage, fieldStartOffset, fieldEndOffset,
	fieldWordCount, fieldCharCount, fieldAuthor, fieldTags,
}

// newIndexMapping builds the chunk record mapping. Unmapped fields are
// ignored.
func newIndexMapping() mapping.IndexMapping {
	keywordField := func() *mapping.FieldMapping {
		fm := blevesearch.NewKeywordFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}
	textField := func() *mapping.FieldMapping {
		fm := blevesearch.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = true
		fm.IncludeTermVectors = true
		fm.IncludeInAll = false
		return fm
	}
	numericField := func() *mapping.FieldMapping {
		fm := blevesearch.NewNumericFieldMapping()
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}
	dateField := func() *mapping.FieldMapping {
		fm := blevesearch.NewDateTimeFieldMapping()
		fm.Store = true
		fm.IncludeInAll = false
		return fm
	}

	exact := blevesearch.NewKeywordFieldMapping()
	exact.Analyzer = keyword.Name
	exact.Store = false
	exact.IncludeInAll = false

	vector := blevesearch.NewTextFieldMapping()
	vector.Index = false
	vector.Store = true
	vector.IncludeInAll = false
	vector.DocValues = false

	doc := blevesearch.NewDocumentMapping()
	doc.Dynamic = false
	doc.AddFieldMappingsAt(fieldChunkID, keywordField())
	doc.AddFieldMappingsAt(fieldDocumentID, keywordField())
	doc.AddFieldMappingsAt(fieldText, textField())
	doc.AddFieldMappingsAt(fieldTextExact, exact)
	doc.AddFieldMappingsAt(fieldTitle, textField())
	doc.AddFieldMappingsAt(fieldVector, vector)
	doc.AddFieldMappingsAt(fieldFilename, keywordField())
	doc.AddFieldMappingsAt(fieldAuthor, keywordField())
	doc.AddFieldMappingsAt(fieldTags, keywordField())
	for _, f := range []string{fieldChunkIndex, fieldPage, fieldStartOffset, fieldEndOffset, fieldWordCount, fieldCharCount} {
		doc.AddFieldMappingsAt(f, numericField())
	}
	doc.AddFieldMappingsAt(fieldCreatedAt, dateField())
	doc.AddFieldMappingsAt(fieldUpdatedAt, dateField())

	im := blevesearch.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}
