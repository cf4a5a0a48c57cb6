// Package bleve provides the default search backend, built on a bleve index.
//
// Lexical search uses bleve's standard analyser with fuzzy matching on the
// chunk text and title. Vectors are stored alongside each record and scored
// by an in-process cosine scan, so the backend needs no external service.
//
// # Storage
//
// An empty Path keeps the index in memory. Otherwise the index lives at
// Path/Name.bleve and is created on first use.
//
// # Scoring
//
//   - Keyword: the raw bleve relevance score.
//   - Semantic: cosine similarity clamped to [0, 1].
//   - Hybrid: VectorWeight*vector + TextWeight*(text / best text score).
//
// Ties are broken by chunk id so results are deterministic.
package bleve
