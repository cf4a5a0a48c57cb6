// Package domain defines the core business entities for sercha-rag.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: Extracted text elements plus descriptive metadata
//   - Chunk: A bounded, overlapping segment of a document's text
//   - IndexRecord: The persisted unit of the hybrid index
//   - SearchResult: A ranked hit returned by retrieval
//   - Config: The recognised configuration surface
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
