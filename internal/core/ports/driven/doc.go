// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentLoader: Extracts ordered text elements from a file
//   - SearchBackend: Hybrid lexical + vector index (bleve or Postgres/pgvector)
//   - EmbeddingModel: Converts text into fixed-length vectors
//   - MemoryProbe: Reports live system memory for adaptive batching
//   - DocumentStore: Registry of ingested documents and chunks (SQLite)
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - AnswerGenerator: Turns ranked chunks into prose. Without it, only retrieval is available.
//   - PromptStore: User-editable prompt templates. Without it, built-in prompts are used.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
