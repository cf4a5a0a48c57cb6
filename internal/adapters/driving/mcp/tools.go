package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query    string  `json:"query" jsonschema:"the question or keywords to search for"`
	Limit    int     `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10, max 100)"`
	Mode     string  `json:"mode,omitempty" jsonschema:"ranking mode: semantic, keyword or hybrid (default hybrid)"`
	MinScore float64 `json:"min_score,omitempty" jsonschema:"drop results scoring below this value"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Filename   string  `json:"filename,omitempty"`
	Page       *int    `json:"page,omitempty"`
	Score      float64 `json:"score"`
	Content    string  `json:"content"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"the question to answer from the indexed documents"`
	Limit    int    `json:"limit,omitempty" jsonschema:"number of chunks to use as context (default 10)"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Answer  string               `json:"answer"`
	Model   string               `json:"model,omitempty"`
	Sources []SearchResultOutput `json:"sources"`
}

// ListDocumentsInput is the input schema for the list_documents tool.
type ListDocumentsInput struct{}

// ListDocumentsOutput is the output schema for the list_documents tool.
type ListDocumentsOutput struct {
	Documents []domain.DocumentSummary `json:"documents"`
	Count     int                      `json:"count"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Search the indexed policy documents and return ranked passages",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ask",
		Description: "Answer a question using the indexed policy documents as context",
	}, s.handleAsk)

	if s.ports.Ingestion != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "list_documents",
			Description: "List every ingested document",
		}, s.handleListDocuments)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	callID := uuid.NewString()
	logger.Debug("mcp search call=%s query=%q", callID, input.Query)

	opts := domain.SearchOptions{
		Mode:     domain.SearchMode(input.Mode),
		TopK:     input.Limit,
		MinScore: input.MinScore,
	}
	results, err := s.ports.Query.Search(ctx, input.Query, opts)
	if err != nil {
		return nil, SearchOutput{}, fmt.Errorf("search %s: %w", callID, err)
	}

	output := SearchOutput{
		Results: toResultOutputs(results),
		Count:   len(results),
	}
	return nil, output, nil
}

// handleAsk handles the ask tool invocation.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	callID := uuid.NewString()
	logger.Debug("mcp ask call=%s question=%q", callID, input.Question)

	answer, err := s.ports.Query.Ask(ctx, input.Question, domain.SearchOptions{TopK: input.Limit})
	if err != nil {
		return nil, AskOutput{}, fmt.Errorf("ask %s: %w", callID, err)
	}

	return nil, AskOutput{
		Answer:  answer.Text,
		Model:   answer.Model,
		Sources: toResultOutputs(answer.Sources),
	}, nil
}

// handleListDocuments handles the list_documents tool invocation.
func (s *Server) handleListDocuments(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListDocumentsInput,
) (*mcp.CallToolResult, ListDocumentsOutput, error) {
	docs, err := s.ports.Ingestion.ListDocuments(ctx)
	if err != nil {
		return nil, ListDocumentsOutput{}, fmt.Errorf("listing documents: %w", err)
	}
	if docs == nil {
		docs = []domain.DocumentSummary{}
	}
	return nil, ListDocumentsOutput{Documents: docs, Count: len(docs)}, nil
}

func toResultOutputs(results []domain.SearchResult) []SearchResultOutput {
	out := make([]SearchResultOutput, len(results))
	for i := range results {
		r := &results[i]
		out[i] = SearchResultOutput{
			ChunkID:    r.ChunkID,
			DocumentID: r.DocumentID,
			Title:      r.Title,
			Filename:   r.Metadata.Filename,
			Page:       r.Page,
			Score:      r.Score,
			Content:    r.Text,
		}
	}
	return out
}
