package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

func readRequest(uri string) *mcp.ReadResourceRequest {
	return &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: uri}}
}

func TestExtractDocumentID(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		expected string
	}{
		{name: "valid document URI", uri: "sercha-rag://documents/doc-456", expected: "doc-456"},
		{name: "invalid prefix", uri: "file://documents/doc-456", expected: ""},
		{name: "list URI", uri: "sercha-rag://documents", expected: ""},
		{name: "empty URI", uri: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractDocumentID(tt.uri))
		})
	}
}

func TestServer_handleDocumentsResource(t *testing.T) {
	ingest := &mockIngestionService{docs: []domain.DocumentSummary{
		{ID: "doc-1", Filename: "travel.pdf", Title: "Travel", ChunkCount: 2},
	}}
	server, err := NewServer(&Ports{Query: &mockQueryService{}, Ingestion: ingest})
	require.NoError(t, err)

	res, err := server.handleDocumentsResource(context.Background(), readRequest("sercha-rag://documents"))
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Equal(t, "application/json", res.Contents[0].MIMEType)

	var docs []domain.DocumentSummary
	require.NoError(t, json.Unmarshal([]byte(res.Contents[0].Text), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "travel.pdf", docs[0].Filename)
	assert.Equal(t, 2, docs[0].ChunkCount)
}

func TestServer_handleDocumentContentResource(t *testing.T) {
	ctx := context.Background()

	t.Run("returns combined text", func(t *testing.T) {
		ingest := &mockIngestionService{doc: &domain.Document{
			ID: "doc-1",
			Elements: []domain.TextElement{
				{Content: "Section one."},
				{Content: "Section two."},
			},
		}}
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Ingestion: ingest})
		require.NoError(t, err)

		res, err := server.handleDocumentContentResource(ctx, readRequest("sercha-rag://documents/doc-1"))
		require.NoError(t, err)
		assert.Equal(t, "Section one.\n\nSection two.", res.Contents[0].Text)
	})

	t.Run("unknown document", func(t *testing.T) {
		ingest := &mockIngestionService{err: domain.ErrNotFound}
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Ingestion: ingest})
		require.NoError(t, err)

		_, err = server.handleDocumentContentResource(ctx, readRequest("sercha-rag://documents/missing"))
		assert.Error(t, err)
	})

	t.Run("malformed URI", func(t *testing.T) {
		server, err := NewServer(&Ports{Query: &mockQueryService{}, Ingestion: &mockIngestionService{}})
		require.NoError(t, err)

		_, err = server.handleDocumentContentResource(ctx, readRequest("other://x"))
		assert.Error(t, err)
	})
}
