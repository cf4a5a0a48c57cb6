// Package mcp provides an MCP (Model Context Protocol) server adapter.
// It lets AI assistants search the policy index, ask questions and browse
// ingested documents.
package mcp

import "errors"

// ErrMissingQueryService is returned when the query service is not provided.
var ErrMissingQueryService = errors.New("mcp: query service is required")
