package api

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// documentResponse is a registry document without its extracted text.
type documentResponse struct {
	ID         string                  `json:"id"`
	Filename   string                  `json:"filename"`
	Metadata   domain.DocumentMetadata `json:"metadata"`
	ChunkCount int                     `json:"chunk_count"`
	CreatedAt  time.Time               `json:"created_at"`
}

// chunkResponse is a chunk without its embedding.
type chunkResponse struct {
	ID          string `json:"id"`
	Index       int    `json:"index"`
	Content     string `json:"content"`
	Page        *int   `json:"page,omitempty"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	WordCount   int    `json:"word_count"`
	CharCount   int    `json:"char_count"`
}

func (s *Server) handleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return ErrBadRequest("missing multipart field 'file'")
	}

	f, err := file.Open()
	if err != nil {
		return ErrBadRequest("unreadable upload")
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return ErrBadRequest("unreadable upload")
	}

	res, err := s.ports.Ingestion.IngestBytes(c.UserContext(), file.Filename, content, splitTags(c.FormValue("tags")))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

func (s *Server) handleListDocuments(c *fiber.Ctx) error {
	docs, err := s.ports.Ingestion.ListDocuments(c.UserContext())
	if err != nil {
		return err
	}
	if docs == nil {
		docs = []domain.DocumentSummary{}
	}
	return c.JSON(fiber.Map{"documents": docs, "count": len(docs)})
}

func (s *Server) handleGetDocument(c *fiber.Ctx) error {
	doc, chunks, err := s.ports.Ingestion.GetDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(documentResponse{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Metadata:   doc.Metadata,
		ChunkCount: len(chunks),
		CreatedAt:  doc.CreatedAt,
	})
}

func (s *Server) handleGetChunks(c *fiber.Ctx) error {
	_, chunks, err := s.ports.Ingestion.GetDocument(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	out := make([]chunkResponse, len(chunks))
	for i := range chunks {
		ch := &chunks[i]
		out[i] = chunkResponse{
			ID:          ch.ID,
			Index:       ch.Index,
			Content:     ch.Content,
			Page:        ch.Page,
			StartOffset: ch.StartOffset,
			EndOffset:   ch.EndOffset,
			WordCount:   ch.WordCount,
			CharCount:   ch.CharCount,
		}
	}
	return c.JSON(fiber.Map{"document_id": c.Params("id"), "chunks": out, "count": len(out)})
}

func (s *Server) handleDeleteDocument(c *fiber.Ctx) error {
	id := c.Params("id")
	deleted, err := s.ports.Ingestion.DeleteDocument(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return NewError(fiber.StatusNotFound, "not_found", "document "+id+" not found")
	}
	return c.JSON(fiber.Map{"document_id": id, "deleted": true})
}

func (s *Server) handleSearch(c *fiber.Ctx) error {
	var req SearchRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}

	results, err := s.ports.Query.Search(c.UserContext(), req.Query, req.options())
	if err != nil {
		return err
	}
	if results == nil {
		results = []domain.SearchResult{}
	}
	return c.JSON(fiber.Map{"query": req.Query, "results": results, "count": len(results)})
}

func (s *Server) handleQuery(c *fiber.Ctx) error {
	var req QueryRequest
	if err := parseAndValidate(c, &req); err != nil {
		return err
	}

	answer, err := s.ports.Query.Ask(c.UserContext(), req.Question, req.options())
	if err != nil {
		return err
	}
	return c.JSON(answer)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	report := s.ports.Query.Health(c.UserContext())
	status := fiber.StatusOK
	if !report.Healthy {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(report)
}

func (s *Server) handleLive(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "alive", "timestamp": time.Now().UTC()})
}

func (s *Server) handleRateLimitStats(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"buckets": s.limiter.Stats()})
}
