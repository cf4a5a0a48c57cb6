package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-rag/internal/logger"
	"github.com/custodia-labs/sercha-rag/internal/ratelimit"
)

// Default server settings.
const (
	DefaultAddr      = ":8080"
	DefaultBodyLimit = 50 * 1024 * 1024
	shutdownTimeout  = 10 * time.Second
	prefix           = "/api"
)

// Ports aggregates the driving ports served over HTTP.
type Ports struct {
	Query     driving.QueryService
	Ingestion driving.IngestionService
}

// Config holds HTTP server settings.
type Config struct {
	// Addr is the listen address (default: :8080).
	Addr string

	// BodyLimit caps request bodies in bytes (default: 50 MiB).
	BodyLimit int

	// Limiter holds the per-client buckets. Nil uses the default limits.
	Limiter *ratelimit.Limiter
}

// Server is the HTTP API.
type Server struct {
	app     *fiber.App
	addr    string
	ports   Ports
	limiter *ratelimit.Limiter
	routes  *ratelimit.Router
}

// NewServer creates the fiber app and registers every route.
func NewServer(cfg Config, ports Ports) (*Server, error) {
	if ports.Query == nil || ports.Ingestion == nil {
		return nil, fmt.Errorf("api: query and ingestion services are required")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.BodyLimit <= 0 {
		cfg.BodyLimit = DefaultBodyLimit
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.New(nil, ratelimit.Options{})
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			ErrorHandler:          ErrorHandler,
			BodyLimit:             cfg.BodyLimit,
			DisableStartupMessage: true,
		}),
		addr:    cfg.Addr,
		ports:   ports,
		limiter: cfg.Limiter,
		routes:  ratelimit.NewRouter(),
	}

	s.app.Use(requestID, s.rateLimit)
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.app.Group(prefix)

	s.route(api, fiber.MethodPost, "/upload-document", domain.EndpointUpload, s.handleUpload)
	s.route(api, fiber.MethodGet, "/documents", domain.EndpointDefault, s.handleListDocuments)
	s.route(api, fiber.MethodGet, "/documents/:id", domain.EndpointDefault, s.handleGetDocument)
	s.route(api, fiber.MethodGet, "/documents/:id/chunks", domain.EndpointDefault, s.handleGetChunks)
	s.route(api, fiber.MethodDelete, "/documents/:id", domain.EndpointDefault, s.handleDeleteDocument)
	s.route(api, fiber.MethodPost, "/search", domain.EndpointSearch, s.handleSearch)
	s.route(api, fiber.MethodPost, "/query", domain.EndpointQuery, s.handleQuery)
	s.route(api, fiber.MethodGet, "/health", domain.EndpointHealth, s.handleHealth)
	s.route(api, fiber.MethodGet, "/health/live", domain.EndpointHealth, s.handleLive)
	s.route(api, fiber.MethodGet, "/ratelimit/stats", domain.EndpointDefault, s.handleRateLimitStats)
}

// route registers a handler and records its rate-limit class.
func (s *Server) route(
	group fiber.Router, method, path string, class domain.EndpointClass, handler fiber.Handler,
) {
	s.routes.Register(prefix+path, class)
	group.Add(method, path, handler)
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			logger.Warn("http shutdown: %v", err)
		}
	}()

	logger.Info("HTTP API listening on %s", s.addr)
	return s.app.Listen(s.addr)
}
