package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-rag/internal/ratelimit"
)

const (
	headerRequestID = "X-Request-ID"
	localRequestID  = "request_id"
)

// requestID tags every request with an id, reusing a client supplied one.
func requestID(c *fiber.Ctx) error {
	id := c.Get(headerRequestID)
	if id == "" {
		id = uuid.NewString()
	}
	c.Locals(localRequestID, id)
	c.Set(headerRequestID, id)
	return c.Next()
}

func requestIDFrom(c *fiber.Ctx) string {
	id, _ := c.Locals(localRequestID).(string)
	return id
}

// rateLimit checks the caller's bucket for the class of the requested route.
func (s *Server) rateLimit(c *fiber.Ctx) error {
	class := s.routes.ClassFor(c.Path())
	client := ratelimit.ClientID(c.IP(), c.Get(fiber.HeaderUserAgent))

	allowed, info := s.limiter.Allow(client, class)
	setRateHeaders(c, info)
	if !allowed {
		return &rateLimitedError{info: info}
	}
	return c.Next()
}
