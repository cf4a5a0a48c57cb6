// Package api provides the HTTP API adapter built on fiber.
//
// Routes live under /api and are grouped into rate-limit classes:
//
//	POST   /api/upload-document        upload
//	GET    /api/documents              default
//	GET    /api/documents/:id          default
//	GET    /api/documents/:id/chunks   default
//	DELETE /api/documents/:id          default
//	POST   /api/search                 search
//	POST   /api/query                  query
//	GET    /api/health                 health
//	GET    /api/health/live            health
//	GET    /api/ratelimit/stats        default
//
// Every response carries an X-Request-ID header and the X-RateLimit-*
// headers of the caller's bucket. Errors are rendered as JSON by ErrorHandler.
package api
