package ratelimit

import (
	"sync"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

// Router maps registered routes to endpoint classes. Routes are added
// when they are registered with the HTTP layer.
type Router struct {
	mu     sync.RWMutex
	routes map[string]domain.EndpointClass
}

// NewRouter creates an empty route table.
func NewRouter() *Router {
	return &Router{routes: make(map[string]domain.EndpointClass)}
}

// Register assigns class to route.
func (r *Router) Register(route string, class domain.EndpointClass) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[route] = class
}

// ClassFor returns the class of route, or the default class.
func (r *Router) ClassFor(route string) domain.EndpointClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if class, ok := r.routes[route]; ok {
		return class
	}
	return domain.EndpointDefault
}
