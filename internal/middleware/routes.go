package middleware

import (
	"net/http"
)

// RouteGroup represents a group of routes with common middleware
type RouteGroup struct {
	mux         *http.ServeMux
	middlewares []func(http.Handler) http.Handler
}

// NewRouteGroup creates a new route group with optional middleware
func NewRouteGroup(mux *http.ServeMux, middlewares ...func(http.Handler) http.Handler) *RouteGroup {
	return &RouteGroup{
		mux:         mux,
		middlewares: middlewares,
	}
}

// Handle registers a handler with the group's middleware stack
func (rg *RouteGroup) Handle(pattern string, handler http.Handler) {
	rg.mux.Handle(pattern, ApplyFunc(handler.ServeHTTP, rg.middlewares...))
}

// HandleFunc registers a handler function with the group's middleware stack
func (rg *RouteGroup) HandleFunc(pattern string, handlerFunc http.HandlerFunc) {
	rg.mux.Handle(pattern, ApplyFunc(handlerFunc, rg.middlewares...))
}

// Group creates a sub-group with additional middleware
func (rg *RouteGroup) Group(middlewares ...func(http.Handler) http.Handler) *RouteGroup {
	allMiddlewares := make([]func(http.Handler) http.Handler, len(rg.middlewares)+len(middlewares))
	copy(allMiddlewares, rg.middlewares)
	copy(allMiddlewares[len(rg.middlewares):], middlewares)

	return &RouteGroup{
		mux:         rg.mux,
		middlewares: allMiddlewares,
	}
}

// Common groups. The gateway wraps the whole mux, so these only add what
// is specific to a kind of route.

// PageGroup creates a route group for HTML pages rendered inside the layout.
func PageGroup(mux *http.ServeMux, appName string) *RouteGroup {
	return NewRouteGroup(mux, LayoutMiddleware(appName))
}

// ProtectedAPIGroup creates a route group for API routes that need an identity.
func ProtectedAPIGroup(mux *http.ServeMux) *RouteGroup {
	return NewRouteGroup(mux, RequireIdentity)
}

// RawGroup creates a route group with no middleware.
func RawGroup(mux *http.ServeMux) *RouteGroup {
	return NewRouteGroup(mux)
}
