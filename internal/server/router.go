package server

import (
	"net/http"
	"slices"
)

const notFoundBody = "recents is waiting for the Spotify authorization callback. Nothing else is served here.\n"

// CallbackRouter routes the short-lived authorization server.
//
// Routes use method-qualified [http.ServeMux] patterns, so a request with the wrong method gets a 405
// from the mux itself. Unknown paths get a plain 404 explaining what the server is for.
type CallbackRouter struct {
	mux         *http.ServeMux
	middlewares []Middleware
	patterns    []string
	paths       map[string]bool
}

// NewCallbackRouter creates an empty [CallbackRouter].
func NewCallbackRouter() *CallbackRouter {
	return &CallbackRouter{mux: http.NewServeMux(), paths: map[string]bool{}}
}

// Use appends middleware. Only routes registered afterwards are wrapped.
func (r *CallbackRouter) Use(middleware ...Middleware) {
	r.middlewares = append(r.middlewares, middleware...)
}

// Handle registers handler for method requests to path.
func (r *CallbackRouter) Handle(method, path string, handler http.Handler) {
	pattern := method + " " + path
	r.mux.Handle(pattern, r.Apply(handler))
	r.patterns = append(r.patterns, pattern)
	r.paths[path] = true
}

// Handler registers h for GET requests on each of its routes.
func (r *CallbackRouter) Handler(h Handler) {
	for _, route := range h.Routes() {
		r.Handle(http.MethodGet, route, h)
	}
}

// Patterns lists the registered patterns in registration order.
func (r *CallbackRouter) Patterns() []string {
	return slices.Clone(r.patterns)
}

func (r *CallbackRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if _, pattern := r.mux.Handler(req); pattern == "" && !r.paths[req.URL.Path] {
		http.Error(w, notFoundBody, http.StatusNotFound)
		return
	}
	r.mux.ServeHTTP(w, req)
}

// Apply wraps handler so the first middleware added runs first.
func (r *CallbackRouter) Apply(handler http.Handler) http.Handler {
	for _, mw := range slices.Backward(r.middlewares) {
		handler = mw(handler)
	}
	return handler
}
