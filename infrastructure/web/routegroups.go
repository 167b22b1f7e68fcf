package web

import (
	"net/http"
	"slices"
	"strings"
)

// Router is what both WebHandler and RouteGroup expose for registering
// routes, so route sets can mount on either.
type Router interface {
	Handle(method, path string, handler HandlerFunc, middleware ...Middleware)
	GET(path string, handler HandlerFunc, middleware ...Middleware)
	POST(path string, handler HandlerFunc, middleware ...Middleware)
	PATCH(path string, handler HandlerFunc, middleware ...Middleware)
	DELETE(path string, handler HandlerFunc, middleware ...Middleware)
}

var (
	_ Router = (*WebHandler)(nil)
	_ Router = (*RouteGroup)(nil)
)

// RouteGroup registers routes under a shared prefix and middleware.
type RouteGroup struct {
	webHandler *WebHandler
	prefix     string
	middleware []Middleware
}

// Group starts a route group. Group middleware runs after the global chain
// and before route middleware.
func (wh *WebHandler) Group(prefix string, middleware ...Middleware) *RouteGroup {
	return &RouteGroup{
		webHandler: wh,
		prefix:     joinPath("", prefix),
		middleware: middleware,
	}
}

// Prefix is the group's full path prefix.
func (g *RouteGroup) Prefix() string {
	return g.prefix
}

func (g *RouteGroup) Handle(method, path string, handler HandlerFunc, middleware ...Middleware) {
	g.webHandler.Handle(method, joinPath(g.prefix, path), handler, slices.Concat(g.middleware, middleware)...)
}

// Group nests a group under g, inheriting its prefix and middleware.
func (g *RouteGroup) Group(prefix string, middleware ...Middleware) *RouteGroup {
	return &RouteGroup{
		webHandler: g.webHandler,
		prefix:     joinPath(g.prefix, prefix),
		middleware: slices.Concat(g.middleware, middleware),
	}
}

// joinPath glues prefix and path with exactly one slash between them and no
// trailing slash, so "/api/v1/" + "/boards" is "/api/v1/boards".
func joinPath(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	path = strings.TrimSuffix(path, "/")
	switch {
	case prefix == "" && path == "":
		return "/"
	case path == "":
		return prefix
	case strings.HasPrefix(path, "/"):
		return prefix + path
	default:
		return prefix + "/" + path
	}
}

func (wh *WebHandler) GET(path string, handler HandlerFunc, middleware ...Middleware) {
	wh.Handle(http.MethodGet, path, handler, middleware...)
}

func (wh *WebHandler) POST(path string, handler HandlerFunc, middleware ...Middleware) {
	wh.Handle(http.MethodPost, path, handler, middleware...)
}

func (wh *WebHandler) PATCH(path string, handler HandlerFunc, middleware ...Middleware) {
	wh.Handle(http.MethodPatch, path, handler, middleware...)
}

func (wh *WebHandler) DELETE(path string, handler HandlerFunc, middleware ...Middleware) {
	wh.Handle(http.MethodDelete, path, handler, middleware...)
}

func (g *RouteGroup) GET(path string, handler HandlerFunc, middleware ...Middleware) {
	g.Handle(http.MethodGet, path, handler, middleware...)
}

func (g *RouteGroup) POST(path string, handler HandlerFunc, middleware ...Middleware) {
	g.Handle(http.MethodPost, path, handler, middleware...)
}

func (g *RouteGroup) PATCH(path string, handler HandlerFunc, middleware ...Middleware) {
	g.Handle(http.MethodPatch, path, handler, middleware...)
}

func (g *RouteGroup) DELETE(path string, handler HandlerFunc, middleware ...Middleware) {
	g.Handle(http.MethodDelete, path, handler, middleware...)
}
