package web

import (
	"sort"
	"strings"
	"sync"

	"github.com/valyala/fasthttp"
)

// FastRequestHandler handles fasthttp requests
type FastRequestHandler func(ctx *FastRequestContext) error

// FastMiddleware is middleware for fasthttp
type FastMiddleware func(handler FastRequestHandler) FastRequestHandler

// ErrorHandler renders an error returned by a handler
type ErrorHandler func(ctx *FastRequestContext, err error)

// Router matches method and path to handlers. Path segments starting with ":"
// are parameters. Middleware registered with Use wraps every request,
// including 404 and 405 responses.
type Router struct {
	routes       []*fastRoute
	middleware   []FastMiddleware
	errorHandler ErrorHandler
	mu           sync.RWMutex
}

type fastRoute struct {
	method  string
	path    string
	parts   []string
	handler FastRequestHandler
}

// NewRouter creates a new fasthttp router
func NewRouter() *Router {
	return &Router{
		routes:       make([]*fastRoute, 0),
		middleware:   make([]FastMiddleware, 0),
		errorHandler: DefaultErrorHandler,
	}
}

// DefaultErrorHandler answers 500 without leaking the error text
func DefaultErrorHandler(ctx *FastRequestContext, err error) {
	ctx.Error("Internal Server Error", fasthttp.StatusInternalServerError)
}

// SetErrorHandler replaces the handler used for errors returned by routes
func (r *Router) SetErrorHandler(h ErrorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h != nil {
		r.errorHandler = h
	}
}

// Use appends middleware; the first registered is the outermost
func (r *Router) Use(middleware ...FastMiddleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, middleware...)
}

func (r *Router) GETFast(path string, handler FastRequestHandler) {
	r.RouteFast(fasthttp.MethodGet, path, handler)
}

func (r *Router) POSTFast(path string, handler FastRequestHandler) {
	r.RouteFast(fasthttp.MethodPost, path, handler)
}

func (r *Router) PUTFast(path string, handler FastRequestHandler) {
	r.RouteFast(fasthttp.MethodPut, path, handler)
}

func (r *Router) PATCHFast(path string, handler FastRequestHandler) {
	r.RouteFast(fasthttp.MethodPatch, path, handler)
}

func (r *Router) DELETEFast(path string, handler FastRequestHandler) {
	r.RouteFast(fasthttp.MethodDelete, path, handler)
}

// RouteFast registers a fast handler
func (r *Router) RouteFast(method, path string, handler FastRequestHandler) {
	if handler == nil {
		panic("handler cannot be nil")
	}
	if !strings.HasPrefix(path, "/") {
		panic("route path must start with /: " + path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, &fastRoute{
		method:  method,
		path:    path,
		parts:   strings.Split(path, "/"),
		handler: handler,
	})
}

// Handler returns a fasthttp.RequestHandler serving this router
func (r *Router) Handler() fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		r.ServeFastHTTP(NewFastRequestContext(rc))
	}
}

// ServeFastHTTP routes one request through the middleware chain
func (r *Router) ServeFastHTTP(ctx *FastRequestContext) {
	r.mu.RLock()
	handler := r.resolve(ctx)
	errorHandler := r.errorHandler
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	r.mu.RUnlock()

	if err := handler(ctx); err != nil {
		errorHandler(ctx, err)
	}
}

// resolve picks the handler for the request and records the matched route.
// Errors from the route handler are rendered inside the chain so that
// middleware observes the final status code.
func (r *Router) resolve(ctx *FastRequestContext) FastRequestHandler {
	method := string(ctx.Method())
	pathParts := strings.Split(string(ctx.Path()), "/")

	var allowed []string
	for _, route := range r.routes {
		if !matchParts(route.parts, pathParts) {
			continue
		}
		if route.method != method && !(method == fasthttp.MethodHead && route.method == fasthttp.MethodGet) {
			allowed = append(allowed, route.method)
			continue
		}

		ctx.route = route.path
		extractParams(route.parts, pathParts, ctx.Params)
		h, errorHandler := route.handler, r.errorHandler
		return func(ctx *FastRequestContext) error {
			if err := h(ctx); err != nil {
				errorHandler(ctx, err)
			}
			return nil
		}
	}

	if len(allowed) > 0 {
		sort.Strings(allowed)
		allow := strings.Join(allowed, ", ")
		return func(ctx *FastRequestContext) error {
			ctx.RequestCtx.Response.Header.Set("Allow", allow)
			ctx.Error("Method Not Allowed", fasthttp.StatusMethodNotAllowed)
			return nil
		}
	}

	return func(ctx *FastRequestContext) error {
		ctx.Error("Not Found", fasthttp.StatusNotFound)
		return nil
	}
}

func matchParts(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}

	for i, part := range pattern {
		if strings.HasPrefix(part, ":") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if part != path[i] {
			return false
		}
	}

	return true
}

func extractParams(pattern, path []string, params map[string]string) {
	for i, part := range pattern {
		if strings.HasPrefix(part, ":") {
			params[strings.TrimPrefix(part, ":")] = path[i]
		}
	}
}
