package web

import (
	"context"
	"fmt"

	"github.com/fluxorio/todos/pkg/core"
	"github.com/valyala/fasthttp"
)

// FastRequestContext wraps fasthttp RequestCtx with the request id, matched
// route and a context.Context that flows into services and storage.
type FastRequestContext struct {
	RequestCtx *fasthttp.RequestCtx
	Params     map[string]string
	requestID  string
	route      string
	ctx        context.Context
	data       map[string]interface{}
}

// NewFastRequestContext wraps rc, taking the request id from the X-Request-ID
// header or generating one, and echoing it on the response.
func NewFastRequestContext(rc *fasthttp.RequestCtx) *FastRequestContext {
	requestID := string(rc.Request.Header.Peek(core.RequestIDHeader))
	if requestID == "" {
		requestID = core.GenerateRequestID()
	}
	rc.Response.Header.Set(core.RequestIDHeader, requestID)

	return &FastRequestContext{
		RequestCtx: rc,
		Params:     make(map[string]string),
		requestID:  requestID,
		ctx:        core.WithRequestID(context.Background(), requestID),
	}
}

// JSON writes JSON response (default format) - fail-fast
func (c *FastRequestContext) JSON(statusCode int, data interface{}) error {
	if statusCode < 100 || statusCode > 599 {
		return fmt.Errorf("invalid status code: %d", statusCode)
	}

	jsonData, err := core.JSONEncode(data)
	if err != nil {
		return fmt.Errorf("json encode error: %w", err)
	}

	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("application/json")
	c.RequestCtx.SetBody(jsonData)
	return nil
}

// BindJSON binds JSON request body to a struct - fail-fast
func (c *FastRequestContext) BindJSON(v interface{}) error {
	if v == nil {
		return fmt.Errorf("cannot bind to nil value")
	}

	body := c.RequestCtx.PostBody()
	if len(body) == 0 {
		return fmt.Errorf("empty request body")
	}

	return core.JSONDecode(body, v)
}

// Body returns the raw request body
func (c *FastRequestContext) Body() []byte {
	return c.RequestCtx.PostBody()
}

// Text writes text response
func (c *FastRequestContext) Text(statusCode int, text string) error {
	c.RequestCtx.SetStatusCode(statusCode)
	c.RequestCtx.SetContentType("text/plain")
	c.RequestCtx.SetBodyString(text)
	return nil
}

// NoContent writes a status with an empty body
func (c *FastRequestContext) NoContent(statusCode int) error {
	c.RequestCtx.ResetBody()
	c.RequestCtx.SetStatusCode(statusCode)
	return nil
}

// Error writes {"error": msg} with the given status
func (c *FastRequestContext) Error(msg string, statusCode int) {
	if err := c.JSON(statusCode, map[string]string{"error": msg}); err != nil {
		c.RequestCtx.Error(msg, statusCode)
	}
}

// Query returns query parameter value
func (c *FastRequestContext) Query(key string) string {
	return string(c.RequestCtx.QueryArgs().Peek(key))
}

// HasQuery reports whether the query string carries key
func (c *FastRequestContext) HasQuery(key string) bool {
	return c.RequestCtx.QueryArgs().Has(key)
}

// Param returns path parameter value
func (c *FastRequestContext) Param(key string) string {
	return c.Params[key]
}

// Method returns HTTP method
func (c *FastRequestContext) Method() []byte {
	return c.RequestCtx.Method()
}

// Path returns request path
func (c *FastRequestContext) Path() []byte {
	return c.RequestCtx.Path()
}

// StatusCode returns the response status written so far
func (c *FastRequestContext) StatusCode() int {
	return c.RequestCtx.Response.StatusCode()
}

// RequestID returns the request ID for this request
func (c *FastRequestContext) RequestID() string {
	return c.requestID
}

// Route returns the pattern of the matched route (e.g. /todos/:id), or ""
// when no route matched. Metrics and spans use it to keep label cardinality low.
func (c *FastRequestContext) Route() string {
	return c.route
}

// Context returns the request's context.Context. It carries the request id
// and whatever middleware attached (e.g. the active span).
func (c *FastRequestContext) Context() context.Context {
	if c.ctx == nil {
		return core.WithRequestID(context.Background(), c.requestID)
	}
	return c.ctx
}

// WithContext replaces the request's context.Context
func (c *FastRequestContext) WithContext(ctx context.Context) {
	if ctx != nil {
		c.ctx = ctx
	}
}

// Set stores a value for the lifetime of the request
func (c *FastRequestContext) Set(key string, value interface{}) {
	if c.data == nil {
		c.data = make(map[string]interface{})
	}
	c.data[key] = value
}

// Get returns a value stored with Set
func (c *FastRequestContext) Get(key string) interface{} {
	return c.data[key]
}
