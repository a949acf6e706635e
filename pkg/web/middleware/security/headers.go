package security

import (
	"sort"
	"strconv"

	"github.com/fluxorio/todos/pkg/web"
)

// HeadersConfig configures security headers
type HeadersConfig struct {
	// HSTS (HTTP Strict Transport Security); max age in seconds, 0 disables
	HSTSMaxAge     int
	HSTSIncludeSub bool

	// CSP (Content Security Policy)
	CSP string

	// X-Frame-Options: DENY or SAMEORIGIN
	XFrameOptions string

	// X-Content-Type-Options: nosniff
	XContentTypeOptions bool

	ReferrerPolicy            string
	CrossOriginResourcePolicy string

	// Cache-Control for API responses, e.g. "no-store"
	CacheControl string

	// Custom headers
	CustomHeaders map[string]string
}

// DefaultHeadersConfig returns headers suited to a JSON API that never serves HTML
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		HSTSMaxAge:                31536000, // 1 year
		HSTSIncludeSub:            true,
		CSP:                       "default-src 'none'; frame-ancestors 'none'",
		XFrameOptions:             "DENY",
		XContentTypeOptions:       true,
		ReferrerPolicy:            "no-referrer",
		CrossOriginResourcePolicy: "same-origin",
		CacheControl:              "no-store",
	}
}

// Pairs returns the configured headers as name/value pairs, sorted by name
func (c HeadersConfig) Pairs() [][2]string {
	var pairs [][2]string
	add := func(name, value string) {
		if value != "" {
			pairs = append(pairs, [2]string{name, value})
		}
	}

	if c.HSTSMaxAge > 0 {
		hsts := "max-age=" + strconv.Itoa(c.HSTSMaxAge)
		if c.HSTSIncludeSub {
			hsts += "; includeSubDomains"
		}
		add("Strict-Transport-Security", hsts)
	}
	add("Content-Security-Policy", c.CSP)
	add("X-Frame-Options", c.XFrameOptions)
	if c.XContentTypeOptions {
		add("X-Content-Type-Options", "nosniff")
	}
	add("Referrer-Policy", c.ReferrerPolicy)
	add("Cross-Origin-Resource-Policy", c.CrossOriginResourcePolicy)
	add("Cache-Control", c.CacheControl)
	for name, value := range c.CustomHeaders {
		add(name, value)
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs
}

// Headers middleware adds security headers to responses
func Headers(config HeadersConfig) web.FastMiddleware {
	pairs := config.Pairs()
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			for _, p := range pairs {
				ctx.RequestCtx.Response.Header.Set(p[0], p[1])
			}
			return next(ctx)
		}
	}
}
