package otel

import (
	"github.com/fluxorio/todos/pkg/web"
	"github.com/valyala/fasthttp"
	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// FastHTTPTracingMiddleware starts a server span per request, continuing any
// trace found in the request headers, and hands the span context to the
// handler through FastRequestContext.Context().
func FastHTTPTracingMiddleware(tracer trace.Tracer) web.FastMiddleware {
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			parent := gotel.GetTextMapPropagator().Extract(ctx.Context(), headerCarrier{&ctx.RequestCtx.Request.Header})

			method := string(ctx.Method())
			name := method
			if route := ctx.Route(); route != "" {
				name += " " + route
			}

			spanCtx, span := tracer.Start(parent, name,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", method),
					attribute.String("url.path", string(ctx.Path())),
					attribute.String("http.route", ctx.Route()),
					attribute.String("request.id", ctx.RequestID()),
				),
			)
			defer span.End()

			ctx.WithContext(spanCtx)
			err := next(ctx)

			status := ctx.StatusCode()
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if err != nil {
				span.RecordError(err)
			}
			if status >= 500 || err != nil {
				span.SetStatus(codes.Error, fasthttp.StatusMessage(status))
			}
			return err
		}
	}
}

// headerCarrier adapts fasthttp request headers to propagation.TextMapCarrier
type headerCarrier struct {
	h *fasthttp.RequestHeader
}

var _ propagation.TextMapCarrier = headerCarrier{}

func (c headerCarrier) Get(key string) string {
	return string(c.h.Peek(key))
}

func (c headerCarrier) Set(key, value string) {
	c.h.Set(key, value)
}

func (c headerCarrier) Keys() []string {
	var keys []string
	c.h.VisitAll(func(k, _ []byte) {
		keys = append(keys, string(k))
	})
	return keys
}
