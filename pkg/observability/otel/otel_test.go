package otel

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fluxorio/todos/pkg/web"
	"github.com/valyala/fasthttp"
	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestNewProvider_Exporters(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		enabled bool
		wantErr bool
	}{
		{"none", Config{Exporter: ExporterNone}, false, false},
		{"empty", Config{}, false, false},
		{"stdout", Config{Exporter: ExporterStdout, Writer: &bytes.Buffer{}}, true, false},
		{"zipkin", Config{Exporter: ExporterZipkin, Endpoint: "http://localhost:9411/api/v2/spans"}, true, false},
		{"zipkin without endpoint", Config{Exporter: ExporterZipkin}, false, true},
		{"jaeger", Config{Exporter: ExporterJaeger, Endpoint: "http://localhost:14268/api/traces"}, true, false},
		{"jaeger without endpoint", Config{Exporter: "JAEGER"}, false, true},
		{"unknown", Config{Exporter: "carrier-pigeon"}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.ServiceName = "todos"
			p, err := NewProvider(context.Background(), tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if p.Enabled() != tt.enabled {
				t.Errorf("Enabled() = %v, want %v", p.Enabled(), tt.enabled)
			}
			if p.Tracer("test") == nil {
				t.Error("Tracer() returned nil")
			}
			if err := p.Shutdown(context.Background()); err != nil {
				t.Errorf("Shutdown() error = %v", err)
			}
		})
	}
}

func TestStdoutExporterWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig("todos")
	cfg.Exporter = ExporterStdout
	cfg.Environment = "test"
	cfg.Writer = &buf

	p, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	_, span := p.Tracer("test").Start(context.Background(), "todos.FindAll")
	span.End()
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "todos.FindAll") || !strings.Contains(out, "deployment.environment") {
		t.Errorf("stdout exporter output missing span data: %s", out)
	}
}

func TestNilProviderIsNoop(t *testing.T) {
	var p *Provider
	if p.Enabled() {
		t.Error("nil provider should be disabled")
	}
	_, span := p.Tracer("x").Start(context.Background(), "op")
	if span.SpanContext().IsValid() {
		t.Error("noop tracer produced a valid span context")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func newRecorder() (*tracetest.SpanRecorder, trace.Tracer) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, tp.Tracer("test")
}

func attr(span sdktrace.ReadOnlySpan, key string) attribute.Value {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value
		}
	}
	return attribute.Value{}
}

func TestFastHTTPTracingMiddleware(t *testing.T) {
	gotel.SetTextMapPropagator(propagation.TraceContext{})
	sr, tracer := newRecorder()

	var handlerSpan trace.SpanContext
	r := web.NewRouter()
	r.Use(FastHTTPTracingMiddleware(tracer))
	r.GETFast("/todos/:id", func(ctx *web.FastRequestContext) error {
		handlerSpan = trace.SpanContextFromContext(ctx.Context())
		return ctx.JSON(200, map[string]string{"ok": "yes"})
	})
	r.POSTFast("/todos", func(ctx *web.FastRequestContext) error {
		return errors.New("insert failed")
	})

	var req fasthttp.Request
	req.SetRequestURI("/todos/3")
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rc := &fasthttp.RequestCtx{}
	rc.Init(&req, nil, nil)
	r.Handler()(rc)

	var failReq fasthttp.Request
	failReq.Header.SetMethod("POST")
	failReq.SetRequestURI("/todos")
	frc := &fasthttp.RequestCtx{}
	frc.Init(&failReq, nil, nil)
	r.Handler()(frc)

	spans := sr.Ended()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}

	get := spans[0]
	if get.Name() != "GET /todos/:id" {
		t.Errorf("span name = %q", get.Name())
	}
	if get.SpanKind() != trace.SpanKindServer {
		t.Errorf("span kind = %v", get.SpanKind())
	}
	if got := get.SpanContext().TraceID().String(); got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace id = %s, want the propagated one", got)
	}
	if !handlerSpan.Equal(get.SpanContext()) {
		t.Error("handler context does not carry the request span")
	}
	if attr(get, "http.response.status_code").AsInt64() != 200 {
		t.Errorf("status attribute = %v", attr(get, "http.response.status_code"))
	}
	if get.Status().Code == codes.Error {
		t.Error("200 response marked as error")
	}

	post := spans[1]
	if post.Name() != "POST /todos" {
		t.Errorf("span name = %q", post.Name())
	}
	if post.Status().Code != codes.Error {
		t.Errorf("500 response status = %v, want Error", post.Status())
	}
	if attr(post, "http.response.status_code").AsInt64() != 500 {
		t.Errorf("status attribute = %v", attr(post, "http.response.status_code"))
	}
}

func TestHeaderCarrier(t *testing.T) {
	var h fasthttp.RequestHeader
	c := headerCarrier{&h}
	c.Set("traceparent", "abc")
	if c.Get("traceparent") != "abc" {
		t.Errorf("Get() = %q", c.Get("traceparent"))
	}
	found := false
	for _, k := range c.Keys() {
		if strings.EqualFold(k, "traceparent") {
			found = true
		}
	}
	if !found {
		t.Errorf("Keys() = %v", c.Keys())
	}
}
