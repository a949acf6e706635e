// Package otel configures OpenTelemetry tracing for the service: exporter
// selection, sampling, the global provider and the HTTP tracing middleware.
package otel

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted by Config.Exporter
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterZipkin = "zipkin"
	ExporterJaeger = "jaeger"
)

// Config configures tracing
type Config struct {
	ServiceName    string  `yaml:"service_name" json:"service_name" toml:"service_name"`
	ServiceVersion string  `yaml:"service_version" json:"service_version" toml:"service_version"`
	Environment    string  `yaml:"environment" json:"environment" toml:"environment"`
	Exporter       string  `yaml:"exporter" json:"exporter" toml:"exporter"`
	Endpoint       string  `yaml:"endpoint" json:"endpoint" toml:"endpoint"`
	SampleRate     float64 `yaml:"sample_rate" json:"sample_rate" toml:"sample_rate"`

	// Writer receives spans for the stdout exporter (default os.Stdout)
	Writer io.Writer `yaml:"-" json:"-" toml:"-"`
}

// DefaultConfig returns tracing disabled
func DefaultConfig(serviceName string) Config {
	return Config{
		ServiceName: serviceName,
		Exporter:    ExporterNone,
		SampleRate:  1.0,
	}
}

// Provider owns the tracer provider, if any
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Initialize builds a Provider from cfg and installs it as the global tracer
// provider together with W3C trace-context and baggage propagation.
// With the none exporter it returns a Provider whose tracers are no-ops.
func Initialize(ctx context.Context, cfg Config) (*Provider, error) {
	p, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if p.tp != nil {
		gotel.SetTracerProvider(p.tp)
	}
	gotel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

// NewProvider builds a Provider without touching global state
func NewProvider(ctx context.Context, cfg Config, opts ...sdktrace.TracerProviderOption) (*Provider, error) {
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		return &Provider{}, nil
	}

	rate := cfg.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1.0
	}

	base := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(cfg)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}
	return &Provider{tp: sdktrace.NewTracerProvider(append(base, opts...)...)}, nil
}

func newResource(cfg Config) *resource.Resource {
	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, attribute.String("deployment.environment", cfg.Environment))
	}
	return resource.NewSchemaless(attrs...)
}

func newExporter(cfg Config) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterZipkin:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("zipkin exporter requires an endpoint")
		}
		return zipkin.New(cfg.Endpoint)
	case ExporterJaeger:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("jaeger exporter requires an endpoint")
		}
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(cfg.Endpoint)))
	default:
		return nil, fmt.Errorf("unknown trace exporter %q", cfg.Exporter)
	}
}

// Enabled reports whether spans are exported
func (p *Provider) Enabled() bool {
	return p != nil && p.tp != nil
}

// Tracer returns a named tracer, a no-op one when tracing is disabled
func (p *Provider) Tracer(name string) trace.Tracer {
	if !p.Enabled() {
		return noop.NewTracerProvider().Tracer(name)
	}
	return p.tp.Tracer(name)
}

// Shutdown flushes pending spans and stops the exporter
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}
