package events

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxorio/todos/pkg/core"
	"github.com/nats-io/nats.go"
	gotel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// NATSConfig configures the NATS publisher
type NATSConfig struct {
	// URL is the NATS server URL, e.g. "nats://127.0.0.1:4222"
	URL string

	// Prefix is prepended to all subjects. Default: "todos".
	Prefix string

	// Name is an optional NATS connection name
	Name string

	// ConnectTimeout bounds the initial dial. Default: 2s.
	ConnectTimeout time.Duration
}

// NATSPublisher publishes JSON events on <prefix>.<topic>
type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
	logger core.Logger
}

// NewNATSPublisher connects to NATS. logger may be nil.
func NewNATSPublisher(cfg NATSConfig, logger core.Logger) (*NATSPublisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "todos"
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = core.NewNopLogger()
	}

	opts := []nats.Option{
		nats.Timeout(timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}

	return &NATSPublisher{nc: nc, prefix: prefix, logger: logger}, nil
}

// Subject returns the NATS subject used for topic
func (p *NATSPublisher) Subject(topic string) string {
	return p.prefix + "." + topic
}

// Publish encodes body as JSON and publishes it. The request id and trace
// context from ctx travel as message headers.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, body interface{}) error {
	if err := ValidateTopic(topic); err != nil {
		return err
	}
	data, err := core.JSONEncode(body)
	if err != nil {
		return err
	}

	msg := &nats.Msg{
		Subject: p.Subject(topic),
		Data:    data,
		Header:  nats.Header{},
	}
	if rid := core.GetRequestID(ctx); rid != "" {
		msg.Header.Set(core.RequestIDHeader, rid)
	}
	gotel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// Close drains pending messages and closes the connection
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
