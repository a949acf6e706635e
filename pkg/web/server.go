package web

import (
	"context"
	"net"
	"time"

	"github.com/fluxorio/todos/pkg/core"
	"github.com/fluxorio/todos/pkg/core/failfast"
	"github.com/valyala/fasthttp"
)

// ServerConfig configures the fasthttp server
type ServerConfig struct {
	Addr               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	MaxRequestBodySize int
	Name               string
}

// DefaultServerConfig returns defaults suited to a small JSON API
func DefaultServerConfig(addr string) ServerConfig {
	return ServerConfig{
		Addr:               addr,
		ReadTimeout:        10 * time.Second,
		WriteTimeout:       10 * time.Second,
		IdleTimeout:        60 * time.Second,
		MaxRequestBodySize: 1 << 20,
		Name:               "todos",
	}
}

// Server runs a Router on fasthttp
type Server struct {
	router *Router
	server *fasthttp.Server
	addr   string
	logger core.Logger
}

// NewServer creates a server for router. logger may be nil.
func NewServer(config ServerConfig, router *Router, logger core.Logger) *Server {
	failfast.NotNil(router, "router")
	if logger == nil {
		logger = core.NewNopLogger()
	}

	s := &Server{
		router: router,
		addr:   config.Addr,
		logger: logger,
	}
	s.server = &fasthttp.Server{
		Handler:               router.Handler(),
		Name:                  config.Name,
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		IdleTimeout:           config.IdleTimeout,
		MaxRequestBodySize:    config.MaxRequestBodySize,
		NoDefaultServerHeader: config.Name == "",
		Logger:                fasthttpLogger{logger},
	}
	return s
}

// Router returns the router
func (s *Server) Router() *Router {
	return s.router
}

// Handler returns the request handler, for tests and embedding
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.server.Handler
}

// Addr returns the configured listen address
func (s *Server) Addr() string {
	return s.addr
}

// Start listens on the configured address and blocks until Stop
func (s *Server) Start() error {
	if s.addr == "" {
		return &core.Error{Code: "INVALID_CONFIG", Message: "server address cannot be empty"}
	}
	s.logger.Info("http server listening", "addr", s.addr)
	return s.server.ListenAndServe(s.addr)
}

// Serve accepts connections from ln and blocks until Stop
func (s *Server) Serve(ln net.Listener) error {
	failfast.NotNil(ln, "listener")
	return s.server.Serve(ln)
}

// Stop stops accepting connections and waits for in-flight requests,
// giving up when ctx is done.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.ShutdownWithContext(ctx); err != nil {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// fasthttpLogger routes fasthttp's internal messages to core.Logger
type fasthttpLogger struct {
	logger core.Logger
}

func (l fasthttpLogger) Printf(format string, args ...interface{}) {
	l.logger.Warnf(format, args...)
}
