// Package app assembles the todos service from its configuration: storage,
// observability, change events, the todo routes and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/fluxorio/todos/pkg/core"
	"github.com/fluxorio/todos/pkg/db"
	"github.com/fluxorio/todos/pkg/events"
	"github.com/fluxorio/todos/pkg/observability/otel"
	"github.com/fluxorio/todos/pkg/observability/prometheus"
	"github.com/fluxorio/todos/pkg/todo"
	"github.com/fluxorio/todos/pkg/web"
	"github.com/fluxorio/todos/pkg/web/middleware"
	"github.com/fluxorio/todos/pkg/web/middleware/security"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
)

// ServiceName names the service in logs, metrics, spans and the Server header
const ServiceName = "todos"

// App is a wired todos service
type App struct {
	cfg    Config
	logger core.Logger

	pool      *db.Pool
	tracing   *otel.Provider
	metrics   *prometheus.Metrics
	gatherer  promclient.Gatherer
	registry  *promclient.Registry
	publisher events.Publisher
	service   *todo.Service
	router    *web.Router
	server    *web.Server

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
	stopErr  error
}

// Option customizes New
type Option func(*App)

// WithLogger replaces the logger built from Config.Log
func WithLogger(logger core.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithRegistry registers metrics on reg instead of the process-wide registry
func WithRegistry(reg *promclient.Registry) Option {
	return func(a *App) { a.registry = reg }
}

// WithPublisher sends change events to p instead of the configured broker
func WithPublisher(p events.Publisher) Option {
	return func(a *App) { a.publisher = p }
}

// New builds the service. Resources acquired before a failure are released.
func New(ctx context.Context, cfg Config, opts ...Option) (_ *App, err error) {
	a := &App{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = core.NewLogger(os.Stderr, cfg.Log)
	}

	defer func() {
		if err != nil {
			a.release(context.Background())
		}
	}()

	if a.tracing, err = otel.Initialize(ctx, cfg.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if a.pool, err = openPool(cfg.Database); err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		applied, err := db.Migrate(ctx, a.pool, todo.Migrations())
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			a.logger.Info("applied migrations", "versions", applied)
		}
	}

	if cfg.Metrics.Enabled {
		a.initMetrics()
		a.pool.Observe(a.metrics)
	}

	if a.publisher == nil && cfg.Events.Enabled {
		nats, err := events.NewNATSPublisher(events.NATSConfig{
			URL:            cfg.Events.URL,
			Prefix:         cfg.Events.Prefix,
			Name:           ServiceName,
			ConnectTimeout: cfg.Events.ConnectTimeout,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.publisher = nats
	}

	repo := todo.NewSQLRepository(a.pool, todo.WithTracer(a.tracing.Tracer(ServiceName+"/repository")))
	serviceOpts := []todo.ServiceOption{todo.WithLogger(a.logger)}
	if a.publisher != nil {
		serviceOpts = append(serviceOpts, todo.WithNotifier(a.publisher))
	}
	if a.metrics != nil {
		serviceOpts = append(serviceOpts, todo.WithMetrics(a.metrics))
	}
	a.service = todo.NewService(repo, serviceOpts...)

	a.router = a.newRouter()
	a.server = web.NewServer(web.ServerConfig{
		Addr:               cfg.Server.Addr,
		ReadTimeout:        cfg.Server.ReadTimeout,
		WriteTimeout:       cfg.Server.WriteTimeout,
		IdleTimeout:        cfg.Server.IdleTimeout,
		MaxRequestBodySize: cfg.Server.MaxRequestBodySize,
		Name:               ServiceName,
	}, a.router, a.logger)

	return a, nil
}

func openPool(cfg DatabaseConfig) (*db.Pool, error) {
	poolConfig := db.DefaultPoolConfig(cfg.DSN, cfg.Driver)
	poolConfig.MaxOpenConns = cfg.MaxOpenConns
	poolConfig.MaxIdleConns = cfg.MaxIdleConns
	poolConfig.ConnMaxLifetime = cfg.ConnMaxLifetime
	poolConfig.ConnMaxIdleTime = cfg.ConnMaxIdleTime

	pool, err := db.NewPool(poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return pool, nil
}

func (a *App) initMetrics() {
	if a.registry == nil {
		a.metrics = prometheus.GetMetrics()
		a.gatherer = prometheus.DefaultRegistry
		return
	}
	a.metrics = prometheus.NewMetrics(promclient.WrapRegistererWith(promclient.Labels{"service": ServiceName}, a.registry))
	a.gatherer = a.registry
}

// newRouter registers every route. Middleware order, outermost first:
// request log, metrics, tracing, security headers, deadline, panic recovery.
func (a *App) newRouter() *web.Router {
	r := web.NewRouter()
	r.SetErrorHandler(middleware.TimeoutErrorHandler("Request timeout", a.renderError))

	r.Use(middleware.Logging(a.logger))
	if a.metrics != nil {
		r.Use(prometheus.FastHTTPMetricsMiddleware(a.metrics))
	}
	if a.tracing.Enabled() {
		r.Use(otel.FastHTTPTracingMiddleware(a.tracing.Tracer(ServiceName + "/http")))
	}
	var untimed []string
	if a.metrics != nil {
		untimed = append(untimed, a.cfg.Metrics.Path)
	}
	r.Use(
		security.Headers(security.DefaultHeadersConfig()),
		middleware.Timeout(middleware.TimeoutConfig{
			Timeout:   a.cfg.Server.RequestTimeout,
			Logger:    a.logger,
			SkipPaths: untimed,
		}),
		middleware.Recovery(middleware.RecoveryConfig{Logger: a.logger}),
	)

	r.GETFast("/health", a.health)
	r.GETFast("/ready", a.ready)
	if a.metrics != nil {
		prometheus.RegisterMetricsEndpoint(r, a.cfg.Metrics.Path, a.gatherer)
	}
	todo.NewHandler(a.service, a.logger).Register(r)
	return r
}

// renderError answers unexpected handler errors with a bare 500 and keeps
// the details in the log
func (a *App) renderError(ctx *web.FastRequestContext, err error) {
	a.logger.Error("unhandled error",
		"method", string(ctx.Method()),
		"route", ctx.Route(),
		"request_id", ctx.RequestID(),
		"err", err,
	)
	web.DefaultErrorHandler(ctx, err)
}

func (a *App) health(ctx *web.FastRequestContext) error {
	return ctx.JSON(fasthttp.StatusOK, map[string]interface{}{
		"status":  "UP",
		"service": ServiceName,
	})
}

func (a *App) ready(ctx *web.FastRequestContext) error {
	if err := a.pool.Ping(ctx.Context()); err != nil {
		a.logger.Warn("readiness check failed", "request_id", ctx.RequestID(), "err", err)
		return ctx.JSON(fasthttp.StatusServiceUnavailable, map[string]interface{}{
			"ready": false,
			"db":    false,
		})
	}
	return ctx.JSON(fasthttp.StatusOK, map[string]interface{}{
		"ready": true,
		"db":    true,
	})
}

// Router returns the configured router
func (a *App) Router() *web.Router { return a.router }

// Handler returns the fasthttp handler serving every route
func (a *App) Handler() fasthttp.RequestHandler { return a.router.Handler() }

// Service returns the todo service
func (a *App) Service() *todo.Service { return a.service }

// Pool returns the database pool
func (a *App) Pool() *db.Pool { return a.pool }

// Start listens on the configured address and blocks until Stop
func (a *App) Start() error {
	a.startBackground()
	return a.server.Start()
}

// Serve accepts connections on ln and blocks until Stop
func (a *App) Serve(ln net.Listener) error {
	a.startBackground()
	a.logger.Info("todos listening", "addr", ln.Addr().String(), "driver", a.cfg.Database.Driver)
	return a.server.Serve(ln)
}

func (a *App) startBackground() {
	if a.metrics == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.metrics.RunPoolStatsUpdater(ctx, a.pool.Stats, a.cfg.Metrics.PoolStatsInterval)
	}()
}

// Stop shuts the server down gracefully, then releases the broker
// connection, flushes spans and closes the pool. It is safe to call twice.
func (a *App) Stop(ctx context.Context) error {
	a.stopOnce.Do(func() {
		var errs []error
		if err := a.server.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop server: %w", err))
		}
		if err := a.release(ctx); err != nil {
			errs = append(errs, err)
		}
		a.stopErr = errors.Join(errs...)
	})
	return a.stopErr
}

func (a *App) release(ctx context.Context) error {
	var errs []error
	if a.cancel != nil {
		a.cancel()
		a.wg.Wait()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		}
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Migrate applies pending migrations to the configured database and returns
// the versions applied
func Migrate(ctx context.Context, cfg DatabaseConfig) ([]int64, error) {
	pool, err := openPool(cfg)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	return db.Migrate(ctx, pool, todo.Migrations())
}
