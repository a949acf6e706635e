package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fluxorio/todos/pkg/core"
	"github.com/fluxorio/todos/pkg/web"
	"github.com/valyala/fasthttp"
)

// TimeoutConfig configures the request deadline middleware
type TimeoutConfig struct {
	// Timeout bounds the request context handed to handlers
	Timeout time.Duration

	// Logger receives a warning for every request that ran out of time
	Logger core.Logger

	// SkipPaths are path prefixes that run without a deadline
	SkipPaths []string
}

// DefaultTimeoutConfig returns a default timeout configuration
func DefaultTimeoutConfig(timeout time.Duration) TimeoutConfig {
	return TimeoutConfig{
		Timeout: timeout,
		Logger:  core.NewNopLogger(),
	}
}

// Timeout attaches a deadline to the request context. Storage calls made
// with ctx.Context() observe it. Pair it with TimeoutErrorHandler so that
// handlers failing with context.DeadlineExceeded are answered with 504.
func Timeout(config TimeoutConfig) web.FastMiddleware {
	if config.Timeout <= 0 {
		panic("Timeout: timeout duration must be positive")
	}

	logger := config.Logger
	if logger == nil {
		logger = core.NewNopLogger()
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			path := string(ctx.Path())
			for _, skip := range config.SkipPaths {
				if strings.HasPrefix(path, skip) {
					return next(ctx)
				}
			}

			parent := ctx.Context()
			deadline, cancel := context.WithTimeout(parent, config.Timeout)
			defer cancel()
			ctx.WithContext(deadline)
			defer ctx.WithContext(parent)

			err := next(ctx)
			if errors.Is(deadline.Err(), context.DeadlineExceeded) {
				logger.WithFields(map[string]interface{}{
					"request_id": ctx.RequestID(),
					"method":     string(ctx.Method()),
					"path":       path,
					"timeout":    config.Timeout.String(),
				}).Warn("request timed out")
			}
			return err
		}
	}
}

// TimeoutErrorHandler answers errors caused by an expired deadline with 504
// and message, and hands every other error to next
func TimeoutErrorHandler(message string, next web.ErrorHandler) web.ErrorHandler {
	if message == "" {
		message = "Request timeout"
	}
	if next == nil {
		next = web.DefaultErrorHandler
	}
	return func(ctx *web.FastRequestContext, err error) {
		if errors.Is(err, context.DeadlineExceeded) {
			ctx.Error(message, fasthttp.StatusGatewayTimeout)
			return
		}
		next(ctx, err)
	}
}
