package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/fluxorio/todos/pkg/core"
	"github.com/fluxorio/todos/pkg/web"
	"github.com/valyala/fasthttp"
)

// RecoveryConfig configures panic recovery middleware
type RecoveryConfig struct {
	// Logger is the logger to use for panic logging (default: core.NewDefaultLogger())
	Logger core.Logger

	// StackTrace logs the goroutine stack with the panic and exposes the panic
	// value in the response (use with caution in production)
	StackTrace bool
}

// DefaultRecoveryConfig returns a default recovery configuration
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Logger:     core.NewDefaultLogger(),
		StackTrace: false,
	}
}

// Recovery middleware recovers from panics and returns 500 error
func Recovery(config RecoveryConfig) web.FastMiddleware {
	logger := config.Logger
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}

				fields := map[string]interface{}{
					"request_id": ctx.RequestID(),
					"method":     string(ctx.Method()),
					"path":       string(ctx.Path()),
				}
				if config.StackTrace {
					fields["stack"] = string(debug.Stack())
				}
				logger.WithFields(fields).Errorf("panic recovered: %v", r)

				msg := "Internal Server Error"
				if config.StackTrace {
					msg = fmt.Sprintf("panic: %v", r)
				}
				ctx.RequestCtx.ResetBody()
				err = ctx.JSON(fasthttp.StatusInternalServerError, map[string]string{
					"error":      msg,
					"request_id": ctx.RequestID(),
				})
			}()

			return next(ctx)
		}
	}
}
