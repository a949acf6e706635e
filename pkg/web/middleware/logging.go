package middleware

import (
	"time"

	"github.com/fluxorio/todos/pkg/core"
	"github.com/fluxorio/todos/pkg/web"
)

// Logging logs one line per request once the response status is known.
// 5xx responses log at error level, 4xx at warn, the rest at info.
func Logging(logger core.Logger) web.FastMiddleware {
	if logger == nil {
		logger = core.NewDefaultLogger()
	}

	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			start := time.Now()
			err := next(ctx)

			route := ctx.Route()
			if route == "" {
				route = string(ctx.Path())
			}
			status := ctx.StatusCode()
			kv := []interface{}{
				"method", string(ctx.Method()),
				"route", route,
				"status", status,
				"duration", time.Since(start),
				"request_id", ctx.RequestID(),
			}
			if err != nil {
				kv = append(kv, "err", err)
			}

			switch {
			case status >= 500 || err != nil:
				logger.Error(append([]interface{}{"request failed"}, kv...)...)
			case status >= 400:
				logger.Warn(append([]interface{}{"request rejected"}, kv...)...)
			default:
				logger.Info(append([]interface{}{"request"}, kv...)...)
			}
			return err
		}
	}
}
