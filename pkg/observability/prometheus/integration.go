package prometheus

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/fluxorio/todos/pkg/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// unmatchedPath labels requests that matched no route, so arbitrary URLs
// cannot blow up label cardinality
const unmatchedPath = "unmatched"

// FastHTTPMetricsMiddleware creates middleware that records HTTP metrics.
// The path label is the matched route pattern. A nil m uses GetMetrics().
func FastHTTPMetricsMiddleware(m *Metrics) web.FastMiddleware {
	if m == nil {
		m = GetMetrics()
	}
	return func(next web.FastRequestHandler) web.FastRequestHandler {
		return func(ctx *web.FastRequestContext) error {
			start := time.Now()
			method := string(ctx.Method())
			requestSize := int64(len(ctx.RequestCtx.PostBody()))

			err := next(ctx)

			path := ctx.Route()
			if path == "" {
				path = unmatchedPath
			}
			status := ctx.StatusCode()
			if err != nil && status < 500 {
				status = 500
			}
			responseSize := int64(len(ctx.RequestCtx.Response.Body()))

			m.RecordHTTPRequest(method, path, strconv.Itoa(status), time.Since(start), requestSize, responseSize)
			return err
		}
	}
}

// Handler serves the gatherer's metrics in the Prometheus exposition format.
// A nil gatherer serves DefaultRegistry.
func Handler(gatherer prometheus.Gatherer) web.FastRequestHandler {
	if gatherer == nil {
		gatherer = DefaultRegistry
	}
	h := fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return func(ctx *web.FastRequestContext) error {
		h(ctx.RequestCtx)
		return nil
	}
}

// RegisterMetricsEndpoint registers Handler(gatherer) on router at path
func RegisterMetricsEndpoint(router *web.Router, path string, gatherer prometheus.Gatherer) {
	router.GETFast(path, Handler(gatherer))
}

// PoolStatsFunc returns the current connection pool statistics
type PoolStatsFunc func() sql.DBStats

// UpdatePoolStats copies one sample of pool statistics into m and returns
// the wait count seen, to be passed back as lastWaits next time.
func (m *Metrics) UpdatePoolStats(stats sql.DBStats, lastWaits int64) int64 {
	m.UpdateDatabasePool(stats.OpenConnections, stats.Idle, stats.InUse, stats.WaitCount-lastWaits)
	return stats.WaitCount
}

// RunPoolStatsUpdater samples pool statistics every interval until ctx is done
func (m *Metrics) RunPoolStatsUpdater(ctx context.Context, stats PoolStatsFunc, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastWaits := m.UpdatePoolStats(stats(), 0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lastWaits = m.UpdatePoolStats(stats(), lastWaits)
		}
	}
}
