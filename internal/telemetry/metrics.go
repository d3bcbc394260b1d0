// Package telemetry provides application-level observability for the webhook relay.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// automatically available on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<HKR_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090.  The endpoint returns data in the Prometheus text exposition
// format (Content-Type: text/plain; version=0.0.4) and is intended to be scraped by
// a Prometheus server every 15 to 60 seconds. It is not served by the Gin router, so
// the public listener never exposes it.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Token issuance and validation counters
//   - Webhook dispatch counters and latency histogram
//   - Rate limiter rejection counters
//   - Database connection pool gauges (sampled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /webhook/:id/call)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments such as webhook IDs.
//
// # Usage
//
// Import the package for side effects so metrics are registered before the HTTP server
// starts listening:
//
//	import _ "github.com/hookrelay/hookrelay/internal/telemetry"
//
// Or import it directly and use an exported var:
//
//	telemetry.WebhookDispatchTotal.WithLabelValues("2xx").Inc()
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics: labelled by method, route template, and status code.
//
// HTTPRequestsTotal is a CounterVec with labels {method, path, status}.
// The path label holds the Gin route template (e.g. /webhook/:id/call),
// NOT the raw URL, to prevent unbounded cardinality.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - Requests by route:                 sum by (path) (rate(http_requests_total[5m]))
//
// HTTPRequestDuration is a HistogramVec with labels {method, path} and exponential-ish
// buckets from 5 ms to 30 s.  Use histogram_quantile to compute latency percentiles.
//
// HTTPRequestsInFlight is a Gauge of requests currently inside the handler chain.
//
// Example PromQL queries:
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
//   - Average latency:                   rate(http_request_duration_seconds_sum[5m]) / rate(http_request_duration_seconds_count[5m])
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being served, probes excluded.",
		},
	)
)

// Token metrics: recorded by the issuer and validator in internal/auth.
//
// TokensIssuedTotal is a CounterVec with label {kind}: "expiring" for ten-minute
// credentials with a refresh token, "non_expiring" for credentials carrying the call scope.
//
// TokenValidationsTotal is a CounterVec with label {result}: admitted, invalid,
// not_found, expired, revoked, or error (store failure).
//
// ScopeDenialsTotal is a CounterVec with label {scope}: the first scope a valid
// credential lacked for the route it called.
//
// Example PromQL queries:
//   - Rejection ratio:  sum(rate(token_validations_total{result!="admitted"}[5m])) / sum(rate(token_validations_total[5m]))
//   - Revoked tokens still being presented:  rate(token_validations_total{result="revoked"}[1h])
var (
	TokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Total number of access tokens issued, by kind.",
		},
		[]string{"kind"},
	)

	TokenValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_validations_total",
			Help: "Total number of bearer token validations, by result.",
		},
		[]string{"result"},
	)

	ScopeDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scope_denials_total",
			Help: "Total number of authenticated requests refused for a missing scope, by scope.",
		},
		[]string{"scope"},
	)
)

// Webhook dispatch metrics: recorded by the dispatcher in internal/webhooks.
//
// WebhookDispatchTotal is a CounterVec with label {outcome}: "2xx".."5xx" for completed
// exchanges (grouped by status class) and "transport_error" when no response arrived.
// Non-2xx classes are not failures of the dispatcher; they are the target's answer.
//
// WebhookDispatchDuration is a Histogram of the outbound round trip, including the
// time to read the response body.
//
// Example PromQL queries:
//   - Transport failure rate:  rate(webhook_dispatch_total{outcome="transport_error"}[5m])
//   - p95 target latency:      histogram_quantile(0.95, rate(webhook_dispatch_duration_seconds_bucket[5m]))
var (
	WebhookDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_dispatch_total",
			Help: "Total number of webhook dispatches, by outcome.",
		},
		[]string{"outcome"},
	)

	WebhookDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_dispatch_duration_seconds",
			Help:    "Duration of outbound webhook requests.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
)

// RateLimitRejectionsTotal is a CounterVec with label {backend} ("memory" or "redis")
// incremented whenever a request is refused with 429.
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter, by backend.",
	},
	[]string{"backend"},
)

// BackgroundPanicsTotal counts panics recovered in goroutines started through safego,
// labelled by task name.
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "background_panics_total",
		Help: "Total number of panics recovered in background goroutines, by task.",
	},
	[]string{"task"},
)

// Database pool gauges, sampled by StartDBStatsCollector rather than per request.
//
// DBOpenConnections is the pool's open connection count. DBConnections splits it by
// {state}: "in_use" or "idle". DBWaitCount is the cumulative number of times a caller
// had to wait for a free connection.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <HKR_DATABASE_MAX_CONNECTIONS> * 100
//   - Pool starvation:      rate(db_wait_count[5m]) > 0
var (
	DBOpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_open_connections",
			Help: "Current number of open database connections in the pool.",
		},
	)

	DBConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_connections",
			Help: "Current number of database connections in the pool, by state.",
		},
		[]string{"state"},
	)

	DBWaitCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_wait_count",
			Help: "Total number of connections waited for since the pool was opened.",
		},
	)
)

// DBStatsInterval is how often StartDBStatsCollector samples the pool.
const DBStatsInterval = 30 * time.Second

// StartDBStatsCollector samples db.Stats every DBStatsInterval until ctx is done
// or the database stops answering pings.
func StartDBStatsCollector(ctx context.Context, db *sql.DB) {
	go func() {
		ticker := time.NewTicker(DBStatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := db.PingContext(ctx); err != nil {
				if ctx.Err() == nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				}
				return
			}
			RecordDBStats(db.Stats())
		}
	}()
}

// RecordDBStats copies one pool snapshot into the gauges.
func RecordDBStats(st sql.DBStats) {
	DBOpenConnections.Set(float64(st.OpenConnections))
	DBConnections.WithLabelValues("in_use").Set(float64(st.InUse))
	DBConnections.WithLabelValues("idle").Set(float64(st.Idle))
	DBWaitCount.Set(float64(st.WaitCount))
}
