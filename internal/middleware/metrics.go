// Package middleware provides the Gin middleware of the webhook relay API: request
// IDs, metrics, logging, CORS-adjacent security headers, bearer authentication,
// scope checks, rate limiting and audit. All of it is registered in
// internal/api/router.go.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hookrelay/hookrelay/internal/telemetry"
)

// noRouteLabel replaces the path label of requests that matched no route
const noRouteLabel = "<no-route>"

// MetricsMiddleware records http_requests_total, http_request_duration_seconds and
// http_requests_in_flight. The path label is the matched route template
// (/webhook/:id/call), never the raw URL, so webhook IDs do not become labels.
//
// Paths listed in skip (typically the /health and /ready probes) are served
// without being measured.
//
// Register it after gin.Recovery and RequestIDMiddleware so statuses written by
// recovered panics are captured.
func MetricsMiddleware(skip ...string) gin.HandlerFunc {
	skipped := make(map[string]bool, len(skip))
	for _, p := range skip {
		skipped[p] = true
	}

	return func(c *gin.Context) {
		if skipped[c.FullPath()] {
			c.Next()
			return
		}

		telemetry.HTTPRequestsInFlight.Inc()
		defer telemetry.HTTPRequestsInFlight.Dec()

		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = noRouteLabel
		}
		method := c.Request.Method

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
