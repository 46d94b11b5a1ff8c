package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ag2api-go/internal/monitoring"
)

// HTTPMetrics records request counters and latencies for every route.
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		monitoring.HTTPInFlight.Inc()

		c.Next()

		monitoring.HTTPInFlight.Dec()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		class := monitoring.StatusClass(c.Writer.Status())
		monitoring.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, class).Inc()
		monitoring.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, class).
			Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler exposes Prometheus metrics via the standard promhttp handler.
func MetricsHandler(c *gin.Context) {
	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}
