package middleware

import (
	"strconv"
	"time"

	"github.com/MacJediWizard/tenancy/internal/metrics"
	"github.com/gin-gonic/gin"
)

// HTTPMetrics records the latency of every request by matched route.
func HTTPMetrics(m *metrics.PrometheusMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}
