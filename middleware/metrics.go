package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prizzzz/leaseIQ/pkg/metrics"
)

// Metrics records request count and latency per route template, so
// /api/contracts/:id is one series regardless of the id.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(route, c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
