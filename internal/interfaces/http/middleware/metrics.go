package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/mockly/billing/internal/infrastructure/telemetry"
)

// Metrics observes request latency by route pattern
func Metrics(m *telemetry.HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		done := m.Begin()
		c.Next()
		done(c.Request.Method, c.FullPath(), c.Writer.Status())
	}
}
