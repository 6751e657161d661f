package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/mockly/billing/internal/infrastructure/telemetry"
)

// Profiling attaches route and method pprof labels so CPU samples taken while
// serving a request can be attributed to its endpoint
func Profiling() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}
		telemetry.WithProfilingLabels(c.Request.Context(), func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		}, "route", route, "method", c.Request.Method)
	}
}
