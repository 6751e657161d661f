package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mockly/billing/internal/infrastructure/logger"
	"github.com/mockly/billing/internal/interfaces/http/dto"
)

// ErrCodeRequestTooLarge is returned when a body exceeds the configured limit
const ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"

// BodyLimit rejects bodies larger than maxBytes. Declared lengths are refused
// up front; streamed bodies fail on read past the limit.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(&dto.ErrorInfo{
				Code:    ErrCodeRequestTooLarge,
				Message: "Request body exceeds maximum allowed size",
			}, logger.GetRequestID(c.Request.Context())))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
