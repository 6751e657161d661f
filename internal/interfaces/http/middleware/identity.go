// Package middleware provides HTTP middleware for the billing API.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mockly/billing/internal/infrastructure/auth"
	"github.com/mockly/billing/internal/infrastructure/logger"
	"github.com/mockly/billing/internal/interfaces/http/dto"
)

// Identity context keys and headers
const (
	UserIDKey     = "user_id"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
	UserIDHeader  = "X-User-ID"
)

// IdentityConfig configures caller identification
type IdentityConfig struct {
	JWTService *auth.JWTService
	// AllowUserIDHeader trusts X-User-ID when no bearer token is sent (development only)
	AllowUserIDHeader bool
	Logger            *zap.Logger
}

// Identity authenticates the caller and stores the user ID in the gin and
// request contexts. Requests without a usable identity get 401.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		userID, err := resolveUserID(c, cfg)
		if err != nil {
			cfg.Logger.Debug("Caller identification failed",
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			abortUnauthorized(c, err)
			return
		}

		c.Set(UserIDKey, userID)
		ctx, _ := logger.WithUserID(c.Request.Context(), logger.FromContext(c.Request.Context()), userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

var errMissingCredentials = errors.New("missing credentials")

func resolveUserID(c *gin.Context, cfg IdentityConfig) (uuid.UUID, error) {
	header := c.GetHeader(AuthHeaderKey)
	if header != "" {
		if !strings.HasPrefix(header, BearerPrefix) || cfg.JWTService == nil {
			return uuid.Nil, auth.ErrInvalidToken
		}
		claims, err := cfg.JWTService.Validate(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserUUID()
	}

	if cfg.AllowUserIDHeader {
		if raw := c.GetHeader(UserIDHeader); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				return uuid.Nil, auth.ErrMissingUserID
			}
			return id, nil
		}
	}
	return uuid.Nil, errMissingCredentials
}

func abortUnauthorized(c *gin.Context, err error) {
	info := &dto.ErrorInfo{Code: dto.ErrCodeUnauthorized, Message: "Authentication required"}
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		info = &dto.ErrorInfo{Code: "TOKEN_EXPIRED", Message: "Token has expired"}
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
		info = &dto.ErrorInfo{Code: "INVALID_TOKEN", Message: "Invalid token"}
	case errors.Is(err, auth.ErrMissingUserID):
		info = &dto.ErrorInfo{Code: "INVALID_TOKEN", Message: "Token does not identify a user"}
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponse(info, logger.GetRequestID(c.Request.Context())))
}

// UserID returns the authenticated caller
func UserID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}
