package logger

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func findEntry(t *testing.T, recorded *observer.ObservedLogs, msg string) observer.LoggedEntry {
	t.Helper()
	entries := recorded.FilterMessage(msg).All()
	require.Len(t, entries, 1, "expected one %q entry", msg)
	return entries[0]
}

func TestGinMiddleware_LogsRequest(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(GinMiddleware(zap.New(core)))
	router.GET("/api/v1/subscriptions/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/sub-1?verbose=1", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	entry := findEntry(t, recorded, "HTTP Request")
	fields := entry.ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entry.Level)
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/api/v1/subscriptions/sub-1", fields["path"])
	assert.Equal(t, "/api/v1/subscriptions/:id", fields["route"])
	assert.Equal(t, "verbose=1", fields["query"])
}

func TestGinMiddleware_PropagatesRequestIDHeader(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)

	var seen string
	router := gin.New()
	router.Use(GinMiddleware(zap.New(core)))
	router.POST("/webhooks/portone", func(c *gin.Context) {
		seen = GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/portone", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	router.ServeHTTP(w, req)

	assert.Equal(t, "req-abc", seen)
	assert.Equal(t, "req-abc", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-abc", findEntry(t, recorded, "HTTP Request").ContextMap()["request_id"])
}

func TestGinMiddleware_GeneratesRequestID(t *testing.T) {
	router := gin.New()
	router.Use(GinMiddleware(zap.NewNop()))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	_, err := uuid.Parse(w.Header().Get(RequestIDHeader))
	assert.NoError(t, err)
}

func TestGinMiddleware_HandlerLoggersShareRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)

	router := gin.New()
	router.Use(GinMiddleware(zap.New(core)))
	router.GET("/ping", func(c *gin.Context) {
		GetGinLogger(c).Info("from gin context")
		L(c.Request.Context()).Info("from request context")
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "req-shared")
	router.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "req-shared", findEntry(t, recorded, "from gin context").ContextMap()["request_id"])
	assert.Equal(t, "req-shared", findEntry(t, recorded, "from request context").ContextMap()["request_id"])
}

func TestGinMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		status int
		level  zapcore.Level
	}{
		{http.StatusOK, zapcore.InfoLevel},
		{http.StatusConflict, zapcore.WarnLevel},
		{http.StatusBadGateway, zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			core, recorded := observer.New(zapcore.DebugLevel)
			router := gin.New()
			router.Use(GinMiddleware(zap.New(core)))
			router.GET("/x", func(c *gin.Context) { c.Status(tt.status) })

			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

			assert.Equal(t, tt.level, findEntry(t, recorded, "HTTP Request").Level)
		})
	}
}

func TestRecovery(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	router := gin.New()
	router.Use(GinMiddleware(log), Recovery(log))
	router.GET("/panic", func(c *gin.Context) {
		panic("charge exploded")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "INTERNAL_ERROR", body.Error.Code)
	assert.Equal(t, "charge exploded", findEntry(t, recorded, "Panic recovered").ContextMap()["error"])
}

func TestGetGinLogger_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.NotNil(t, GetGinLogger(c))
}
