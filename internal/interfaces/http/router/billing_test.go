package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "github.com/mockly/billing/docs"
	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
	"github.com/mockly/billing/internal/infrastructure/telemetry"
	"github.com/mockly/billing/internal/interfaces/http/handler"
	"github.com/mockly/billing/internal/interfaces/http/middleware"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubAdmin struct{}

func (stubAdmin) Stats(context.Context) (map[billing.OutboxStatus]int64, error) {
	return map[billing.OutboxStatus]int64{billing.OutboxStatusPending: 1}, nil
}

func (stubAdmin) RunNow(context.Context) (*appbilling.SweepResult, error) {
	return &appbilling.SweepResult{}, nil
}

type stubWebhooks struct{}

func (stubWebhooks) Process(context.Context, billing.WebhookRequest) (*appbilling.WebhookResult, error) {
	return &appbilling.WebhookResult{Processed: true}, nil
}

type stubPayments struct{}

func (stubPayments) ListPayments(context.Context, uuid.UUID, billing.PaymentFilter) (*appbilling.PaymentPage, error) {
	return &appbilling.PaymentPage{Page: 1, Size: 20}, nil
}

func (stubPayments) GetPayment(context.Context, uuid.UUID, string) (*billing.Payment, error) {
	return nil, shared.ErrNotFound
}

func (stubPayments) GetInvoice(context.Context, uuid.UUID, string) (*billing.Invoice, error) {
	return nil, shared.ErrNotFound
}

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	reg := telemetry.NewRegistry()
	httpMetrics, err := telemetry.NewHTTPMetrics(reg)
	require.NoError(t, err)

	engine, err := NewEngine(Config{
		ServiceName:    "billing-test",
		Logger:         zap.NewNop(),
		Identity:       middleware.IdentityConfig{AllowUserIDHeader: true},
		HTTPMetrics:    httpMetrics,
		MetricsHandler: telemetry.MetricsHandler(reg),
	}, Handlers{
		Subscriptions:  handler.NewSubscriptionHandler(nil),
		PaymentMethods: handler.NewPaymentMethodHandler(nil),
		Payments:       handler.NewPaymentHandler(nil),
		Webhooks:       handler.NewWebhookHandler(stubWebhooks{}, 0),
		Admin:          handler.NewAdminHandler(stubAdmin{}, stubAdmin{}),
		Health:         handler.NewHealthHandler(stubPinger{}),
	})
	require.NoError(t, err)
	return engine
}

func TestNewEngine_RegistersBillingRoutes(t *testing.T) {
	engine := newTestEngine(t)

	registered := map[string]bool{}
	for _, route := range engine.Routes() {
		registered[route.Method+" "+route.Path] = true
	}

	for _, want := range []string{
		"POST /api/webhooks/portone",
		"POST /api/v1/subscriptions",
		"GET /api/v1/subscriptions/me",
		"POST /api/v1/subscriptions/:id/cancel",
		"PUT /api/v1/subscriptions/:id/payment-method",
		"POST /api/v1/payment-methods",
		"GET /api/v1/payment-methods",
		"DELETE /api/v1/payment-methods/:id",
		"PUT /api/v1/payment-methods/:id/default",
		"GET /api/v1/payments",
		"GET /api/v1/payments/:id",
		"GET /api/v1/invoices/:id",
		"POST /api/v1/users/:id/free-plan",
		"GET /api/v1/admin/outbox/stats",
		"POST /api/v1/admin/sweeps/past-due",
		"GET /health",
		"GET /health/ready",
		"GET /metrics",
	} {
		assert.True(t, registered[want], "missing route %s", want)
	}
}

func TestNewEngine_Middleware(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("user routes require identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	})

	t.Run("webhook needs no identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/webhooks/portone", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("admin stats reachable", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/outbox/stats", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("metrics exposes request histogram", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(middleware.UserIDHeader, uuid.NewString())
		engine.ServeHTTP(httptest.NewRecorder(), req)

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `billing_http_request_duration_seconds_count{method="GET",route="/health",status="200"}`)
		assert.Contains(t, w.Body.String(), "go_goroutines")
	})
}

func TestNewEngine_Swagger(t *testing.T) {
	t.Run("serves the UI and the registered document", func(t *testing.T) {
		engine, err := NewEngine(Config{SwaggerEnabled: true}, Handlers{
			Webhooks: handler.NewWebhookHandler(stubWebhooks{}, 0),
			Admin:    handler.NewAdminHandler(stubAdmin{}, stubAdmin{}),
		})
		require.NoError(t, err)

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		w = httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/doc.json", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"/v1/subscriptions"`)
		assert.Contains(t, w.Body.String(), `"/webhooks/portone"`)
	})

	t.Run("disabled by default", func(t *testing.T) {
		w := httptest.NewRecorder()
		newTestEngine(t).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestNewEngine_RejectsBadTrustedProxy(t *testing.T) {
	_, err := NewEngine(Config{TrustedProxies: []string{"not-an-ip"}}, Handlers{})
	assert.Error(t, err)
}

func TestNewEngine_RateLimitsPerCaller(t *testing.T) {
	engine, err := NewEngine(Config{
		Logger:      zap.NewNop(),
		Identity:    middleware.IdentityConfig{AllowUserIDHeader: true},
		RateLimiter: middleware.NewRateLimiter(0.001, 2),
	}, Handlers{
		Subscriptions:  handler.NewSubscriptionHandler(nil),
		PaymentMethods: handler.NewPaymentMethodHandler(nil),
		Payments:       handler.NewPaymentHandler(stubPayments{}),
		Webhooks:       handler.NewWebhookHandler(stubWebhooks{}, 0),
		Admin:          handler.NewAdminHandler(stubAdmin{}, stubAdmin{}),
		Health:         handler.NewHealthHandler(stubPinger{}),
	})
	require.NoError(t, err)

	list := func(userID string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments", nil)
		req.Header.Set(middleware.UserIDHeader, userID)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	alice, bob := uuid.NewString(), uuid.NewString()
	assert.Equal(t, http.StatusOK, list(alice))
	assert.Equal(t, http.StatusOK, list(alice))
	assert.Equal(t, http.StatusTooManyRequests, list(alice))
	assert.Equal(t, http.StatusOK, list(bob), "budgets are per caller")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code, "health is not throttled")
}
