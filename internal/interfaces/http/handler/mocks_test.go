package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/interfaces/http/dto"
	"github.com/mockly/billing/internal/interfaces/http/middleware"
)

type mockSubscriptions struct {
	mock.Mock
}

func (m *mockSubscriptions) Create(ctx context.Context, in appbilling.CreateSubscriptionInput) (*billing.Subscription, error) {
	args := m.Called(ctx, in)
	return subscriptionOrNil(args.Get(0)), args.Error(1)
}

func (m *mockSubscriptions) GetActive(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, userID)
	return subscriptionOrNil(args.Get(0)), args.Error(1)
}

func (m *mockSubscriptions) Cancel(ctx context.Context, userID, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, userID, subscriptionID)
	return subscriptionOrNil(args.Get(0)), args.Error(1)
}

func (m *mockSubscriptions) AssignFreePlan(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, userID)
	return subscriptionOrNil(args.Get(0)), args.Error(1)
}

func (m *mockSubscriptions) ChangePaymentMethod(ctx context.Context, userID, subscriptionID, paymentMethodID uuid.UUID) (*billing.Subscription, error) {
	args := m.Called(ctx, userID, subscriptionID, paymentMethodID)
	return subscriptionOrNil(args.Get(0)), args.Error(1)
}

func subscriptionOrNil(v any) *billing.Subscription {
	if v == nil {
		return nil
	}
	return v.(*billing.Subscription)
}

type mockPaymentMethods struct {
	mock.Mock
}

func (m *mockPaymentMethods) Add(ctx context.Context, userID uuid.UUID, billingKey string) (*billing.PaymentMethod, error) {
	args := m.Called(ctx, userID, billingKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentMethod), args.Error(1)
}

func (m *mockPaymentMethods) List(ctx context.Context, userID uuid.UUID) ([]billing.PaymentMethod, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.PaymentMethod), args.Error(1)
}

func (m *mockPaymentMethods) Delete(ctx context.Context, userID, methodID uuid.UUID) error {
	return m.Called(ctx, userID, methodID).Error(0)
}

func (m *mockPaymentMethods) SetDefault(ctx context.Context, userID, methodID uuid.UUID) (*billing.PaymentMethod, error) {
	args := m.Called(ctx, userID, methodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentMethod), args.Error(1)
}

type mockPaymentQueries struct {
	mock.Mock
}

func (m *mockPaymentQueries) ListPayments(ctx context.Context, userID uuid.UUID, filter billing.PaymentFilter) (*appbilling.PaymentPage, error) {
	args := m.Called(ctx, userID, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.PaymentPage), args.Error(1)
}

func (m *mockPaymentQueries) GetPayment(ctx context.Context, userID uuid.UUID, paymentID string) (*billing.Payment, error) {
	args := m.Called(ctx, userID, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Payment), args.Error(1)
}

func (m *mockPaymentQueries) GetInvoice(ctx context.Context, userID uuid.UUID, invoiceID string) (*billing.Invoice, error) {
	args := m.Called(ctx, userID, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Invoice), args.Error(1)
}

type mockWebhookProcessor struct {
	mock.Mock
}

func (m *mockWebhookProcessor) Process(ctx context.Context, req billing.WebhookRequest) (*appbilling.WebhookResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.WebhookResult), args.Error(1)
}

type mockAdmin struct {
	mock.Mock
}

func (m *mockAdmin) Stats(ctx context.Context) (map[billing.OutboxStatus]int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[billing.OutboxStatus]int64), args.Error(1)
}

func (m *mockAdmin) RunNow(ctx context.Context) (*appbilling.SweepResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appbilling.SweepResult), args.Error(1)
}

// newTestRouter returns an engine that authenticates every request as userID.
// uuid.Nil leaves the request anonymous.
func newTestRouter(t *testing.T, userID uuid.UUID) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.SetupValidator())

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(middleware.UserIDKey, userID)
		}
		c.Next()
	})
	return router
}

func doRequest(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *dto.ErrorInfo  `json:"error"`
	Meta    *dto.Meta       `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	env := decode(t, w)
	require.True(t, env.Success, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, out))
}
