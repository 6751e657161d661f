package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/interfaces/http/dto"
)

func setupWebhookRouter(t *testing.T, maxBody int64) (*mockWebhookProcessor, http.Handler) {
	proc := new(mockWebhookProcessor)
	h := NewWebhookHandler(proc, maxBody)
	router := newTestRouter(t, uuid.Nil)
	router.POST("/webhooks/portone", h.Handle)
	return proc, router
}

func webhookRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/portone", bytes.NewBufferString(body))
	req.Header.Set(WebhookIDHeader, "msg_1")
	req.Header.Set(WebhookSignatureHeader, "v1,abc")
	req.Header.Set(WebhookTimestampHeader, "1767225600")
	return req
}

func TestWebhookHandler_Handle(t *testing.T) {
	body := `{"type":"Transaction.Paid","data":{"paymentId":"pay_1"}}`

	t.Run("passes raw body and headers through", func(t *testing.T) {
		proc, router := setupWebhookRouter(t, 0)
		proc.On("Process", mock.Anything, billing.WebhookRequest{
			Body:      []byte(body),
			ID:        "msg_1",
			Signature: "v1,abc",
			Timestamp: "1767225600",
		}).Return(&appbilling.WebhookResult{
			EventID:   "msg_1",
			EventType: "Transaction.Paid",
			Processed: true,
		}, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, webhookRequest(body))

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.WebhookResponse
		decodeData(t, w, &resp)
		assert.True(t, resp.Processed)
		assert.Equal(t, "Transaction.Paid", resp.EventType)
		proc.AssertExpectations(t)
	})

	t.Run("verification failure answers 400", func(t *testing.T) {
		proc, router := setupWebhookRouter(t, 0)
		proc.On("Process", mock.Anything, mock.Anything).
			Return(nil, fmt.Errorf("%w: signature mismatch", billing.ErrWebhookVerification))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, webhookRequest(body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.NotContains(t, w.Body.String(), "signature mismatch")
	})

	t.Run("processing failure answers 500 for redelivery", func(t *testing.T) {
		proc, router := setupWebhookRouter(t, 0)
		proc.On("Process", mock.Anything, mock.Anything).Return(nil, errors.New("gateway timeout"))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, webhookRequest(body))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("duplicate delivery acknowledged", func(t *testing.T) {
		proc, router := setupWebhookRouter(t, 0)
		proc.On("Process", mock.Anything, mock.Anything).Return(&appbilling.WebhookResult{
			EventID:   "msg_1",
			Processed: false,
			Message:   "duplicate delivery",
		}, nil)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, webhookRequest(body))

		require.Equal(t, http.StatusOK, w.Code)
		var resp dto.WebhookResponse
		decodeData(t, w, &resp)
		assert.False(t, resp.Processed)
	})

	t.Run("oversized payload rejected", func(t *testing.T) {
		proc, router := setupWebhookRouter(t, 16)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, webhookRequest(strings.Repeat("x", 17)))

		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
		proc.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
	})
}
