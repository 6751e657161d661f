package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
	"github.com/mockly/billing/internal/interfaces/http/dto"
)

func testPaymentMethod(userID uuid.UUID, isDefault bool) *billing.PaymentMethod {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &billing.PaymentMethod{
		BaseEntity: shared.BaseEntity{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		UserID:     userID,
		BillingKey: "secret-billing-key",
		Type:       billing.PaymentMethodTypeCard,
		CardLast4:  "4242",
		CardBrand:  "VISA",
		Active:     true,
		Default:    isDefault,
	}
}

func setupPaymentMethodRouter(t *testing.T, userID uuid.UUID) (*mockPaymentMethods, http.Handler) {
	svc := new(mockPaymentMethods)
	h := NewPaymentMethodHandler(svc)
	router := newTestRouter(t, userID)
	router.POST("/payment-methods", h.Add)
	router.GET("/payment-methods", h.List)
	router.DELETE("/payment-methods/:id", h.Delete)
	router.PUT("/payment-methods/:id/default", h.SetDefault)
	return svc, router
}

func TestPaymentMethodHandler_Add(t *testing.T) {
	userID := uuid.New()

	t.Run("adds method without echoing the key", func(t *testing.T) {
		svc, router := setupPaymentMethodRouter(t, userID)
		pm := testPaymentMethod(userID, true)
		svc.On("Add", mock.Anything, userID, "secret-billing-key").Return(pm, nil)

		w := doRequest(router, http.MethodPost, "/payment-methods", map[string]string{"billingKey": "secret-billing-key"})

		require.Equal(t, http.StatusCreated, w.Code)
		assert.NotContains(t, w.Body.String(), "secret-billing-key")
		var resp dto.PaymentMethodResponse
		decodeData(t, w, &resp)
		assert.Equal(t, "4242", resp.CardLast4)
		assert.True(t, resp.Default)
	})

	t.Run("duplicate key answers 409", func(t *testing.T) {
		svc, router := setupPaymentMethodRouter(t, userID)
		svc.On("Add", mock.Anything, userID, "dup-key").Return(nil, billing.ErrDuplicateBillingKey)

		w := doRequest(router, http.MethodPost, "/payment-methods", map[string]string{"billingKey": "dup-key"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("whitespace key fails validation", func(t *testing.T) {
		_, router := setupPaymentMethodRouter(t, userID)
		w := doRequest(router, http.MethodPost, "/payment-methods", map[string]string{"billingKey": "bad key"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestPaymentMethodHandler_List(t *testing.T) {
	userID := uuid.New()
	svc, router := setupPaymentMethodRouter(t, userID)
	svc.On("List", mock.Anything, userID).Return([]billing.PaymentMethod{
		*testPaymentMethod(userID, true),
		*testPaymentMethod(userID, false),
	}, nil)

	w := doRequest(router, http.MethodGet, "/payment-methods", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []dto.PaymentMethodResponse
	decodeData(t, w, &resp)
	assert.Len(t, resp, 2)
	assert.True(t, resp[0].Default)
}

func TestPaymentMethodHandler_Delete(t *testing.T) {
	userID := uuid.New()
	methodID := uuid.New()

	t.Run("deletes", func(t *testing.T) {
		svc, router := setupPaymentMethodRouter(t, userID)
		svc.On("Delete", mock.Anything, userID, methodID).Return(nil)

		w := doRequest(router, http.MethodDelete, "/payment-methods/"+methodID.String(), nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("default in use answers 409", func(t *testing.T) {
		svc, router := setupPaymentMethodRouter(t, userID)
		svc.On("Delete", mock.Anything, userID, methodID).Return(billing.ErrDefaultMethodInUse)

		w := doRequest(router, http.MethodDelete, "/payment-methods/"+methodID.String(), nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "DEFAULT_METHOD_IN_USE", decode(t, w).Error.Code)
	})
}

func TestPaymentMethodHandler_SetDefault(t *testing.T) {
	userID := uuid.New()
	svc, router := setupPaymentMethodRouter(t, userID)
	pm := testPaymentMethod(userID, true)
	svc.On("SetDefault", mock.Anything, userID, pm.ID).Return(pm, nil)

	w := doRequest(router, http.MethodPut, "/payment-methods/"+pm.ID.String()+"/default", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.PaymentMethodResponse
	decodeData(t, w, &resp)
	assert.Equal(t, pm.ID, resp.ID)
}
