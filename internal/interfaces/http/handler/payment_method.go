package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/interfaces/http/dto"
	"github.com/mockly/billing/internal/interfaces/http/middleware"
)

// PaymentMethodUseCases is the subset of the payment method service used over HTTP
type PaymentMethodUseCases interface {
	Add(ctx context.Context, userID uuid.UUID, billingKey string) (*billing.PaymentMethod, error)
	List(ctx context.Context, userID uuid.UUID) ([]billing.PaymentMethod, error)
	Delete(ctx context.Context, userID, methodID uuid.UUID) error
	SetDefault(ctx context.Context, userID, methodID uuid.UUID) (*billing.PaymentMethod, error)
}

// PaymentMethodHandler handles stored payment method endpoints
type PaymentMethodHandler struct {
	BaseHandler
	methods PaymentMethodUseCases
}

// NewPaymentMethodHandler creates a new payment method handler
func NewPaymentMethodHandler(methods PaymentMethodUseCases) *PaymentMethodHandler {
	return &PaymentMethodHandler{methods: methods}
}

// Add godoc
// @Summary      Add a payment method
// @Description  Register a billing key issued by the payment window
// @Tags         payment-methods
// @Accept       json
// @Produce      json
// @Param        request body dto.AddPaymentMethodRequest true "Billing key"
// @Success      201 {object} dto.Response{data=dto.PaymentMethodResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/payment-methods [post]
func (h *PaymentMethodHandler) Add(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	var req dto.AddPaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	pm, err := h.methods.Add(c.Request.Context(), userID, req.BillingKey)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToPaymentMethodResponse(pm))
}

// List godoc
// @Summary      List payment methods
// @Description  List the caller's stored payment methods
// @Tags         payment-methods
// @Produce      json
// @Success      200 {object} dto.Response{data=[]dto.PaymentMethodResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/payment-methods [get]
func (h *PaymentMethodHandler) List(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	methods, err := h.methods.List(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, dto.ToPaymentMethodResponses(methods))
}

// Delete godoc
// @Summary      Delete a payment method
// @Description  Remove a stored payment method that no live subscription depends on
// @Tags         payment-methods
// @Produce      json
// @Param        id path string true "Payment method ID" format(uuid)
// @Success      204
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/payment-methods/{id} [delete]
func (h *PaymentMethodHandler) Delete(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	methodID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	if err := h.methods.Delete(c.Request.Context(), userID, methodID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// SetDefault godoc
// @Summary      Set the default payment method
// @Description  Mark a stored payment method as the default
// @Tags         payment-methods
// @Accept       json
// @Produce      json
// @Param        id path string true "Payment method ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.PaymentMethodResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/payment-methods/{id}/default [put]
func (h *PaymentMethodHandler) SetDefault(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	methodID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	pm, err := h.methods.SetDefault(c.Request.Context(), userID, methodID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToPaymentMethodResponse(pm))
}
