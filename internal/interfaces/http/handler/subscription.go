package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/interfaces/http/dto"
	"github.com/mockly/billing/internal/interfaces/http/middleware"
)

// SubscriptionUseCases is the subset of the subscription service used over HTTP
type SubscriptionUseCases interface {
	Create(ctx context.Context, in appbilling.CreateSubscriptionInput) (*billing.Subscription, error)
	GetActive(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error)
	Cancel(ctx context.Context, userID, subscriptionID uuid.UUID) (*billing.Subscription, error)
	AssignFreePlan(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error)
	ChangePaymentMethod(ctx context.Context, userID, subscriptionID, paymentMethodID uuid.UUID) (*billing.Subscription, error)
}

// SubscriptionHandler handles subscription endpoints
type SubscriptionHandler struct {
	BaseHandler
	subscriptions SubscriptionUseCases
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptions SubscriptionUseCases) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// Create godoc
// @Summary      Purchase a subscription
// @Description  Charge the first period with a billing key and activate the plan. A pending gateway outcome answers 202 with PAYMENT_PENDING.
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateSubscriptionRequest true "Purchase request"
// @Success      201 {object} dto.Response{data=dto.SubscriptionResponse}
// @Success      202 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/subscriptions [post]
func (h *SubscriptionHandler) Create(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	var req dto.CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	sub, err := h.subscriptions.Create(c.Request.Context(), appbilling.CreateSubscriptionInput{
		UserID:        userID,
		PlanID:        uuid.MustParse(req.PlanID),
		ExpectedPrice: *req.ExpectedPrice,
		BillingKey:    req.BillingKey,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToSubscriptionResponse(sub))
}

// GetActive godoc
// @Summary      Get current subscription
// @Description  Return the caller's live subscription
// @Tags         subscriptions
// @Produce      json
// @Success      200 {object} dto.Response{data=dto.SubscriptionResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/subscriptions/me [get]
func (h *SubscriptionHandler) GetActive(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	sub, err := h.subscriptions.GetActive(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSubscriptionResponse(sub))
}

// Cancel godoc
// @Summary      Cancel a subscription
// @Description  Stop renewal at the end of the current period and revoke the scheduled charge
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Success      200 {object} dto.Response{data=dto.SubscriptionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/subscriptions/{id}/cancel [post]
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	subID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptions.Cancel(c.Request.Context(), userID, subID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSubscriptionResponse(sub))
}

// ChangePaymentMethod godoc
// @Summary      Change subscription payment method
// @Description  Move the next renewal onto another stored payment method
// @Tags         subscriptions
// @Accept       json
// @Produce      json
// @Param        id path string true "Subscription ID" format(uuid)
// @Param        request body dto.ChangePaymentMethodRequest true "Payment method"
// @Success      200 {object} dto.Response{data=dto.SubscriptionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/subscriptions/{id}/payment-method [put]
func (h *SubscriptionHandler) ChangePaymentMethod(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}
	subID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	var req dto.ChangePaymentMethodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	sub, err := h.subscriptions.ChangePaymentMethod(c.Request.Context(), userID, subID, uuid.MustParse(req.PaymentMethodID))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToSubscriptionResponse(sub))
}

// AssignFreePlan godoc
// @Summary      Assign the free plan
// @Description  Called by the account service when a user signs up
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id path string true "User ID" format(uuid)
// @Success      201 {object} dto.Response{data=dto.SubscriptionResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /v1/users/{id}/free-plan [post]
func (h *SubscriptionHandler) AssignFreePlan(c *gin.Context) {
	userID, ok := h.pathUUID(c, "id")
	if !ok {
		return
	}

	sub, err := h.subscriptions.AssignFreePlan(c.Request.Context(), userID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, dto.ToSubscriptionResponse(sub))
}
