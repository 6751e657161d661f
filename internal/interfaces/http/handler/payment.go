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

// PaymentQueries is the read side of the payment ledger
type PaymentQueries interface {
	ListPayments(ctx context.Context, userID uuid.UUID, filter billing.PaymentFilter) (*appbilling.PaymentPage, error)
	GetPayment(ctx context.Context, userID uuid.UUID, paymentID string) (*billing.Payment, error)
	GetInvoice(ctx context.Context, userID uuid.UUID, invoiceID string) (*billing.Invoice, error)
}

// PaymentHandler serves payment history and invoices
type PaymentHandler struct {
	BaseHandler
	queries PaymentQueries
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(queries PaymentQueries) *PaymentHandler {
	return &PaymentHandler{queries: queries}
}

// List godoc
// @Summary      List payments
// @Description  Page through the caller's payment history
// @Tags         payments
// @Produce      json
// @Param        status query string false "Payment status" Enums(PENDING, PAID, FAILED, CANCELED)
// @Param        from query string false "Created at or after (RFC 3339)"
// @Param        to query string false "Created before (RFC 3339)"
// @Param        page query int false "Page number" minimum(1)
// @Param        size query int false "Page size" minimum(1) maximum(20)
// @Param        sort query string false "Sort field" Enums(createdAt, paidAt, amount)
// @Param        order query string false "Sort order" Enums(asc, desc)
// @Success      200 {object} dto.Response{data=[]dto.PaymentResponse,meta=dto.Meta}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/payments [get]
func (h *PaymentHandler) List(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	var query dto.PaymentListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	page, err := h.queries.ListPayments(c.Request.Context(), userID, query.Filter())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.ToPaymentResponses(page), page.Total, page.Page, page.Size, page.TotalPages)
}

// Get godoc
// @Summary      Get a payment
// @Description  Return one of the caller's payments
// @Tags         payments
// @Produce      json
// @Param        id path string true "Payment ID"
// @Success      200 {object} dto.Response{data=dto.PaymentResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/payments/{id} [get]
func (h *PaymentHandler) Get(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	payment, err := h.queries.GetPayment(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToPaymentResponse(payment))
}

// GetInvoice godoc
// @Summary      Get an invoice
// @Description  Return one of the caller's invoices
// @Tags         invoices
// @Produce      json
// @Param        id path string true "Invoice ID"
// @Success      200 {object} dto.Response{data=dto.InvoiceResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /v1/invoices/{id} [get]
func (h *PaymentHandler) GetInvoice(c *gin.Context) {
	userID, ok := h.callerID(c)
	if !ok {
		return
	}

	invoice, err := h.queries.GetInvoice(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ToInvoiceResponse(invoice))
}
