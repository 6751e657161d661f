package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/infrastructure/logger"
	"github.com/mockly/billing/internal/interfaces/http/dto"
)

// Standard Webhooks delivery headers
const (
	WebhookIDHeader        = "webhook-id"
	WebhookSignatureHeader = "webhook-signature"
	WebhookTimestampHeader = "webhook-timestamp"
)

// DefaultMaxWebhookBodySize caps webhook payloads when no limit is configured
const DefaultMaxWebhookBodySize = 64 << 10

// WebhookProcessor applies provider deliveries
type WebhookProcessor interface {
	Process(ctx context.Context, req billing.WebhookRequest) (*appbilling.WebhookResult, error)
}

// WebhookHandler receives payment provider notifications. It is called by the
// provider and does not require user authentication; deliveries are verified
// by signature instead.
type WebhookHandler struct {
	BaseHandler
	processor   WebhookProcessor
	maxBodySize int64
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(processor WebhookProcessor, maxBodySize int64) *WebhookHandler {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxWebhookBodySize
	}
	return &WebhookHandler{processor: processor, maxBodySize: maxBodySize}
}

// Handle godoc
// @Summary      Receive a payment provider webhook
// @Description  Verify a Standard Webhooks delivery and apply it to the ledger. Verification failures answer 400 and are not retried by the provider. Processing failures answer 500 so the delivery is retried.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        webhook-id         header  string  true  "Delivery ID"
// @Param        webhook-signature  header  string  true  "Delivery signature"
// @Param        webhook-timestamp  header  string  true  "Delivery timestamp (unix seconds)"
// @Success      200 {object} dto.Response{data=dto.WebhookResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      413 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /webhooks/portone [post]
func (h *WebhookHandler) Handle(c *gin.Context) {
	// The raw body is required for signature verification
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxBodySize+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if int64(len(body)) > h.maxBodySize {
		h.Error(c, http.StatusRequestEntityTooLarge, "REQUEST_TOO_LARGE", "Payload too large")
		return
	}

	result, err := h.processor.Process(c.Request.Context(), billing.WebhookRequest{
		Body:      body,
		ID:        c.GetHeader(WebhookIDHeader),
		Signature: c.GetHeader(WebhookSignatureHeader),
		Timestamp: c.GetHeader(WebhookTimestampHeader),
	})
	if err != nil {
		log := logger.L(c.Request.Context()).With(zap.String("webhook_id", c.GetHeader(WebhookIDHeader)))
		if errors.Is(err, billing.ErrWebhookVerification) {
			log.Warn("Webhook rejected", zap.Error(err))
			h.BadRequest(c, "Webhook verification failed")
			return
		}
		log.Error("Webhook processing failed", zap.Error(err))
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "Webhook processing failed")
		return
	}

	h.Success(c, dto.WebhookResponse{
		Processed: result.Processed,
		EventType: result.EventType,
		Message:   result.Message,
	})
}
