package billing

import "errors"

// ErrWebhookVerification is returned for deliveries whose signature, timestamp
// or body cannot be trusted. Such deliveries are rejected and never retried internally.
var ErrWebhookVerification = errors.New("webhook verification failed")

// WebhookEventType identifies a provider notification
type WebhookEventType string

const (
	WebhookEventTransactionPaid      WebhookEventType = "Transaction.Paid"
	WebhookEventTransactionFailed    WebhookEventType = "Transaction.Failed"
	WebhookEventTransactionCancelled WebhookEventType = "Transaction.Cancelled"
)

// WebhookRequest is an inbound delivery exactly as received
type WebhookRequest struct {
	Body      []byte
	ID        string
	Signature string
	Timestamp string
}

// WebhookEvent is a verified notification. It only carries identifiers;
// authoritative details are fetched from the Gateway.
type WebhookEvent struct {
	Type          WebhookEventType
	PaymentID     string
	TransactionID string
}

// WebhookVerifier authenticates and decodes provider deliveries.
// Failures wrap ErrWebhookVerification.
type WebhookVerifier interface {
	Verify(req WebhookRequest) (*WebhookEvent, error)
}
