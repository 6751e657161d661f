package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mockly/billing/internal/domain/billing"
)

const webhookSecretPrefix = "whsec_"

// PortOneWebhookVerifier verifies deliveries signed per the Standard Webhooks
// scheme: base64(HMAC-SHA256(id + "." + timestamp + "." + body)) in a
// space-separated "v1,<sig>" list
type PortOneWebhookVerifier struct {
	key       []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewPortOneWebhookVerifier creates a verifier from a whsec_ secret
func NewPortOneWebhookVerifier(config *WebhookConfig) (*PortOneWebhookVerifier, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(config.Secret, webhookSecretPrefix))
	if err != nil || len(key) == 0 {
		return nil, ErrPortOneInvalidWebhookSecret
	}

	return &PortOneWebhookVerifier{
		key:       key,
		tolerance: config.Tolerance,
		now:       time.Now,
	}, nil
}

// WithClock overrides the clock used for timestamp tolerance
func (v *PortOneWebhookVerifier) WithClock(now func() time.Time) *PortOneWebhookVerifier {
	v.now = now
	return v
}

var _ billing.WebhookVerifier = (*PortOneWebhookVerifier)(nil)

// Verify authenticates a delivery and decodes its identifiers
func (v *PortOneWebhookVerifier) Verify(req billing.WebhookRequest) (*billing.WebhookEvent, error) {
	if req.ID == "" || req.Signature == "" || req.Timestamp == "" {
		return nil, fmt.Errorf("%w: missing webhook headers", billing.ErrWebhookVerification)
	}

	ts, err := strconv.ParseInt(req.Timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid timestamp %q", billing.ErrWebhookVerification, req.Timestamp)
	}
	skew := v.now().Sub(time.Unix(ts, 0))
	if skew > v.tolerance || skew < -v.tolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", billing.ErrWebhookVerification)
	}

	expected := v.Sign(req.ID, req.Timestamp, req.Body)
	if !signatureMatches(req.Signature, expected) {
		return nil, fmt.Errorf("%w: signature mismatch", billing.ErrWebhookVerification)
	}

	var payload portOneWebhookPayload
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return nil, fmt.Errorf("%w: malformed body: %v", billing.ErrWebhookVerification, err)
	}
	if payload.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", billing.ErrWebhookVerification)
	}

	return &billing.WebhookEvent{
		Type:          billing.WebhookEventType(payload.Type),
		PaymentID:     payload.Data.PaymentID,
		TransactionID: payload.Data.TransactionID,
	}, nil
}

// Sign computes the base64 signature for a delivery
func (v *PortOneWebhookVerifier) Sign(id, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// signatureMatches checks each "v1,<sig>" entry; other versions are ignored
func signatureMatches(header, expected string) bool {
	for _, entry := range strings.Fields(header) {
		version, sig, ok := strings.Cut(entry, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(expected)) {
			return true
		}
	}
	return false
}
