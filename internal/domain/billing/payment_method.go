package billing

import (
	"time"

	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/shared"
)

// PaymentMethod is a billing key stored for a user, with masked card metadata.
// At most one active method per user is the default.
type PaymentMethod struct {
	shared.BaseEntity
	UserID     uuid.UUID
	BillingKey string
	Type       PaymentMethodType
	CardLast4  string
	CardBrand  string
	Active     bool
	Default    bool
}

// NewPaymentMethod creates an active, non-default payment method from provider metadata
func NewPaymentMethod(userID uuid.UUID, billingKey string, method MethodInfo, now time.Time) (*PaymentMethod, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if billingKey == "" {
		return nil, shared.NewDomainError("INVALID_BILLING_KEY", "Billing key cannot be empty")
	}
	pm := &PaymentMethod{
		BaseEntity: shared.NewBaseEntity(now),
		UserID:     userID,
		BillingKey: billingKey,
		Type:       MethodTypeOf(method),
		Active:     true,
	}
	if card, ok := method.(CardMethod); ok {
		pm.CardLast4 = CardLast4(card.Number)
		pm.CardBrand = card.Brand
	}
	return pm, nil
}

// MarkDefault makes this method the user's default. Clearing the previous
// default is the caller's responsibility.
func (m *PaymentMethod) MarkDefault(now time.Time) error {
	if !m.Active {
		return shared.NewDomainError("INVALID_STATE", "Cannot make an inactive payment method the default")
	}
	m.Default = true
	m.Touch(now)
	return nil
}

// UnmarkDefault clears the default flag
func (m *PaymentMethod) UnmarkDefault(now time.Time) {
	m.Default = false
	m.Touch(now)
}

// Deactivate soft-deletes the method
func (m *PaymentMethod) Deactivate(now time.Time) {
	m.Active = false
	m.Default = false
	m.Touch(now)
}
