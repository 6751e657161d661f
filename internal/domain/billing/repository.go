package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repositories return shared.ErrNotFound when a lookup by id finds nothing.

// PlanRepository reads the plan catalog
type PlanRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Plan, error)
	// FindFreePlan returns the active LIFETIME plan granted to every new user
	FindFreePlan(ctx context.Context) (*Plan, error)
}

// SubscriptionRepository persists subscriptions
type SubscriptionRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// FindByIDForUpdate locks the row until the surrounding transaction ends
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*Subscription, error)
	FindByUserAndStatuses(ctx context.Context, userID uuid.UUID, statuses ...SubscriptionStatus) ([]Subscription, error)
	// FindPastDueBefore returns PAST_DUE subscriptions last updated before cutoff, oldest first
	FindPastDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]Subscription, error)
	Save(ctx context.Context, sub *Subscription) error
}

// InvoiceRepository persists invoices
type InvoiceRepository interface {
	FindByID(ctx context.Context, id string) (*Invoice, error)
	Save(ctx context.Context, invoice *Invoice) error
}

// PaymentRepository persists payments
type PaymentRepository interface {
	FindByID(ctx context.Context, id string) (*Payment, error)
	// FindByUser returns one page of a user's payments, newest first, and the total count
	FindByUser(ctx context.Context, userID uuid.UUID, filter PaymentFilter) ([]Payment, int64, error)
	// FindBySubscription returns every payment of a subscription, oldest first
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]Payment, error)
	Save(ctx context.Context, payment *Payment) error
}

// PaymentMethodRepository persists stored billing keys
type PaymentMethodRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*PaymentMethod, error)
	// FindActiveByUser returns active methods, newest first
	FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]PaymentMethod, error)
	FindActiveByBillingKey(ctx context.Context, userID uuid.UUID, billingKey string) (*PaymentMethod, error)
	Save(ctx context.Context, method *PaymentMethod) error
}

// OutboxEventRepository persists outbox events
type OutboxEventRepository interface {
	// FindPending returns up to limit PENDING events, oldest first
	FindPending(ctx context.Context, limit int) ([]OutboxEvent, error)
	// LockForProcessing reloads an event with FOR UPDATE SKIP LOCKED.
	// It returns shared.ErrNotFound if the row is gone or held by another worker.
	LockForProcessing(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	Save(ctx context.Context, event *OutboxEvent) error
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
	DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

const (
	// DefaultPaymentPageSize is used when a page size is not given
	DefaultPaymentPageSize = 20
	// MaxPaymentPageSize caps the page size of payment history queries
	MaxPaymentPageSize = 20
)

// Payment history sort fields
const (
	PaymentSortCreatedAt = "createdAt"
	PaymentSortPaidAt    = "paidAt"
	PaymentSortAmount    = "amount"
)

// PaymentFilter narrows a payment history query
type PaymentFilter struct {
	Status *PaymentStatus
	From   *time.Time
	To     *time.Time
	Page   int
	Size   int
	// SortBy is one of the PaymentSort fields; newest first when empty
	SortBy    string
	SortOrder string
}

// Normalize clamps paging to valid bounds
func (f PaymentFilter) Normalize() PaymentFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Size < 1 {
		f.Size = DefaultPaymentPageSize
	}
	if f.Size > MaxPaymentPageSize {
		f.Size = MaxPaymentPageSize
	}
	return f
}

// Offset returns the row offset of the page
func (f PaymentFilter) Offset() int {
	return (f.Page - 1) * f.Size
}
