package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mockly/billing/internal/domain/shared"
)

// InvoiceStatus represents the status of an invoice
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusFailed  InvoiceStatus = "FAILED"
)

// CanTransitionTo checks if the status can transition to the target status
func (s InvoiceStatus) CanTransitionTo(target InvoiceStatus) bool {
	switch s {
	case InvoiceStatusPending:
		return target == InvoiceStatusPaid || target == InvoiceStatusFailed
	case InvoiceStatusFailed:
		return target == InvoiceStatusPaid
	}
	return false
}

// Invoice is the bill for one period of a subscription
type Invoice struct {
	ID             string
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	Amount         decimal.Decimal
	Currency       Currency
	Status         InvoiceStatus
	PeriodStart    time.Time
	PeriodEnd      *time.Time
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewInvoice creates a PENDING invoice for the period [periodStart, periodEnd)
func NewInvoice(sub *Subscription, amount decimal.Decimal, currency Currency, periodStart time.Time, periodEnd *time.Time, now time.Time) (*Invoice, error) {
	if sub == nil {
		return nil, shared.NewDomainError("INVALID_SUBSCRIPTION", "Subscription cannot be empty")
	}
	if amount.IsNegative() {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Invoice amount cannot be negative")
	}
	if !currency.IsValid() {
		return nil, shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Unsupported currency %s", currency))
	}
	return &Invoice{
		ID:             NewInvoiceID(),
		SubscriptionID: sub.ID,
		UserID:         sub.UserID,
		Amount:         amount,
		Currency:       currency,
		Status:         InvoiceStatusPending,
		PeriodStart:    periodStart,
		PeriodEnd:      periodEnd,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// MarkAsPaid settles the invoice
func (i *Invoice) MarkAsPaid(now time.Time) error {
	if !i.Status.CanTransitionTo(InvoiceStatusPaid) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark invoice in %s status as paid", i.Status))
	}
	paidAt := now
	i.Status = InvoiceStatusPaid
	i.PaidAt = &paidAt
	i.UpdatedAt = now
	return nil
}

// MarkAsFailed records that the charge for this invoice failed
func (i *Invoice) MarkAsFailed(now time.Time) error {
	if !i.Status.CanTransitionTo(InvoiceStatusFailed) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark invoice in %s status as failed", i.Status))
	}
	i.Status = InvoiceStatusFailed
	i.UpdatedAt = now
	return nil
}
