package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mockly/billing/internal/domain/shared"
)

// PaymentStatus represents the status of a payment attempt
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusCanceled PaymentStatus = "CANCELED"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo checks if the status can transition to the target status
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case PaymentStatusPending:
		return target == PaymentStatusPaid || target == PaymentStatusFailed || target == PaymentStatusCanceled
	case PaymentStatusPaid:
		return target == PaymentStatusCanceled
	case PaymentStatusFailed:
		return target == PaymentStatusPaid || target == PaymentStatusCanceled
	}
	return false
}

// maxFailureReasonLength bounds the stored provider failure text
const maxFailureReasonLength = 500

// Payment is one charge attempt for an invoice. Its ID is the provider payment id.
// ScheduleID is set when the charge is executed by a provider schedule.
type Payment struct {
	ID             string
	InvoiceID      string
	SubscriptionID uuid.UUID
	UserID         uuid.UUID
	ScheduleID     *string
	Amount         decimal.Decimal
	Currency       Currency
	Status         PaymentStatus
	Method         PaymentMethodType
	PaidAt         *time.Time
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPayment creates a PENDING payment for invoice
func NewPayment(invoice *Invoice, now time.Time) (*Payment, error) {
	if invoice == nil {
		return nil, shared.NewDomainError("INVALID_INVOICE", "Invoice cannot be empty")
	}
	return &Payment{
		ID:             NewPaymentID(),
		InvoiceID:      invoice.ID,
		SubscriptionID: invoice.SubscriptionID,
		UserID:         invoice.UserID,
		Amount:         invoice.Amount,
		Currency:       invoice.Currency,
		Status:         PaymentStatusPending,
		Method:         PaymentMethodTypeUnknown,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// MarkAsPaid records a successful charge made with method
func (p *Payment) MarkAsPaid(method PaymentMethodType, now time.Time) error {
	if !p.Status.CanTransitionTo(PaymentStatusPaid) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark payment in %s status as paid", p.Status))
	}
	paidAt := now
	p.Status = PaymentStatusPaid
	p.Method = method
	p.PaidAt = &paidAt
	p.FailureReason = ""
	p.UpdatedAt = now
	return nil
}

// MarkAsFailed records a failed charge
func (p *Payment) MarkAsFailed(reason string, now time.Time) error {
	if !p.Status.CanTransitionTo(PaymentStatusFailed) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark payment in %s status as failed", p.Status))
	}
	p.Status = PaymentStatusFailed
	p.FailureReason = truncate(reason, maxFailureReasonLength)
	p.UpdatedAt = now
	return nil
}

// Cancel records a provider-side cancellation
func (p *Payment) Cancel(now time.Time) error {
	if !p.Status.CanTransitionTo(PaymentStatusCanceled) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel payment in %s status", p.Status))
	}
	p.Status = PaymentStatusCanceled
	p.UpdatedAt = now
	return nil
}

// AttachSchedule links the payment to the provider schedule that will execute it
func (p *Payment) AttachSchedule(scheduleID string, now time.Time) {
	id := scheduleID
	p.ScheduleID = &id
	p.UpdatedAt = now
}

// ExecutedBy reports whether this payment was charged by the given schedule
func (p *Payment) ExecutedBy(scheduleID string) bool {
	return p.ScheduleID != nil && scheduleID != "" && *p.ScheduleID == scheduleID
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
