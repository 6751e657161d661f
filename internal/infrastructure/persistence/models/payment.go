package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mockly/billing/internal/domain/billing"
)

// PaymentModel is the persistence model for payment attempts.
// The id doubles as the provider-side payment id.
type PaymentModel struct {
	ID             string                    `gorm:"type:varchar(64);primaryKey"`
	InvoiceID      string                    `gorm:"type:varchar(64);not null;index"`
	SubscriptionID uuid.UUID                 `gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID                 `gorm:"type:uuid;not null;index:idx_payments_user_created,priority:1"`
	ScheduleID     *string                   `gorm:"type:varchar(100)"`
	Amount         decimal.Decimal           `gorm:"type:numeric(19,4);not null"`
	Currency       billing.Currency          `gorm:"type:varchar(3);not null"`
	Status         billing.PaymentStatus     `gorm:"type:varchar(20);not null"`
	Method         billing.PaymentMethodType `gorm:"type:varchar(20)"`
	PaidAt         *time.Time
	FailureReason  string    `gorm:"type:varchar(500)"`
	CreatedAt      time.Time `gorm:"not null;index:idx_payments_user_created,priority:2"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *billing.Payment {
	return &billing.Payment{
		ID:             m.ID,
		InvoiceID:      m.InvoiceID,
		SubscriptionID: m.SubscriptionID,
		UserID:         m.UserID,
		ScheduleID:     m.ScheduleID,
		Amount:         m.Amount,
		Currency:       m.Currency,
		Status:         m.Status,
		Method:         m.Method,
		PaidAt:         m.PaidAt,
		FailureReason:  m.FailureReason,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *billing.Payment) {
	m.ID = p.ID
	m.InvoiceID = p.InvoiceID
	m.SubscriptionID = p.SubscriptionID
	m.UserID = p.UserID
	m.ScheduleID = p.ScheduleID
	m.Amount = p.Amount
	m.Currency = p.Currency
	m.Status = p.Status
	m.Method = p.Method
	m.PaidAt = p.PaidAt
	m.FailureReason = p.FailureReason
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *billing.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}
