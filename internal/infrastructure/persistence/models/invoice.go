package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mockly/billing/internal/domain/billing"
)

// InvoiceModel is the persistence model for invoices.
// Invoices are keyed by the time-ordered string id sent to the payment provider.
type InvoiceModel struct {
	ID             string                `gorm:"type:varchar(64);primaryKey"`
	SubscriptionID uuid.UUID             `gorm:"type:uuid;not null;index"`
	UserID         uuid.UUID             `gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal       `gorm:"type:numeric(19,4);not null"`
	Currency       billing.Currency      `gorm:"type:varchar(3);not null"`
	Status         billing.InvoiceStatus `gorm:"type:varchar(20);not null"`
	PeriodStart    time.Time             `gorm:"not null"`
	PeriodEnd      *time.Time
	PaidAt         *time.Time
	Timestamps
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	return &billing.Invoice{
		ID:             m.ID,
		SubscriptionID: m.SubscriptionID,
		UserID:         m.UserID,
		Amount:         m.Amount,
		Currency:       m.Currency,
		Status:         m.Status,
		PeriodStart:    m.PeriodStart,
		PeriodEnd:      m.PeriodEnd,
		PaidAt:         m.PaidAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Invoice
func (m *InvoiceModel) FromDomain(i *billing.Invoice) {
	m.ID = i.ID
	m.SubscriptionID = i.SubscriptionID
	m.UserID = i.UserID
	m.Amount = i.Amount
	m.Currency = i.Currency
	m.Status = i.Status
	m.PeriodStart = i.PeriodStart
	m.PeriodEnd = i.PeriodEnd
	m.PaidAt = i.PaidAt
	m.CreatedAt = i.CreatedAt
	m.UpdatedAt = i.UpdatedAt
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice
func InvoiceModelFromDomain(i *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(i)
	return m
}
