package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/billing"
)

// SubscriptionModel is the persistence model for subscriptions
type SubscriptionModel struct {
	BaseModel
	UserID             uuid.UUID                  `gorm:"type:uuid;not null;index"`
	PlanID             uuid.UUID                  `gorm:"type:uuid;not null"`
	BillingCycle       billing.BillingCycle       `gorm:"type:varchar(20);not null"`
	Status             billing.SubscriptionStatus `gorm:"type:varchar(20);not null;index"`
	StartedAt          *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
	PaymentScheduleID  *string `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription
func (m *SubscriptionModel) ToDomain() *billing.Subscription {
	return &billing.Subscription{
		BaseEntity:         m.BaseModel.Entity(),
		UserID:             m.UserID,
		PlanID:             m.PlanID,
		BillingCycle:       m.BillingCycle,
		Status:             m.Status,
		StartedAt:          m.StartedAt,
		CurrentPeriodStart: m.CurrentPeriodStart,
		CurrentPeriodEnd:   m.CurrentPeriodEnd,
		CanceledAt:         m.CanceledAt,
		PaymentScheduleID:  m.PaymentScheduleID,
	}
}

// FromDomain populates the persistence model from a domain Subscription
func (m *SubscriptionModel) FromDomain(s *billing.Subscription) {
	m.BaseModel = baseModelOf(s.BaseEntity)
	m.UserID = s.UserID
	m.PlanID = s.PlanID
	m.BillingCycle = s.BillingCycle
	m.Status = s.Status
	m.StartedAt = s.StartedAt
	m.CurrentPeriodStart = s.CurrentPeriodStart
	m.CurrentPeriodEnd = s.CurrentPeriodEnd
	m.CanceledAt = s.CanceledAt
	m.PaymentScheduleID = s.PaymentScheduleID
}

// SubscriptionModelFromDomain creates a new persistence model from a domain Subscription
func SubscriptionModelFromDomain(s *billing.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{}
	m.FromDomain(s)
	return m
}
