package models

import (
	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/billing"
)

// PaymentMethodModel is the persistence model for stored billing keys
type PaymentMethodModel struct {
	BaseModel
	UserID     uuid.UUID                 `gorm:"type:uuid;not null;index"`
	BillingKey string                    `gorm:"type:varchar(200);not null"`
	Type       billing.PaymentMethodType `gorm:"type:varchar(20);not null"`
	CardLast4  string                    `gorm:"column:card_last4;type:varchar(4)"`
	CardBrand  string                    `gorm:"type:varchar(50)"`
	Active     bool                      `gorm:"not null;default:true"`
	IsDefault  bool                      `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (PaymentMethodModel) TableName() string {
	return "payment_methods"
}

// ToDomain converts the persistence model to a domain PaymentMethod
func (m *PaymentMethodModel) ToDomain() *billing.PaymentMethod {
	return &billing.PaymentMethod{
		BaseEntity: m.BaseModel.Entity(),
		UserID:     m.UserID,
		BillingKey: m.BillingKey,
		Type:       m.Type,
		CardLast4:  m.CardLast4,
		CardBrand:  m.CardBrand,
		Active:     m.Active,
		Default:    m.IsDefault,
	}
}

// FromDomain populates the persistence model from a domain PaymentMethod
func (m *PaymentMethodModel) FromDomain(pm *billing.PaymentMethod) {
	m.BaseModel = baseModelOf(pm.BaseEntity)
	m.UserID = pm.UserID
	m.BillingKey = pm.BillingKey
	m.Type = pm.Type
	m.CardLast4 = pm.CardLast4
	m.CardBrand = pm.CardBrand
	m.Active = pm.Active
	m.IsDefault = pm.Default
}

// PaymentMethodModelFromDomain creates a new persistence model from a domain PaymentMethod
func PaymentMethodModelFromDomain(pm *billing.PaymentMethod) *PaymentMethodModel {
	m := &PaymentMethodModel{}
	m.FromDomain(pm)
	return m
}
