package models

import (
	"github.com/shopspring/decimal"

	"github.com/mockly/billing/internal/domain/billing"
)

// PlanModel is the persistence model for the plan catalog
type PlanModel struct {
	BaseModel
	ProductName  string               `gorm:"type:varchar(100);not null"`
	Name         string               `gorm:"type:varchar(100);not null"`
	BillingCycle billing.BillingCycle `gorm:"type:varchar(20);not null"`
	Price        decimal.Decimal      `gorm:"type:numeric(19,4);not null"`
	Currency     billing.Currency     `gorm:"type:varchar(3);not null"`
	Active       bool                 `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (PlanModel) TableName() string {
	return "plans"
}

// ToDomain converts the persistence model to a domain Plan
func (m *PlanModel) ToDomain() *billing.Plan {
	return &billing.Plan{
		ID:           m.ID,
		ProductName:  m.ProductName,
		Name:         m.Name,
		BillingCycle: m.BillingCycle,
		Price:        m.Price,
		Currency:     m.Currency,
		Active:       m.Active,
	}
}

// FromDomain populates the persistence model from a domain Plan
func (m *PlanModel) FromDomain(p *billing.Plan) {
	m.ID = p.ID
	m.ProductName = p.ProductName
	m.Name = p.Name
	m.BillingCycle = p.BillingCycle
	m.Price = p.Price
	m.Currency = p.Currency
	m.Active = p.Active
}

// PlanModelFromDomain creates a new persistence model from a domain Plan
func PlanModelFromDomain(p *billing.Plan) *PlanModel {
	m := &PlanModel{}
	m.FromDomain(p)
	return m
}
