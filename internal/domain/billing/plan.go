package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillingCycle represents how often a plan is charged
type BillingCycle string

const (
	BillingCycleMonthly  BillingCycle = "MONTHLY"
	BillingCycleYearly   BillingCycle = "YEARLY"
	BillingCycleLifetime BillingCycle = "LIFETIME"
)

// IsValid checks if the cycle is a known BillingCycle
func (c BillingCycle) IsValid() bool {
	switch c {
	case BillingCycleMonthly, BillingCycleYearly, BillingCycleLifetime:
		return true
	}
	return false
}

// String returns the string representation of BillingCycle
func (c BillingCycle) String() string {
	return string(c)
}

// PeriodEnd returns the end of a billing period that starts at start.
// Lifetime periods are unbounded and return nil.
func (c BillingCycle) PeriodEnd(start time.Time) *time.Time {
	var end time.Time
	switch c {
	case BillingCycleMonthly:
		end = start.AddDate(0, 1, 0)
	case BillingCycleYearly:
		end = start.AddDate(1, 0, 0)
	default:
		return nil
	}
	return &end
}

// Currency is an ISO 4217 code supported by the provider
type Currency string

const (
	CurrencyKRW Currency = "KRW"
	CurrencyUSD Currency = "USD"
)

// IsValid checks if the currency is supported
func (c Currency) IsValid() bool {
	return c == CurrencyKRW || c == CurrencyUSD
}

// String returns the string representation of Currency
func (c Currency) String() string {
	return string(c)
}

// Plan is a read-only catalog entry that subscriptions are bought against
type Plan struct {
	ID           uuid.UUID
	ProductName  string
	Name         string
	BillingCycle BillingCycle
	Price        decimal.Decimal
	Currency     Currency
	Active       bool
}

// IsFree reports whether the plan is granted rather than purchased
func (p *Plan) IsFree() bool {
	return p.Price.IsZero()
}

// PurchaseOrderName is the order name shown for the first charge of a plan
func (p *Plan) PurchaseOrderName() string {
	return fmt.Sprintf("%s - %s", p.ProductName, p.BillingCycle)
}

// RenewalOrderName is the order name used for scheduled renewal charges
func (p *Plan) RenewalOrderName() string {
	return fmt.Sprintf("%s - RENEWAL", p.ProductName)
}
