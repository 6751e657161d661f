package dto

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
)

// CreateSubscriptionRequest purchases a paid plan with a billing key
type CreateSubscriptionRequest struct {
	PlanID        string           `json:"planId" binding:"required,uuid"`
	ExpectedPrice *decimal.Decimal `json:"expectedPrice" binding:"required,money"`
	BillingKey    string           `json:"billingKey" binding:"required,billing_key"`
}

// ChangePaymentMethodRequest points a subscription at another stored method
type ChangePaymentMethodRequest struct {
	PaymentMethodID string `json:"paymentMethodId" binding:"required,uuid"`
}

// AddPaymentMethodRequest registers a billing key issued by the payment window
type AddPaymentMethodRequest struct {
	BillingKey string `json:"billingKey" binding:"required,billing_key"`
}

// PaymentListQuery filters the payment history
type PaymentListQuery struct {
	Status string     `form:"status" binding:"omitempty,payment_status"`
	From   *time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To     *time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Page   int        `form:"page" binding:"omitempty,min=1"`
	Size   int        `form:"size" binding:"omitempty,min=1,max=20"`
	Sort   string     `form:"sort" binding:"omitempty,oneof=createdAt paidAt amount"`
	Order  string     `form:"order" binding:"omitempty,oneof=asc desc ASC DESC"`
}

// Filter converts the query into a repository filter
func (q PaymentListQuery) Filter() billing.PaymentFilter {
	f := billing.PaymentFilter{From: q.From, To: q.To, Page: q.Page, Size: q.Size, SortBy: q.Sort, SortOrder: q.Order}
	if q.Status != "" {
		status := billing.PaymentStatus(strings.ToUpper(q.Status))
		f.Status = &status
	}
	return f.Normalize()
}

// SubscriptionResponse is the API view of a subscription
type SubscriptionResponse struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"userId"`
	PlanID             uuid.UUID  `json:"planId"`
	BillingCycle       string     `json:"billingCycle"`
	Status             string     `json:"status"`
	StartedAt          *time.Time `json:"startedAt,omitempty"`
	CurrentPeriodStart *time.Time `json:"currentPeriodStart,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"currentPeriodEnd,omitempty"`
	CanceledAt         *time.Time `json:"canceledAt,omitempty"`
	RenewalScheduled   bool       `json:"renewalScheduled"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// ToSubscriptionResponse maps a subscription for the API
func ToSubscriptionResponse(s *billing.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                 s.ID,
		UserID:             s.UserID,
		PlanID:             s.PlanID,
		BillingCycle:       string(s.BillingCycle),
		Status:             string(s.Status),
		StartedAt:          s.StartedAt,
		CurrentPeriodStart: s.CurrentPeriodStart,
		CurrentPeriodEnd:   s.CurrentPeriodEnd,
		CanceledAt:         s.CanceledAt,
		RenewalScheduled:   s.PaymentScheduleID != nil,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// PaymentMethodResponse is the API view of a stored billing key. The key
// itself is never returned.
type PaymentMethodResponse struct {
	ID        uuid.UUID `json:"id"`
	Type      string    `json:"type"`
	CardLast4 string    `json:"cardLast4,omitempty"`
	CardBrand string    `json:"cardBrand,omitempty"`
	Default   bool      `json:"default"`
	CreatedAt time.Time `json:"createdAt"`
}

// ToPaymentMethodResponse maps a payment method for the API
func ToPaymentMethodResponse(m *billing.PaymentMethod) PaymentMethodResponse {
	return PaymentMethodResponse{
		ID:        m.ID,
		Type:      string(m.Type),
		CardLast4: m.CardLast4,
		CardBrand: m.CardBrand,
		Default:   m.Default,
		CreatedAt: m.CreatedAt,
	}
}

// ToPaymentMethodResponses maps a list of payment methods
func ToPaymentMethodResponses(methods []billing.PaymentMethod) []PaymentMethodResponse {
	out := make([]PaymentMethodResponse, len(methods))
	for i := range methods {
		out[i] = ToPaymentMethodResponse(&methods[i])
	}
	return out
}

// PaymentResponse is the API view of a charge attempt
type PaymentResponse struct {
	ID             string          `json:"id"`
	InvoiceID      string          `json:"invoiceId"`
	SubscriptionID uuid.UUID       `json:"subscriptionId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	Method         string          `json:"method"`
	Renewal        bool            `json:"renewal"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`
	FailureReason  string          `json:"failureReason,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ToPaymentResponse maps a payment for the API
func ToPaymentResponse(p *billing.Payment) PaymentResponse {
	return PaymentResponse{
		ID:             p.ID,
		InvoiceID:      p.InvoiceID,
		SubscriptionID: p.SubscriptionID,
		Amount:         p.Amount,
		Currency:       string(p.Currency),
		Status:         string(p.Status),
		Method:         string(p.Method),
		Renewal:        p.ScheduleID != nil,
		PaidAt:         p.PaidAt,
		FailureReason:  p.FailureReason,
		CreatedAt:      p.CreatedAt,
	}
}

// ToPaymentResponses maps one page of payments
func ToPaymentResponses(page *appbilling.PaymentPage) []PaymentResponse {
	out := make([]PaymentResponse, len(page.Items))
	for i := range page.Items {
		out[i] = ToPaymentResponse(&page.Items[i])
	}
	return out
}

// InvoiceResponse is the API view of an invoice
type InvoiceResponse struct {
	ID             string          `json:"id"`
	SubscriptionID uuid.UUID       `json:"subscriptionId"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	PeriodStart    time.Time       `json:"periodStart"`
	PeriodEnd      *time.Time      `json:"periodEnd,omitempty"`
	PaidAt         *time.Time      `json:"paidAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// ToInvoiceResponse maps an invoice for the API
func ToInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:             inv.ID,
		SubscriptionID: inv.SubscriptionID,
		Amount:         inv.Amount,
		Currency:       string(inv.Currency),
		Status:         string(inv.Status),
		PeriodStart:    inv.PeriodStart,
		PeriodEnd:      inv.PeriodEnd,
		PaidAt:         inv.PaidAt,
		CreatedAt:      inv.CreatedAt,
	}
}

// WebhookResponse acknowledges a webhook delivery
type WebhookResponse struct {
	Processed bool   `json:"processed"`
	EventType string `json:"eventType,omitempty"`
	Message   string `json:"message,omitempty"`
}

// SweepResponse reports a manual past-due sweep
type SweepResponse struct {
	Candidates int `json:"candidates"`
	Expired    int `json:"expired"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// OutboxStatsResponse counts outbox events by status
type OutboxStatsResponse struct {
	Pending   int64 `json:"pending"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}
