package billing

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway errors. Adapters wrap them with %w so callers can classify failures.
var (
	// ErrGatewayUnavailable means the request may or may not have reached the provider
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrGatewayTimeout means the call ran past its deadline; the outcome is unknown
	ErrGatewayTimeout = errors.New("payment gateway timeout")
	// ErrGatewayRequestFailed means the provider rejected the request
	ErrGatewayRequestFailed = errors.New("payment gateway request failed")
	// ErrGatewayCircuitOpen means the call was not attempted
	ErrGatewayCircuitOpen = errors.New("payment gateway circuit open")
	// ErrBillingKeyNotRecognized means the provider does not know the billing key
	ErrBillingKeyNotRecognized = errors.New("billing key not recognized")
)

// IsUncertain reports whether a gateway error leaves the outcome of the call
// unknown. A charge that ends this way must not be recorded as failed.
func IsUncertain(err error) bool {
	return errors.Is(err, ErrGatewayTimeout) || errors.Is(err, ErrGatewayUnavailable)
}

// ProviderPaymentStatus is the provider's view of a payment
type ProviderPaymentStatus string

const (
	ProviderPaymentStatusReady     ProviderPaymentStatus = "READY"
	ProviderPaymentStatusPending   ProviderPaymentStatus = "PENDING"
	ProviderPaymentStatusPaid      ProviderPaymentStatus = "PAID"
	ProviderPaymentStatusFailed    ProviderPaymentStatus = "FAILED"
	ProviderPaymentStatusCancelled ProviderPaymentStatus = "CANCELLED"
)

// BillingKeyInfo describes a billing key recognized by the provider
type BillingKeyInfo struct {
	BillingKey string
	Methods    []MethodInfo
	IssuedAt   time.Time
}

// PrimaryMethod returns the first method attached to the key, or UnknownMethod
func (b *BillingKeyInfo) PrimaryMethod() MethodInfo {
	if b == nil || len(b.Methods) == 0 {
		return UnknownMethod{}
	}
	return b.Methods[0]
}

// ChargeRequest is an immediate charge against a billing key
type ChargeRequest struct {
	PaymentID  string
	BillingKey string
	OrderName  string
	Currency   Currency
	Amount     decimal.Decimal
}

// ChargeResult is the provider's acknowledgement of a successful charge
type ChargeResult struct {
	PaymentID string
	PGTxID    string
	PaidAt    time.Time
}

// ScheduleRequest registers a future charge at ExecuteAt
type ScheduleRequest struct {
	PaymentID  string
	BillingKey string
	OrderName  string
	Currency   Currency
	Amount     decimal.Decimal
	ExecuteAt  time.Time
}

// PaymentDetail is the authoritative provider record for a payment
type PaymentDetail struct {
	ID            string
	Status        ProviderPaymentStatus
	BillingKey    string
	Method        MethodInfo
	FailureReason string
	PGMessage     string
	PaidAt        *time.Time
}

// FailureMessage picks the most specific failure text available
func (d *PaymentDetail) FailureMessage() string {
	switch {
	case d == nil:
		return DefaultFailureReason
	case d.FailureReason != "":
		return d.FailureReason
	case d.PGMessage != "":
		return d.PGMessage
	}
	return DefaultFailureReason
}

// DefaultFailureReason is recorded when the provider gives no failure text
const DefaultFailureReason = "payment failed"

// Gateway is the port to the external payment provider.
// Every call is a blocking network call bounded by the adapter's timeout.
type Gateway interface {
	// GetBillingKey returns ErrBillingKeyNotRecognized for unknown keys
	GetBillingKey(ctx context.Context, billingKey string) (*BillingKeyInfo, error)
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	// CreateSchedule returns the provider schedule id
	CreateSchedule(ctx context.Context, req ScheduleRequest) (string, error)
	RevokeSchedule(ctx context.Context, scheduleID string) error
	GetPaymentDetail(ctx context.Context, paymentID string) (*PaymentDetail, error)
}
