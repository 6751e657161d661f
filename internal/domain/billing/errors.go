package billing

import (
	"errors"

	"github.com/mockly/billing/internal/domain/shared"
)

// Business errors surfaced to callers of the billing services
var (
	ErrPlanNotFound           = shared.NewDomainError("PLAN_NOT_FOUND", "Plan not found")
	ErrFreePlanNotPurchasable = shared.NewDomainError("FREE_PLAN_NOT_PURCHASABLE", "Free plans are granted automatically and cannot be purchased")
	ErrPriceMismatch          = shared.NewDomainError("PRICE_MISMATCH", "Expected price does not match the plan price")
	ErrAlreadySubscribed      = shared.NewDomainError("ALREADY_SUBSCRIBED", "User already holds a paid subscription")
	ErrInvalidBillingKey      = shared.NewDomainError("INVALID_BILLING_KEY", "Billing key is not valid")
	ErrPaymentFailed          = shared.NewDomainError("PAYMENT_FAILED", "Payment was declined")
	ErrPaymentPending         = shared.NewDomainError("PAYMENT_PENDING", "Payment outcome is not yet known")
	ErrSubscriptionNotActive  = shared.NewDomainError("NOT_ACTIVE", "Subscription is not active")
	ErrBlackoutWindow         = shared.NewDomainError("BLACKOUT_WINDOW", "Payment method cannot be changed this close to the next charge")
	ErrDefaultMethodInUse     = shared.NewDomainError("DEFAULT_METHOD_IN_USE", "Default payment method is in use by an active subscription")
	ErrDuplicateBillingKey    = shared.NewDomainError("DUPLICATE_BILLING_KEY", "Billing key is already registered")
	ErrUnsupportedMethod      = shared.NewDomainError("UNSUPPORTED_METHOD", "Only card payment methods can be registered")
	ErrScheduleRevokeFailed   = shared.NewDomainError("SCHEDULE_REVOKE_FAILED", "Existing payment schedule could not be revoked")
)

// ErrNonRetryable marks outbox failures that no amount of retrying will fix
var ErrNonRetryable = errors.New("non-retryable")
