package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/shared"
)

// SubscriptionStatus represents the status of a subscription
type SubscriptionStatus string

const (
	SubscriptionStatusPending  SubscriptionStatus = "PENDING"
	SubscriptionStatusActive   SubscriptionStatus = "ACTIVE"
	SubscriptionStatusPastDue  SubscriptionStatus = "PAST_DUE"
	SubscriptionStatusCanceled SubscriptionStatus = "CANCELED"
	SubscriptionStatusExpired  SubscriptionStatus = "EXPIRED"
)

// IsValid checks if the status is a valid SubscriptionStatus
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionStatusPending, SubscriptionStatusActive, SubscriptionStatusPastDue,
		SubscriptionStatusCanceled, SubscriptionStatusExpired:
		return true
	}
	return false
}

// String returns the string representation of SubscriptionStatus
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCanceled || s == SubscriptionStatusExpired
}

// CanTransitionTo checks if the status can transition to the target status
func (s SubscriptionStatus) CanTransitionTo(target SubscriptionStatus) bool {
	switch s {
	case SubscriptionStatusPending:
		return target == SubscriptionStatusActive || target == SubscriptionStatusCanceled
	case SubscriptionStatusActive:
		return target == SubscriptionStatusPastDue || target == SubscriptionStatusCanceled
	case SubscriptionStatusPastDue:
		return target == SubscriptionStatusActive || target == SubscriptionStatusExpired ||
			target == SubscriptionStatusCanceled
	case SubscriptionStatusCanceled, SubscriptionStatusExpired:
		return false
	}
	return false
}

// Subscription is a user's entitlement to a plan.
// BillingCycle is copied from the plan at creation so period math never needs the catalog.
type Subscription struct {
	shared.BaseEntity
	UserID             uuid.UUID
	PlanID             uuid.UUID
	BillingCycle       BillingCycle
	Status             SubscriptionStatus
	StartedAt          *time.Time
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CanceledAt         *time.Time
	PaymentScheduleID  *string
}

// NewSubscription creates a PENDING subscription of userID to plan
func NewSubscription(userID uuid.UUID, plan *Plan, now time.Time) (*Subscription, error) {
	if userID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_USER", "User ID cannot be empty")
	}
	if plan == nil {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan cannot be empty")
	}
	if !plan.BillingCycle.IsValid() {
		return nil, shared.NewDomainError("INVALID_PLAN", fmt.Sprintf("Unknown billing cycle %s", plan.BillingCycle))
	}
	return &Subscription{
		BaseEntity:   shared.NewBaseEntity(now),
		UserID:       userID,
		PlanID:       plan.ID,
		BillingCycle: plan.BillingCycle,
		Status:       SubscriptionStatusPending,
	}, nil
}

// Activate starts the first billing period. Valid only from PENDING;
// callers check the status first to keep activation idempotent.
func (s *Subscription) Activate(now time.Time) error {
	if s.Status != SubscriptionStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot activate subscription in %s status", s.Status))
	}
	start := now
	s.Status = SubscriptionStatusActive
	s.StartedAt = &start
	s.restartPeriod(now)
	s.Touch(now)
	return nil
}

// ExtendPeriod restarts the billing period at now after a successful renewal.
// A PAST_DUE subscription recovers to ACTIVE.
func (s *Subscription) ExtendPeriod(now time.Time) error {
	switch s.Status {
	case SubscriptionStatusActive:
	case SubscriptionStatusPastDue:
		s.Status = SubscriptionStatusActive
	default:
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot extend subscription in %s status", s.Status))
	}
	s.restartPeriod(now)
	s.Touch(now)
	return nil
}

// MarkAsPastDue flags an ACTIVE subscription whose continued billing is not guaranteed
func (s *Subscription) MarkAsPastDue(now time.Time) error {
	if s.Status != SubscriptionStatusActive {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot mark subscription in %s status as past due", s.Status))
	}
	s.Status = SubscriptionStatusPastDue
	s.Touch(now)
	return nil
}

// Cancel ends the subscription. Revoking the provider schedule is the caller's job.
func (s *Subscription) Cancel(now time.Time) error {
	if !s.Status.CanTransitionTo(SubscriptionStatusCanceled) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot cancel subscription in %s status", s.Status))
	}
	canceledAt := now
	s.Status = SubscriptionStatusCanceled
	s.CanceledAt = &canceledAt
	s.Touch(now)
	return nil
}

// Expire ends a PAST_DUE subscription whose grace period has elapsed
func (s *Subscription) Expire(now time.Time) error {
	if s.Status != SubscriptionStatusPastDue {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot expire subscription in %s status", s.Status))
	}
	s.Status = SubscriptionStatusExpired
	s.Touch(now)
	return nil
}

// AssignSchedule records the provider schedule that will charge the next period
func (s *Subscription) AssignSchedule(scheduleID string, now time.Time) {
	id := scheduleID
	s.PaymentScheduleID = &id
	s.Touch(now)
}

// ClearSchedule forgets the provider schedule after it was revoked or consumed
func (s *Subscription) ClearSchedule(now time.Time) {
	s.PaymentScheduleID = nil
	s.Touch(now)
}

// HasSchedule reports whether a provider schedule is registered
func (s *Subscription) HasSchedule() bool {
	return s.PaymentScheduleID != nil && *s.PaymentScheduleID != ""
}

// ScheduleID returns the registered schedule id or an empty string
func (s *Subscription) ScheduleID() string {
	if s.PaymentScheduleID == nil {
		return ""
	}
	return *s.PaymentScheduleID
}

// IsActive reports whether the subscription is ACTIVE
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// NextPeriod returns the bounds of the period following the current one
func (s *Subscription) NextPeriod() (time.Time, *time.Time, error) {
	if s.CurrentPeriodEnd == nil {
		return time.Time{}, nil, shared.NewDomainError("NO_NEXT_PERIOD", "Subscription has no renewable billing period")
	}
	start := *s.CurrentPeriodEnd
	return start, s.BillingCycle.PeriodEnd(start), nil
}

// RenewalBlackoutActive reports whether now falls inside the window before the
// next scheduled charge during which the schedule must not be replaced
func (s *Subscription) RenewalBlackoutActive(now time.Time, window time.Duration) bool {
	if s.CurrentPeriodEnd == nil || window <= 0 {
		return false
	}
	return !now.Before(s.CurrentPeriodEnd.Add(-window))
}

func (s *Subscription) restartPeriod(now time.Time) {
	start := now
	s.CurrentPeriodStart = &start
	s.CurrentPeriodEnd = s.BillingCycle.PeriodEnd(now)
}
