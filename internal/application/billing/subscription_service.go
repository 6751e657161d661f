package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
)

// DefaultPaymentMethodBlackout is how long before the next charge a payment
// method change is refused
const DefaultPaymentMethodBlackout = time.Hour

// CreateSubscriptionInput is a purchase request
type CreateSubscriptionInput struct {
	UserID        uuid.UUID
	PlanID        uuid.UUID
	ExpectedPrice decimal.Decimal
	BillingKey    string
}

// SubscriptionService runs the subscription use cases: purchase, cancellation,
// free plan assignment, payment method change and outbox schedule creation.
type SubscriptionService struct {
	txScope   TransactionScope
	gateway   billing.Gateway
	schedules *PaymentScheduleService
	metrics   Metrics
	logger    *zap.Logger
	now       func() time.Time
	blackout  time.Duration
}

// SubscriptionServiceConfig contains configuration for SubscriptionService
type SubscriptionServiceConfig struct {
	TxScope   TransactionScope
	Gateway   billing.Gateway
	Schedules *PaymentScheduleService
	Metrics   Metrics
	Logger    *zap.Logger
	Clock     func() time.Time
	// PaymentMethodBlackout defaults to DefaultPaymentMethodBlackout
	PaymentMethodBlackout time.Duration
}

// NewSubscriptionService creates a new SubscriptionService
func NewSubscriptionService(cfg SubscriptionServiceConfig) *SubscriptionService {
	blackout := cfg.PaymentMethodBlackout
	if blackout <= 0 {
		blackout = DefaultPaymentMethodBlackout
	}
	return &SubscriptionService{
		txScope:   cfg.TxScope,
		gateway:   cfg.Gateway,
		schedules: cfg.Schedules,
		metrics:   metricsOrNop(cfg.Metrics),
		logger:    loggerOrNop(cfg.Logger),
		now:       clockOrDefault(cfg.Clock),
		blackout:  blackout,
	}
}

// purchase carries the rows written by the first purchase transaction
type purchase struct {
	sub       *billing.Subscription
	invoiceID string
	paymentID string
	eventID   uuid.UUID
	revoke    []string
}

// Create purchases a paid plan. The first charge runs outside any transaction;
// the renewal schedule is created later from the outbox.
//
// A definite charge failure cancels the new subscription and returns
// ErrPaymentFailed. An uncertain outcome returns the PENDING subscription
// together with ErrPaymentPending and leaves settlement to the webhook.
func (s *SubscriptionService) Create(ctx context.Context, in CreateSubscriptionInput) (*billing.Subscription, error) {
	plan, err := s.loadPurchasablePlan(ctx, in)
	if err != nil {
		return nil, err
	}
	keyInfo, err := lookupBillingKey(ctx, s.gateway, in.BillingKey)
	if err != nil {
		return nil, err
	}

	p, err := s.reservePurchase(ctx, in, plan)
	if err != nil {
		return nil, err
	}
	for _, scheduleID := range p.revoke {
		s.revokeBestEffort(ctx, p.sub.UserID, scheduleID)
	}

	_, chargeErr := s.gateway.Charge(ctx, billing.ChargeRequest{
		PaymentID:  p.paymentID,
		BillingKey: in.BillingKey,
		OrderName:  plan.PurchaseOrderName(),
		Currency:   plan.Currency,
		Amount:     plan.Price,
	})

	switch {
	case chargeErr == nil:
		s.metrics.RecordCharge(ctx, OutcomeSuccess)
		sub, err := s.settlePurchase(ctx, p, in.BillingKey, keyInfo)
		if err != nil {
			// The money moved; the paid webhook will finish the ledger.
			s.logger.Error("Failed to record successful charge",
				zap.String("subscription_id", p.sub.ID.String()),
				zap.String("payment_id", p.paymentID),
				zap.Error(err))
			return p.sub, billing.ErrPaymentPending
		}
		return sub, nil

	case billing.IsUncertain(chargeErr):
		s.metrics.RecordCharge(ctx, OutcomeUncertain)
		s.logger.Warn("Charge outcome unknown, awaiting webhook",
			zap.String("subscription_id", p.sub.ID.String()),
			zap.String("payment_id", p.paymentID),
			zap.Error(chargeErr))
		return p.sub, billing.ErrPaymentPending

	default:
		s.metrics.RecordCharge(ctx, OutcomeFailure)
		reason := chargeErr.Error()
		if err := s.abandonPurchase(ctx, p, reason); err != nil {
			s.logger.Error("Failed to record declined charge",
				zap.String("subscription_id", p.sub.ID.String()),
				zap.String("payment_id", p.paymentID),
				zap.Error(err))
		}
		s.logger.Info("Charge declined",
			zap.String("subscription_id", p.sub.ID.String()),
			zap.String("payment_id", p.paymentID),
			zap.String("reason", reason))
		return nil, shared.NewDomainError(billing.ErrPaymentFailed.Code,
			fmt.Sprintf("%s: %s", billing.ErrPaymentFailed.Message, reason))
	}
}

func (s *SubscriptionService) loadPurchasablePlan(ctx context.Context, in CreateSubscriptionInput) (*billing.Plan, error) {
	var plan *billing.Plan
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		p, err := repos.PlanRepo().FindByID(ctx, in.PlanID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return billing.ErrPlanNotFound
			}
			return fmt.Errorf("failed to load plan: %w", err)
		}
		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !plan.Active {
		return nil, billing.ErrPlanNotFound
	}
	if plan.IsFree() {
		return nil, billing.ErrFreePlanNotPurchasable
	}
	if !plan.Price.Equal(in.ExpectedPrice) {
		return nil, billing.ErrPriceMismatch
	}
	return plan, nil
}

// reservePurchase writes the PENDING subscription, invoice, payment and the
// SCHEDULE_CREATE outbox event in one transaction
func (s *SubscriptionService) reservePurchase(ctx context.Context, in CreateSubscriptionInput, plan *billing.Plan) (*purchase, error) {
	p := &purchase{}
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		now := s.now()
		p.revoke = p.revoke[:0]

		existing, err := repos.SubscriptionRepo().FindByUserAndStatuses(ctx, in.UserID,
			billing.SubscriptionStatusPending, billing.SubscriptionStatusActive, billing.SubscriptionStatusPastDue)
		if err != nil {
			return fmt.Errorf("failed to load subscriptions: %w", err)
		}
		for i := range existing {
			cur := &existing[i]
			scheduleID, err := s.resolveExisting(ctx, repos, cur, plan, now)
			if err != nil {
				return err
			}
			if scheduleID != "" {
				p.revoke = append(p.revoke, scheduleID)
			}
		}

		sub, err := billing.NewSubscription(in.UserID, plan, now)
		if err != nil {
			return err
		}
		if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
			if errors.Is(err, billing.ErrAlreadySubscribed) {
				// a concurrent purchase committed first
				return billing.ErrAlreadySubscribed
			}
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		invoice, err := billing.NewInvoice(sub, plan.Price, plan.Currency, now, plan.BillingCycle.PeriodEnd(now), now)
		if err != nil {
			return err
		}
		if err := repos.InvoiceRepo().Save(ctx, invoice); err != nil {
			return fmt.Errorf("failed to save invoice: %w", err)
		}

		payment, err := billing.NewPayment(invoice, now)
		if err != nil {
			return err
		}
		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}

		event, err := billing.NewScheduleCreateEvent(sub.ID, in.BillingKey, now)
		if err != nil {
			return err
		}
		if err := repos.OutboxRepo().Save(ctx, event); err != nil {
			return fmt.Errorf("failed to save outbox event: %w", err)
		}

		p.sub = sub
		p.invoiceID = invoice.ID
		p.paymentID = payment.ID
		p.eventID = event.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// resolveExisting decides what happens to a subscription the user already
// holds when buying plan. It returns a schedule id to revoke after commit.
func (s *SubscriptionService) resolveExisting(
	ctx context.Context,
	repos TransactionalRepositories,
	cur *billing.Subscription,
	plan *billing.Plan,
	now time.Time,
) (string, error) {
	switch cur.Status {
	case billing.SubscriptionStatusPending:
		abandoned, err := firstChargeFailed(ctx, repos, cur.ID)
		if err != nil {
			return "", err
		}
		if !abandoned {
			return "", billing.ErrAlreadySubscribed
		}
	case billing.SubscriptionStatusActive:
		if cur.PlanID == plan.ID {
			return "", billing.ErrAlreadySubscribed
		}
		curPlan, err := repos.PlanRepo().FindByID(ctx, cur.PlanID)
		if err != nil {
			return "", fmt.Errorf("failed to load plan of subscription %s: %w", cur.ID, err)
		}
		if !curPlan.IsFree() {
			return "", billing.ErrAlreadySubscribed
		}
	case billing.SubscriptionStatusPastDue:
	default:
		return "", nil
	}

	scheduleID := cur.ScheduleID()
	if err := cur.Cancel(now); err != nil {
		return "", err
	}
	cur.ClearSchedule(now)
	if err := repos.SubscriptionRepo().Save(ctx, cur); err != nil {
		return "", fmt.Errorf("failed to save subscription: %w", err)
	}
	s.logger.Info("Superseded subscription canceled",
		zap.String("subscription_id", cur.ID.String()),
		zap.String("user_id", cur.UserID.String()))
	return scheduleID, nil
}

// firstChargeFailed reports whether every charge of a PENDING subscription
// ended FAILED or CANCELED, which leaves nothing that could still activate it
func firstChargeFailed(ctx context.Context, repos TransactionalRepositories, subscriptionID uuid.UUID) (bool, error) {
	payments, err := repos.PaymentRepo().FindBySubscription(ctx, subscriptionID)
	if err != nil {
		return false, fmt.Errorf("failed to load payments of subscription %s: %w", subscriptionID, err)
	}
	if len(payments) == 0 {
		return false, nil
	}
	for _, p := range payments {
		if p.Status == billing.PaymentStatusPending || p.Status == billing.PaymentStatusPaid {
			return false, nil
		}
	}
	return true, nil
}

// settlePurchase records a successful first charge
func (s *SubscriptionService) settlePurchase(
	ctx context.Context,
	p *purchase,
	billingKey string,
	keyInfo *billing.BillingKeyInfo,
) (*billing.Subscription, error) {
	var result *billing.Subscription
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		now := s.now()
		sub, err := repos.SubscriptionRepo().FindByIDForUpdate(ctx, p.sub.ID)
		if err != nil {
			return fmt.Errorf("failed to lock subscription: %w", err)
		}
		payment, err := repos.PaymentRepo().FindByID(ctx, p.paymentID)
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		invoice, err := repos.InvoiceRepo().FindByID(ctx, p.invoiceID)
		if err != nil {
			return fmt.Errorf("failed to load invoice: %w", err)
		}

		primary := keyInfo.PrimaryMethod()
		if payment.Status != billing.PaymentStatusPaid {
			if err := payment.MarkAsPaid(billing.MethodTypeOf(primary), now); err != nil {
				return err
			}
			if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
				return fmt.Errorf("failed to save payment: %w", err)
			}
		}
		if invoice.Status != billing.InvoiceStatusPaid {
			if err := invoice.MarkAsPaid(now); err != nil {
				return err
			}
			if err := repos.InvoiceRepo().Save(ctx, invoice); err != nil {
				return fmt.Errorf("failed to save invoice: %w", err)
			}
		}
		if sub.Status == billing.SubscriptionStatusPending {
			if err := sub.Activate(now); err != nil {
				return err
			}
			if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
				return fmt.Errorf("failed to save subscription: %w", err)
			}
		}

		if err := s.rememberMethod(ctx, repos, sub.UserID, billingKey, primary, now); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Subscription purchased",
		zap.String("subscription_id", result.ID.String()),
		zap.String("user_id", result.UserID.String()),
		zap.String("payment_id", p.paymentID),
		zap.String("status", result.Status.String()))
	return result, nil
}

// rememberMethod stores the purchase billing key and makes it the default
func (s *SubscriptionService) rememberMethod(
	ctx context.Context,
	repos TransactionalRepositories,
	userID uuid.UUID,
	billingKey string,
	method billing.MethodInfo,
	now time.Time,
) error {
	pm, err := repos.PaymentMethodRepo().FindActiveByBillingKey(ctx, userID, billingKey)
	if errors.Is(err, shared.ErrNotFound) {
		pm, err = billing.NewPaymentMethod(userID, billingKey, method, now)
		if err != nil {
			return err
		}
		if err := repos.PaymentMethodRepo().Save(ctx, pm); err != nil {
			return fmt.Errorf("failed to save payment method: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to look up payment method: %w", err)
	}
	return setDefaultMethod(ctx, repos, pm, now)
}

// abandonPurchase records a declined first charge and cancels the subscription
func (s *SubscriptionService) abandonPurchase(ctx context.Context, p *purchase, reason string) error {
	return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		now := s.now()
		sub, err := repos.SubscriptionRepo().FindByIDForUpdate(ctx, p.sub.ID)
		if err != nil {
			return fmt.Errorf("failed to lock subscription: %w", err)
		}
		payment, err := repos.PaymentRepo().FindByID(ctx, p.paymentID)
		if err != nil {
			return fmt.Errorf("failed to load payment: %w", err)
		}
		if payment.Status != billing.PaymentStatusPending {
			// A webhook settled the payment first; it owns the outcome.
			return nil
		}
		if err := payment.MarkAsFailed(reason, now); err != nil {
			return err
		}
		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}

		invoice, err := repos.InvoiceRepo().FindByID(ctx, p.invoiceID)
		if err != nil {
			return fmt.Errorf("failed to load invoice: %w", err)
		}
		if invoice.Status == billing.InvoiceStatusPending {
			if err := invoice.MarkAsFailed(now); err != nil {
				return err
			}
			if err := repos.InvoiceRepo().Save(ctx, invoice); err != nil {
				return fmt.Errorf("failed to save invoice: %w", err)
			}
		}

		if sub.Status == billing.SubscriptionStatusPending {
			if err := sub.Cancel(now); err != nil {
				return err
			}
			if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
				return fmt.Errorf("failed to save subscription: %w", err)
			}
		}

		event, err := repos.OutboxRepo().LockForProcessing(ctx, p.eventID)
		switch {
		case errors.Is(err, shared.ErrNotFound):
			// A worker holds the event and will find the subscription canceled.
		case err != nil:
			return fmt.Errorf("failed to lock outbox event: %w", err)
		case event.IsPending():
			event.MarkFailed("initial payment failed: "+reason, now)
			if err := repos.OutboxRepo().Save(ctx, event); err != nil {
				return fmt.Errorf("failed to save outbox event: %w", err)
			}
		}
		return nil
	})
}

// ProcessScheduleCreation handles a SCHEDULE_CREATE outbox event inside the
// caller's transaction. Errors wrapping billing.ErrNonRetryable must not be retried.
func (s *SubscriptionService) ProcessScheduleCreation(ctx context.Context, repos TransactionalRepositories, event *billing.OutboxEvent) error {
	payload, err := event.SchedulePayload()
	if err != nil {
		return fmt.Errorf("%w: %v", billing.ErrNonRetryable, err)
	}
	subID, err := uuid.Parse(payload.SubscriptionID)
	if err != nil {
		return fmt.Errorf("%w: invalid subscription id %q", billing.ErrNonRetryable, payload.SubscriptionID)
	}

	sub, err := repos.SubscriptionRepo().FindByIDForUpdate(ctx, subID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("%w: subscription %s not found", billing.ErrNonRetryable, subID)
		}
		return fmt.Errorf("failed to lock subscription: %w", err)
	}

	if sub.HasSchedule() {
		s.logger.Debug("Subscription already scheduled",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("schedule_id", sub.ScheduleID()))
		return nil
	}

	switch sub.Status {
	case billing.SubscriptionStatusActive:
	case billing.SubscriptionStatusPending:
		return fmt.Errorf("subscription %s is not yet active", sub.ID)
	case billing.SubscriptionStatusCanceled, billing.SubscriptionStatusExpired:
		s.logger.Info("Skipping schedule creation for ended subscription",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("status", sub.Status.String()))
		return nil
	default:
		return fmt.Errorf("%w: subscription %s is %s", billing.ErrNonRetryable, sub.ID, sub.Status)
	}

	plan, err := repos.PlanRepo().FindByID(ctx, sub.PlanID)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}
	start, end, err := sub.NextPeriod()
	if err != nil {
		s.logger.Info("Subscription does not renew",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("billing_cycle", sub.BillingCycle.String()))
		return nil
	}

	_, err = s.schedules.CreateSchedule(ctx, repos, sub, plan, payload.BillingKey, start, end)
	return err
}

// GetActive returns the user's current subscription, preferring ACTIVE over
// PAST_DUE over PENDING
func (s *SubscriptionService) GetActive(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	var current *billing.Subscription
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		subs, err := repos.SubscriptionRepo().FindByUserAndStatuses(ctx, userID,
			billing.SubscriptionStatusActive, billing.SubscriptionStatusPastDue, billing.SubscriptionStatusPending)
		if err != nil {
			return err
		}
		current = pickCurrent(subs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load subscriptions: %w", err)
	}
	if current == nil {
		return nil, shared.ErrNotFound
	}
	return current, nil
}

func pickCurrent(subs []billing.Subscription) *billing.Subscription {
	for _, status := range []billing.SubscriptionStatus{
		billing.SubscriptionStatusActive,
		billing.SubscriptionStatusPastDue,
		billing.SubscriptionStatusPending,
	} {
		for i := range subs {
			if subs[i].Status == status {
				return &subs[i]
			}
		}
	}
	return nil
}

// Cancel ends an ACTIVE subscription owned by userID. The provider schedule is
// revoked first; if that fails nothing changes so no renewal charge is orphaned.
func (s *SubscriptionService) Cancel(ctx context.Context, userID, subscriptionID uuid.UUID) (*billing.Subscription, error) {
	var sub *billing.Subscription
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		sub, err = loadOwnedSubscription(ctx, repos, userID, subscriptionID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !sub.IsActive() {
		return nil, billing.ErrSubscriptionNotActive
	}

	revoked := sub.ScheduleID()
	if revoked != "" {
		if err := s.gateway.RevokeSchedule(ctx, revoked); err != nil {
			s.metrics.RecordSchedule(ctx, "revoke", outcomeOf(err))
			s.logger.Error("Failed to revoke schedule on cancel",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("schedule_id", revoked),
				zap.Error(err))
			return nil, fmt.Errorf("%w: schedule %s: %v", billing.ErrScheduleRevokeFailed, revoked, err)
		}
		s.metrics.RecordSchedule(ctx, "revoke", OutcomeSuccess)
	}

	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		locked, err := repos.SubscriptionRepo().FindByIDForUpdate(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("failed to lock subscription: %w", err)
		}
		if !locked.IsActive() {
			return billing.ErrSubscriptionNotActive
		}
		now := s.now()
		if revoked != "" && locked.ScheduleID() == revoked {
			locked.ClearSchedule(now)
		}
		if err := locked.Cancel(now); err != nil {
			return err
		}
		if err := repos.SubscriptionRepo().Save(ctx, locked); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		sub = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Subscription canceled",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("user_id", userID.String()))
	return sub, nil
}

// AssignFreePlan grants the free LIFETIME plan to a new user. A user who
// already holds a subscription keeps it.
func (s *SubscriptionService) AssignFreePlan(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	var result *billing.Subscription
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		existing, err := repos.SubscriptionRepo().FindByUserAndStatuses(ctx, userID,
			billing.SubscriptionStatusActive, billing.SubscriptionStatusPastDue, billing.SubscriptionStatusPending)
		if err != nil {
			return fmt.Errorf("failed to load subscriptions: %w", err)
		}
		if cur := pickCurrent(existing); cur != nil {
			result = cur
			return nil
		}

		plan, err := repos.PlanRepo().FindFreePlan(ctx)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return billing.ErrPlanNotFound
			}
			return fmt.Errorf("failed to load free plan: %w", err)
		}

		now := s.now()
		sub, err := billing.NewSubscription(userID, plan, now)
		if err != nil {
			return err
		}
		if err := sub.Activate(now); err != nil {
			return err
		}
		if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		s.logger.Info("Free plan assigned",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("user_id", userID.String()))
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ChangePaymentMethod moves renewals of an ACTIVE subscription to another stored
// payment method by replacing its provider schedule.
//
// If the old schedule cannot be revoked nothing changes. If it was revoked but
// the new one cannot be created, the subscription is committed as PAST_DUE so
// the missing schedule is visible, and the error is returned.
func (s *SubscriptionService) ChangePaymentMethod(ctx context.Context, userID, subscriptionID, paymentMethodID uuid.UUID) (*billing.Subscription, error) {
	var (
		result    *billing.Subscription
		createErr error
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		sub, err := loadOwnedSubscription(ctx, repos, userID, subscriptionID, true)
		if err != nil {
			return err
		}
		if !sub.IsActive() {
			return billing.ErrSubscriptionNotActive
		}
		now := s.now()
		if sub.RenewalBlackoutActive(now, s.blackout) {
			return billing.ErrBlackoutWindow
		}

		method, err := loadOwnedMethod(ctx, repos, userID, paymentMethodID)
		if err != nil {
			return err
		}
		plan, err := repos.PlanRepo().FindByID(ctx, sub.PlanID)
		if err != nil {
			return fmt.Errorf("failed to load plan: %w", err)
		}

		if plan.IsFree() || sub.CurrentPeriodEnd == nil {
			// Nothing renews, so there is no schedule to move.
			if err := setDefaultMethod(ctx, repos, method, now); err != nil {
				return err
			}
			result = sub
			return nil
		}

		if _, err := s.schedules.ReplaceSchedule(ctx, repos, sub, plan, method.BillingKey); err != nil {
			if errors.Is(err, billing.ErrScheduleRevokeFailed) {
				return err
			}
			if pastDueErr := sub.MarkAsPastDue(s.now()); pastDueErr != nil {
				return err
			}
			if saveErr := repos.SubscriptionRepo().Save(ctx, sub); saveErr != nil {
				return fmt.Errorf("failed to save subscription: %w", saveErr)
			}
			s.logger.Warn("Subscription left without schedule, marked past due",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err))
			createErr = err
			result = sub
			return nil
		}

		if err := setDefaultMethod(ctx, repos, method, s.now()); err != nil {
			return err
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	if createErr != nil {
		return result, createErr
	}

	s.logger.Info("Subscription payment method changed",
		zap.String("subscription_id", result.ID.String()),
		zap.String("payment_method_id", paymentMethodID.String()),
		zap.String("schedule_id", result.ScheduleID()))
	return result, nil
}

// loadOwnedSubscription returns the subscription if it belongs to userID,
// optionally locking it
func loadOwnedSubscription(ctx context.Context, repos TransactionalRepositories, userID, subscriptionID uuid.UUID, lock bool) (*billing.Subscription, error) {
	var (
		sub *billing.Subscription
		err error
	)
	if lock {
		sub, err = repos.SubscriptionRepo().FindByIDForUpdate(ctx, subscriptionID)
	} else {
		sub, err = repos.SubscriptionRepo().FindByID(ctx, subscriptionID)
	}
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID {
		return nil, shared.ErrForbidden
	}
	return sub, nil
}

func (s *SubscriptionService) revokeBestEffort(ctx context.Context, userID uuid.UUID, scheduleID string) {
	if err := s.gateway.RevokeSchedule(ctx, scheduleID); err != nil {
		s.metrics.RecordSchedule(ctx, "revoke", outcomeOf(err))
		s.logger.Error("Failed to revoke schedule of superseded subscription",
			zap.String("user_id", userID.String()),
			zap.String("schedule_id", scheduleID),
			zap.Error(err))
		return
	}
	s.metrics.RecordSchedule(ctx, "revoke", OutcomeSuccess)
}
