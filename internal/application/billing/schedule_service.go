package billing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mockly/billing/internal/domain/billing"
)

// PaymentScheduleService creates the Invoice/Payment pair of a billing period and
// registers the provider schedule that will charge it.
type PaymentScheduleService struct {
	gateway billing.Gateway
	metrics Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// PaymentScheduleServiceConfig contains configuration for PaymentScheduleService
type PaymentScheduleServiceConfig struct {
	Gateway billing.Gateway
	Metrics Metrics
	Logger  *zap.Logger
	Clock   func() time.Time
}

// NewPaymentScheduleService creates a new PaymentScheduleService
func NewPaymentScheduleService(cfg PaymentScheduleServiceConfig) *PaymentScheduleService {
	return &PaymentScheduleService{
		gateway: cfg.Gateway,
		metrics: metricsOrNop(cfg.Metrics),
		logger:  loggerOrNop(cfg.Logger),
		now:     clockOrDefault(cfg.Clock),
	}
}

// CreateSchedule records the PENDING Invoice and Payment for the period
// [periodStart, periodEnd) and registers a provider charge for it at
// periodStart. The rows are written before the gateway call and are left to
// the caller's transaction when the gateway refuses, so a schedule the
// provider registered despite an uncertain error still finds its payment.
func (s *PaymentScheduleService) CreateSchedule(
	ctx context.Context,
	repos TransactionalRepositories,
	sub *billing.Subscription,
	plan *billing.Plan,
	billingKey string,
	periodStart time.Time,
	periodEnd *time.Time,
) (string, error) {
	now := s.now()

	invoice, err := billing.NewInvoice(sub, plan.Price, plan.Currency, periodStart, periodEnd, now)
	if err != nil {
		return "", err
	}
	payment, err := billing.NewPayment(invoice, now)
	if err != nil {
		return "", err
	}
	if err := repos.InvoiceRepo().Save(ctx, invoice); err != nil {
		return "", fmt.Errorf("failed to save invoice: %w", err)
	}
	if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
		return "", fmt.Errorf("failed to save payment: %w", err)
	}

	scheduleID, err := s.gateway.CreateSchedule(ctx, billing.ScheduleRequest{
		PaymentID:  payment.ID,
		BillingKey: billingKey,
		OrderName:  plan.RenewalOrderName(),
		Currency:   plan.Currency,
		Amount:     plan.Price,
		ExecuteAt:  periodStart,
	})
	if err != nil {
		s.metrics.RecordSchedule(ctx, "create", outcomeOf(err))
		s.logger.Error("Failed to create payment schedule",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("payment_id", payment.ID),
			zap.Time("execute_at", periodStart),
			zap.Error(err))
		return "", fmt.Errorf("failed to create payment schedule for subscription %s: %w", sub.ID, err)
	}

	payment.AttachSchedule(scheduleID, now)
	sub.AssignSchedule(scheduleID, now)
	if err := s.attachSchedule(ctx, repos, sub, payment); err != nil {
		if revokeErr := s.gateway.RevokeSchedule(ctx, scheduleID); revokeErr != nil {
			s.logger.Error("Failed to revoke unrecorded payment schedule",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("schedule_id", scheduleID),
				zap.Error(revokeErr))
		}
		sub.ClearSchedule(now)
		return "", err
	}

	s.metrics.RecordSchedule(ctx, "create", OutcomeSuccess)
	s.logger.Info("Payment schedule created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("payment_id", payment.ID),
		zap.String("schedule_id", scheduleID),
		zap.Time("execute_at", periodStart))

	return scheduleID, nil
}

func (s *PaymentScheduleService) attachSchedule(
	ctx context.Context,
	repos TransactionalRepositories,
	sub *billing.Subscription,
	payment *billing.Payment,
) error {
	if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
		return fmt.Errorf("failed to save payment: %w", err)
	}
	if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
		return fmt.Errorf("failed to save subscription: %w", err)
	}
	return nil
}

// ReplaceSchedule revokes the current schedule and registers a new one for the
// next period with billingKey. A revoke failure aborts before anything changes,
// since two live schedules could bill the user twice. After a successful revoke
// the cleared schedule id is saved before the new schedule is attempted.
func (s *PaymentScheduleService) ReplaceSchedule(
	ctx context.Context,
	repos TransactionalRepositories,
	sub *billing.Subscription,
	plan *billing.Plan,
	billingKey string,
) (string, error) {
	if sub.HasSchedule() {
		oldID := sub.ScheduleID()
		if err := s.gateway.RevokeSchedule(ctx, oldID); err != nil {
			s.metrics.RecordSchedule(ctx, "revoke", outcomeOf(err))
			s.logger.Error("Failed to revoke payment schedule",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("schedule_id", oldID),
				zap.Error(err))
			return "", fmt.Errorf("%w: schedule %s: %v", billing.ErrScheduleRevokeFailed, oldID, err)
		}
		s.metrics.RecordSchedule(ctx, "revoke", OutcomeSuccess)
		sub.ClearSchedule(s.now())
		if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
			return "", fmt.Errorf("failed to save subscription: %w", err)
		}
		s.logger.Info("Payment schedule revoked for replacement",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("schedule_id", oldID))
	}

	start, end, err := sub.NextPeriod()
	if err != nil {
		return "", err
	}
	return s.CreateSchedule(ctx, repos, sub, plan, billingKey, start, end)
}

func outcomeOf(err error) string {
	if billing.IsUncertain(err) {
		return OutcomeUncertain
	}
	return OutcomeFailure
}

func metricsOrNop(m Metrics) Metrics {
	if m == nil {
		return NopMetrics{}
	}
	return m
}

func loggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func clockOrDefault(c func() time.Time) func() time.Time {
	if c == nil {
		return time.Now
	}
	return c
}
