package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
	"github.com/mockly/billing/internal/infrastructure/telemetry"
)

// WebhookResult contains the result of processing a webhook
type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Processed bool   `json:"processed"`
	Message   string `json:"message,omitempty"`
}

// WebhookReconciler applies provider payment notifications to the ledger.
// Deliveries only carry identifiers; the payment detail is always fetched from
// the gateway before anything is marked paid.
type WebhookReconciler struct {
	txScope        TransactionScope
	gateway        billing.Gateway
	verifier       billing.WebhookVerifier
	schedules      *PaymentScheduleService
	idempotency    shared.IdempotencyStore
	idempotencyTTL time.Duration
	metrics        Metrics
	logger         *zap.Logger
	now            func() time.Time
}

// WebhookReconcilerConfig contains configuration for WebhookReconciler
type WebhookReconcilerConfig struct {
	TxScope   TransactionScope
	Gateway   billing.Gateway
	Verifier  billing.WebhookVerifier
	Schedules *PaymentScheduleService
	// Idempotency is optional; without it every delivery is processed
	Idempotency    shared.IdempotencyStore
	IdempotencyTTL time.Duration
	Metrics        Metrics
	Logger         *zap.Logger
	Clock          func() time.Time
}

// NewWebhookReconciler creates a new WebhookReconciler
func NewWebhookReconciler(cfg WebhookReconcilerConfig) *WebhookReconciler {
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = shared.DefaultIdempotencyTTL
	}
	return &WebhookReconciler{
		txScope:        cfg.TxScope,
		gateway:        cfg.Gateway,
		verifier:       cfg.Verifier,
		schedules:      cfg.Schedules,
		idempotency:    cfg.Idempotency,
		idempotencyTTL: ttl,
		metrics:        metricsOrNop(cfg.Metrics),
		logger:         loggerOrNop(cfg.Logger),
		now:            clockOrDefault(cfg.Clock),
	}
}

// Process verifies and applies one delivery. Verification failures wrap
// billing.ErrWebhookVerification; any other error means the provider should
// redeliver.
func (r *WebhookReconciler) Process(ctx context.Context, req billing.WebhookRequest) (result *WebhookResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "webhook.process", attribute.String("webhook_id", req.ID))
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
	}()

	event, err := r.verifier.Verify(req)
	if err != nil {
		r.metrics.RecordWebhook(ctx, "unverified", OutcomeFailure)
		r.logger.Warn("Failed to verify webhook",
			zap.String("webhook_id", req.ID),
			zap.Error(err))
		if !errors.Is(err, billing.ErrWebhookVerification) {
			err = fmt.Errorf("%w: %v", billing.ErrWebhookVerification, err)
		}
		return nil, err
	}

	eventType := string(event.Type)
	span.SetAttributes(
		attribute.String("event_type", eventType),
		attribute.String("payment_id", event.PaymentID),
	)
	result = &WebhookResult{
		EventID:   req.ID,
		EventType: eventType,
		Processed: true,
	}

	r.logger.Info("Processing payment webhook",
		zap.String("webhook_id", req.ID),
		zap.String("event_type", eventType),
		zap.String("payment_id", event.PaymentID))

	if r.seen(ctx, req.ID) {
		r.metrics.RecordWebhook(ctx, eventType, OutcomeDuplicate)
		r.logger.Info("Duplicate webhook delivery ignored",
			zap.String("webhook_id", req.ID))
		result.Message = "Duplicate delivery"
		return result, nil
	}

	switch event.Type {
	case billing.WebhookEventTransactionPaid:
		result.Message, err = r.handlePaid(ctx, event.PaymentID)
	case billing.WebhookEventTransactionFailed:
		result.Message, err = r.handleFailed(ctx, event.PaymentID)
	case billing.WebhookEventTransactionCancelled:
		result.Message, err = r.handleCancelled(ctx, event.PaymentID)
	default:
		r.logger.Debug("Unhandled webhook event type",
			zap.String("event_type", eventType))
		result.Message = "Event type not handled"
	}

	if err != nil {
		r.metrics.RecordWebhook(ctx, eventType, OutcomeFailure)
		r.logger.Error("Failed to process payment webhook",
			zap.String("webhook_id", req.ID),
			zap.String("event_type", eventType),
			zap.String("payment_id", event.PaymentID),
			zap.Error(err))
		result.Processed = false
		result.Message = err.Error()
		return result, err
	}

	r.remember(ctx, req.ID)
	r.metrics.RecordWebhook(ctx, eventType, OutcomeSuccess)
	return result, nil
}

// seen reports whether webhookID was already applied. A store error counts
// as unseen; the handlers are idempotent against the ledger.
func (r *WebhookReconciler) seen(ctx context.Context, webhookID string) bool {
	if r.idempotency == nil || webhookID == "" {
		return false
	}
	processed, err := r.idempotency.IsProcessed(ctx, webhookID)
	if err != nil {
		r.logger.Warn("Idempotency store unavailable, processing anyway",
			zap.String("webhook_id", webhookID),
			zap.Error(err))
		return false
	}
	return processed
}

// remember records webhookID once its changes are committed. It runs on a
// detached context so an expired request still records the delivery.
func (r *WebhookReconciler) remember(ctx context.Context, webhookID string) {
	if r.idempotency == nil || webhookID == "" {
		return
	}
	if _, err := r.idempotency.MarkProcessed(context.WithoutCancel(ctx), webhookID, r.idempotencyTTL); err != nil {
		r.logger.Warn("Failed to record webhook delivery",
			zap.String("webhook_id", webhookID),
			zap.Error(err))
	}
}

// lockPayment loads the payment, locks its subscription and reloads the
// payment under that lock. A nil payment means the id is unknown.
func lockPayment(ctx context.Context, repos TransactionalRepositories, paymentID string) (*billing.Payment, *billing.Subscription, error) {
	payment, err := repos.PaymentRepo().FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("failed to load payment: %w", err)
	}
	sub, err := repos.SubscriptionRepo().FindByIDForUpdate(ctx, payment.SubscriptionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock subscription %s: %w", payment.SubscriptionID, err)
	}
	payment, err = repos.PaymentRepo().FindByID(ctx, paymentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to reload payment: %w", err)
	}
	return payment, sub, nil
}

// handlePaid settles a payment the provider reports as paid and advances the
// subscription: first payment activates it, a scheduled renewal extends it.
// Either way the next renewal is scheduled.
func (r *WebhookReconciler) handlePaid(ctx context.Context, paymentID string) (string, error) {
	var message string
	err := r.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		payment, sub, err := lockPayment(ctx, repos, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			r.logger.Warn("Paid webhook for unknown payment", zap.String("payment_id", paymentID))
			message = "Unknown payment"
			return nil
		}
		if payment.Status == billing.PaymentStatusPaid {
			message = "Payment already paid"
			return nil
		}

		detail, err := r.gateway.GetPaymentDetail(ctx, paymentID)
		if err != nil {
			return fmt.Errorf("failed to fetch payment detail: %w", err)
		}
		if detail.Status != billing.ProviderPaymentStatusPaid {
			r.logger.Warn("Paid webhook not confirmed by provider",
				zap.String("payment_id", paymentID),
				zap.String("provider_status", string(detail.Status)))
			message = "Payment not paid at provider"
			return nil
		}
		if detail.BillingKey == "" {
			r.logger.Error("Paid payment has no billing key",
				zap.String("payment_id", paymentID))
			message = "Payment has no billing key"
			return nil
		}

		now := r.now()
		paidAt := now
		if detail.PaidAt != nil {
			paidAt = *detail.PaidAt
		}
		if err := payment.MarkAsPaid(billing.MethodTypeOf(detail.Method), paidAt); err != nil {
			r.logger.Warn("Ignoring paid webhook for payment in terminal state",
				zap.String("payment_id", paymentID),
				zap.String("status", string(payment.Status)))
			message = "Payment cannot be marked paid"
			return nil
		}
		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		invoice, err := r.settleInvoice(ctx, repos, payment.InvoiceID, now)
		if err != nil {
			return err
		}

		message, err = r.advanceOnPaid(ctx, repos, sub, payment, invoice, detail.BillingKey, now)
		return err
	})
	return message, err
}

func (r *WebhookReconciler) settleInvoice(ctx context.Context, repos TransactionalRepositories, invoiceID string, now time.Time) (*billing.Invoice, error) {
	invoice, err := repos.InvoiceRepo().FindByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load invoice: %w", err)
	}
	if invoice.Status == billing.InvoiceStatusPaid {
		return invoice, nil
	}
	if err := invoice.MarkAsPaid(now); err != nil {
		return nil, err
	}
	if err := repos.InvoiceRepo().Save(ctx, invoice); err != nil {
		return nil, fmt.Errorf("failed to save invoice: %w", err)
	}
	return invoice, nil
}

func (r *WebhookReconciler) advanceOnPaid(
	ctx context.Context,
	repos TransactionalRepositories,
	sub *billing.Subscription,
	payment *billing.Payment,
	invoice *billing.Invoice,
	billingKey string,
	now time.Time,
) (string, error) {
	switch {
	case sub.Status == billing.SubscriptionStatusPending:
		if err := sub.Activate(now); err != nil {
			return "", err
		}
		if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
			return "", fmt.Errorf("failed to save subscription: %w", err)
		}
		r.logger.Info("Subscription activated by webhook",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("payment_id", payment.ID))
		return "Subscription activated", r.scheduleNext(ctx, repos, sub, billingKey, now)

	case isRenewal(sub, payment, invoice):
		sub.ClearSchedule(now)
		if err := sub.ExtendPeriod(now); err != nil {
			return "", err
		}
		if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
			return "", fmt.Errorf("failed to save subscription: %w", err)
		}
		r.logger.Info("Subscription renewed",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("payment_id", payment.ID),
			zap.Timep("period_end", sub.CurrentPeriodEnd))
		return "Subscription renewed", r.scheduleNext(ctx, repos, sub, billingKey, now)
	}

	if sub.Status.IsTerminal() {
		// A schedule that outlived its subscription charged the user.
		r.logger.Error("Payment collected for ended subscription",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("user_id", sub.UserID.String()),
			zap.String("status", sub.Status.String()),
			zap.String("payment_id", payment.ID),
			zap.Stringp("schedule_id", payment.ScheduleID),
			zap.String("amount", payment.Amount.String()))
		return "Payment recorded for ended subscription", nil
	}

	r.logger.Debug("Paid webhook leaves subscription unchanged",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("status", sub.Status.String()),
		zap.String("schedule_id", sub.ScheduleID()))
	return "Payment recorded", nil
}

// isRenewal reports whether payment settles a later period of an ACTIVE or
// PAST_DUE subscription. While the subscription holds a schedule only that
// schedule's payment counts. Without one, a payment counts if it was
// scheduled or if its invoice starts after the current period began, which
// covers a schedule the provider registered on a call that timed out.
func isRenewal(sub *billing.Subscription, payment *billing.Payment, invoice *billing.Invoice) bool {
	if sub.Status != billing.SubscriptionStatusActive && sub.Status != billing.SubscriptionStatusPastDue {
		return false
	}
	if sub.HasSchedule() {
		return payment.ExecutedBy(sub.ScheduleID())
	}
	if payment.ScheduleID != nil {
		return true
	}
	return sub.CurrentPeriodStart != nil && invoice.PeriodStart.After(*sub.CurrentPeriodStart)
}

// scheduleNext registers the next renewal. When the provider refuses, the
// subscription is marked PAST_DUE instead of failing the delivery, since the
// payment itself is already settled.
func (r *WebhookReconciler) scheduleNext(
	ctx context.Context,
	repos TransactionalRepositories,
	sub *billing.Subscription,
	billingKey string,
	now time.Time,
) error {
	start, end, err := sub.NextPeriod()
	if err != nil {
		return nil
	}
	plan, err := repos.PlanRepo().FindByID(ctx, sub.PlanID)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}
	if _, err := r.schedules.CreateSchedule(ctx, repos, sub, plan, billingKey, start, end); err != nil {
		r.logger.Error("Failed to schedule next renewal, marking past due",
			zap.String("subscription_id", sub.ID.String()),
			zap.Error(err))
		if pastDueErr := sub.MarkAsPastDue(now); pastDueErr != nil {
			return pastDueErr
		}
		if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
	}
	return nil
}

// handleFailed records a failed charge. A failed renewal moves an ACTIVE
// subscription to PAST_DUE. Any other subscription is left as it is: a failed
// first charge was already reported to the buyer, and a PENDING subscription
// whose charges all failed is superseded by the next purchase.
func (r *WebhookReconciler) handleFailed(ctx context.Context, paymentID string) (string, error) {
	var message string
	err := r.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		payment, sub, err := lockPayment(ctx, repos, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			r.logger.Warn("Failed webhook for unknown payment", zap.String("payment_id", paymentID))
			message = "Unknown payment"
			return nil
		}
		if !payment.Status.CanTransitionTo(billing.PaymentStatusFailed) {
			r.logger.Info("Ignoring failed webhook",
				zap.String("payment_id", paymentID),
				zap.String("status", string(payment.Status)))
			message = "Payment already settled"
			return nil
		}

		reason := billing.DefaultFailureReason
		detail, err := r.gateway.GetPaymentDetail(ctx, paymentID)
		if err != nil {
			r.logger.Warn("Failed to fetch payment detail, using default reason",
				zap.String("payment_id", paymentID),
				zap.Error(err))
		} else {
			if detail.Status == billing.ProviderPaymentStatusPaid {
				r.logger.Warn("Failed webhook contradicts provider status",
					zap.String("payment_id", paymentID))
				message = "Payment is paid at provider"
				return nil
			}
			reason = detail.FailureMessage()
		}

		now := r.now()
		if err := payment.MarkAsFailed(reason, now); err != nil {
			return err
		}
		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		invoice, err := repos.InvoiceRepo().FindByID(ctx, payment.InvoiceID)
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

		if payment.ExecutedBy(sub.ScheduleID()) {
			sub.ClearSchedule(now)
		}
		switch sub.Status {
		case billing.SubscriptionStatusActive:
			if err := sub.MarkAsPastDue(now); err != nil {
				return err
			}
			message = "Subscription past due"
			r.logger.Info("Renewal failed, subscription past due",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("payment_id", paymentID),
				zap.String("reason", reason))
		default:
			message = "Payment failure recorded"
			r.logger.Info("Payment failed for subscription that is not active",
				zap.String("subscription_id", sub.ID.String()),
				zap.String("payment_id", paymentID),
				zap.String("status", sub.Status.String()),
				zap.String("reason", reason))
		}
		if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		return nil
	})
	return message, err
}

// handleCancelled records a provider-side cancellation and cancels the
// subscription with it
func (r *WebhookReconciler) handleCancelled(ctx context.Context, paymentID string) (string, error) {
	var message string
	err := r.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		payment, sub, err := lockPayment(ctx, repos, paymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			r.logger.Warn("Cancelled webhook for unknown payment", zap.String("payment_id", paymentID))
			message = "Unknown payment"
			return nil
		}
		if payment.Status == billing.PaymentStatusCanceled {
			message = "Payment already canceled"
			return nil
		}

		now := r.now()
		if err := payment.Cancel(now); err != nil {
			return err
		}
		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}

		if !sub.Status.CanTransitionTo(billing.SubscriptionStatusCanceled) {
			message = "Payment canceled"
			return nil
		}
		if sub.HasSchedule() {
			scheduleID := sub.ScheduleID()
			if err := r.gateway.RevokeSchedule(ctx, scheduleID); err != nil {
				r.metrics.RecordSchedule(ctx, "revoke", outcomeOf(err))
				r.logger.Warn("Failed to revoke schedule of canceled subscription",
					zap.String("subscription_id", sub.ID.String()),
					zap.String("schedule_id", scheduleID),
					zap.Error(err))
			} else {
				r.metrics.RecordSchedule(ctx, "revoke", OutcomeSuccess)
				sub.ClearSchedule(now)
			}
		}
		if err := sub.Cancel(now); err != nil {
			return err
		}
		if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		r.logger.Info("Subscription canceled by provider cancellation",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("payment_id", paymentID))
		message = "Subscription canceled"
		return nil
	})
	return message, err
}
