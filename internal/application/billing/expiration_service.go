package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mockly/billing/internal/domain/billing"
)

const (
	// DefaultGracePeriod is how long a subscription may stay PAST_DUE
	DefaultGracePeriod = 7 * 24 * time.Hour
	// DefaultSweepBatchSize bounds the candidates handled by one sweep
	DefaultSweepBatchSize = 500
)

// SweepResult summarizes one expiration sweep
type SweepResult struct {
	Candidates int `json:"candidates"`
	Expired    int `json:"expired"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// ExpirationService expires subscriptions that stayed PAST_DUE beyond the grace period
type ExpirationService struct {
	txScope     TransactionScope
	gateway     billing.Gateway
	gracePeriod time.Duration
	batchSize   int
	metrics     Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// ExpirationServiceConfig contains configuration for ExpirationService
type ExpirationServiceConfig struct {
	TxScope     TransactionScope
	Gateway     billing.Gateway
	GracePeriod time.Duration
	BatchSize   int
	Metrics     Metrics
	Logger      *zap.Logger
	Clock       func() time.Time
}

// NewExpirationService creates a new ExpirationService
func NewExpirationService(cfg ExpirationServiceConfig) *ExpirationService {
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultSweepBatchSize
	}
	return &ExpirationService{
		txScope:     cfg.TxScope,
		gateway:     cfg.Gateway,
		gracePeriod: grace,
		batchSize:   batch,
		metrics:     metricsOrNop(cfg.Metrics),
		logger:      loggerOrNop(cfg.Logger),
		now:         clockOrDefault(cfg.Clock),
	}
}

// ExpirePastDue expires every PAST_DUE subscription last updated before
// now minus the grace period. Each subscription is handled in its own
// transaction, so one failure does not stop the sweep.
func (s *ExpirationService) ExpirePastDue(ctx context.Context) (*SweepResult, error) {
	cutoff := s.now().Add(-s.gracePeriod)

	var candidates []billing.Subscription
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		candidates, err = repos.SubscriptionRepo().FindPastDueBefore(ctx, cutoff, s.batchSize)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find past due subscriptions: %w", err)
	}

	result := &SweepResult{Candidates: len(candidates)}
	for i := range candidates {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		expired, err := s.expireOne(ctx, candidates[i].ID, cutoff)
		switch {
		case err != nil:
			result.Failed++
			s.metrics.RecordExpiration(ctx, OutcomeFailure)
			s.logger.Error("Failed to expire subscription",
				zap.String("subscription_id", candidates[i].ID.String()),
				zap.Error(err))
		case expired:
			result.Expired++
			s.metrics.RecordExpiration(ctx, OutcomeSuccess)
		default:
			result.Skipped++
			s.metrics.RecordExpiration(ctx, OutcomeSkipped)
		}
	}

	s.logger.Info("Past due sweep completed",
		zap.Time("cutoff", cutoff),
		zap.Int("candidates", result.Candidates),
		zap.Int("expired", result.Expired),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// expireOne re-checks the subscription under lock. The schedule is revoked
// best-effort; its id is only cleared when the revoke succeeded.
func (s *ExpirationService) expireOne(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	expired := false
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		sub, err := repos.SubscriptionRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to lock subscription: %w", err)
		}
		if sub.Status != billing.SubscriptionStatusPastDue || !sub.UpdatedAt.Before(cutoff) {
			return nil
		}

		now := s.now()
		if sub.HasSchedule() {
			scheduleID := sub.ScheduleID()
			if err := s.gateway.RevokeSchedule(ctx, scheduleID); err != nil {
				s.metrics.RecordSchedule(ctx, "revoke", outcomeOf(err))
				s.logger.Warn("Failed to revoke schedule of expiring subscription",
					zap.String("subscription_id", sub.ID.String()),
					zap.String("schedule_id", scheduleID),
					zap.Error(err))
			} else {
				s.metrics.RecordSchedule(ctx, "revoke", OutcomeSuccess)
				sub.ClearSchedule(now)
			}
		}
		if err := sub.Expire(now); err != nil {
			return err
		}
		if err := repos.SubscriptionRepo().Save(ctx, sub); err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		s.logger.Info("Subscription expired",
			zap.String("subscription_id", sub.ID.String()),
			zap.String("user_id", sub.UserID.String()))
		expired = true
		return nil
	})
	return expired, err
}
