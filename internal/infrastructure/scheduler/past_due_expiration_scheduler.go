package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/infrastructure/telemetry"
)

// PastDueSweeper expires subscriptions that stayed PAST_DUE beyond the grace period
type PastDueSweeper interface {
	ExpirePastDue(ctx context.Context) (*appbilling.SweepResult, error)
}

// PastDueExpirationSchedulerConfig holds configuration for the daily sweep
type PastDueExpirationSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// RunHour is the hour (0-23) when the daily sweep runs
	RunHour int

	// Location is the time zone RunHour is interpreted in; nil means time.Local
	Location *time.Location

	// RunTimeout is the maximum time for one sweep
	RunTimeout time.Duration
}

// DefaultPastDueExpirationSchedulerConfig returns default configuration
func DefaultPastDueExpirationSchedulerConfig() PastDueExpirationSchedulerConfig {
	return PastDueExpirationSchedulerConfig{
		Enabled:    true,
		RunHour:    3,
		RunTimeout: 15 * time.Minute,
	}
}

// Validate checks the configuration
func (c PastDueExpirationSchedulerConfig) Validate() error {
	if c.RunHour < 0 || c.RunHour > 23 {
		return fmt.Errorf("%w: run hour %d out of range", ErrInvalidConfig, c.RunHour)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("%w: run timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// PastDueExpirationScheduler runs the past-due sweep once a day
type PastDueExpirationScheduler struct {
	sweeper PastDueSweeper
	logger  *zap.Logger
	config  PastDueExpirationSchedulerConfig
	now     func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	inFlight  atomic.Bool
}

// NewPastDueExpirationScheduler creates a new past-due expiration scheduler
func NewPastDueExpirationScheduler(
	sweeper PastDueSweeper,
	logger *zap.Logger,
	config PastDueExpirationSchedulerConfig,
) *PastDueExpirationScheduler {
	if config.Location == nil {
		config.Location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PastDueExpirationScheduler{
		sweeper: sweeper,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// Start starts the daily sweep loop
func (s *PastDueExpirationScheduler) Start(ctx context.Context) error {
	if err := s.config.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Past-due expiration scheduler is disabled")
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.isRunning = true
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runDaily(ctx)

	s.logger.Info("Past-due expiration scheduler started",
		zap.Int("run_hour", s.config.RunHour),
		zap.String("location", s.config.Location.String()),
	)
	return nil
}

// Stop gracefully stops the scheduler, waiting for an in-flight sweep
func (s *PastDueExpirationScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Past-due expiration scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Past-due expiration scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is running
func (s *PastDueExpirationScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// NextRun returns the first configured run time strictly after now
func (s *PastDueExpirationScheduler) NextRun(now time.Time) time.Time {
	local := now.In(s.config.Location)
	next := time.Date(local.Year(), local.Month(), local.Day(), s.config.RunHour, 0, 0, 0, s.config.Location)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *PastDueExpirationScheduler) runDaily(ctx context.Context) {
	defer s.wg.Done()

	for {
		nextRun := s.NextRun(s.now())
		delay := nextRun.Sub(s.now())

		s.logger.Info("Past-due sweep scheduled",
			zap.Time("next_run", nextRun),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.execute(ctx); err != nil && err != ErrRunInProgress {
				s.logger.Error("Past-due sweep failed", zap.Error(err))
			}
		}
	}
}

// execute runs one sweep bounded by RunTimeout. Overlapping runs are refused.
func (s *PastDueExpirationScheduler) execute(ctx context.Context) (*appbilling.SweepResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.inFlight.Store(false)

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	runCtx, span := telemetry.StartSpan(runCtx, "sweep.past_due")
	defer span.End()

	var (
		result *appbilling.SweepResult
		err    error
	)
	startTime := time.Now()
	telemetry.WithProfilingLabels(runCtx, func(ctx context.Context) {
		result, err = s.sweeper.ExpirePastDue(ctx)
	}, "job", "past_due_sweep")
	duration := time.Since(startTime)
	telemetry.RecordError(span, err)
	if err != nil {
		return result, err
	}

	s.logger.Info("Past-due sweep completed",
		zap.Duration("duration", duration),
		zap.Int("candidates", result.Candidates),
		zap.Int("expired", result.Expired),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// TriggerImmediate starts a sweep in the background outside the daily schedule
func (s *PastDueExpirationScheduler) TriggerImmediate(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	if s.inFlight.Load() {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate past-due sweep")

	go func() {
		defer s.wg.Done()
		if _, err := s.execute(context.WithoutCancel(ctx)); err != nil && err != ErrRunInProgress {
			s.logger.Error("Immediate past-due sweep failed", zap.Error(err))
		}
	}()
	return nil
}

// RunNow executes a sweep synchronously and returns its result
func (s *PastDueExpirationScheduler) RunNow(ctx context.Context) (*appbilling.SweepResult, error) {
	return s.execute(ctx)
}
