package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
	"github.com/mockly/billing/internal/infrastructure/telemetry"
)

// OutboxProcessorConfig holds configuration for the outbox processor
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	MaxRetries       int
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultOutboxProcessorConfig returns default configuration
func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        20,
		PollInterval:     60 * time.Second,
		MaxRetries:       5,
		CleanupEnabled:   false,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  1 * time.Hour,
	}
}

// OutboxHandler applies one outbox event inside the processing transaction.
// Returning an error rolls the transaction back; errors wrapping
// billing.ErrNonRetryable fail the event immediately.
type OutboxHandler func(ctx context.Context, repos appbilling.TransactionalRepositories, event *billing.OutboxEvent) error

// BatchResult summarizes one processing pass
type BatchResult struct {
	Fetched   int `json:"fetched"`
	Processed int `json:"processed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// OutboxProcessor drains the outbox in the background. Every event is handled in
// its own transaction with the row claimed FOR UPDATE SKIP LOCKED, so several
// instances can run side by side.
type OutboxProcessor struct {
	txScope  appbilling.TransactionScope
	handlers map[string]OutboxHandler
	config   OutboxProcessorConfig
	metrics  appbilling.Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewOutboxProcessor creates a new outbox processor
func NewOutboxProcessor(
	txScope appbilling.TransactionScope,
	config OutboxProcessorConfig,
	metrics appbilling.Metrics,
	logger *zap.Logger,
) *OutboxProcessor {
	defaults := DefaultOutboxProcessorConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.CleanupRetention <= 0 {
		config.CleanupRetention = defaults.CleanupRetention
	}
	if metrics == nil {
		metrics = appbilling.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxProcessor{
		txScope:  txScope,
		handlers: make(map[string]OutboxHandler),
		config:   config,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Register binds a handler to an event type. Events without a handler are failed.
func (p *OutboxProcessor) Register(eventType string, handler OutboxHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[eventType] = handler
}

// WithClock overrides the processor clock
func (p *OutboxProcessor) WithClock(now func() time.Time) *OutboxProcessor {
	p.now = now
	return p
}

// Start starts the background processing
func (p *OutboxProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("outbox processor already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.processLoop(ctx)

	if p.config.CleanupEnabled {
		p.wg.Add(1)
		go p.cleanupLoop(ctx)
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Duration("poll_interval", p.config.PollInterval),
		zap.Int("max_retries", p.config.MaxRetries),
	)
	return nil
}

// Stop gracefully stops the processor, waiting for the in-flight batch
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the background loop is active
func (p *OutboxProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *OutboxProcessor) processLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox batch failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce handles up to BatchSize of the oldest pending events
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (*BatchResult, error) {
	var pending []billing.OutboxEvent
	err := p.txScope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
		var err error
		pending, err = repos.OutboxRepo().FindPending(ctx, p.config.BatchSize)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find pending outbox events: %w", err)
	}

	result := &BatchResult{Fetched: len(pending)}
	for i := range pending {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		switch p.processEvent(ctx, pending[i].ID, pending[i].EventType) {
		case appbilling.OutcomeSuccess:
			result.Processed++
		case appbilling.OutcomeRetry:
			result.Retried++
		case appbilling.OutcomeFailure, appbilling.OutcomeExhausted:
			result.Failed++
		default:
			result.Skipped++
		}
	}

	if result.Fetched > 0 {
		p.logger.Info("outbox batch processed",
			zap.Int("fetched", result.Fetched),
			zap.Int("processed", result.Processed),
			zap.Int("retried", result.Retried),
			zap.Int("failed", result.Failed),
			zap.Int("skipped", result.Skipped),
		)
	}
	return result, nil
}

// processEvent runs one event in its own transaction and returns the outcome label
func (p *OutboxProcessor) processEvent(ctx context.Context, id uuid.UUID, eventType string) string {
	ctx, span := telemetry.StartSpan(ctx, "outbox.dispatch",
		attribute.String("event_id", id.String()),
		attribute.String("event_type", eventType),
	)
	defer span.End()

	outcome := ""
	err := p.txScope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
		event, err := repos.OutboxRepo().LockForProcessing(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			outcome = appbilling.OutcomeSkipped
			return nil
		}
		if err != nil {
			return err
		}
		if !event.IsPending() {
			outcome = appbilling.OutcomeSkipped
			return nil
		}

		p.mu.Lock()
		handler, ok := p.handlers[event.EventType]
		p.mu.Unlock()
		if !ok {
			event.MarkFailed(fmt.Sprintf("no handler for event type %s", event.EventType), p.now())
			if err := repos.OutboxRepo().Save(ctx, event); err != nil {
				return err
			}
			outcome = appbilling.OutcomeFailure
			return nil
		}

		if err := handler(ctx, repos, event); err != nil {
			return err
		}
		if err := event.MarkProcessed(p.now()); err != nil {
			return err
		}
		if err := repos.OutboxRepo().Save(ctx, event); err != nil {
			return err
		}
		outcome = appbilling.OutcomeSuccess
		return nil
	})

	if err != nil {
		outcome = p.recordFailure(ctx, id, err)
	}
	telemetry.RecordError(span, err)
	span.SetAttributes(attribute.String("outcome", outcome))

	if outcome != appbilling.OutcomeSkipped {
		p.metrics.RecordOutboxEvent(ctx, eventType, outcome)
	}
	return outcome
}

// recordFailure counts a failed attempt in a fresh transaction, since the
// processing transaction was rolled back
func (p *OutboxProcessor) recordFailure(ctx context.Context, id uuid.UUID, cause error) string {
	outcome := appbilling.OutcomeSkipped
	err := p.txScope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
		event, err := repos.OutboxRepo().LockForProcessing(ctx, id)
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if !event.IsPending() {
			return nil
		}

		now := p.now()
		switch {
		case errors.Is(cause, billing.ErrNonRetryable):
			event.MarkFailed(cause.Error(), now)
			outcome = appbilling.OutcomeFailure
		case event.RecordFailure(cause.Error(), p.config.MaxRetries, now):
			outcome = appbilling.OutcomeExhausted
		default:
			outcome = appbilling.OutcomeRetry
		}
		if err := repos.OutboxRepo().Save(ctx, event); err != nil {
			return err
		}

		fields := []zap.Field{
			zap.String("event_id", event.ID.String()),
			zap.String("event_type", event.EventType),
			zap.String("aggregate_id", event.AggregateID.String()),
			zap.Int("retry_count", event.RetryCount),
			zap.Error(cause),
		}
		if outcome == appbilling.OutcomeRetry {
			p.logger.Warn("outbox event failed, will retry", fields...)
		} else {
			p.logger.Error("outbox event failed permanently", fields...)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("failed to record outbox failure",
			zap.String("event_id", id.String()),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return appbilling.OutcomeRetry
	}
	return outcome
}

// Stats returns the number of events in each status
func (p *OutboxProcessor) Stats(ctx context.Context) (map[billing.OutboxStatus]int64, error) {
	var counts map[billing.OutboxStatus]int64
	err := p.txScope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
		var err error
		counts, err = repos.OutboxRepo().CountByStatus(ctx)
		return err
	})
	return counts, err
}

func (p *OutboxProcessor) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Cleanup(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("failed to cleanup old outbox events", zap.Error(err))
			}
		}
	}
}

// Cleanup removes processed events older than the retention
func (p *OutboxProcessor) Cleanup(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.config.CleanupRetention)
	var deleted int64
	err := p.txScope.Execute(ctx, func(repos appbilling.TransactionalRepositories) error {
		var err error
		deleted, err = repos.OutboxRepo().DeleteProcessedBefore(ctx, cutoff)
		return err
	})
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		p.logger.Info("cleaned up old outbox events",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
	return deleted, nil
}
