package billing

import "context"

// Outcome labels shared by the billing metrics
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeUncertain = "uncertain"
	OutcomeSkipped   = "skipped"
	OutcomeDuplicate = "duplicate"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
)

// Metrics receives billing business metrics. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordCharge(ctx context.Context, outcome string)
	RecordWebhook(ctx context.Context, eventType, outcome string)
	RecordSchedule(ctx context.Context, operation, outcome string)
	RecordOutboxEvent(ctx context.Context, eventType, outcome string)
	RecordExpiration(ctx context.Context, outcome string)
}

// NopMetrics discards all metrics
type NopMetrics struct{}

func (NopMetrics) RecordCharge(context.Context, string)              {}
func (NopMetrics) RecordWebhook(context.Context, string, string)     {}
func (NopMetrics) RecordSchedule(context.Context, string, string)    {}
func (NopMetrics) RecordOutboxEvent(context.Context, string, string) {}
func (NopMetrics) RecordExpiration(context.Context, string)          {}

var _ Metrics = NopMetrics{}
