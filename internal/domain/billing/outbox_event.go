package billing

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/shared"
)

// OutboxStatus represents the processing status of an outbox event
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "PENDING"
	OutboxStatusProcessed OutboxStatus = "PROCESSED"
	OutboxStatusFailed    OutboxStatus = "FAILED"
)

const (
	// AggregateTypeSubscription is the aggregate type of schedule events
	AggregateTypeSubscription = "SUBSCRIPTION"
	// EventTypeScheduleCreate asks for the next payment schedule of a subscription
	EventTypeScheduleCreate = "SCHEDULE_CREATE"
)

// ScheduleCreatePayload is the JSON body of a SCHEDULE_CREATE event
type ScheduleCreatePayload struct {
	SubscriptionID string `json:"subscriptionId"`
	BillingKey     string `json:"billingKey"`
}

// OutboxEvent is a durable work item written in the same transaction as the
// change that produced it. Payload never changes; only the status and retry
// metadata do.
type OutboxEvent struct {
	shared.BaseEntity
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	Status        OutboxStatus
	RetryCount    int
	FailureReason string
	ProcessedAt   *time.Time
}

// NewScheduleCreateEvent creates a PENDING SCHEDULE_CREATE event for a subscription
func NewScheduleCreateEvent(subscriptionID uuid.UUID, billingKey string, now time.Time) (*OutboxEvent, error) {
	if billingKey == "" {
		return nil, shared.NewDomainError("INVALID_BILLING_KEY", "Billing key cannot be empty")
	}
	payload, err := json.Marshal(ScheduleCreatePayload{
		SubscriptionID: subscriptionID.String(),
		BillingKey:     billingKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schedule payload: %w", err)
	}
	return &OutboxEvent{
		BaseEntity:    shared.NewBaseEntity(now),
		AggregateType: AggregateTypeSubscription,
		AggregateID:   subscriptionID,
		EventType:     EventTypeScheduleCreate,
		Payload:       payload,
		Status:        OutboxStatusPending,
	}, nil
}

// SchedulePayload decodes the payload of a SCHEDULE_CREATE event
func (e *OutboxEvent) SchedulePayload() (ScheduleCreatePayload, error) {
	var p ScheduleCreatePayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, fmt.Errorf("failed to decode outbox payload: %w", err)
	}
	if p.BillingKey == "" {
		return p, shared.NewDomainError("INVALID_PAYLOAD", "Outbox payload has no billing key")
	}
	return p, nil
}

// IsPending reports whether the event still awaits processing
func (e *OutboxEvent) IsPending() bool {
	return e.Status == OutboxStatusPending
}

// MarkProcessed terminates the event successfully
func (e *OutboxEvent) MarkProcessed(now time.Time) error {
	if e.Status != OutboxStatusPending {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot process outbox event in %s status", e.Status))
	}
	processedAt := now
	e.Status = OutboxStatusProcessed
	e.ProcessedAt = &processedAt
	e.Touch(now)
	return nil
}

// RecordFailure counts a failed attempt and marks the event FAILED once
// maxRetries attempts have failed. It returns true when the event is exhausted.
func (e *OutboxEvent) RecordFailure(reason string, maxRetries int, now time.Time) bool {
	e.RetryCount++
	e.FailureReason = truncate(reason, maxFailureReasonLength)
	e.Touch(now)
	if e.RetryCount >= maxRetries {
		e.Status = OutboxStatusFailed
		return true
	}
	return false
}

// MarkFailed terminates the event without further retries
func (e *OutboxEvent) MarkFailed(reason string, now time.Time) {
	e.Status = OutboxStatusFailed
	e.FailureReason = truncate(reason, maxFailureReasonLength)
	e.Touch(now)
}
