package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/billing"
)

// OutboxEventModel is the persistence model for events stored in the outbox.
// It implements the transactional outbox pattern for reliable schedule creation.
type OutboxEventModel struct {
	ID            uuid.UUID            `gorm:"type:uuid;primaryKey"`
	AggregateType string               `gorm:"type:varchar(50);not null"`
	AggregateID   uuid.UUID            `gorm:"type:uuid;not null;index"`
	EventType     string               `gorm:"type:varchar(50);not null"`
	Payload       []byte               `gorm:"type:jsonb;not null"`
	Status        billing.OutboxStatus `gorm:"type:varchar(20);not null;default:PENDING;index:idx_outbox_status_created,priority:1"`
	RetryCount    int                  `gorm:"not null;default:0"`
	FailureReason string               `gorm:"type:varchar(500)"`
	ProcessedAt   *time.Time
	CreatedAt     time.Time `gorm:"not null;index:idx_outbox_status_created,priority:2"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OutboxEventModel) TableName() string {
	return "outbox_events"
}

// ToDomain converts the persistence model to a domain OutboxEvent
func (m *OutboxEventModel) ToDomain() *billing.OutboxEvent {
	e := &billing.OutboxEvent{
		AggregateType: m.AggregateType,
		AggregateID:   m.AggregateID,
		EventType:     m.EventType,
		Payload:       m.Payload,
		Status:        m.Status,
		RetryCount:    m.RetryCount,
		FailureReason: m.FailureReason,
		ProcessedAt:   m.ProcessedAt,
	}
	e.ID = m.ID
	e.CreatedAt = m.CreatedAt
	e.UpdatedAt = m.UpdatedAt
	return e
}

// FromDomain populates the persistence model from a domain OutboxEvent
func (m *OutboxEventModel) FromDomain(e *billing.OutboxEvent) {
	m.ID = e.ID
	m.AggregateType = e.AggregateType
	m.AggregateID = e.AggregateID
	m.EventType = e.EventType
	m.Payload = e.Payload
	m.Status = e.Status
	m.RetryCount = e.RetryCount
	m.FailureReason = e.FailureReason
	m.ProcessedAt = e.ProcessedAt
	m.CreatedAt = e.CreatedAt
	m.UpdatedAt = e.UpdatedAt
}

// OutboxEventModelFromDomain creates a new persistence model from a domain OutboxEvent
func OutboxEventModelFromDomain(e *billing.OutboxEvent) *OutboxEventModel {
	m := &OutboxEventModel{}
	m.FromDomain(e)
	return m
}
