package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/shared"
)

// Timestamps are the audit columns carried by every ledger table
type Timestamps struct {
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BaseModel is the uuid key plus audit columns of plans, subscriptions and
// payment methods. Invoices are keyed by the string id sent to the provider
// and embed Timestamps alone.
type BaseModel struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`
	Timestamps
}

// Entity returns the columns as a domain BaseEntity
func (m BaseModel) Entity() shared.BaseEntity {
	return shared.BaseEntity{ID: m.ID, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

func baseModelOf(e shared.BaseEntity) BaseModel {
	return BaseModel{
		ID:         e.ID,
		Timestamps: Timestamps{CreatedAt: e.CreatedAt, UpdatedAt: e.UpdatedAt},
	}
}
