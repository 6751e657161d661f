package event

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
	"github.com/mockly/billing/internal/infrastructure/persistence/models"
)

// GormOutboxRepository implements billing.OutboxEventRepository using GORM
type GormOutboxRepository struct {
	db *gorm.DB
}

// NewGormOutboxRepository creates a new GORM-based outbox repository
func NewGormOutboxRepository(db *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormOutboxRepository) WithTx(tx *gorm.DB) *GormOutboxRepository {
	return &GormOutboxRepository{db: tx}
}

// FindPending retrieves pending events up to the specified limit, oldest first
func (r *GormOutboxRepository) FindPending(ctx context.Context, limit int) ([]billing.OutboxEvent, error) {
	var records []models.OutboxEventModel
	err := r.db.WithContext(ctx).
		Where("status = ?", billing.OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	events := make([]billing.OutboxEvent, len(records))
	for i := range records {
		events[i] = *records[i].ToDomain()
	}
	return events, nil
}

// LockForProcessing reloads an event using FOR UPDATE SKIP LOCKED. A row held
// by another worker is reported as shared.ErrNotFound so the caller moves on.
func (r *GormOutboxRepository) LockForProcessing(ctx context.Context, id uuid.UUID) (*billing.OutboxEvent, error) {
	var record models.OutboxEventModel
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{
			Strength: "UPDATE",
			Options:  "SKIP LOCKED",
		}).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return record.ToDomain(), nil
}

// Save creates or updates an outbox event
func (r *GormOutboxRepository) Save(ctx context.Context, event *billing.OutboxEvent) error {
	return r.db.WithContext(ctx).Save(models.OutboxEventModelFromDomain(event)).Error
}

// DeleteProcessedBefore deletes processed events older than cutoff
func (r *GormOutboxRepository) DeleteProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ? AND processed_at < ?", billing.OutboxStatusProcessed, cutoff).
		Delete(&models.OutboxEventModel{})
	return result.RowsAffected, result.Error
}

// CountByStatus returns count of events for each status
func (r *GormOutboxRepository) CountByStatus(ctx context.Context) (map[billing.OutboxStatus]int64, error) {
	type statusCount struct {
		Status billing.OutboxStatus
		Count  int64
	}

	var results []statusCount
	err := r.db.WithContext(ctx).
		Model(&models.OutboxEventModel{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[billing.OutboxStatus]int64)
	for _, r := range results {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// Ensure GormOutboxRepository implements OutboxEventRepository
var _ billing.OutboxEventRepository = (*GormOutboxRepository)(nil)
