package persistence

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

// GormSubscriptionRepository implements billing.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// FindByID finds a subscription by its ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	return r.findOne(r.db.WithContext(ctx), id)
}

// FindByIDForUpdate finds a subscription and takes a row lock held until the
// surrounding transaction ends. Outside a transaction the lock is released immediately.
func (r *GormSubscriptionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	return r.findOne(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *GormSubscriptionRepository) findOne(db *gorm.DB, id uuid.UUID) (*billing.Subscription, error) {
	var model models.SubscriptionModel
	if err := db.Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByUserAndStatuses finds a user's subscriptions in any of the given statuses, newest first.
// With no statuses every subscription of the user is returned.
func (r *GormSubscriptionRepository) FindByUserAndStatuses(ctx context.Context, userID uuid.UUID, statuses ...billing.SubscriptionStatus) ([]billing.Subscription, error) {
	query := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var records []models.SubscriptionModel
	if err := query.Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, err
	}
	return subscriptionsToDomain(records), nil
}

// FindPastDueBefore finds PAST_DUE subscriptions whose last update is older than cutoff, oldest first
func (r *GormSubscriptionRepository) FindPastDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]billing.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", billing.SubscriptionStatusPastDue, cutoff).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var records []models.SubscriptionModel
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return subscriptionsToDomain(records), nil
}

// Save creates or updates a subscription. A second PENDING or ACTIVE
// subscription for the same user violates uq_subscriptions_user_live and is
// reported as billing.ErrAlreadySubscribed.
func (r *GormSubscriptionRepository) Save(ctx context.Context, sub *billing.Subscription) error {
	model := models.SubscriptionModelFromDomain(sub)
	if err := r.db.WithContext(ctx).Save(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return billing.ErrAlreadySubscribed
		}
		return err
	}
	return nil
}

func subscriptionsToDomain(records []models.SubscriptionModel) []billing.Subscription {
	subs := make([]billing.Subscription, len(records))
	for i := range records {
		subs[i] = *records[i].ToDomain()
	}
	return subs
}

// Ensure GormSubscriptionRepository implements the interface
var _ billing.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
