package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
	"github.com/mockly/billing/internal/infrastructure/persistence/models"
)

// GormPaymentRepository implements billing.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// FindByID finds a payment by its ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id string) (*billing.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByUser returns one page of a user's payments, newest first unless the
// filter names another order, along with the number of payments matching the filter
func (r *GormPaymentRepository) FindByUser(ctx context.Context, userID uuid.UUID, filter billing.PaymentFilter) ([]billing.Payment, int64, error) {
	filter = filter.Normalize()
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{}).Where("user_id = ?", userID)
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column := ValidateSortField(filter.SortBy, PaymentSortColumns, "created_at")
	order := ValidateSortOrder(filter.SortOrder)

	var records []models.PaymentModel
	if err := query.
		Order(column + " " + order).
		Order("id DESC").
		Offset(filter.Offset()).
		Limit(filter.Size).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}

	payments := make([]billing.Payment, len(records))
	for i := range records {
		payments[i] = *records[i].ToDomain()
	}
	return payments, total, nil
}

// FindBySubscription returns the payments of a subscription, oldest first
func (r *GormPaymentRepository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]billing.Payment, error) {
	var records []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	payments := make([]billing.Payment, len(records))
	for i := range records {
		payments[i] = *records[i].ToDomain()
	}
	return payments, nil
}

// Save creates or updates a payment
func (r *GormPaymentRepository) Save(ctx context.Context, payment *billing.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	return r.db.WithContext(ctx).Save(model).Error
}

// Ensure GormPaymentRepository implements the interface
var _ billing.PaymentRepository = (*GormPaymentRepository)(nil)
