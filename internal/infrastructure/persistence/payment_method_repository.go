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

// GormPaymentMethodRepository implements billing.PaymentMethodRepository using GORM
type GormPaymentMethodRepository struct {
	db *gorm.DB
}

// NewGormPaymentMethodRepository creates a new GormPaymentMethodRepository
func NewGormPaymentMethodRepository(db *gorm.DB) *GormPaymentMethodRepository {
	return &GormPaymentMethodRepository{db: db}
}

// FindByID finds a payment method by its ID, active or not
func (r *GormPaymentMethodRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.PaymentMethod, error) {
	var model models.PaymentMethodModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByUser finds a user's active payment methods, newest first
func (r *GormPaymentMethodRepository) FindActiveByUser(ctx context.Context, userID uuid.UUID) ([]billing.PaymentMethod, error) {
	var records []models.PaymentMethodModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND active = ?", userID, true).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}

	methods := make([]billing.PaymentMethod, len(records))
	for i := range records {
		methods[i] = *records[i].ToDomain()
	}
	return methods, nil
}

// FindActiveByBillingKey finds the user's active method holding billingKey
func (r *GormPaymentMethodRepository) FindActiveByBillingKey(ctx context.Context, userID uuid.UUID, billingKey string) (*billing.PaymentMethod, error) {
	var model models.PaymentMethodModel
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND billing_key = ? AND active = ?", userID, billingKey, true).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save creates or updates a payment method
func (r *GormPaymentMethodRepository) Save(ctx context.Context, method *billing.PaymentMethod) error {
	model := models.PaymentMethodModelFromDomain(method)
	return r.db.WithContext(ctx).Save(model).Error
}

// Ensure GormPaymentMethodRepository implements the interface
var _ billing.PaymentMethodRepository = (*GormPaymentMethodRepository)(nil)
