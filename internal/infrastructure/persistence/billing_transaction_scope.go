package persistence

import (
	"context"

	"gorm.io/gorm"

	appbilling "github.com/mockly/billing/internal/application/billing"
	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/infrastructure/event"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// It provides atomic execution of multiple ledger repository operations.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// If the function succeeds, the transaction is committed.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appbilling.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories hands out repositories bound to one transaction.
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

func (r *gormTransactionalRepositories) PlanRepo() billing.PlanRepository {
	return NewGormPlanRepository(r.tx)
}

func (r *gormTransactionalRepositories) SubscriptionRepo() billing.SubscriptionRepository {
	return NewGormSubscriptionRepository(r.tx)
}

func (r *gormTransactionalRepositories) InvoiceRepo() billing.InvoiceRepository {
	return NewGormInvoiceRepository(r.tx)
}

func (r *gormTransactionalRepositories) PaymentRepo() billing.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

func (r *gormTransactionalRepositories) PaymentMethodRepo() billing.PaymentMethodRepository {
	return NewGormPaymentMethodRepository(r.tx)
}

func (r *gormTransactionalRepositories) OutboxRepo() billing.OutboxEventRepository {
	return event.NewGormOutboxRepository(r.tx)
}

// Ensure GormTransactionScope implements TransactionScope
var _ appbilling.TransactionScope = (*GormTransactionScope)(nil)

// Ensure gormTransactionalRepositories implements TransactionalRepositories
var _ appbilling.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
