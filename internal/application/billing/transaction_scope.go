package billing

import (
	"context"

	"github.com/mockly/billing/internal/domain/billing"
)

// TransactionScope provides transactional access to the billing ledger.
// All repository operations performed inside Execute belong to one database
// transaction that is committed or rolled back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all ledger repositories within a transaction.
// All repositories returned share the same underlying database transaction.
//
// Lock ordering: handlers that need both a subscription and its payments lock the
// subscription row first (FindByIDForUpdate) and read payments afterwards.
type TransactionalRepositories interface {
	PlanRepo() billing.PlanRepository
	SubscriptionRepo() billing.SubscriptionRepository
	InvoiceRepo() billing.InvoiceRepository
	PaymentRepo() billing.PaymentRepository
	PaymentMethodRepo() billing.PaymentMethodRepository
	OutboxRepo() billing.OutboxEventRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use transactions.
// It is useful for tests that run against in-memory repositories.
type NoOpTransactionScope struct {
	plans          billing.PlanRepository
	subscriptions  billing.SubscriptionRepository
	invoices       billing.InvoiceRepository
	payments       billing.PaymentRepository
	paymentMethods billing.PaymentMethodRepository
	outbox         billing.OutboxEventRepository
}

// NoOpRepositories groups the repositories handed to NewNoOpTransactionScope
type NoOpRepositories struct {
	Plans          billing.PlanRepository
	Subscriptions  billing.SubscriptionRepository
	Invoices       billing.InvoiceRepository
	Payments       billing.PaymentRepository
	PaymentMethods billing.PaymentMethodRepository
	Outbox         billing.OutboxEventRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(r NoOpRepositories) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		plans:          r.Plans,
		subscriptions:  r.Subscriptions,
		invoices:       r.Invoices,
		payments:       r.Payments,
		paymentMethods: r.PaymentMethods,
		outbox:         r.Outbox,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// PlanRepo returns the plan repository.
func (s *NoOpTransactionScope) PlanRepo() billing.PlanRepository { return s.plans }

// SubscriptionRepo returns the subscription repository.
func (s *NoOpTransactionScope) SubscriptionRepo() billing.SubscriptionRepository {
	return s.subscriptions
}

// InvoiceRepo returns the invoice repository.
func (s *NoOpTransactionScope) InvoiceRepo() billing.InvoiceRepository { return s.invoices }

// PaymentRepo returns the payment repository.
func (s *NoOpTransactionScope) PaymentRepo() billing.PaymentRepository { return s.payments }

// PaymentMethodRepo returns the payment method repository.
func (s *NoOpTransactionScope) PaymentMethodRepo() billing.PaymentMethodRepository {
	return s.paymentMethods
}

// OutboxRepo returns the outbox event repository.
func (s *NoOpTransactionScope) OutboxRepo() billing.OutboxEventRepository { return s.outbox }

// Ensure NoOpTransactionScope implements both interfaces
var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
