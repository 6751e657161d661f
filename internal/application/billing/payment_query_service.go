package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
)

// PaymentPage is one page of a user's payment history
type PaymentPage struct {
	Items      []billing.Payment `json:"items"`
	Page       int               `json:"page"`
	Size       int               `json:"size"`
	Total      int64             `json:"total"`
	TotalPages int               `json:"total_pages"`
}

// PaymentQueryService serves read-only payment and invoice lookups
type PaymentQueryService struct {
	txScope TransactionScope
}

// NewPaymentQueryService creates a new PaymentQueryService
func NewPaymentQueryService(txScope TransactionScope) *PaymentQueryService {
	return &PaymentQueryService{txScope: txScope}
}

// ListPayments returns the user's payments matching filter, newest first
func (s *PaymentQueryService) ListPayments(ctx context.Context, userID uuid.UUID, filter billing.PaymentFilter) (*PaymentPage, error) {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, "from must not be after to")
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("unknown payment status %s", *filter.Status))
	}
	filter = filter.Normalize()

	var (
		items []billing.Payment
		total int64
	)
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		items, total, err = repos.PaymentRepo().FindByUser(ctx, userID, filter)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}

	totalPages := int((total + int64(filter.Size) - 1) / int64(filter.Size))
	return &PaymentPage{
		Items:      items,
		Page:       filter.Page,
		Size:       filter.Size,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// GetPayment returns a payment owned by userID
func (s *PaymentQueryService) GetPayment(ctx context.Context, userID uuid.UUID, paymentID string) (*billing.Payment, error) {
	var payment *billing.Payment
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		payment, err = repos.PaymentRepo().FindByID(ctx, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, shared.ErrForbidden
	}
	return payment, nil
}

// GetInvoice returns an invoice owned by userID
func (s *PaymentQueryService) GetInvoice(ctx context.Context, userID uuid.UUID, invoiceID string) (*billing.Invoice, error) {
	var invoice *billing.Invoice
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		invoice, err = repos.InvoiceRepo().FindByID(ctx, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if invoice.UserID != userID {
		return nil, shared.ErrForbidden
	}
	return invoice, nil
}
