package billing

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/mockly/billing/internal/domain/billing"
)

// MockGateway is a mock implementation of billing.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetBillingKey(ctx context.Context, billingKey string) (*billing.BillingKeyInfo, error) {
	args := m.Called(ctx, billingKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.BillingKeyInfo), args.Error(1)
}

func (m *MockGateway) Charge(ctx context.Context, req billing.ChargeRequest) (*billing.ChargeResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.ChargeResult), args.Error(1)
}

func (m *MockGateway) CreateSchedule(ctx context.Context, req billing.ScheduleRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) RevokeSchedule(ctx context.Context, scheduleID string) error {
	args := m.Called(ctx, scheduleID)
	return args.Error(0)
}

func (m *MockGateway) GetPaymentDetail(ctx context.Context, paymentID string) (*billing.PaymentDetail, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.PaymentDetail), args.Error(1)
}

// MockWebhookVerifier is a mock implementation of billing.WebhookVerifier
type MockWebhookVerifier struct {
	mock.Mock
}

func (m *MockWebhookVerifier) Verify(req billing.WebhookRequest) (*billing.WebhookEvent, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.WebhookEvent), args.Error(1)
}

// memIdempotencyStore is a map-backed shared.IdempotencyStore
type memIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{keys: make(map[string]bool)}
}

func (s *memIdempotencyStore) MarkProcessed(_ context.Context, id string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[id] {
		return false, nil
	}
	s.keys[id] = true
	return true, nil
}

func (s *memIdempotencyStore) IsProcessed(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[id], nil
}

func (s *memIdempotencyStore) Close() error { return nil }

// ctxBoundStore fails like a network store once the caller's context is done
type ctxBoundStore struct {
	*memIdempotencyStore
}

func (s *ctxBoundStore) MarkProcessed(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.memIdempotencyStore.MarkProcessed(ctx, id, ttl)
}

func (s *ctxBoundStore) IsProcessed(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.memIdempotencyStore.IsProcessed(ctx, id)
}
