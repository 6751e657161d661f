package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
)

// PaymentMethodService manages the billing keys a user has stored
type PaymentMethodService struct {
	txScope TransactionScope
	gateway billing.Gateway
	logger  *zap.Logger
	now     func() time.Time
}

// PaymentMethodServiceConfig contains configuration for PaymentMethodService
type PaymentMethodServiceConfig struct {
	TxScope TransactionScope
	Gateway billing.Gateway
	Logger  *zap.Logger
	Clock   func() time.Time
}

// NewPaymentMethodService creates a new PaymentMethodService
func NewPaymentMethodService(cfg PaymentMethodServiceConfig) *PaymentMethodService {
	return &PaymentMethodService{
		txScope: cfg.TxScope,
		gateway: cfg.Gateway,
		logger:  loggerOrNop(cfg.Logger),
		now:     clockOrDefault(cfg.Clock),
	}
}

// Add registers a card billing key for the user. The first method a user
// registers becomes the default.
func (s *PaymentMethodService) Add(ctx context.Context, userID uuid.UUID, billingKey string) (*billing.PaymentMethod, error) {
	info, err := lookupBillingKey(ctx, s.gateway, billingKey)
	if err != nil {
		return nil, err
	}
	primary := info.PrimaryMethod()
	if billing.MethodTypeOf(primary) != billing.PaymentMethodTypeCard {
		return nil, billing.ErrUnsupportedMethod
	}

	var method *billing.PaymentMethod
	err = s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		methods := repos.PaymentMethodRepo()
		if _, err := methods.FindActiveByBillingKey(ctx, userID, billingKey); err == nil {
			return billing.ErrDuplicateBillingKey
		} else if !errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("failed to look up payment method: %w", err)
		}

		existing, err := methods.FindActiveByUser(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to list payment methods: %w", err)
		}

		now := s.now()
		pm, err := billing.NewPaymentMethod(userID, billingKey, primary, now)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			if err := pm.MarkDefault(now); err != nil {
				return err
			}
		}
		if err := methods.Save(ctx, pm); err != nil {
			return fmt.Errorf("failed to save payment method: %w", err)
		}
		method = pm
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment method registered",
		zap.String("user_id", userID.String()),
		zap.String("payment_method_id", method.ID.String()),
		zap.Bool("default", method.Default))
	return method, nil
}

// List returns the user's active payment methods, newest first
func (s *PaymentMethodService) List(ctx context.Context, userID uuid.UUID) ([]billing.PaymentMethod, error) {
	var methods []billing.PaymentMethod
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		var err error
		methods, err = repos.PaymentMethodRepo().FindActiveByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list payment methods: %w", err)
	}
	return methods, nil
}

// Delete deactivates a payment method. The default method cannot be removed
// while a renewing subscription depends on it; otherwise the newest remaining
// method is promoted to default.
func (s *PaymentMethodService) Delete(ctx context.Context, userID, methodID uuid.UUID) error {
	return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		pm, err := loadOwnedMethod(ctx, repos, userID, methodID)
		if err != nil {
			return err
		}

		wasDefault := pm.Default
		if wasDefault {
			subs, err := repos.SubscriptionRepo().FindByUserAndStatuses(ctx, userID,
				billing.SubscriptionStatusActive, billing.SubscriptionStatusPastDue)
			if err != nil {
				return fmt.Errorf("failed to load subscriptions: %w", err)
			}
			for _, sub := range subs {
				if sub.BillingCycle != billing.BillingCycleLifetime {
					return billing.ErrDefaultMethodInUse
				}
			}
		}

		now := s.now()
		pm.Deactivate(now)
		if err := repos.PaymentMethodRepo().Save(ctx, pm); err != nil {
			return fmt.Errorf("failed to save payment method: %w", err)
		}

		if wasDefault {
			remaining, err := repos.PaymentMethodRepo().FindActiveByUser(ctx, userID)
			if err != nil {
				return fmt.Errorf("failed to list payment methods: %w", err)
			}
			if len(remaining) > 0 {
				if err := setDefaultMethod(ctx, repos, &remaining[0], now); err != nil {
					return err
				}
			}
		}

		s.logger.Info("Payment method removed",
			zap.String("user_id", userID.String()),
			zap.String("payment_method_id", methodID.String()))
		return nil
	})
}

// SetDefault makes the method the user's default
func (s *PaymentMethodService) SetDefault(ctx context.Context, userID, methodID uuid.UUID) (*billing.PaymentMethod, error) {
	var method *billing.PaymentMethod
	err := s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
		pm, err := loadOwnedMethod(ctx, repos, userID, methodID)
		if err != nil {
			return err
		}
		if err := setDefaultMethod(ctx, repos, pm, s.now()); err != nil {
			return err
		}
		method = pm
		return nil
	})
	if err != nil {
		return nil, err
	}
	return method, nil
}

// loadOwnedMethod returns an active method belonging to userID
func loadOwnedMethod(ctx context.Context, repos TransactionalRepositories, userID, methodID uuid.UUID) (*billing.PaymentMethod, error) {
	pm, err := repos.PaymentMethodRepo().FindByID(ctx, methodID)
	if err != nil {
		return nil, err
	}
	if pm.UserID != userID {
		return nil, shared.ErrForbidden
	}
	if !pm.Active {
		return nil, shared.ErrNotFound
	}
	return pm, nil
}

// setDefaultMethod moves the user's default flag to method
func setDefaultMethod(ctx context.Context, repos TransactionalRepositories, method *billing.PaymentMethod, now time.Time) error {
	others, err := repos.PaymentMethodRepo().FindActiveByUser(ctx, method.UserID)
	if err != nil {
		return fmt.Errorf("failed to list payment methods: %w", err)
	}
	for i := range others {
		if others[i].ID == method.ID || !others[i].Default {
			continue
		}
		others[i].UnmarkDefault(now)
		if err := repos.PaymentMethodRepo().Save(ctx, &others[i]); err != nil {
			return fmt.Errorf("failed to save payment method: %w", err)
		}
	}
	if err := method.MarkDefault(now); err != nil {
		return err
	}
	if err := repos.PaymentMethodRepo().Save(ctx, method); err != nil {
		return fmt.Errorf("failed to save payment method: %w", err)
	}
	return nil
}

// lookupBillingKey asks the gateway about a billing key, translating an
// unknown key into ErrInvalidBillingKey
func lookupBillingKey(ctx context.Context, gateway billing.Gateway, billingKey string) (*billing.BillingKeyInfo, error) {
	if billingKey == "" {
		return nil, billing.ErrInvalidBillingKey
	}
	info, err := gateway.GetBillingKey(ctx, billingKey)
	if err != nil {
		if errors.Is(err, billing.ErrBillingKeyNotRecognized) {
			return nil, billing.ErrInvalidBillingKey
		}
		return nil, fmt.Errorf("failed to look up billing key: %w", err)
	}
	return info, nil
}
