package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mockly/billing/internal/domain/billing"
)

var testStart = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// billingFixture wires every billing service against one in-memory ledger
type billingFixture struct {
	ledger      *memLedger
	gateway     *MockGateway
	clock       *testClock
	idempotency *memIdempotencyStore
	verifier    *MockWebhookVerifier

	freePlan    billing.Plan
	monthlyPlan billing.Plan
	yearlyPlan  billing.Plan

	schedules     *PaymentScheduleService
	subscriptions *SubscriptionService
	methods       *PaymentMethodService
	webhooks      *WebhookReconciler
	expiration    *ExpirationService
	queries       *PaymentQueryService
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()

	f := &billingFixture{
		ledger:      newMemLedger(),
		gateway:     new(MockGateway),
		clock:       &testClock{now: testStart},
		idempotency: newMemIdempotencyStore(),
		verifier:    new(MockWebhookVerifier),
		freePlan: billing.Plan{
			ID: uuid.New(), ProductName: "Mockly", Name: "Free",
			BillingCycle: billing.BillingCycleLifetime, Price: decimal.Zero,
			Currency: billing.CurrencyKRW, Active: true,
		},
		monthlyPlan: billing.Plan{
			ID: uuid.New(), ProductName: "Mockly Pro", Name: "Pro Monthly",
			BillingCycle: billing.BillingCycleMonthly, Price: decimal.NewFromInt(9900),
			Currency: billing.CurrencyKRW, Active: true,
		},
		yearlyPlan: billing.Plan{
			ID: uuid.New(), ProductName: "Mockly Pro", Name: "Pro Yearly",
			BillingCycle: billing.BillingCycleYearly, Price: decimal.NewFromInt(99000),
			Currency: billing.CurrencyKRW, Active: true,
		},
	}
	f.ledger.addPlan(f.freePlan)
	f.ledger.addPlan(f.monthlyPlan)
	f.ledger.addPlan(f.yearlyPlan)

	logger := zap.NewNop()
	f.schedules = NewPaymentScheduleService(PaymentScheduleServiceConfig{
		Gateway: f.gateway,
		Logger:  logger,
		Clock:   f.clock.Now,
	})
	f.subscriptions = NewSubscriptionService(SubscriptionServiceConfig{
		TxScope:   f.ledger,
		Gateway:   f.gateway,
		Schedules: f.schedules,
		Logger:    logger,
		Clock:     f.clock.Now,
	})
	f.methods = NewPaymentMethodService(PaymentMethodServiceConfig{
		TxScope: f.ledger,
		Gateway: f.gateway,
		Logger:  logger,
		Clock:   f.clock.Now,
	})
	f.webhooks = NewWebhookReconciler(WebhookReconcilerConfig{
		TxScope:     f.ledger,
		Gateway:     f.gateway,
		Verifier:    f.verifier,
		Schedules:   f.schedules,
		Idempotency: f.idempotency,
		Logger:      logger,
		Clock:       f.clock.Now,
	})
	f.expiration = NewExpirationService(ExpirationServiceConfig{
		TxScope: f.ledger,
		Gateway: f.gateway,
		Logger:  logger,
		Clock:   f.clock.Now,
	})
	f.queries = NewPaymentQueryService(f.ledger)
	return f
}

func cardKeyInfo(billingKey string) *billing.BillingKeyInfo {
	return &billing.BillingKeyInfo{
		BillingKey: billingKey,
		Methods: []billing.MethodInfo{
			billing.CardMethod{Number: "5365-****-****-1234", Brand: "MASTER", Issuer: "SHINHAN"},
		},
		IssuedAt: testStart,
	}
}

// seedActive stores an ACTIVE subscription to plan, optionally with a schedule
func (f *billingFixture) seedActive(t *testing.T, userID uuid.UUID, plan billing.Plan, scheduleID string) *billing.Subscription {
	t.Helper()
	sub, err := billing.NewSubscription(userID, &plan, f.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.Activate(f.clock.Now()); err != nil {
		t.Fatal(err)
	}
	if scheduleID != "" {
		sub.AssignSchedule(scheduleID, f.clock.Now())
	}
	if err := f.ledger.SubscriptionRepo().Save(context.Background(), sub); err != nil {
		t.Fatal(err)
	}
	return sub
}

// seedScheduledPayment stores the Invoice and Payment a provider schedule will charge
func (f *billingFixture) seedScheduledPayment(t *testing.T, sub *billing.Subscription, plan billing.Plan, scheduleID string) *billing.Payment {
	t.Helper()
	start, end, err := sub.NextPeriod()
	if err != nil {
		t.Fatal(err)
	}
	invoice, err := billing.NewInvoice(sub, plan.Price, plan.Currency, start, end, f.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	payment, err := billing.NewPayment(invoice, f.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	payment.AttachSchedule(scheduleID, f.clock.Now())
	if err := f.ledger.InvoiceRepo().Save(context.Background(), invoice); err != nil {
		t.Fatal(err)
	}
	if err := f.ledger.PaymentRepo().Save(context.Background(), payment); err != nil {
		t.Fatal(err)
	}
	return payment
}

func (f *billingFixture) seedMethod(t *testing.T, userID uuid.UUID, billingKey string, isDefault bool) *billing.PaymentMethod {
	t.Helper()
	pm, err := billing.NewPaymentMethod(userID, billingKey, cardKeyInfo(billingKey).PrimaryMethod(), f.clock.Now())
	if err != nil {
		t.Fatal(err)
	}
	if isDefault {
		if err := pm.MarkDefault(f.clock.Now()); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.ledger.PaymentMethodRepo().Save(context.Background(), pm); err != nil {
		t.Fatal(err)
	}
	return pm
}
