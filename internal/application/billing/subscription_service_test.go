package billing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
)

func purchaseInput(userID uuid.UUID, plan billing.Plan, billingKey string) CreateSubscriptionInput {
	return CreateSubscriptionInput{
		UserID:        userID,
		PlanID:        plan.ID,
		ExpectedPrice: plan.Price,
		BillingKey:    billingKey,
	}
}

func TestSubscriptionService_Create_Success(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	f.gateway.On("GetBillingKey", mock.Anything, "billing-key-1").Return(cardKeyInfo("billing-key-1"), nil)
	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req billing.ChargeRequest) bool {
		return req.OrderName == "Mockly Pro - MONTHLY" &&
			req.BillingKey == "billing-key-1" &&
			req.Amount.Equal(decimal.NewFromInt(9900)) &&
			req.Currency == billing.CurrencyKRW
	})).Return(&billing.ChargeResult{PGTxID: "pg-tx-1", PaidAt: testStart}, nil)

	sub, err := f.subscriptions.Create(ctx, purchaseInput(userID, f.monthlyPlan, "billing-key-1"))
	require.NoError(t, err)

	assert.Equal(t, billing.SubscriptionStatusActive, sub.Status)
	require.NotNil(t, sub.CurrentPeriodEnd)
	assert.Equal(t, testStart.AddDate(0, 1, 0), *sub.CurrentPeriodEnd)
	assert.False(t, sub.HasSchedule(), "renewal schedule is created from the outbox")

	payments := f.ledger.paymentsOf(sub.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, billing.PaymentStatusPaid, payments[0].Status)
	assert.Equal(t, billing.PaymentMethodTypeCard, payments[0].Method)
	assert.Equal(t, billing.InvoiceStatusPaid, f.ledger.invoice(payments[0].InvoiceID).Status)

	events := f.ledger.allEvents()
	require.Len(t, events, 1)
	assert.Equal(t, billing.EventTypeScheduleCreate, events[0].EventType)
	assert.Equal(t, sub.ID, events[0].AggregateID)
	assert.True(t, events[0].IsPending())

	methods, err := f.methods.List(ctx, userID)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	assert.True(t, methods[0].Default)
	assert.Equal(t, "1234", methods[0].CardLast4)
	f.gateway.AssertExpectations(t)
}

func TestSubscriptionService_Create_PriceMismatchPersistsNothing(t *testing.T) {
	f := newBillingFixture(t)
	input := purchaseInput(uuid.New(), f.monthlyPlan, "billing-key-1")
	input.ExpectedPrice = decimal.NewFromInt(9800)

	sub, err := f.subscriptions.Create(context.Background(), input)

	assert.Nil(t, sub)
	assert.ErrorIs(t, err, billing.ErrPriceMismatch)
	subs, invoices, payments, events := f.ledger.counts()
	assert.Zero(t, subs)
	assert.Zero(t, invoices)
	assert.Zero(t, payments)
	assert.Zero(t, events)
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestSubscriptionService_Create_Validation(t *testing.T) {
	tests := []struct {
		name    string
		input   func(f *billingFixture) CreateSubscriptionInput
		setup   func(f *billingFixture)
		wantErr error
	}{
		{
			name: "unknown plan",
			input: func(f *billingFixture) CreateSubscriptionInput {
				in := purchaseInput(uuid.New(), f.monthlyPlan, "billing-key-1")
				in.PlanID = uuid.New()
				return in
			},
			wantErr: billing.ErrPlanNotFound,
		},
		{
			name: "free plan",
			input: func(f *billingFixture) CreateSubscriptionInput {
				return purchaseInput(uuid.New(), f.freePlan, "billing-key-1")
			},
			wantErr: billing.ErrFreePlanNotPurchasable,
		},
		{
			name: "unknown billing key",
			input: func(f *billingFixture) CreateSubscriptionInput {
				return purchaseInput(uuid.New(), f.monthlyPlan, "billing-key-x")
			},
			setup: func(f *billingFixture) {
				f.gateway.On("GetBillingKey", mock.Anything, "billing-key-x").
					Return(nil, fmt.Errorf("%w: 404", billing.ErrBillingKeyNotRecognized))
			},
			wantErr: billing.ErrInvalidBillingKey,
		},
		{
			name: "empty billing key",
			input: func(f *billingFixture) CreateSubscriptionInput {
				return purchaseInput(uuid.New(), f.monthlyPlan, "")
			},
			wantErr: billing.ErrInvalidBillingKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBillingFixture(t)
			if tt.setup != nil {
				tt.setup(f)
			}

			_, err := f.subscriptions.Create(context.Background(), tt.input(f))

			assert.ErrorIs(t, err, tt.wantErr)
			subs, _, _, _ := f.ledger.counts()
			assert.Zero(t, subs)
			f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
		})
	}
}

func TestSubscriptionService_Create_ChargeDeclined(t *testing.T) {
	f := newBillingFixture(t)
	userID := uuid.New()
	f.gateway.On("GetBillingKey", mock.Anything, "billing-key-1").Return(cardKeyInfo("billing-key-1"), nil)
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: card limit exceeded", billing.ErrGatewayRequestFailed))

	sub, err := f.subscriptions.Create(context.Background(), purchaseInput(userID, f.monthlyPlan, "billing-key-1"))

	assert.Nil(t, sub)
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrPaymentFailed)
	assert.Contains(t, err.Error(), "card limit exceeded")

	events := f.ledger.allEvents()
	require.Len(t, events, 1)
	assert.Equal(t, billing.OutboxStatusFailed, events[0].Status)

	stored := f.ledger.subscription(events[0].AggregateID)
	assert.Equal(t, billing.SubscriptionStatusCanceled, stored.Status)
	payments := f.ledger.paymentsOf(stored.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, billing.PaymentStatusFailed, payments[0].Status)
	assert.Equal(t, billing.InvoiceStatusFailed, f.ledger.invoice(payments[0].InvoiceID).Status)
}

func TestSubscriptionService_Create_ChargeOutcomeUnknown(t *testing.T) {
	f := newBillingFixture(t)
	f.gateway.On("GetBillingKey", mock.Anything, "billing-key-1").Return(cardKeyInfo("billing-key-1"), nil)
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: context deadline exceeded", billing.ErrGatewayTimeout))

	sub, err := f.subscriptions.Create(context.Background(), purchaseInput(uuid.New(), f.monthlyPlan, "billing-key-1"))

	assert.ErrorIs(t, err, billing.ErrPaymentPending)
	require.NotNil(t, sub)
	stored := f.ledger.subscription(sub.ID)
	assert.Equal(t, billing.SubscriptionStatusPending, stored.Status)
	payments := f.ledger.paymentsOf(sub.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, billing.PaymentStatusPending, payments[0].Status, "uncertain charges are never marked failed")
	assert.True(t, f.ledger.allEvents()[0].IsPending())
}

func TestSubscriptionService_Create_AlreadySubscribed(t *testing.T) {
	f := newBillingFixture(t)
	userID := uuid.New()
	f.seedActive(t, userID, f.monthlyPlan, "sch-1")
	f.gateway.On("GetBillingKey", mock.Anything, "billing-key-1").Return(cardKeyInfo("billing-key-1"), nil)

	for _, plan := range []billing.Plan{f.monthlyPlan, f.yearlyPlan} {
		_, err := f.subscriptions.Create(context.Background(), purchaseInput(userID, plan, "billing-key-1"))
		assert.ErrorIs(t, err, billing.ErrAlreadySubscribed)
	}
	subs, _, _, _ := f.ledger.counts()
	assert.Equal(t, 1, subs)
	f.gateway.AssertNotCalled(t, "Charge", mock.Anything, mock.Anything)
}

func TestSubscriptionService_Create_SupersedesFreeAndPastDue(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	free, err := f.subscriptions.AssignFreePlan(ctx, userID)
	require.NoError(t, err)

	pastDue := f.seedActive(t, userID, f.yearlyPlan, "sch-old")
	require.NoError(t, pastDue.MarkAsPastDue(f.clock.Now()))
	require.NoError(t, f.ledger.SubscriptionRepo().Save(ctx, pastDue))

	f.gateway.On("GetBillingKey", mock.Anything, "billing-key-1").Return(cardKeyInfo("billing-key-1"), nil)
	f.gateway.On("RevokeSchedule", mock.Anything, "sch-old").Return(nil).Once()
	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(&billing.ChargeResult{PaidAt: testStart}, nil)

	sub, err := f.subscriptions.Create(ctx, purchaseInput(userID, f.monthlyPlan, "billing-key-1"))
	require.NoError(t, err)

	assert.Equal(t, billing.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, billing.SubscriptionStatusCanceled, f.ledger.subscription(free.ID).Status)
	oldSub := f.ledger.subscription(pastDue.ID)
	assert.Equal(t, billing.SubscriptionStatusCanceled, oldSub.Status)
	assert.False(t, oldSub.HasSchedule())
	f.gateway.AssertExpectations(t)
}

func TestSubscriptionService_Create_SupersedesFailedPendingPurchase(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	f.gateway.On("GetBillingKey", mock.Anything, "billing-key-1").Return(cardKeyInfo("billing-key-1"), nil)
	f.gateway.On("Charge", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: read tcp: i/o timeout", billing.ErrGatewayUnavailable)).Once()

	stuck, err := f.subscriptions.Create(ctx, purchaseInput(userID, f.monthlyPlan, "billing-key-1"))
	require.ErrorIs(t, err, billing.ErrPaymentPending)

	// a pending charge can still activate the first purchase
	_, err = f.subscriptions.Create(ctx, purchaseInput(userID, f.monthlyPlan, "billing-key-1"))
	require.ErrorIs(t, err, billing.ErrAlreadySubscribed)

	first := f.ledger.paymentsOf(stuck.ID)[0]
	require.NoError(t, first.MarkAsFailed("card expired", f.clock.Now()))
	require.NoError(t, f.ledger.PaymentRepo().Save(ctx, &first))

	f.gateway.On("Charge", mock.Anything, mock.Anything).Return(&billing.ChargeResult{PaidAt: testStart}, nil)
	sub, err := f.subscriptions.Create(ctx, purchaseInput(userID, f.monthlyPlan, "billing-key-1"))
	require.NoError(t, err)

	assert.Equal(t, billing.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, billing.SubscriptionStatusCanceled, f.ledger.subscription(stuck.ID).Status)
	f.gateway.AssertNotCalled(t, "RevokeSchedule", mock.Anything, mock.Anything)
}

// createActive purchases the monthly plan and returns the ACTIVE subscription
// together with its pending SCHEDULE_CREATE event
func createActive(t *testing.T, f *billingFixture, userID uuid.UUID, billingKey string) (*billing.Subscription, billing.OutboxEvent) {
	t.Helper()
	f.gateway.On("GetBillingKey", mock.Anything, billingKey).Return(cardKeyInfo(billingKey), nil)
	f.gateway.On("Charge", mock.Anything, mock.MatchedBy(func(req billing.ChargeRequest) bool {
		return req.BillingKey == billingKey
	})).Return(&billing.ChargeResult{PaidAt: f.clock.Now()}, nil)

	sub, err := f.subscriptions.Create(context.Background(), purchaseInput(userID, f.monthlyPlan, billingKey))
	require.NoError(t, err)
	for _, e := range f.ledger.allEvents() {
		if e.AggregateID == sub.ID {
			return sub, e
		}
	}
	t.Fatal("no outbox event written")
	return nil, billing.OutboxEvent{}
}

func TestSubscriptionService_ProcessScheduleCreation_OnlyOnce(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	sub, event := createActive(t, f, uuid.New(), "billing-key-1")

	f.gateway.On("CreateSchedule", mock.Anything, mock.MatchedBy(func(req billing.ScheduleRequest) bool {
		return req.OrderName == "Mockly Pro - RENEWAL" &&
			req.BillingKey == "billing-key-1" &&
			req.ExecuteAt.Equal(*sub.CurrentPeriodEnd)
	})).Return("sch-1", nil).Once()

	for i := 0; i < 2; i++ {
		err := f.ledger.Execute(ctx, func(repos TransactionalRepositories) error {
			return f.subscriptions.ProcessScheduleCreation(ctx, repos, &event)
		})
		require.NoError(t, err)
	}

	f.gateway.AssertNumberOfCalls(t, "CreateSchedule", 1)
	stored := f.ledger.subscription(sub.ID)
	assert.Equal(t, "sch-1", stored.ScheduleID())

	payments := f.ledger.paymentsOf(sub.ID)
	require.Len(t, payments, 2)
	scheduled := payments[1]
	assert.True(t, scheduled.ExecutedBy("sch-1"))
	assert.Equal(t, billing.PaymentStatusPending, scheduled.Status)
	invoice := f.ledger.invoice(scheduled.InvoiceID)
	assert.Equal(t, *sub.CurrentPeriodEnd, invoice.PeriodStart)
	require.NotNil(t, invoice.PeriodEnd)
	assert.Equal(t, sub.CurrentPeriodEnd.AddDate(0, 1, 0), *invoice.PeriodEnd)
}

func TestSubscriptionService_ProcessScheduleCreation_ByStatus(t *testing.T) {
	tests := []struct {
		name          string
		prepare       func(f *billingFixture, sub *billing.Subscription)
		wantErr       bool
		wantNonRetry  bool
		gatewayCalled bool
	}{
		{
			name:    "pending subscription is retried",
			prepare: func(f *billingFixture, sub *billing.Subscription) {},
			wantErr: true,
		},
		{
			name: "canceled subscription is skipped",
			prepare: func(f *billingFixture, sub *billing.Subscription) {
				_ = sub.Cancel(f.clock.Now())
			},
		},
		{
			name: "past due subscription fails permanently",
			prepare: func(f *billingFixture, sub *billing.Subscription) {
				_ = sub.Activate(f.clock.Now())
				_ = sub.MarkAsPastDue(f.clock.Now())
			},
			wantErr:      true,
			wantNonRetry: true,
		},
		{
			name: "gateway refusal is retried",
			prepare: func(f *billingFixture, sub *billing.Subscription) {
				_ = sub.Activate(f.clock.Now())
				f.gateway.On("CreateSchedule", mock.Anything, mock.Anything).
					Return("", fmt.Errorf("%w: 503", billing.ErrGatewayUnavailable))
			},
			wantErr:       true,
			gatewayCalled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBillingFixture(t)
			ctx := context.Background()
			sub, err := billing.NewSubscription(uuid.New(), &f.monthlyPlan, f.clock.Now())
			require.NoError(t, err)
			tt.prepare(f, sub)
			require.NoError(t, f.ledger.SubscriptionRepo().Save(ctx, sub))
			event, err := billing.NewScheduleCreateEvent(sub.ID, "billing-key-1", f.clock.Now())
			require.NoError(t, err)

			err = f.ledger.Execute(ctx, func(repos TransactionalRepositories) error {
				return f.subscriptions.ProcessScheduleCreation(ctx, repos, event)
			})

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantNonRetry, errors.Is(err, billing.ErrNonRetryable))
			} else {
				assert.NoError(t, err)
			}
			if !tt.gatewayCalled {
				f.gateway.AssertNotCalled(t, "CreateSchedule", mock.Anything, mock.Anything)
			}
			_, invoices, payments, _ := f.ledger.counts()
			assert.Zero(t, invoices)
			assert.Zero(t, payments)
			stored := f.ledger.subscription(sub.ID)
			assert.False(t, stored.HasSchedule())
		})
	}
}

func TestSubscriptionService_ProcessScheduleCreation_BadPayload(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()

	missing, err := billing.NewScheduleCreateEvent(uuid.New(), "billing-key-1", f.clock.Now())
	require.NoError(t, err)
	garbled := *missing
	garbled.Payload = []byte(`{"subscriptionId":"not-a-uuid","billingKey":"k"}`)

	for _, event := range []*billing.OutboxEvent{missing, &garbled} {
		err := f.subscriptions.ProcessScheduleCreation(ctx, f.ledger, event)
		assert.ErrorIs(t, err, billing.ErrNonRetryable)
	}
}

func TestSubscriptionService_Cancel(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.monthlyPlan, "sch-1")
	f.gateway.On("RevokeSchedule", mock.Anything, "sch-1").Return(nil).Once()

	canceled, err := f.subscriptions.Cancel(ctx, userID, sub.ID)
	require.NoError(t, err)

	assert.Equal(t, billing.SubscriptionStatusCanceled, canceled.Status)
	assert.NotNil(t, canceled.CanceledAt)
	stored := f.ledger.subscription(sub.ID)
	assert.Equal(t, billing.SubscriptionStatusCanceled, stored.Status)
	assert.False(t, stored.HasSchedule())
	f.gateway.AssertExpectations(t)

	_, err = f.subscriptions.Cancel(ctx, userID, sub.ID)
	assert.ErrorIs(t, err, billing.ErrSubscriptionNotActive)
}

func TestSubscriptionService_Cancel_RevokeFailureKeepsSubscription(t *testing.T) {
	f := newBillingFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.monthlyPlan, "sch-1")
	f.gateway.On("RevokeSchedule", mock.Anything, "sch-1").
		Return(fmt.Errorf("%w: 502", billing.ErrGatewayUnavailable))

	_, err := f.subscriptions.Cancel(context.Background(), userID, sub.ID)

	assert.ErrorIs(t, err, billing.ErrScheduleRevokeFailed)
	stored := f.ledger.subscription(sub.ID)
	assert.Equal(t, billing.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, "sch-1", stored.ScheduleID())
}

func TestSubscriptionService_Cancel_Ownership(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	sub := f.seedActive(t, uuid.New(), f.monthlyPlan, "")

	_, err := f.subscriptions.Cancel(ctx, uuid.New(), sub.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.subscriptions.Cancel(ctx, sub.UserID, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSubscriptionService_AssignFreePlan(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.subscriptions.GetActive(ctx, userID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	sub, err := f.subscriptions.AssignFreePlan(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, billing.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, f.freePlan.ID, sub.PlanID)
	assert.Nil(t, sub.CurrentPeriodEnd)

	again, err := f.subscriptions.AssignFreePlan(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, again.ID)

	current, err := f.subscriptions.GetActive(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, current.ID)
}

func TestSubscriptionService_ChangePaymentMethod_ReplacesSchedule(t *testing.T) {
	f := newBillingFixture(t)
	ctx := context.Background()
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.monthlyPlan, "sch-old")
	f.seedMethod(t, userID, "billing-key-1", true)
	newMethod := f.seedMethod(t, userID, "billing-key-2", false)

	f.gateway.On("RevokeSchedule", mock.Anything, "sch-old").Return(nil).Once()
	f.gateway.On("CreateSchedule", mock.Anything, mock.MatchedBy(func(req billing.ScheduleRequest) bool {
		return req.BillingKey == "billing-key-2" && req.ExecuteAt.Equal(*sub.CurrentPeriodEnd)
	})).Return("sch-new", nil).Once()

	updated, err := f.subscriptions.ChangePaymentMethod(ctx, userID, sub.ID, newMethod.ID)
	require.NoError(t, err)

	assert.Equal(t, "sch-new", updated.ScheduleID())
	stored := f.ledger.subscription(sub.ID)
	assert.Equal(t, billing.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, "sch-new", stored.ScheduleID())

	live := 0
	for _, p := range f.ledger.paymentsOf(sub.ID) {
		if p.ScheduleID != nil {
			live++
			assert.True(t, p.ExecutedBy("sch-new"))
		}
	}
	assert.Equal(t, 1, live)

	methods, err := f.methods.List(ctx, userID)
	require.NoError(t, err)
	for _, m := range methods {
		assert.Equal(t, m.ID == newMethod.ID, m.Default, "default flag of %s", m.BillingKey)
	}
	f.gateway.AssertExpectations(t)
}

func TestSubscriptionService_ChangePaymentMethod_Blackout(t *testing.T) {
	f := newBillingFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.monthlyPlan, "sch-old")
	method := f.seedMethod(t, userID, "billing-key-2", false)
	f.clock.Set(sub.CurrentPeriodEnd.Add(-30 * time.Minute))

	_, err := f.subscriptions.ChangePaymentMethod(context.Background(), userID, sub.ID, method.ID)

	assert.ErrorIs(t, err, billing.ErrBlackoutWindow)
	f.gateway.AssertNotCalled(t, "RevokeSchedule", mock.Anything, mock.Anything)
}

func TestSubscriptionService_ChangePaymentMethod_RevokeFailureChangesNothing(t *testing.T) {
	f := newBillingFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.monthlyPlan, "sch-old")
	method := f.seedMethod(t, userID, "billing-key-2", false)
	f.gateway.On("RevokeSchedule", mock.Anything, "sch-old").
		Return(fmt.Errorf("%w: 500", billing.ErrGatewayUnavailable))

	_, err := f.subscriptions.ChangePaymentMethod(context.Background(), userID, sub.ID, method.ID)

	assert.ErrorIs(t, err, billing.ErrScheduleRevokeFailed)
	stored := f.ledger.subscription(sub.ID)
	assert.Equal(t, billing.SubscriptionStatusActive, stored.Status)
	assert.Equal(t, "sch-old", stored.ScheduleID())
	f.gateway.AssertNotCalled(t, "CreateSchedule", mock.Anything, mock.Anything)
}

func TestSubscriptionService_ChangePaymentMethod_CreateFailureMarksPastDue(t *testing.T) {
	f := newBillingFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.monthlyPlan, "sch-old")
	method := f.seedMethod(t, userID, "billing-key-2", false)
	f.gateway.On("RevokeSchedule", mock.Anything, "sch-old").Return(nil)
	f.gateway.On("CreateSchedule", mock.Anything, mock.Anything).
		Return("", fmt.Errorf("%w: 400 invalid billing key", billing.ErrGatewayRequestFailed))

	_, err := f.subscriptions.ChangePaymentMethod(context.Background(), userID, sub.ID, method.ID)

	assert.ErrorIs(t, err, billing.ErrGatewayRequestFailed)
	stored := f.ledger.subscription(sub.ID)
	assert.Equal(t, billing.SubscriptionStatusPastDue, stored.Status)
	assert.False(t, stored.HasSchedule())

	// the period's rows stay PENDING for operators
	payments := f.ledger.paymentsOf(sub.ID)
	require.Len(t, payments, 1)
	assert.Equal(t, billing.PaymentStatusPending, payments[0].Status)
	assert.Nil(t, payments[0].ScheduleID)
	assert.Equal(t, billing.InvoiceStatusPending, f.ledger.invoice(payments[0].InvoiceID).Status)
}

func TestSubscriptionService_ChangePaymentMethod_Ownership(t *testing.T) {
	f := newBillingFixture(t)
	userID := uuid.New()
	sub := f.seedActive(t, userID, f.monthlyPlan, "sch-old")
	foreign := f.seedMethod(t, uuid.New(), "billing-key-9", true)

	_, err := f.subscriptions.ChangePaymentMethod(context.Background(), userID, sub.ID, foreign.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)

	_, err = f.subscriptions.ChangePaymentMethod(context.Background(), uuid.New(), sub.ID, foreign.ID)
	assert.ErrorIs(t, err, shared.ErrForbidden)
}
