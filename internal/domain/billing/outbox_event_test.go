package billing

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduleCreateEvent(t *testing.T) {
	subID := uuid.New()
	event, err := NewScheduleCreateEvent(subID, "billing-key-1", testNow)
	require.NoError(t, err)

	assert.Equal(t, AggregateTypeSubscription, event.AggregateType)
	assert.Equal(t, subID, event.AggregateID)
	assert.Equal(t, EventTypeScheduleCreate, event.EventType)
	assert.Equal(t, OutboxStatusPending, event.Status)
	assert.Zero(t, event.RetryCount)
	assert.JSONEq(t, fmt.Sprintf(`{"subscriptionId":%q,"billingKey":"billing-key-1"}`, subID), string(event.Payload))

	payload, err := event.SchedulePayload()
	require.NoError(t, err)
	assert.Equal(t, subID.String(), payload.SubscriptionID)
	assert.Equal(t, "billing-key-1", payload.BillingKey)

	_, err = NewScheduleCreateEvent(subID, "", testNow)
	assert.Error(t, err)
}

func TestOutboxEvent_SchedulePayload_Invalid(t *testing.T) {
	event := &OutboxEvent{Payload: []byte("not json")}
	_, err := event.SchedulePayload()
	assert.Error(t, err)

	event.Payload = []byte(`{"subscriptionId":"x"}`)
	_, err = event.SchedulePayload()
	assert.Error(t, err)
}

func TestOutboxEvent_MarkProcessed(t *testing.T) {
	event, err := NewScheduleCreateEvent(uuid.New(), "key", testNow)
	require.NoError(t, err)

	require.NoError(t, event.MarkProcessed(testNow))
	assert.Equal(t, OutboxStatusProcessed, event.Status)
	require.NotNil(t, event.ProcessedAt)
	assert.False(t, event.IsPending())

	assert.Error(t, event.MarkProcessed(testNow))
}

func TestOutboxEvent_RecordFailure(t *testing.T) {
	event, err := NewScheduleCreateEvent(uuid.New(), "key", testNow)
	require.NoError(t, err)
	payload := append([]byte(nil), event.Payload...)

	for i := 1; i < 5; i++ {
		exhausted := event.RecordFailure(fmt.Sprintf("attempt %d", i), 5, testNow)
		assert.False(t, exhausted)
		assert.Equal(t, i, event.RetryCount)
		assert.Equal(t, OutboxStatusPending, event.Status)
	}

	exhausted := event.RecordFailure(strings.Repeat("x", 700), 5, testNow)
	assert.True(t, exhausted)
	assert.Equal(t, 5, event.RetryCount)
	assert.Equal(t, OutboxStatusFailed, event.Status)
	assert.Len(t, event.FailureReason, 500)
	assert.Equal(t, payload, event.Payload)
}

func TestOutboxEvent_MarkFailed(t *testing.T) {
	event, err := NewScheduleCreateEvent(uuid.New(), "key", testNow)
	require.NoError(t, err)

	event.MarkFailed("unknown event type", testNow)
	assert.Equal(t, OutboxStatusFailed, event.Status)
	assert.Zero(t, event.RetryCount)
}

func TestIsUncertain(t *testing.T) {
	assert.True(t, IsUncertain(fmt.Errorf("charge: %w", ErrGatewayTimeout)))
	assert.True(t, IsUncertain(fmt.Errorf("charge: %w", ErrGatewayUnavailable)))
	assert.False(t, IsUncertain(fmt.Errorf("charge: %w", ErrGatewayRequestFailed)))
	assert.False(t, IsUncertain(ErrGatewayCircuitOpen))
	assert.False(t, IsUncertain(errors.New("boom")))
}

func TestPaymentFilter_Normalize(t *testing.T) {
	f := PaymentFilter{}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 20, f.Size)
	assert.Equal(t, 0, f.Offset())

	f = PaymentFilter{Page: 3, Size: 100}.Normalize()
	assert.Equal(t, 20, f.Size)
	assert.Equal(t, 40, f.Offset())

	f = PaymentFilter{Page: 2, Size: 5}.Normalize()
	assert.Equal(t, 5, f.Offset())
}
