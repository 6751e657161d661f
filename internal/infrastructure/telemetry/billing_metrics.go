package telemetry

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a metrics constructor receives no meter
var ErrMeterNil = errors.New("telemetry: meter is nil")

// BillingMetrics records billing outcomes as OpenTelemetry counters and,
// when a registerer is supplied, as Prometheus counters for /metrics.
type BillingMetrics struct {
	charges     labeledCounter
	webhooks    labeledCounter
	schedules   labeledCounter
	outbox      labeledCounter
	expirations labeledCounter
}

// labeledCounter pairs an OTEL counter with its Prometheus twin
type labeledCounter struct {
	otel *Counter
	prom *prometheus.CounterVec
	keys []attribute.Key
}

func (c labeledCounter) inc(ctx context.Context, values ...string) {
	attrs := make([]attribute.KeyValue, len(c.keys))
	for i, key := range c.keys {
		attrs[i] = key.String(values[i])
	}
	c.otel.Inc(ctx, attrs...)
	if c.prom != nil {
		c.prom.WithLabelValues(values...).Inc()
	}
}

type counterDef struct {
	name        string
	description string
	unit        string
	keys        []attribute.Key
}

// NewBillingMetrics creates the billing instruments on meter. registerer may be nil.
func NewBillingMetrics(meter metric.Meter, registerer prometheus.Registerer) (*BillingMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	build := func(def counterDef) (labeledCounter, error) {
		c, err := NewCounter(meter, "billing."+def.name, def.description, def.unit)
		if err != nil {
			return labeledCounter{}, err
		}
		lc := labeledCounter{otel: c, keys: def.keys}
		if registerer == nil {
			return lc, nil
		}
		labels := make([]string, len(def.keys))
		for i, key := range def.keys {
			labels[i] = string(key)
		}
		lc.prom = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "billing",
			Name:      def.name + "_total",
			Help:      def.description,
		}, labels)
		if err := registerer.Register(lc.prom); err != nil {
			return labeledCounter{}, err
		}
		return lc, nil
	}

	var (
		m   BillingMetrics
		err error
	)
	if m.charges, err = build(counterDef{
		name: "charges", description: "Immediate charge attempts by outcome", unit: "{charge}",
		keys: []attribute.Key{AttrOutcome},
	}); err != nil {
		return nil, err
	}
	if m.webhooks, err = build(counterDef{
		name: "webhooks", description: "Gateway webhooks processed by event type and outcome", unit: "{webhook}",
		keys: []attribute.Key{AttrEventType, AttrOutcome},
	}); err != nil {
		return nil, err
	}
	if m.schedules, err = build(counterDef{
		name: "schedule_operations", description: "Payment schedule create and revoke calls", unit: "{operation}",
		keys: []attribute.Key{AttrOperation, AttrOutcome},
	}); err != nil {
		return nil, err
	}
	if m.outbox, err = build(counterDef{
		name: "outbox_events", description: "Outbox events dispatched by event type and outcome", unit: "{event}",
		keys: []attribute.Key{AttrEventType, AttrOutcome},
	}); err != nil {
		return nil, err
	}
	if m.expirations, err = build(counterDef{
		name: "expirations", description: "Past-due subscriptions handled by the expiration sweep", unit: "{subscription}",
		keys: []attribute.Key{AttrOutcome},
	}); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *BillingMetrics) RecordCharge(ctx context.Context, outcome string) {
	m.charges.inc(ctx, outcome)
}

func (m *BillingMetrics) RecordWebhook(ctx context.Context, eventType, outcome string) {
	m.webhooks.inc(ctx, eventType, outcome)
}

func (m *BillingMetrics) RecordSchedule(ctx context.Context, operation, outcome string) {
	m.schedules.inc(ctx, operation, outcome)
}

func (m *BillingMetrics) RecordOutboxEvent(ctx context.Context, eventType, outcome string) {
	m.outbox.inc(ctx, eventType, outcome)
}

func (m *BillingMetrics) RecordExpiration(ctx context.Context, outcome string) {
	m.expirations.inc(ctx, outcome)
}
