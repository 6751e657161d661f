package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mockly/billing/internal/domain/billing"
	"github.com/mockly/billing/internal/domain/shared"
)

// memLedger is an in-memory ledger. Execute snapshots the maps and restores
// them when fn fails, which gives tests rollback semantics.
type memLedger struct {
	mu       sync.Mutex
	seq      int
	plans    map[uuid.UUID]billing.Plan
	subs     map[uuid.UUID]row[billing.Subscription]
	invoices map[string]row[billing.Invoice]
	payments map[string]row[billing.Payment]
	methods  map[uuid.UUID]row[billing.PaymentMethod]
	events   map[uuid.UUID]row[billing.OutboxEvent]
	// lockedEvents simulates rows held by another worker
	lockedEvents map[uuid.UUID]bool
}

type row[T any] struct {
	v   T
	seq int
}

func newMemLedger() *memLedger {
	return &memLedger{
		plans:        make(map[uuid.UUID]billing.Plan),
		subs:         make(map[uuid.UUID]row[billing.Subscription]),
		invoices:     make(map[string]row[billing.Invoice]),
		payments:     make(map[string]row[billing.Payment]),
		methods:      make(map[uuid.UUID]row[billing.PaymentMethod]),
		events:       make(map[uuid.UUID]row[billing.OutboxEvent]),
		lockedEvents: make(map[uuid.UUID]bool),
	}
}

type ledgerSnapshot struct {
	seq      int
	subs     map[uuid.UUID]row[billing.Subscription]
	invoices map[string]row[billing.Invoice]
	payments map[string]row[billing.Payment]
	methods  map[uuid.UUID]row[billing.PaymentMethod]
	events   map[uuid.UUID]row[billing.OutboxEvent]
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (l *memLedger) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	l.mu.Lock()
	snap := ledgerSnapshot{
		seq:      l.seq,
		subs:     copyMap(l.subs),
		invoices: copyMap(l.invoices),
		payments: copyMap(l.payments),
		methods:  copyMap(l.methods),
		events:   copyMap(l.events),
	}
	l.mu.Unlock()

	if err := fn(l); err != nil {
		l.mu.Lock()
		l.seq = snap.seq
		l.subs = snap.subs
		l.invoices = snap.invoices
		l.payments = snap.payments
		l.methods = snap.methods
		l.events = snap.events
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *memLedger) PlanRepo() billing.PlanRepository                 { return memPlans{l} }
func (l *memLedger) SubscriptionRepo() billing.SubscriptionRepository { return memSubscriptions{l} }
func (l *memLedger) InvoiceRepo() billing.InvoiceRepository           { return memInvoices{l} }
func (l *memLedger) PaymentRepo() billing.PaymentRepository           { return memPayments{l} }
func (l *memLedger) PaymentMethodRepo() billing.PaymentMethodRepository {
	return memMethods{l}
}
func (l *memLedger) OutboxRepo() billing.OutboxEventRepository { return memOutbox{l} }

var _ TransactionScope = (*memLedger)(nil)
var _ TransactionalRepositories = (*memLedger)(nil)

func (l *memLedger) nextSeq() int {
	l.seq++
	return l.seq
}

func (l *memLedger) addPlan(p billing.Plan) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.plans[p.ID] = p
}

// subscription returns a copy of the stored subscription
func (l *memLedger) subscription(id uuid.UUID) billing.Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subs[id].v
}

func (l *memLedger) payment(id string) billing.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payments[id].v
}

func (l *memLedger) invoice(id string) billing.Invoice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.invoices[id].v
}

func (l *memLedger) paymentsOf(subID uuid.UUID) []billing.Payment {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []billing.Payment
	for _, r := range sortedRows(l.payments, false) {
		if r.v.SubscriptionID == subID {
			out = append(out, r.v)
		}
	}
	return out
}

func (l *memLedger) allEvents() []billing.OutboxEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []billing.OutboxEvent
	for _, r := range sortedRows(l.events, false) {
		out = append(out, r.v)
	}
	return out
}

func (l *memLedger) counts() (subs, invoices, payments, events int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs), len(l.invoices), len(l.payments), len(l.events)
}

// sortedRows orders rows by insertion, newest first when desc is set
func sortedRows[K comparable, T any](m map[K]row[T], desc bool) []row[T] {
	out := make([]row[T], 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].seq > out[j].seq
		}
		return out[i].seq < out[j].seq
	})
	return out
}

type memPlans struct{ l *memLedger }

func (r memPlans) FindByID(_ context.Context, id uuid.UUID) (*billing.Plan, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p, ok := r.l.plans[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &p, nil
}

func (r memPlans) FindFreePlan(_ context.Context) (*billing.Plan, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, p := range r.l.plans {
		if p.Active && p.IsFree() && p.BillingCycle == billing.BillingCycleLifetime {
			plan := p
			return &plan, nil
		}
	}
	return nil, shared.ErrNotFound
}

type memSubscriptions struct{ l *memLedger }

func (r memSubscriptions) FindByID(_ context.Context, id uuid.UUID) (*billing.Subscription, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	s, ok := r.l.subs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	sub := s.v
	return &sub, nil
}

func (r memSubscriptions) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*billing.Subscription, error) {
	return r.FindByID(ctx, id)
}

func (r memSubscriptions) FindByUserAndStatuses(_ context.Context, userID uuid.UUID, statuses ...billing.SubscriptionStatus) ([]billing.Subscription, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []billing.Subscription
	for _, s := range sortedRows(r.l.subs, true) {
		if s.v.UserID != userID {
			continue
		}
		for _, st := range statuses {
			if s.v.Status == st {
				out = append(out, s.v)
				break
			}
		}
	}
	return out, nil
}

func (r memSubscriptions) FindPastDueBefore(_ context.Context, cutoff time.Time, limit int) ([]billing.Subscription, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []billing.Subscription
	for _, s := range sortedRows(r.l.subs, false) {
		if s.v.Status == billing.SubscriptionStatusPastDue && s.v.UpdatedAt.Before(cutoff) {
			out = append(out, s.v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memSubscriptions) Save(_ context.Context, sub *billing.Subscription) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	existing, ok := r.l.subs[sub.ID]
	seq := existing.seq
	if !ok {
		seq = r.l.nextSeq()
	}
	r.l.subs[sub.ID] = row[billing.Subscription]{v: *sub, seq: seq}
	return nil
}

type memInvoices struct{ l *memLedger }

func (r memInvoices) FindByID(_ context.Context, id string) (*billing.Invoice, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	i, ok := r.l.invoices[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	inv := i.v
	return &inv, nil
}

func (r memInvoices) Save(_ context.Context, invoice *billing.Invoice) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	existing, ok := r.l.invoices[invoice.ID]
	seq := existing.seq
	if !ok {
		seq = r.l.nextSeq()
	}
	r.l.invoices[invoice.ID] = row[billing.Invoice]{v: *invoice, seq: seq}
	return nil
}

type memPayments struct{ l *memLedger }

func (r memPayments) FindByID(_ context.Context, id string) (*billing.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	p, ok := r.l.payments[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	payment := p.v
	return &payment, nil
}

func (r memPayments) FindByUser(_ context.Context, userID uuid.UUID, filter billing.PaymentFilter) ([]billing.Payment, int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var matched []billing.Payment
	for _, p := range sortedRows(r.l.payments, true) {
		v := p.v
		if v.UserID != userID {
			continue
		}
		if filter.Status != nil && v.Status != *filter.Status {
			continue
		}
		if filter.From != nil && v.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !v.CreatedAt.Before(*filter.To) {
			continue
		}
		matched = append(matched, v)
	}
	total := int64(len(matched))
	start := filter.Offset()
	if start >= len(matched) {
		return []billing.Payment{}, total, nil
	}
	end := start + filter.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r memPayments) FindBySubscription(_ context.Context, subscriptionID uuid.UUID) ([]billing.Payment, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []billing.Payment
	for _, p := range sortedRows(r.l.payments, false) {
		if p.v.SubscriptionID == subscriptionID {
			out = append(out, p.v)
		}
	}
	return out, nil
}

func (r memPayments) Save(_ context.Context, payment *billing.Payment) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	existing, ok := r.l.payments[payment.ID]
	seq := existing.seq
	if !ok {
		seq = r.l.nextSeq()
	}
	r.l.payments[payment.ID] = row[billing.Payment]{v: *payment, seq: seq}
	return nil
}

type memMethods struct{ l *memLedger }

func (r memMethods) FindByID(_ context.Context, id uuid.UUID) (*billing.PaymentMethod, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	m, ok := r.l.methods[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	pm := m.v
	return &pm, nil
}

func (r memMethods) FindActiveByUser(_ context.Context, userID uuid.UUID) ([]billing.PaymentMethod, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []billing.PaymentMethod
	for _, m := range sortedRows(r.l.methods, true) {
		if m.v.UserID == userID && m.v.Active {
			out = append(out, m.v)
		}
	}
	return out, nil
}

func (r memMethods) FindActiveByBillingKey(_ context.Context, userID uuid.UUID, billingKey string) (*billing.PaymentMethod, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	for _, m := range r.l.methods {
		if m.v.UserID == userID && m.v.Active && m.v.BillingKey == billingKey {
			pm := m.v
			return &pm, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r memMethods) Save(_ context.Context, method *billing.PaymentMethod) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	existing, ok := r.l.methods[method.ID]
	seq := existing.seq
	if !ok {
		seq = r.l.nextSeq()
	}
	r.l.methods[method.ID] = row[billing.PaymentMethod]{v: *method, seq: seq}
	return nil
}

type memOutbox struct{ l *memLedger }

func (r memOutbox) FindPending(_ context.Context, limit int) ([]billing.OutboxEvent, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var out []billing.OutboxEvent
	for _, e := range sortedRows(r.l.events, false) {
		if e.v.IsPending() {
			out = append(out, e.v)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r memOutbox) LockForProcessing(_ context.Context, id uuid.UUID) (*billing.OutboxEvent, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	e, ok := r.l.events[id]
	if !ok || r.l.lockedEvents[id] {
		return nil, shared.ErrNotFound
	}
	event := e.v
	return &event, nil
}

func (r memOutbox) Save(_ context.Context, event *billing.OutboxEvent) error {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	existing, ok := r.l.events[event.ID]
	seq := existing.seq
	if !ok {
		seq = r.l.nextSeq()
	}
	r.l.events[event.ID] = row[billing.OutboxEvent]{v: *event, seq: seq}
	return nil
}

func (r memOutbox) CountByStatus(_ context.Context) (map[billing.OutboxStatus]int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	out := make(map[billing.OutboxStatus]int64)
	for _, e := range r.l.events {
		out[e.v.Status]++
	}
	return out, nil
}

func (r memOutbox) DeleteProcessedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.l.mu.Lock()
	defer r.l.mu.Unlock()
	var n int64
	for id, e := range r.l.events {
		if e.v.Status == billing.OutboxStatusProcessed && e.v.ProcessedAt != nil && e.v.ProcessedAt.Before(cutoff) {
			delete(r.l.events, id)
			n++
		}
	}
	return n, nil
}
