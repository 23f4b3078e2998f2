package replicator

import (
	"context"
	"sync"
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// fakeStore is an in-memory domain.Store/domain.Tx implementation. WithTx
// runs fn directly against the same instance rather than opening a real
// transaction, since these tests only need atomicity-of-intent, not
// rollback semantics.
type fakeStore struct {
	mu sync.Mutex

	orders      map[string]domain.Order
	byCorr      map[string]string
	mappings    map[string]domain.CopyMapping
	legs        map[string]domain.BracketLeg
	events      []domain.OrderEvent
	funds       map[domain.Account]domain.FundsSnapshot
	instruments map[string]domain.Instrument
	audit       []domain.AuditEntry
	config      map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:      make(map[string]domain.Order),
		byCorr:      make(map[string]string),
		mappings:    make(map[string]domain.CopyMapping),
		legs:        make(map[string]domain.BracketLeg),
		funds:       make(map[domain.Account]domain.FundsSnapshot),
		instruments: make(map[string]domain.Instrument),
		config:      make(map[string]string),
	}
}

func legKey(parentOrderID string, legType domain.LegType, account domain.Account) string {
	return parentOrderID + "|" + string(legType) + "|" + string(account)
}

func (s *fakeStore) UpsertOrder(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	if o.CorrelationID != "" {
		s.byCorr[o.CorrelationID] = o.ID
	}
	return nil
}

func (s *fakeStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (s *fakeStore) GetOrderByCorrelation(ctx context.Context, correlationID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byCorr[correlationID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return s.orders[id], nil
}

func (s *fakeStore) ListByParent(ctx context.Context, parentOrderID string) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.ParentOrderID == parentOrderID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) ListOrdersBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	return nil, nil
}

func (s *fakeStore) UpsertMapping(ctx context.Context, m domain.CopyMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.LeaderOrderID] = m
	return nil
}

func (s *fakeStore) GetMappingByLeader(ctx context.Context, leaderOrderID string) (domain.CopyMapping, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.mappings[leaderOrderID]
	return m, ok, nil
}

func (s *fakeStore) UpsertBracketLeg(ctx context.Context, leg domain.BracketLeg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legs[legKey(leg.ParentOrderID, leg.LegType, leg.Account)] = leg
	return nil
}

func (s *fakeStore) ListBracketLegs(ctx context.Context, parentOrderID string) ([]domain.BracketLeg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.BracketLeg
	for _, leg := range s.legs {
		if leg.ParentOrderID == parentOrderID {
			out = append(out, leg)
		}
	}
	return out, nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, e domain.OrderEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) ListEventsBefore(ctx context.Context, before time.Time) ([]domain.OrderEvent, error) {
	return nil, nil
}

func (s *fakeStore) UpsertFunds(ctx context.Context, f domain.FundsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funds[f.Account] = f
	return nil
}

func (s *fakeStore) GetFunds(ctx context.Context, account domain.Account) (domain.FundsSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.funds[account]
	return f, ok, nil
}

func (s *fakeStore) UpsertInstrument(ctx context.Context, i domain.Instrument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instruments[i.SecurityID] = i
	return nil
}

func (s *fakeStore) GetInstrument(ctx context.Context, securityID string) (domain.Instrument, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.instruments[securityID]
	return i, ok, nil
}

func (s *fakeStore) LogAudit(ctx context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (s *fakeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.audit...), nil
}

func (s *fakeStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.config[key]
	return v, ok, nil
}

func (s *fakeStore) SetConfig(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config[key] = value
	return nil
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return fn(s)
}

// fakeBroker is a domain.Broker stub whose PlaceOrder/ModifyOrder/CancelOrder
// calls are counted and scriptable; the methods the replicator and OCO path
// never call are implemented just enough to satisfy the interface.
type fakeBroker struct {
	mu sync.Mutex

	placeCalls  int
	modifyCalls int
	cancelCalls map[string]int

	placeFunc func(req domain.PlaceOrderRequest) (domain.Order, error)

	listOrders []domain.Order
	funds      map[domain.Account]domain.FundsSnapshot
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		cancelCalls: make(map[string]int),
		funds:       make(map[domain.Account]domain.FundsSnapshot),
	}
}

func (b *fakeBroker) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.Order, error) {
	b.mu.Lock()
	b.placeCalls++
	b.mu.Unlock()
	if b.placeFunc != nil {
		return b.placeFunc(req)
	}
	return domain.Order{ID: "F-" + req.CorrelationID, Account: domain.AccountFollower, Status: domain.StatusOpen}, nil
}

func (b *fakeBroker) PlaceSliceOrder(ctx context.Context, req domain.SliceOrderRequest) ([]domain.Order, error) {
	return nil, domain.ErrValidation
}

func (b *fakeBroker) ModifyOrder(ctx context.Context, req domain.ModifyOrderRequest) (domain.Order, error) {
	b.mu.Lock()
	b.modifyCalls++
	b.mu.Unlock()
	return domain.Order{ID: req.OrderID, Account: domain.AccountFollower, Status: domain.StatusOpen, Quantity: req.Quantity}, nil
}

func (b *fakeBroker) CancelOrder(ctx context.Context, account domain.Account, orderID string) (domain.Order, error) {
	b.mu.Lock()
	b.cancelCalls[orderID]++
	b.mu.Unlock()
	return domain.Order{ID: orderID, Account: account, Status: domain.StatusCancelled}, nil
}

func (b *fakeBroker) GetOrder(ctx context.Context, account domain.Account, orderID string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}

func (b *fakeBroker) GetOrderByCorrelation(ctx context.Context, account domain.Account, correlationID string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}

func (b *fakeBroker) ListOrders(ctx context.Context, account domain.Account) ([]domain.Order, error) {
	return b.listOrders, nil
}

func (b *fakeBroker) ListTrades(ctx context.Context, account domain.Account) ([]domain.Order, error) {
	return nil, nil
}

func (b *fakeBroker) GetFunds(ctx context.Context, account domain.Account) (domain.FundsSnapshot, error) {
	return b.funds[account], nil
}

func (b *fakeBroker) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	return nil, nil
}

func (b *fakeBroker) Stream(ctx context.Context, account domain.Account) (<-chan domain.Event, <-chan error) {
	events := make(chan domain.Event)
	errs := make(chan error)
	close(events)
	close(errs)
	return events, errs
}

// fakeLimiter never blocks; the replicator tests care about ordering and
// persistence, not throttling.
type fakeLimiter struct{}

func (fakeLimiter) Acquire(ctx context.Context, account domain.Account) error { return nil }

// fakeNotifier discards every alert; tests assert on store/broker state, not
// notification delivery.
type fakeNotifier struct{}

func (fakeNotifier) Notify(ctx context.Context, event, title, message string) error { return nil }

var (
	_ domain.Store = (*fakeStore)(nil)
	_ domain.Tx    = (*fakeStore)(nil)
	_ domain.Broker = (*fakeBroker)(nil)
)
