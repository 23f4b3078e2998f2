package recovery

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// fakeConfigStore is a minimal domain.Store stub: Recovery only ever reads
// and writes the replication cursor through GetConfig/SetConfig, so every
// other method is an unused stub satisfying the interface.
type fakeConfigStore struct {
	cursor string
}

func (s *fakeConfigStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	if s.cursor == "" {
		return "", false, nil
	}
	return s.cursor, true, nil
}

func (s *fakeConfigStore) SetConfig(ctx context.Context, key, value string) error {
	s.cursor = value
	return nil
}

func (s *fakeConfigStore) UpsertOrder(ctx context.Context, o domain.Order) error { return nil }
func (s *fakeConfigStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}
func (s *fakeConfigStore) GetOrderByCorrelation(ctx context.Context, correlationID string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}
func (s *fakeConfigStore) ListByParent(ctx context.Context, parentOrderID string) ([]domain.Order, error) {
	return nil, nil
}
func (s *fakeConfigStore) ListOrdersBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	return nil, nil
}
func (s *fakeConfigStore) UpsertMapping(ctx context.Context, m domain.CopyMapping) error { return nil }
func (s *fakeConfigStore) GetMappingByLeader(ctx context.Context, leaderOrderID string) (domain.CopyMapping, bool, error) {
	return domain.CopyMapping{}, false, nil
}
func (s *fakeConfigStore) UpsertBracketLeg(ctx context.Context, leg domain.BracketLeg) error {
	return nil
}
func (s *fakeConfigStore) ListBracketLegs(ctx context.Context, parentOrderID string) ([]domain.BracketLeg, error) {
	return nil, nil
}
func (s *fakeConfigStore) AppendEvent(ctx context.Context, e domain.OrderEvent) error { return nil }
func (s *fakeConfigStore) ListEventsBefore(ctx context.Context, before time.Time) ([]domain.OrderEvent, error) {
	return nil, nil
}
func (s *fakeConfigStore) UpsertFunds(ctx context.Context, f domain.FundsSnapshot) error { return nil }
func (s *fakeConfigStore) GetFunds(ctx context.Context, account domain.Account) (domain.FundsSnapshot, bool, error) {
	return domain.FundsSnapshot{}, false, nil
}
func (s *fakeConfigStore) UpsertInstrument(ctx context.Context, i domain.Instrument) error {
	return nil
}
func (s *fakeConfigStore) GetInstrument(ctx context.Context, securityID string) (domain.Instrument, bool, error) {
	return domain.Instrument{}, false, nil
}
func (s *fakeConfigStore) LogAudit(ctx context.Context, event string, detail map[string]any) error {
	return nil
}
func (s *fakeConfigStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}
func (s *fakeConfigStore) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	return nil
}

// fakeLeaderBroker serves a fixed leader order book; every method Recovery
// never calls panics if reached, since that would indicate a behavioral
// regression (e.g. Recovery suddenly trying to place orders itself).
type fakeLeaderBroker struct {
	orders []domain.Order
}

func (b *fakeLeaderBroker) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.Order, error) {
	panic("recovery must never place orders directly")
}
func (b *fakeLeaderBroker) PlaceSliceOrder(ctx context.Context, req domain.SliceOrderRequest) ([]domain.Order, error) {
	panic("unused")
}
func (b *fakeLeaderBroker) ModifyOrder(ctx context.Context, req domain.ModifyOrderRequest) (domain.Order, error) {
	panic("unused")
}
func (b *fakeLeaderBroker) CancelOrder(ctx context.Context, account domain.Account, orderID string) (domain.Order, error) {
	panic("unused")
}
func (b *fakeLeaderBroker) GetOrder(ctx context.Context, account domain.Account, orderID string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}
func (b *fakeLeaderBroker) GetOrderByCorrelation(ctx context.Context, account domain.Account, correlationID string) (domain.Order, error) {
	return domain.Order{}, domain.ErrNotFound
}
func (b *fakeLeaderBroker) ListOrders(ctx context.Context, account domain.Account) ([]domain.Order, error) {
	return b.orders, nil
}
func (b *fakeLeaderBroker) ListTrades(ctx context.Context, account domain.Account) ([]domain.Order, error) {
	return nil, nil
}
func (b *fakeLeaderBroker) GetFunds(ctx context.Context, account domain.Account) (domain.FundsSnapshot, error) {
	return domain.FundsSnapshot{}, nil
}
func (b *fakeLeaderBroker) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	return nil, nil
}
func (b *fakeLeaderBroker) Stream(ctx context.Context, account domain.Account) (<-chan domain.Event, <-chan error) {
	events := make(chan domain.Event)
	errs := make(chan error)
	close(events)
	close(errs)
	return events, errs
}

// fakeHandler records the order ids it was handed, in the order Handle was
// called, so tests can assert replay ordering.
type fakeHandler struct {
	seen []string
}

func (h *fakeHandler) Handle(ctx context.Context, ev domain.Event) error {
	h.seen = append(h.seen, ev.OrderID)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestRunReplaysAscendingByCreateTimeAndAdvancesCursor asserts that Run
// replays only orders created strictly after the cursor, in ascending
// create-time order, and advances the cursor to the latest create time seen
// -- never to an update time, per the Replicator's own cursor semantics.
func TestRunReplaysAscendingByCreateTimeAndAdvancesCursor(t *testing.T) {
	base := time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeConfigStore{cursor: base.Format(time.RFC3339Nano)}

	// Seeded out of create-time order and with update times that do not
	// track create-time order, so a bug that sorted/advanced on UpdatedAt
	// would be caught.
	broker := &fakeLeaderBroker{orders: []domain.Order{
		{ID: "L3", Account: domain.AccountLeader, CreatedAt: base.Add(3 * time.Minute), UpdatedAt: base.Add(1 * time.Minute)},
		{ID: "L-OLD", Account: domain.AccountLeader, CreatedAt: base.Add(-1 * time.Minute), UpdatedAt: base.Add(10 * time.Minute)},
		{ID: "L1", Account: domain.AccountLeader, CreatedAt: base.Add(1 * time.Minute), UpdatedAt: base.Add(5 * time.Minute)},
		{ID: "L2", Account: domain.AccountLeader, CreatedAt: base.Add(2 * time.Minute), UpdatedAt: base.Add(2 * time.Minute)},
	}}
	handler := &fakeHandler{}

	r := New(broker, store, handler, time.Hour, testLogger())

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"L1", "L2", "L3"}
	if len(handler.seen) != len(want) {
		t.Fatalf("expected %d replayed orders, got %d: %v", len(want), len(handler.seen), handler.seen)
	}
	for i, id := range want {
		if handler.seen[i] != id {
			t.Fatalf("replay order mismatch at index %d: want %s, got %s (full: %v)", i, id, handler.seen[i], handler.seen)
		}
	}

	wantCursor := base.Add(3 * time.Minute).Format(time.RFC3339Nano)
	if store.cursor != wantCursor {
		t.Fatalf("expected cursor advanced to %s, got %s", wantCursor, store.cursor)
	}
}

// TestRunColdStartUsesLookbackWindow asserts that with no persisted cursor,
// Run treats every order created within the lookback window as eligible and
// replays all of them.
func TestRunColdStartUsesLookbackWindow(t *testing.T) {
	store := &fakeConfigStore{}
	now := time.Now().UTC()
	broker := &fakeLeaderBroker{orders: []domain.Order{
		{ID: "L1", Account: domain.AccountLeader, CreatedAt: now.Add(-30 * time.Minute)},
		{ID: "L2", Account: domain.AccountLeader, CreatedAt: now.Add(-10 * time.Minute)},
	}}
	handler := &fakeHandler{}

	r := New(broker, store, handler, time.Hour, testLogger())

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(handler.seen) != 2 {
		t.Fatalf("expected both orders replayed on cold start, got %v", handler.seen)
	}
	if store.cursor == "" {
		t.Fatalf("expected cursor to be set after cold-start replay")
	}
}

var _ domain.Store = (*fakeConfigStore)(nil)
var _ domain.Broker = (*fakeLeaderBroker)(nil)
var _ Handler = (*fakeHandler)(nil)
