package replicator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/funds"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/instrument"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestReplicator(store *fakeStore, follower *fakeBroker, leaderBroker *fakeBroker) *Replicator {
	leaderFunds := funds.New(leaderBroker, nil, store)
	followerFunds := funds.New(follower, nil, store)
	instruments := instrument.New(follower, store, fakeLimiter{})

	return New(
		store,
		follower,
		leaderFunds,
		followerFunds,
		instruments,
		fakeLimiter{},
		fakeNotifier{},
		nil, // no distributed lock in these single-process tests
		Config{
			SizingStrategy: "capital_proportional",
			MaxPositionPct: 0.25,
		},
		testLogger(),
	)
}

func seedInstrument(store *fakeStore, securityID string, lotSize int64) {
	store.instruments[securityID] = domain.Instrument{SecurityID: securityID, LotSize: lotSize}
}

// seedEqualBalances gives both broker fakes the same available balance, so
// CapitalProportional sizing (leader_qty * follower_bal / leader_bal) passes
// the leader quantity straight through. Snapshotter.Get always calls the
// broker when no cache is wired, so the balance must live on the fake
// brokers, not the store.
func seedEqualBalances(leader, follower *fakeBroker, balance float64) {
	leader.funds[domain.AccountLeader] = domain.FundsSnapshot{Account: domain.AccountLeader, AvailableBalance: balance, FetchedAt: time.Now()}
	follower.funds[domain.AccountFollower] = domain.FundsSnapshot{Account: domain.AccountFollower, AvailableBalance: balance, FetchedAt: time.Now()}
}

func placementEvent(leaderOrderID string) domain.Event {
	return domain.Event{
		OrderID:    leaderOrderID,
		Account:    domain.AccountLeader,
		Status:     domain.StatusOpen,
		CreateTime: time.Now(),
		UpdateTime: time.Now(),
		Fields: domain.OrderFields{
			SecurityID: "SEC1",
			Product:    domain.ProductIntraday,
			OrderType:  domain.OrderTypeMarket,
			Quantity:   10,
		},
	}
}

// TestHandlePlacementIdempotentReplay asserts that replaying the exact same
// placement event twice (e.g. once from the stream, once from a subsequent
// recovery pass covering the same window) places the follower order only
// once.
func TestHandlePlacementIdempotentReplay(t *testing.T) {
	store := newFakeStore()
	seedInstrument(store, "SEC1", 1)

	follower := newFakeBroker()
	leader := newFakeBroker()
	seedEqualBalances(leader, follower, 100000)
	r := newTestReplicator(store, follower, leader)

	ctx := context.Background()
	ev := placementEvent("L1")

	if err := r.Handle(ctx, ev); err != nil {
		t.Fatalf("first handle: %v", err)
	}
	if err := r.Handle(ctx, ev); err != nil {
		t.Fatalf("second handle (replay): %v", err)
	}

	if follower.placeCalls != 1 {
		t.Fatalf("expected exactly 1 follower placement across both handles, got %d", follower.placeCalls)
	}

	mapping, found, err := store.GetMappingByLeader(ctx, "L1")
	if err != nil || !found {
		t.Fatalf("expected mapping to exist after replay, found=%v err=%v", found, err)
	}
	if mapping.Status != domain.MappingPlaced {
		t.Fatalf("expected mapping status placed, got %s", mapping.Status)
	}
}

// TestReplicateModifyOnTerminalFollowerOrderIsNoOp asserts that a modify
// event arriving after the follower order has already settled into a
// terminal state (executed, cancelled, rejected) is silently ignored rather
// than attempting a broker modify on a dead order.
func TestReplicateModifyOnTerminalFollowerOrderIsNoOp(t *testing.T) {
	store := newFakeStore()
	seedInstrument(store, "SEC1", 1)

	follower := newFakeBroker()
	leader := newFakeBroker()
	seedEqualBalances(leader, follower, 100000)
	r := newTestReplicator(store, follower, leader)

	ctx := context.Background()

	if err := store.UpsertOrder(ctx, domain.Order{ID: "F1", Account: domain.AccountFollower, Status: domain.StatusExecuted}); err != nil {
		t.Fatalf("seed follower order: %v", err)
	}
	if err := store.UpsertMapping(ctx, domain.CopyMapping{
		LeaderOrderID:   "L1",
		FollowerOrderID: "F1",
		Status:          domain.MappingPlaced,
	}); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	ev := domain.Event{
		OrderID: "L1",
		Status:  domain.StatusModified,
		Fields: domain.OrderFields{
			SecurityID: "SEC1",
			Product:    domain.ProductIntraday,
			Quantity:   20,
		},
	}

	if err := r.Handle(ctx, ev); err != nil {
		t.Fatalf("handle modify: %v", err)
	}

	if follower.modifyCalls != 0 {
		t.Fatalf("expected no broker modify call against a terminal follower order, got %d", follower.modifyCalls)
	}
}

// TestHandleOCOCancelsSiblingLeg asserts that a TARGET leg execution cancels
// the still-open follower SL sibling leg (one-cancels-other).
func TestHandleOCOCancelsSiblingLeg(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	parentLeaderID := "L-ENTRY"
	followerEntryID := "F-ENTRY"

	if err := store.UpsertOrder(ctx, domain.Order{ID: followerEntryID, Account: domain.AccountFollower, Status: domain.StatusOpen}); err != nil {
		t.Fatalf("seed follower entry order: %v", err)
	}
	if err := store.UpsertMapping(ctx, domain.CopyMapping{
		LeaderOrderID:   parentLeaderID,
		FollowerOrderID: followerEntryID,
		Status:          domain.MappingPlaced,
	}); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}

	follower := newFakeBroker()
	follower.listOrders = []domain.Order{
		{ID: "F-TARGET", Account: domain.AccountFollower, ParentOrderID: followerEntryID, LegType: domain.LegTarget, Status: domain.StatusOpen},
		{ID: "F-SL", Account: domain.AccountFollower, ParentOrderID: followerEntryID, LegType: domain.LegSL, Status: domain.StatusOpen},
	}
	leader := newFakeBroker()
	r := newTestReplicator(store, follower, leader)

	// The TARGET leg's own execution event is keyed by the mapping's leader
	// order id (mirroring this mapping's one entry -> one follower-order
	// relationship) and carries ParentOrderID + LegType identifying it as a
	// bracket leg fill, which is what triggers OCO handling.
	ev := domain.Event{
		OrderID: parentLeaderID,
		Status:  domain.StatusExecuted,
		Fields: domain.OrderFields{
			ParentOrderID: parentLeaderID,
			LegType:       domain.LegTarget,
			FilledQty:     10,
		},
	}

	if err := r.Handle(ctx, ev); err != nil {
		t.Fatalf("handle execution: %v", err)
	}

	if follower.cancelCalls["F-SL"] != 1 {
		t.Fatalf("expected the follower SL sibling leg to be cancelled exactly once, got %d", follower.cancelCalls["F-SL"])
	}
	if follower.cancelCalls["F-TARGET"] != 0 {
		t.Fatalf("did not expect the executed TARGET leg itself to be cancelled")
	}

	legs, err := store.ListBracketLegs(ctx, parentLeaderID)
	if err != nil {
		t.Fatalf("list bracket legs: %v", err)
	}
	var slLeg *domain.BracketLeg
	for i := range legs {
		if legs[i].Account == domain.AccountFollower && legs[i].LegType == domain.LegSL {
			slLeg = &legs[i]
		}
	}
	if slLeg == nil {
		t.Fatalf("expected a persisted follower SL leg row")
	}
	if slLeg.Status != domain.StatusCancelled {
		t.Fatalf("expected follower SL leg status cancelled, got %s", slLeg.Status)
	}
}

// TestCancelAllLegsSkipsAlreadyTerminalLeg asserts that cancelling a BO
// parent cancels the entry and every still-open follower leg, but does not
// re-cancel a leg that has already settled into a terminal state.
func TestCancelAllLegsSkipsAlreadyTerminalLeg(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()

	parentLeaderID := "L-ENTRY"
	followerEntryID := "F-ENTRY"

	if err := store.UpsertOrder(ctx, domain.Order{ID: followerEntryID, Account: domain.AccountFollower, Status: domain.StatusOpen}); err != nil {
		t.Fatalf("seed follower entry order: %v", err)
	}
	if err := store.UpsertMapping(ctx, domain.CopyMapping{
		LeaderOrderID:   parentLeaderID,
		FollowerOrderID: followerEntryID,
		Status:          domain.MappingPlaced,
	}); err != nil {
		t.Fatalf("seed mapping: %v", err)
	}
	// TARGET leg still open, should be cancelled; SL leg already terminal,
	// should be left alone.
	if err := store.UpsertBracketLeg(ctx, domain.BracketLeg{
		ParentOrderID: parentLeaderID, LegOrderID: "F-TARGET", LegType: domain.LegTarget,
		Account: domain.AccountFollower, Status: domain.StatusOpen,
	}); err != nil {
		t.Fatalf("seed target leg: %v", err)
	}
	if err := store.UpsertBracketLeg(ctx, domain.BracketLeg{
		ParentOrderID: parentLeaderID, LegOrderID: "F-SL", LegType: domain.LegSL,
		Account: domain.AccountFollower, Status: domain.StatusCancelled,
	}); err != nil {
		t.Fatalf("seed sl leg: %v", err)
	}

	follower := newFakeBroker()
	leader := newFakeBroker()
	r := newTestReplicator(store, follower, leader)

	ev := domain.Event{
		OrderID: parentLeaderID,
		Status:  domain.StatusCancelled,
		Fields: domain.OrderFields{
			Product: domain.ProductBO,
		},
	}

	if err := r.Handle(ctx, ev); err != nil {
		t.Fatalf("handle cancel: %v", err)
	}

	if follower.cancelCalls[followerEntryID] != 1 {
		t.Fatalf("expected the follower entry order to be cancelled exactly once, got %d", follower.cancelCalls[followerEntryID])
	}
	if follower.cancelCalls["F-TARGET"] != 1 {
		t.Fatalf("expected the open TARGET leg to be cancelled exactly once, got %d", follower.cancelCalls["F-TARGET"])
	}
	if follower.cancelCalls["F-SL"] != 0 {
		t.Fatalf("did not expect the already-terminal SL leg to be cancelled again, got %d calls", follower.cancelCalls["F-SL"])
	}

	mapping, found, err := store.GetMappingByLeader(ctx, parentLeaderID)
	if err != nil || !found {
		t.Fatalf("expected mapping to still exist, found=%v err=%v", found, err)
	}
	if mapping.Status != domain.MappingCancelled {
		t.Fatalf("expected mapping status cancelled, got %s", mapping.Status)
	}
}
