// Package replicator implements the single entry point that turns a
// normalised leader order-lifecycle event into a decision: ignore it, size
// and place a follower order, mirror a modification, mirror a cancellation,
// or record an execution (possibly triggering bracket-order OCO cleanup).
package replicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/funds"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/instrument"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/sizer"
)

// cursorKey is the ConfigStore key holding the RFC3339Nano timestamp of the
// most recently replicated leader event's create time.
const cursorKey = "last_leader_event_ts"

// Notifier is the subset of notify.Notifier the Replicator depends on, kept
// narrow so tests can supply a stub.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config carries the Replicator's behavioral parameters. The copy_enabled
// kill switch is re-read from the store on every placement; everything else
// here is fixed for the process lifetime.
type Config struct {
	SizingStrategy    sizer.Strategy
	FixedRatio        float64
	MaxPositionPct    float64
	RiskPerTradePct   float64
	AllowedProducts   map[domain.ProductType]bool
	AllowedSegments   map[string]bool
	SkewWarnThreshold time.Duration
}

// riskCapPct returns the percentage-of-balance cap sizer.Compute's risk_based
// formula should apply. risk_based uses its own dedicated
// risk-per-trade figure rather than the general position cap, since the two
// are configured independently and validated against different strategies.
func (r *Replicator) riskCapPct() float64 {
	if r.cfg.SizingStrategy == sizer.RiskBased {
		return r.cfg.RiskPerTradePct * 100
	}
	return r.cfg.MaxPositionPct * 100
}

// distLockTTL bounds how long a distributed per-order lock is held before it
// expires on its own, in case a holder crashes without releasing it.
const distLockTTL = 30 * time.Second

// Replicator mirrors leader account order events onto the follower account.
// A Replicator is safe for concurrent use; Handle calls for distinct leader
// order ids run concurrently, calls sharing an order id are serialised.
type Replicator struct {
	store         domain.Store
	follower      domain.Broker
	leaderFunds   *funds.Snapshotter
	followerFunds *funds.Snapshotter
	instruments   *instrument.Cache
	limiter       domain.RateLimiter
	notifier      Notifier
	distLock      domain.LockManager
	cfg           Config

	orderLocks  *keyedLock
	parentLocks *keyedLock

	inFlight sync.WaitGroup

	logger *slog.Logger
}

// Wait blocks until every Handle call in progress when it was invoked has
// returned, or ctx is done, whichever comes first. The Supervisor uses this
// to bound its drain window instead of sleeping for the full timeout
// regardless of whether work is still in flight.
func (r *Replicator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// New creates a Replicator. follower must be bound to the follower account;
// leaderFunds and followerFunds must wrap the leader and follower brokers
// respectively. distLock may be nil, in which case only the in-process
// per-order lock serialises Handle calls; when set, it additionally guards
// against two process instances (e.g. during a rolling restart) handling the
// same leader order id concurrently.
func New(
	store domain.Store,
	follower domain.Broker,
	leaderFunds, followerFunds *funds.Snapshotter,
	instruments *instrument.Cache,
	limiter domain.RateLimiter,
	notifier Notifier,
	distLock domain.LockManager,
	cfg Config,
	logger *slog.Logger,
) *Replicator {
	return &Replicator{
		store:         store,
		follower:      follower,
		leaderFunds:   leaderFunds,
		followerFunds: followerFunds,
		instruments:   instruments,
		limiter:       limiter,
		notifier:      notifier,
		distLock:      distLock,
		cfg:           cfg,
		orderLocks:    newKeyedLock(),
		parentLocks:   newKeyedLock(),
		logger:        logger.With(slog.String("component", "replicator")),
	}
}

// Handle is the single entry point the Stream Consumer and Recovery feed
// every observed leader event through. Events sharing OrderID are serialised
// so a CANCEL can never overtake the PLACE that preceded it. r.inFlight
// tracks calls in progress so the Supervisor can wait for them to drain
// during shutdown.
func (r *Replicator) Handle(ctx context.Context, ev domain.Event) error {
	r.inFlight.Add(1)
	defer r.inFlight.Done()

	unlock := r.orderLocks.lock(ev.OrderID)
	defer unlock()

	if r.distLock != nil {
		distUnlock, err := r.distLock.Acquire(ctx, "replicator:order:"+ev.OrderID, distLockTTL)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				r.logger.DebugContext(ctx, "leader order id held by another instance, skipping",
					slog.String("leader_order_id", ev.OrderID))
				return nil
			}
			return fmt.Errorf("replicator: acquire distributed lock: %w", err)
		}
		defer distUnlock()
	}

	switch ev.Status {
	case domain.StatusPending, domain.StatusTransit, domain.StatusOpen:
		return r.replicatePlacement(ctx, ev)
	case domain.StatusModified:
		return r.replicateModify(ctx, ev)
	case domain.StatusCancelled:
		return r.replicateCancel(ctx, ev)
	case domain.StatusPartial, domain.StatusExecuted, domain.StatusTraded:
		return r.recordExecution(ctx, ev)
	case domain.StatusRejected:
		return r.handleRejection(ctx, ev)
	default:
		r.logger.DebugContext(ctx, "ignoring event with unrecognised status",
			slog.String("leader_order_id", ev.OrderID), slog.String("status", string(ev.Status)))
		return nil
	}
}

// replicatePlacement sizes and places the follower counterpart of a newly
// observed leader order, unless copy trading is disabled, the product is
// not allowed, a mapping already covers this order, or sizing rounds to
// zero quantity.
func (r *Replicator) replicatePlacement(ctx context.Context, ev domain.Event) error {
	if ev.Fields.ParentOrderID != "" {
		// A bracket/cover leg's own PLACE event is not independently copied;
		// its lifecycle is driven entirely by the parent's placement and by
		// recordExecution's OCO handling.
		r.logger.DebugContext(ctx, "ignoring leg placement event",
			slog.String("leader_order_id", ev.OrderID), slog.String("parent", ev.Fields.ParentOrderID))
		return nil
	}

	if !r.copyEnabled(ctx) {
		r.logger.DebugContext(ctx, "copy trading disabled, skipping placement", slog.String("leader_order_id", ev.OrderID))
		return nil
	}

	existing, found, err := r.store.GetMappingByLeader(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("replicator: lookup mapping %s: %w", ev.OrderID, err)
	}
	if found {
		// Placement is idempotent: a mapping already in a resolved state
		// means a prior event (or the replay path) already handled this
		// leader order id.
		switch existing.Status {
		case domain.MappingPlaced, domain.MappingPending, domain.MappingCancelled:
			return nil
		case domain.MappingFailed:
			// Retry: a subsequent OPEN/TRANSIT event for the same order id
			// after a transient failure gets another attempt.
		}
	}

	if !r.productAllowed(ev.Fields.Product) {
		return r.failMapping(ctx, ev, 0, "product not in allow-list")
	}
	if !r.segmentAllowed(ev.Fields.ExchangeSegment) {
		return r.failMapping(ctx, ev, 0, "exchange segment not in allow-list")
	}

	r.marketHoursAdvisory(ctx, ev.Fields.ExchangeSegment)

	lot, err := r.lotSize(ctx, ev.Fields.SecurityID)
	if err != nil {
		return fmt.Errorf("replicator: %w", err)
	}

	leaderBal, followerBal, err := r.balances(ctx)
	if err != nil {
		return fmt.Errorf("replicator: balances: %w", err)
	}

	qty := sizer.Compute(sizer.Params{
		Strategy:           r.cfg.SizingStrategy,
		LeaderQty:          ev.Fields.Quantity,
		LeaderBal:          leaderBal,
		FollowerBal:        followerBal,
		LotSize:            lot,
		Premium:            ev.Fields.Price,
		CapitalRatio:       r.cfg.FixedRatio,
		MaxPositionPct:     r.riskCapPct(),
		LeaderDisclosedQty: ev.Fields.DisclosedQty,
	})
	if qty <= 0 {
		return r.failMapping(ctx, ev, 0, "sizing rounded to zero quantity")
	}

	req := r.buildPlaceRequest(ev, qty, lot)

	if err := r.limiter.Acquire(ctx, domain.AccountFollower); err != nil {
		return fmt.Errorf("replicator: acquire rate limit: %w", err)
	}

	placed, err := r.follower.PlaceOrder(ctx, req)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			r.followerFunds.Invalidate(ctx, domain.AccountFollower)
		}
		r.logger.ErrorContext(ctx, "follower placement failed",
			slog.String("leader_order_id", ev.OrderID), slog.String("error", err.Error()))
		r.alert(ctx, "replication_failed", "order placement failed",
			fmt.Sprintf("leader order %s: %v", ev.OrderID, err))
		return r.failMapping(ctx, ev, qty, err.Error())
	}

	return r.commitPlacement(ctx, ev, placed, qty)
}

// commitPlacement persists the follower order, the resolved mapping, the
// originating event, and an audit row as a single transaction, then advances
// the replication cursor.
func (r *Replicator) commitPlacement(ctx context.Context, ev domain.Event, placed domain.Order, qty int64) error {
	now := time.Now().UTC()
	mapping := domain.CopyMapping{
		LeaderOrderID:   ev.OrderID,
		FollowerOrderID: placed.ID,
		LeaderQty:       ev.Fields.Quantity,
		FollowerQty:     qty,
		SizingStrategy:  string(r.cfg.SizingStrategy),
		CapitalRatio:    r.cfg.FixedRatio,
		Status:          domain.MappingPlaced,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := r.store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpsertOrder(ctx, leaderOrderFromEvent(ev)); err != nil {
			return err
		}
		if err := tx.UpsertOrder(ctx, placed); err != nil {
			return err
		}
		if err := tx.UpsertMapping(ctx, mapping); err != nil {
			return err
		}
		if err := r.appendEvent(ctx, tx, ev); err != nil {
			return err
		}
		if err := tx.LogAudit(ctx, "order_placed", map[string]any{
			"leader_order_id":   ev.OrderID,
			"follower_order_id": placed.ID,
			"quantity":          qty,
		}); err != nil {
			return err
		}
		return r.advanceCursor(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("replicator: commit placement %s: %w", ev.OrderID, err)
	}
	return nil
}

// replicateModify mirrors a leader order modification onto the follower
// order, re-sizing the requested quantity. A no-op if the follower order
// has already settled into a terminal state.
func (r *Replicator) replicateModify(ctx context.Context, ev domain.Event) error {
	mapping, found, err := r.store.GetMappingByLeader(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("replicator: lookup mapping %s: %w", ev.OrderID, err)
	}
	if !found || mapping.Status != domain.MappingPlaced || mapping.FollowerOrderID == "" {
		r.logger.DebugContext(ctx, "modify ignored, no active follower order",
			slog.String("leader_order_id", ev.OrderID))
		return nil
	}

	followerOrder, err := r.store.GetOrder(ctx, mapping.FollowerOrderID)
	if err != nil {
		return fmt.Errorf("replicator: lookup follower order %s: %w", mapping.FollowerOrderID, err)
	}
	if followerOrder.Status.IsTerminal() {
		r.logger.DebugContext(ctx, "modify ignored, follower order already terminal",
			slog.String("follower_order_id", followerOrder.ID), slog.String("status", string(followerOrder.Status)))
		return nil
	}

	lot, err := r.lotSize(ctx, ev.Fields.SecurityID)
	if err != nil {
		return fmt.Errorf("replicator: %w", err)
	}
	leaderBal, followerBal, err := r.balances(ctx)
	if err != nil {
		return fmt.Errorf("replicator: balances: %w", err)
	}
	qty := sizer.Compute(sizer.Params{
		Strategy:       r.cfg.SizingStrategy,
		LeaderQty:      ev.Fields.Quantity,
		LeaderBal:      leaderBal,
		FollowerBal:    followerBal,
		LotSize:        lot,
		Premium:        ev.Fields.Price,
		CapitalRatio:   r.cfg.FixedRatio,
		MaxPositionPct: r.riskCapPct(),
	})
	if qty <= 0 {
		qty = followerOrder.Quantity
	}

	req := domain.ModifyOrderRequest{
		Account:      domain.AccountFollower,
		OrderID:      followerOrder.ID,
		OrderType:    ev.Fields.OrderType,
		Quantity:     qty,
		Price:        ev.Fields.Price,
		TriggerPrice: ev.Fields.TriggerPrice,
		Validity:     ev.Fields.Validity,
		DisclosedQty: sizer.DisclosedQty(ev.Fields.DisclosedQty, ev.Fields.Quantity, qty, lot),
	}
	if ev.Fields.Product == domain.ProductCO {
		req.COStopLossValue = ev.Fields.COStopLossValue
	}
	if ev.Fields.Product == domain.ProductBO {
		req.BOStopLossValue = ev.Fields.BOStopLossValue
	}

	if err := r.limiter.Acquire(ctx, domain.AccountFollower); err != nil {
		return fmt.Errorf("replicator: acquire rate limit: %w", err)
	}

	modified, err := r.follower.ModifyOrder(ctx, req)
	if err != nil {
		r.logger.ErrorContext(ctx, "follower modification failed",
			slog.String("follower_order_id", followerOrder.ID), slog.String("error", err.Error()))
		return fmt.Errorf("replicator: modify follower order %s: %w", followerOrder.ID, err)
	}

	mapping.FollowerQty = qty
	mapping.UpdatedAt = time.Now().UTC()

	err = r.store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpsertOrder(ctx, leaderOrderFromEvent(ev)); err != nil {
			return err
		}
		if err := tx.UpsertOrder(ctx, modified); err != nil {
			return err
		}
		if err := tx.UpsertMapping(ctx, mapping); err != nil {
			return err
		}
		if err := r.appendEvent(ctx, tx, ev); err != nil {
			return err
		}
		if err := tx.LogAudit(ctx, "order_modified", map[string]any{
			"leader_order_id":   ev.OrderID,
			"follower_order_id": followerOrder.ID,
			"quantity":          qty,
		}); err != nil {
			return err
		}
		return r.advanceCursor(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("replicator: commit modify %s: %w", ev.OrderID, err)
	}
	return nil
}

// replicateCancel mirrors a leader cancellation. If the cancelled leader
// order is a bracket parent, every non-terminal follower leg is cancelled;
// otherwise the single mapped follower order is cancelled.
func (r *Replicator) replicateCancel(ctx context.Context, ev domain.Event) error {
	if ev.Fields.Product == domain.ProductBO && ev.Fields.ParentOrderID == "" {
		return r.cancelAllLegs(ctx, ev)
	}

	mapping, found, err := r.store.GetMappingByLeader(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("replicator: lookup mapping %s: %w", ev.OrderID, err)
	}
	if !found || mapping.FollowerOrderID == "" {
		r.logger.DebugContext(ctx, "cancel ignored, no follower order", slog.String("leader_order_id", ev.OrderID))
		return nil
	}

	followerOrder, err := r.store.GetOrder(ctx, mapping.FollowerOrderID)
	if err != nil {
		return fmt.Errorf("replicator: lookup follower order %s: %w", mapping.FollowerOrderID, err)
	}
	if followerOrder.Status.IsTerminal() {
		return nil
	}

	if err := r.cancelFollowerOrder(ctx, followerOrder.ID); err != nil {
		return err
	}

	mapping.Status = domain.MappingCancelled
	mapping.UpdatedAt = time.Now().UTC()

	err = r.store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpsertOrder(ctx, leaderOrderFromEvent(ev)); err != nil {
			return err
		}
		if err := tx.UpsertMapping(ctx, mapping); err != nil {
			return err
		}
		if err := r.appendEvent(ctx, tx, ev); err != nil {
			return err
		}
		if err := tx.LogAudit(ctx, "order_cancelled", map[string]any{
			"leader_order_id":   ev.OrderID,
			"follower_order_id": followerOrder.ID,
		}); err != nil {
			return err
		}
		return r.advanceCursor(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("replicator: commit cancel %s: %w", ev.OrderID, err)
	}
	return nil
}

// cancelFollowerOrder issues a rate-limited cancel and persists the
// resulting order row outside of the caller's transaction boundary, since
// the broker call itself cannot be part of a database transaction.
func (r *Replicator) cancelFollowerOrder(ctx context.Context, followerOrderID string) error {
	if err := r.limiter.Acquire(ctx, domain.AccountFollower); err != nil {
		return fmt.Errorf("replicator: acquire rate limit: %w", err)
	}
	cancelled, err := r.follower.CancelOrder(ctx, domain.AccountFollower, followerOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Already gone (e.g. filled/cancelled on the broker side between
			// our read and this call); nothing left to do.
			return nil
		}
		r.logger.ErrorContext(ctx, "follower cancellation failed",
			slog.String("follower_order_id", followerOrderID), slog.String("error", err.Error()))
		return fmt.Errorf("replicator: cancel follower order %s: %w", followerOrderID, err)
	}
	if err := r.store.UpsertOrder(ctx, cancelled); err != nil {
		return fmt.Errorf("replicator: persist cancelled order %s: %w", followerOrderID, err)
	}
	return nil
}

// recordExecution persists a fill or partial fill and, when the event
// belongs to a bracket leg, triggers OCO cleanup of the sibling leg.
func (r *Replicator) recordExecution(ctx context.Context, ev domain.Event) error {
	if !ev.CreateTime.IsZero() && !ev.UpdateTime.IsZero() {
		skew := ev.UpdateTime.Sub(ev.CreateTime)
		if skew > r.cfg.SkewWarnThreshold {
			r.logger.WarnContext(ctx, "leader event timing skew exceeds threshold",
				slog.String("leader_order_id", ev.OrderID), slog.Duration("skew", skew))
		}
	}

	mapping, found, err := r.store.GetMappingByLeader(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("replicator: lookup mapping %s: %w", ev.OrderID, err)
	}
	if !found || mapping.FollowerOrderID == "" {
		r.logger.DebugContext(ctx, "execution ignored, no follower order", slog.String("leader_order_id", ev.OrderID))
		return nil
	}

	followerOrder, err := r.store.GetOrder(ctx, mapping.FollowerOrderID)
	if err != nil {
		return fmt.Errorf("replicator: lookup follower order %s: %w", mapping.FollowerOrderID, err)
	}

	err = r.store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpsertOrder(ctx, leaderOrderFromEvent(ev)); err != nil {
			return err
		}
		if err := r.appendEvent(ctx, tx, ev); err != nil {
			return err
		}
		if err := tx.LogAudit(ctx, "order_executed", map[string]any{
			"leader_order_id":   ev.OrderID,
			"follower_order_id": followerOrder.ID,
			"status":            string(ev.Status),
			"filled_qty":        ev.Fields.FilledQty,
		}); err != nil {
			return err
		}
		return r.advanceCursor(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("replicator: commit execution %s: %w", ev.OrderID, err)
	}

	if ev.Status == domain.StatusExecuted && ev.Fields.ParentOrderID != "" &&
		(ev.Fields.LegType == domain.LegTarget || ev.Fields.LegType == domain.LegSL) {
		return r.handleOCO(ctx, ev, followerOrder)
	}
	return nil
}

// handleRejection persists a leader rejection and marks the mapping failed.
// Rejections are never retried automatically.
func (r *Replicator) handleRejection(ctx context.Context, ev domain.Event) error {
	mapping, found, err := r.store.GetMappingByLeader(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("replicator: lookup mapping %s: %w", ev.OrderID, err)
	}
	if !found {
		return nil
	}

	mapping.Status = domain.MappingFailed
	mapping.ErrorMessage = "leader order rejected"
	mapping.UpdatedAt = time.Now().UTC()

	err = r.store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpsertOrder(ctx, leaderOrderFromEvent(ev)); err != nil {
			return err
		}
		if err := tx.UpsertMapping(ctx, mapping); err != nil {
			return err
		}
		if err := r.appendEvent(ctx, tx, ev); err != nil {
			return err
		}
		return r.advanceCursor(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("replicator: commit rejection %s: %w", ev.OrderID, err)
	}
	return nil
}

// failMapping records a placement that never reached the broker (allow-list
// rejection, zero-quantity sizing) or one the broker itself rejected.
func (r *Replicator) failMapping(ctx context.Context, ev domain.Event, qty int64, reason string) error {
	now := time.Now().UTC()
	mapping := domain.CopyMapping{
		LeaderOrderID:  ev.OrderID,
		LeaderQty:      ev.Fields.Quantity,
		FollowerQty:    qty,
		SizingStrategy: string(r.cfg.SizingStrategy),
		Status:         domain.MappingFailed,
		ErrorMessage:   reason,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := r.store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpsertOrder(ctx, leaderOrderFromEvent(ev)); err != nil {
			return err
		}
		if err := tx.UpsertMapping(ctx, mapping); err != nil {
			return err
		}
		if err := r.appendEvent(ctx, tx, ev); err != nil {
			return err
		}
		if err := tx.LogAudit(ctx, "placement_skipped", map[string]any{
			"leader_order_id": ev.OrderID,
			"reason":          reason,
		}); err != nil {
			return err
		}
		return r.advanceCursor(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("replicator: commit failed mapping %s: %w", ev.OrderID, err)
	}
	return nil
}

// leaderOrderFromEvent projects a normalised Event onto the leader-side
// Order row, normalising the TRADED synonym to EXECUTED on write. Every
// leader order is persisted on first observation and on every subsequent
// event carrying its id, per the Order lifecycle invariant.
func leaderOrderFromEvent(ev domain.Event) domain.Order {
	status := ev.Status
	switch status {
	case domain.StatusTraded:
		status = domain.StatusExecuted
	case domain.StatusModified:
		// MODIFIED is a transient event kind, never a resting order state;
		// a modified order that has not also reported a fill is still OPEN.
		status = domain.StatusOpen
	}
	now := time.Now().UTC()
	created := ev.CreateTime
	if created.IsZero() {
		created = now
	}
	updated := ev.UpdateTime
	if updated.IsZero() {
		updated = now
	}
	return domain.Order{
		ID:              ev.OrderID,
		Account:         domain.AccountLeader,
		CorrelationID:   ev.CorrelationID,
		SecurityID:      ev.Fields.SecurityID,
		ExchangeSegment: ev.Fields.ExchangeSegment,
		TradingSymbol:   ev.Fields.TradingSymbol,
		Side:            ev.Fields.Side,
		Product:         ev.Fields.Product,
		OrderType:       ev.Fields.OrderType,
		Validity:        ev.Fields.Validity,
		Quantity:        ev.Fields.Quantity,
		DisclosedQty:    ev.Fields.DisclosedQty,
		Price:           ev.Fields.Price,
		TriggerPrice:    ev.Fields.TriggerPrice,
		FilledQty:       ev.Fields.FilledQty,
		RemainingQty:    ev.Fields.RemainingQty,
		AvgPrice:        ev.Fields.AvgPrice,
		Status:          status,
		BOProfitValue:   ev.Fields.BOProfitValue,
		BOStopLossValue: ev.Fields.BOStopLossValue,
		COStopLossValue: ev.Fields.COStopLossValue,
		ParentOrderID:   ev.Fields.ParentOrderID,
		LegType:         ev.Fields.LegType,
		SliceGroupID:    ev.Fields.SliceGroupID,
		SliceIndex:      ev.Fields.SliceIndex,
		RawRequest:      ev.Raw,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}
}

// advanceCursor writes the replication cursor to ev's create time, matching
// Recovery's create-time-ordered replay: the cursor is defined as "the
// create_time of the newest leader event fully committed", never an update
// time, so the two components agree on what "caught up" means. A zero
// CreateTime (malformed upstream payload), or one not after the stored
// cursor, leaves the cursor untouched rather than regressing it.
func (r *Replicator) advanceCursor(ctx context.Context, tx domain.Tx, ev domain.Event) error {
	if ev.CreateTime.IsZero() {
		return nil
	}
	cur, ok, err := tx.GetConfig(ctx, cursorKey)
	if err != nil {
		return err
	}
	if ok {
		if prev, perr := time.Parse(time.RFC3339Nano, cur); perr == nil && !ev.CreateTime.After(prev) {
			return nil
		}
	}
	return tx.SetConfig(ctx, cursorKey, ev.CreateTime.Format(time.RFC3339Nano))
}

func (r *Replicator) appendEvent(ctx context.Context, tx domain.Tx, ev domain.Event) error {
	return tx.AppendEvent(ctx, domain.OrderEvent{
		ID:         uuid.NewString(),
		OrderID:    ev.OrderID,
		EventType:  string(ev.Status),
		Source:     ev.Source,
		Sequence:   ev.Sequence,
		Payload:    ev.Raw,
		EventTS:    ev.UpdateTime,
		RecordedAt: time.Now().UTC(),
	})
}

func (r *Replicator) copyEnabled(ctx context.Context) bool {
	v, ok, err := r.store.GetConfig(ctx, "copy_enabled")
	if err != nil || !ok {
		return true
	}
	return v == "true" || v == "1"
}

func (r *Replicator) productAllowed(p domain.ProductType) bool {
	if len(r.cfg.AllowedProducts) == 0 {
		return true
	}
	return r.cfg.AllowedProducts[p]
}

func (r *Replicator) segmentAllowed(segment string) bool {
	if len(r.cfg.AllowedSegments) == 0 {
		return true
	}
	return r.cfg.AllowedSegments[segment]
}

// marketHoursAdvisory logs a warning when a placement arrives outside NSE's
// normal trading window. It never blocks replication: the leader's own
// order already cleared the exchange's own market-hours check.
func (r *Replicator) marketHoursAdvisory(ctx context.Context, segment string) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		return
	}
	now := time.Now().In(loc)
	open := time.Date(now.Year(), now.Month(), now.Day(), 9, 15, 0, 0, loc)
	shut := time.Date(now.Year(), now.Month(), now.Day(), 15, 30, 0, 0, loc)
	if now.Before(open) || now.After(shut) {
		r.logger.WarnContext(ctx, "placement arriving outside normal market hours",
			slog.String("segment", segment), slog.Time("ist_time", now))
	}
}

func (r *Replicator) lotSize(ctx context.Context, securityID string) (int64, error) {
	inst, ok := r.instruments.Get(ctx, securityID)
	if !ok || inst.LotSize <= 0 {
		return 0, fmt.Errorf("unknown lot size for security %s", securityID)
	}
	return inst.LotSize, nil
}

func (r *Replicator) balances(ctx context.Context) (leaderBal, followerBal float64, err error) {
	lb, err := r.leaderFunds.Get(ctx, domain.AccountLeader)
	if err != nil {
		return 0, 0, fmt.Errorf("leader: %w", err)
	}
	fb, err := r.followerFunds.Get(ctx, domain.AccountFollower)
	if err != nil {
		return 0, 0, fmt.Errorf("follower: %w", err)
	}
	return lb.AvailableBalance, fb.AvailableBalance, nil
}

// buildPlaceRequest translates a leader order-fields snapshot into a
// follower PlaceOrderRequest, carrying SL/BO/CO parameters only when the
// relevant order or product type requires them.
func (r *Replicator) buildPlaceRequest(ev domain.Event, qty, lot int64) domain.PlaceOrderRequest {
	req := domain.PlaceOrderRequest{
		Account:         domain.AccountFollower,
		CorrelationID:   correlationID(ev.OrderID),
		SecurityID:      ev.Fields.SecurityID,
		ExchangeSegment: ev.Fields.ExchangeSegment,
		TradingSymbol:   ev.Fields.TradingSymbol,
		Side:            ev.Fields.Side,
		Product:         ev.Fields.Product,
		OrderType:       ev.Fields.OrderType,
		Validity:        ev.Fields.Validity,
		Quantity:        qty,
		Price:           ev.Fields.Price,
		AMO:             ev.Fields.AMO,
	}

	switch ev.Fields.OrderType {
	case domain.OrderTypeStopLoss, domain.OrderTypeStopLossMarket:
		req.TriggerPrice = ev.Fields.TriggerPrice
	}

	if ev.Fields.DisclosedQty > 0 {
		req.DisclosedQty = sizer.DisclosedQty(ev.Fields.DisclosedQty, ev.Fields.Quantity, qty, lot)
	}

	switch ev.Fields.Product {
	case domain.ProductBO:
		req.BOProfitValue = ev.Fields.BOProfitValue
		req.BOStopLossValue = ev.Fields.BOStopLossValue
	case domain.ProductCO:
		req.COStopLossValue = ev.Fields.COStopLossValue
	}

	return req
}

// correlationID derives a deterministic, collision-resistant correlation id
// from the leader order id so a retried placement (e.g. after a failed
// mapping is retried) does not produce duplicate correlation tags.
func correlationID(leaderOrderID string) string {
	return "cp-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(leaderOrderID)).String()[:18]
}
