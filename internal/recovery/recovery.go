// Package recovery backfills leader order events missed during a push
// stream disconnect by diffing the leader's REST order book against the
// replication cursor, then replaying the gap through the same Handle entry
// point the Stream Consumer uses.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// cursorKey is the ConfigStore key holding the RFC3339Nano timestamp of the
// most recently replicated leader event.
const cursorKey = "last_leader_event_ts"

// Handler is the subset of replicator.Replicator Recovery depends on.
type Handler interface {
	Handle(ctx context.Context, ev domain.Event) error
}

// Recovery reconciles the leader's order book against the replication
// cursor, used both after a detected stream disconnect and for a cold
// start.
type Recovery struct {
	leader     domain.Broker
	store      domain.Store
	replicator Handler
	lookback   time.Duration
	logger     *slog.Logger
}

// New creates a Recovery. leader must be bound to the leader account.
// lookback bounds how far back a cold start (no cursor yet persisted)
// reaches.
func New(leader domain.Broker, store domain.Store, replicator Handler, lookback time.Duration, logger *slog.Logger) *Recovery {
	return &Recovery{
		leader:     leader,
		store:      store,
		replicator: replicator,
		lookback:   lookback,
		logger:     logger.With(slog.String("component", "recovery")),
	}
}

// Run fetches the leader's full order book, replays every order created
// strictly after the persisted cursor through Handle in ascending
// create-time order, and advances the cursor to the latest create time seen.
// This mirrors the Replicator's own cursor writes, which record each
// committed event's create time, not its update time.
func (r *Recovery) Run(ctx context.Context) error {
	since, err := r.cursor(ctx)
	if err != nil {
		return err
	}

	orders, err := r.leader.ListOrders(ctx, domain.AccountLeader)
	if err != nil {
		return fmt.Errorf("recovery: list leader orders: %w", err)
	}

	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.Before(orders[j].CreatedAt) })

	replayed := 0
	maxSeen := since
	for _, o := range orders {
		if !o.CreatedAt.After(since) {
			continue
		}

		if err := r.replicator.Handle(ctx, toEvent(o)); err != nil {
			r.logger.ErrorContext(ctx, "recovery replay failed",
				slog.String("leader_order_id", o.ID), slog.String("error", err.Error()))
			continue
		}
		replayed++
		if o.CreatedAt.After(maxSeen) {
			maxSeen = o.CreatedAt
		}
	}

	if replayed > 0 {
		r.logger.InfoContext(ctx, "recovery replay complete", slog.Int("replayed", replayed))
	}

	if maxSeen.After(since) {
		if err := r.store.SetConfig(ctx, cursorKey, maxSeen.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("recovery: advance cursor: %w", err)
		}
	}
	return nil
}

func (r *Recovery) cursor(ctx context.Context) (time.Time, error) {
	v, ok, err := r.store.GetConfig(ctx, cursorKey)
	if err != nil {
		return time.Time{}, fmt.Errorf("recovery: read cursor: %w", err)
	}
	if !ok || v == "" {
		return time.Now().UTC().Add(-r.lookback), nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		r.logger.WarnContext(ctx, "cursor value unparsable, falling back to lookback window",
			slog.String("value", v), slog.String("error", err.Error()))
		return time.Now().UTC().Add(-r.lookback), nil
	}
	return t, nil
}

// toEvent converts a leader order-book row fetched via REST into the same
// normalised Event shape the Stream Consumer produces, tagged as a recovery
// source.
func toEvent(o domain.Order) domain.Event {
	return domain.Event{
		OrderID:       o.ID,
		CorrelationID: o.CorrelationID,
		Account:       o.Account,
		Status:        o.Status,
		Source:        domain.SourceRecovery,
		CreateTime:    o.CreatedAt,
		UpdateTime:    o.UpdatedAt,
		Fields: domain.OrderFields{
			SecurityID:      o.SecurityID,
			ExchangeSegment: o.ExchangeSegment,
			TradingSymbol:   o.TradingSymbol,
			Side:            o.Side,
			Product:         o.Product,
			OrderType:       o.OrderType,
			Validity:        o.Validity,
			Quantity:        o.Quantity,
			DisclosedQty:    o.DisclosedQty,
			Price:           o.Price,
			TriggerPrice:    o.TriggerPrice,
			FilledQty:       o.FilledQty,
			RemainingQty:    o.RemainingQty,
			AvgPrice:        o.AvgPrice,
			BOProfitValue:   o.BOProfitValue,
			BOStopLossValue: o.BOStopLossValue,
			COStopLossValue: o.COStopLossValue,
			ParentOrderID:   o.ParentOrderID,
			LegType:         o.LegType,
			SliceGroupID:    o.SliceGroupID,
			SliceIndex:      o.SliceIndex,
		},
	}
}
