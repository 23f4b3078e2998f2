package replicator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// handleOCO is invoked when a leader bracket (BO) TARGET or SL leg reaches
// EXECUTED. It upserts the leader-side leg row, resolves the follower's
// sibling leg, and cancels it if still non-terminal (one-cancels-other).
// Guarded by a lock keyed on the BO parent id, distinct from the per-order
// lock Handle already holds, so concurrently arriving TARGET and SL events
// for the same bracket cannot race each other.
func (r *Replicator) handleOCO(ctx context.Context, ev domain.Event, followerEntry domain.Order) error {
	parentID := ev.Fields.ParentOrderID
	unlock := r.parentLocks.lock(parentID)
	defer unlock()

	if err := r.store.UpsertBracketLeg(ctx, domain.BracketLeg{
		ParentOrderID: parentID,
		LegOrderID:    ev.OrderID,
		LegType:       ev.Fields.LegType,
		Account:       domain.AccountLeader,
		Status:        ev.Status,
		UpdatedAt:     time.Now().UTC(),
	}); err != nil {
		return fmt.Errorf("replicator: upsert leader leg %s: %w", ev.OrderID, err)
	}

	if err := r.ensureFollowerLegs(ctx, parentID, followerEntry.ID); err != nil {
		return fmt.Errorf("replicator: resolve follower legs for %s: %w", parentID, err)
	}

	sibling := domain.LegSL
	if ev.Fields.LegType == domain.LegSL {
		sibling = domain.LegTarget
	}

	legs, err := r.store.ListBracketLegs(ctx, parentID)
	if err != nil {
		return fmt.Errorf("replicator: list legs for %s: %w", parentID, err)
	}

	var siblingLeg *domain.BracketLeg
	for i := range legs {
		if legs[i].Account == domain.AccountFollower && legs[i].LegType == sibling {
			siblingLeg = &legs[i]
			break
		}
	}
	if siblingLeg == nil || siblingLeg.LegOrderID == "" {
		r.logger.DebugContext(ctx, "no follower sibling leg to cancel",
			slog.String("parent_order_id", parentID), slog.String("sibling_leg_type", string(sibling)))
		return nil
	}
	if siblingLeg.Status.IsTerminal() {
		return nil
	}

	if err := r.cancelFollowerOrder(ctx, siblingLeg.LegOrderID); err != nil {
		return fmt.Errorf("replicator: cancel sibling leg %s: %w", siblingLeg.LegOrderID, err)
	}

	siblingLeg.Status = domain.StatusCancelled
	siblingLeg.UpdatedAt = time.Now().UTC()
	if err := r.store.UpsertBracketLeg(ctx, *siblingLeg); err != nil {
		return fmt.Errorf("replicator: persist cancelled sibling leg %s: %w", siblingLeg.LegOrderID, err)
	}

	return r.store.LogAudit(ctx, "oco_sibling_cancelled", map[string]any{
		"parent_order_id": parentID,
		"executed_leg":     string(ev.Fields.LegType),
		"cancelled_leg":    string(sibling),
		"follower_order_id": siblingLeg.LegOrderID,
	})
}

// ensureFollowerLegs lazily discovers the follower account's TARGET and SL
// leg order ids. The Stream Consumer only subscribes to the leader's push
// stream, so follower-side legs are never observed directly; they are
// resolved on first need by listing the follower's orders and matching on
// ParentOrderID.
func (r *Replicator) ensureFollowerLegs(ctx context.Context, parentOrderID, followerEntryOrderID string) error {
	existing, err := r.store.ListBracketLegs(ctx, parentOrderID)
	if err != nil {
		return err
	}
	have := map[domain.LegType]bool{}
	for _, leg := range existing {
		if leg.Account == domain.AccountFollower {
			have[leg.LegType] = true
		}
	}
	if have[domain.LegTarget] && have[domain.LegSL] {
		return nil
	}

	followerOrders, err := r.follower.ListOrders(ctx, domain.AccountFollower)
	if err != nil {
		return fmt.Errorf("list follower orders: %w", err)
	}

	now := time.Now().UTC()
	for _, o := range followerOrders {
		if o.ParentOrderID != followerEntryOrderID {
			continue
		}
		if o.LegType != domain.LegTarget && o.LegType != domain.LegSL {
			continue
		}
		if have[o.LegType] {
			continue
		}
		if err := r.store.UpsertBracketLeg(ctx, domain.BracketLeg{
			ParentOrderID: parentOrderID,
			LegOrderID:    o.ID,
			LegType:       o.LegType,
			Account:       domain.AccountFollower,
			Status:        o.Status,
			CreatedAt:     now,
			UpdatedAt:     now,
		}); err != nil {
			return fmt.Errorf("upsert follower leg %s: %w", o.ID, err)
		}
	}
	return nil
}

// cancelAllLegs handles a leader BO parent cancellation: the follower's
// entry order and every non-terminal follower leg are cancelled.
func (r *Replicator) cancelAllLegs(ctx context.Context, ev domain.Event) error {
	unlock := r.parentLocks.lock(ev.OrderID)
	defer unlock()

	mapping, found, err := r.store.GetMappingByLeader(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("replicator: lookup mapping %s: %w", ev.OrderID, err)
	}
	if !found || mapping.FollowerOrderID == "" {
		r.logger.DebugContext(ctx, "bracket cancel ignored, no follower order", slog.String("leader_order_id", ev.OrderID))
		return nil
	}

	entry, err := r.store.GetOrder(ctx, mapping.FollowerOrderID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("replicator: lookup follower entry %s: %w", mapping.FollowerOrderID, err)
	}
	if err == nil && !entry.Status.IsTerminal() {
		if err := r.cancelFollowerOrder(ctx, entry.ID); err != nil {
			return err
		}
	}

	legs, err := r.store.ListBracketLegs(ctx, ev.OrderID)
	if err != nil {
		return fmt.Errorf("replicator: list legs for %s: %w", ev.OrderID, err)
	}
	for _, leg := range legs {
		if leg.Account != domain.AccountFollower || leg.Status.IsTerminal() || leg.LegOrderID == "" {
			continue
		}
		if err := r.cancelFollowerOrder(ctx, leg.LegOrderID); err != nil {
			return err
		}
		leg.Status = domain.StatusCancelled
		leg.UpdatedAt = time.Now().UTC()
		if err := r.store.UpsertBracketLeg(ctx, leg); err != nil {
			return fmt.Errorf("replicator: persist cancelled leg %s: %w", leg.LegOrderID, err)
		}
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
		if err := tx.LogAudit(ctx, "bracket_cancelled", map[string]any{
			"leader_order_id":   ev.OrderID,
			"follower_order_id": mapping.FollowerOrderID,
		}); err != nil {
			return err
		}
		return r.advanceCursor(ctx, tx, ev)
	})
	if err != nil {
		return fmt.Errorf("replicator: commit bracket cancel %s: %w", ev.OrderID, err)
	}
	return nil
}
