// Package funds provides per-account (leader and follower) available-balance
// snapshots used by the Sizer, backed by a short-TTL cache with broker
// fallback.
package funds

import (
	"context"
	"fmt"
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// Snapshotter serves an account's available balance, preferring a
// cached value and falling back to the broker (and persisting the result)
// on a cache miss.
type Snapshotter struct {
	broker domain.Broker
	cache  domain.FundsCache
	store  domain.FundsStore
}

// New creates a Snapshotter.
func New(broker domain.Broker, cache domain.FundsCache, store domain.FundsStore) *Snapshotter {
	return &Snapshotter{broker: broker, cache: cache, store: store}
}

// Get returns the current available balance for account, refreshing from
// the broker if the cached value is missing or stale.
func (s *Snapshotter) Get(ctx context.Context, account domain.Account) (domain.FundsSnapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.Get(ctx, account); ok {
			return snap, nil
		}
	}

	snap, err := s.broker.GetFunds(ctx, account)
	if err != nil {
		return domain.FundsSnapshot{}, fmt.Errorf("funds: fetch %s: %w", account, err)
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}

	if s.cache != nil {
		s.cache.Set(ctx, snap)
	}
	if s.store != nil {
		_ = s.store.UpsertFunds(ctx, snap)
	}
	return snap, nil
}

// Invalidate evicts the cached snapshot for account, forcing the next Get to
// hit the broker. The Replicator calls this for the follower account when a
// placement fails with ErrInsufficientFunds.
func (s *Snapshotter) Invalidate(ctx context.Context, account domain.Account) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, account)
	}
}
