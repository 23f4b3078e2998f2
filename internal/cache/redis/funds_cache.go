package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// FundsCache implements domain.FundsCache using a Redis hash per account,
// expiring after the configured ttl.
type FundsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFundsCache creates a FundsCache backed by the given Client. ttl bounds
// how long a balance snapshot is trusted before the Funds Snapshot component
// must re-fetch from the broker; callers should default this to 30 seconds
// per the funds_ttl configuration key when not otherwise specified.
func NewFundsCache(c *Client, ttl time.Duration) *FundsCache {
	return &FundsCache{rdb: c.Underlying(), ttl: ttl}
}

func fundsKey(account domain.Account) string {
	return "funds:" + string(account)
}

// Get returns the cached snapshot for account if one is present and has not
// expired.
func (fc *FundsCache) Get(ctx context.Context, account domain.Account) (domain.FundsSnapshot, bool) {
	vals, err := fc.rdb.HGetAll(ctx, fundsKey(account)).Result()
	if err != nil || len(vals) == 0 {
		return domain.FundsSnapshot{}, false
	}

	balance, err := strconv.ParseFloat(vals["available_balance"], 64)
	if err != nil {
		return domain.FundsSnapshot{}, false
	}
	fetchedNano, err := strconv.ParseInt(vals["fetched_at"], 10, 64)
	if err != nil {
		return domain.FundsSnapshot{}, false
	}

	return domain.FundsSnapshot{
		Account:          account,
		AvailableBalance: balance,
		FetchedAt:        time.Unix(0, fetchedNano),
	}, true
}

// Set stores snapshot, overwriting any existing value, and resets the TTL.
func (fc *FundsCache) Set(ctx context.Context, snapshot domain.FundsSnapshot) {
	key := fundsKey(snapshot.Account)
	fields := map[string]any{
		"available_balance": strconv.FormatFloat(snapshot.AvailableBalance, 'f', -1, 64),
		"fetched_at":        strconv.FormatInt(snapshot.FetchedAt.UnixNano(), 10),
	}
	pipe := fc.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, fc.ttl)
	// Cache writes are best-effort; a failure just forces a broker re-fetch.
	_, _ = pipe.Exec(ctx)
}

// Invalidate evicts the cached snapshot for account, forcing the next Get to
// miss. Called (via funds.Snapshotter) when a follower placement fails with
// ErrInsufficientFunds.
func (fc *FundsCache) Invalidate(ctx context.Context, account domain.Account) {
	_ = fc.rdb.Del(ctx, fundsKey(account)).Err()
}

// Compile-time interface check.
var _ domain.FundsCache = (*FundsCache)(nil)
