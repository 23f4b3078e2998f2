package ratelimit

import (
	"context"
	"sync"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// Registry hands out a dedicated Limiter per account, created lazily, so a
// burst of broker calls on one account cannot throttle the other.
type Registry struct {
	mu       sync.Mutex
	maxRPS   int
	limiters map[domain.Account]*Limiter
}

// NewRegistry creates a Registry whose limiters each admit maxRPS
// requests per second.
func NewRegistry(maxRPS int) *Registry {
	return &Registry{
		maxRPS:   maxRPS,
		limiters: make(map[domain.Account]*Limiter),
	}
}

// Acquire blocks until account may issue a broker request, or ctx is
// cancelled.
func (r *Registry) Acquire(ctx context.Context, account domain.Account) error {
	return r.limiterFor(account).Acquire(ctx)
}

func (r *Registry) limiterFor(account domain.Account) *Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.limiters[account]
	if !ok {
		l = New(r.maxRPS)
		r.limiters[account] = l
	}
	return l
}

// Compile-time interface check.
var _ domain.RateLimiter = (*Registry)(nil)
