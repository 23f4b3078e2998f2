// Package instrument provides an in-process, read-mostly cache of
// instrument (security) metadata, falling back to the broker and persisting
// discoveries to the store.
package instrument

import (
	"context"
	"sync"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// Cache serves Instrument lookups from an in-memory map, populated lazily
// from the broker on miss and persisted to store so restarts don't require
// re-fetching the full instrument master.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]domain.Instrument

	broker  domain.Broker
	store   domain.InstrumentStore
	limiter domain.RateLimiter
}

// New creates an empty Cache. limiter may be nil, in which case broker
// fallback fetches are unthrottled.
func New(broker domain.Broker, store domain.InstrumentStore, limiter domain.RateLimiter) *Cache {
	return &Cache{
		entries: make(map[string]domain.Instrument),
		broker:  broker,
		store:   store,
		limiter: limiter,
	}
}

// Get returns the instrument metadata for securityID, consulting the
// in-memory map, then the store, then the broker, in that order. Any broker
// fetch is persisted to store and the in-memory map before returning.
func (c *Cache) Get(ctx context.Context, securityID string) (domain.Instrument, bool) {
	c.mu.RLock()
	inst, ok := c.entries[securityID]
	c.mu.RUnlock()
	if ok {
		return inst, true
	}

	if c.store != nil {
		if inst, found, err := c.store.GetInstrument(ctx, securityID); err == nil && found {
			c.Set(ctx, inst)
			return inst, true
		}
	}

	if c.broker == nil {
		return domain.Instrument{}, false
	}

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx, domain.AccountFollower); err != nil {
			return domain.Instrument{}, false
		}
	}

	instruments, err := c.broker.ListInstruments(ctx)
	if err != nil {
		return domain.Instrument{}, false
	}
	for _, inst := range instruments {
		c.Set(ctx, inst)
	}

	c.mu.RLock()
	inst, ok = c.entries[securityID]
	c.mu.RUnlock()
	return inst, ok
}

// Set stores inst in the in-memory map and persists it to store.
func (c *Cache) Set(ctx context.Context, inst domain.Instrument) {
	c.mu.Lock()
	c.entries[inst.SecurityID] = inst
	c.mu.Unlock()

	if c.store != nil {
		// Best-effort: a failed persist just means the next restart re-fetches
		// this instrument from the broker.
		_ = c.store.UpsertInstrument(ctx, inst)
	}
}

// Compile-time interface check.
var _ domain.InstrumentCache = (*Cache)(nil)
