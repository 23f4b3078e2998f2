package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// entityStores bundles one instance of each entity store over a shared
// querier (either the pool or an open transaction).
type entityStores struct {
	*OrderStore
	*MappingStore
	*BracketLegStore
	*EventStore
	*AuditStore
	*ConfigStore
}

func newEntityStores(db querier) entityStores {
	return entityStores{
		OrderStore:       NewOrderStore(db),
		MappingStore:     NewMappingStore(db),
		BracketLegStore:  NewBracketLegStore(db),
		EventStore:       NewEventStore(db),
		AuditStore:       NewAuditStore(db),
		ConfigStore:      NewConfigStore(db),
	}
}

// Store implements domain.Store over a pgxpool.Pool.
type Store struct {
	pool *pgxpool.Pool
	entityStores
	funds       *FundsStore
	instruments *InstrumentStore
}

// NewStore creates a Store over the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:         pool,
		entityStores: newEntityStores(pool),
		funds:        NewFundsStore(pool),
		instruments:  NewInstrumentStore(pool),
	}
}

func (s *Store) UpsertFunds(ctx context.Context, f domain.FundsSnapshot) error {
	return s.funds.UpsertFunds(ctx, f)
}

func (s *Store) GetFunds(ctx context.Context, account domain.Account) (domain.FundsSnapshot, bool, error) {
	return s.funds.GetFunds(ctx, account)
}

func (s *Store) UpsertInstrument(ctx context.Context, i domain.Instrument) error {
	return s.instruments.UpsertInstrument(ctx, i)
}

func (s *Store) GetInstrument(ctx context.Context, securityID string) (domain.Instrument, bool, error) {
	return s.instruments.GetInstrument(ctx, securityID)
}

// txHandle is the domain.Tx implementation handed to WithTx callbacks.
type txHandle struct {
	entityStores
}

// WithTx runs fn inside a single database transaction. If fn returns an
// error, or panics, the transaction is rolled back; otherwise it commits.
// This is how the replicator satisfies the invariant that a mapping write
// and its corresponding follower-order insert commit atomically.
func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	handle := txHandle{entityStores: newEntityStores(tx)}
	if err := fn(handle); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

var _ domain.Store = (*Store)(nil)
var _ domain.Tx = txHandle{}
