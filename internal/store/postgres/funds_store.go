package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// FundsStore implements domain.FundsStore using PostgreSQL.
type FundsStore struct {
	db querier
}

// NewFundsStore creates a new FundsStore backed by db.
func NewFundsStore(db querier) *FundsStore {
	return &FundsStore{db: db}
}

// UpsertFunds records the latest known balance snapshot for an account.
func (s *FundsStore) UpsertFunds(ctx context.Context, f domain.FundsSnapshot) error {
	const query = `
		INSERT INTO funds_snapshots (account, available_balance, fetched_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (account) DO UPDATE SET
			available_balance = EXCLUDED.available_balance,
			fetched_at = EXCLUDED.fetched_at`

	_, err := s.db.Exec(ctx, query, string(f.Account), f.AvailableBalance, f.FetchedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert funds %s: %w", f.Account, err)
	}
	return nil
}

// GetFunds returns the last known balance snapshot for account, if any.
func (s *FundsStore) GetFunds(ctx context.Context, account domain.Account) (domain.FundsSnapshot, bool, error) {
	var f domain.FundsSnapshot
	f.Account = account
	err := s.db.QueryRow(ctx,
		`SELECT available_balance, fetched_at FROM funds_snapshots WHERE account = $1`, string(account)).
		Scan(&f.AvailableBalance, &f.FetchedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.FundsSnapshot{}, false, nil
		}
		return domain.FundsSnapshot{}, false, fmt.Errorf("postgres: get funds %s: %w", account, err)
	}
	return f, true, nil
}
