package postgres

import (
	"context"
	"fmt"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// BracketLegStore implements domain.BracketLegStore using PostgreSQL.
type BracketLegStore struct {
	db querier
}

// NewBracketLegStore creates a new BracketLegStore backed by db.
func NewBracketLegStore(db querier) *BracketLegStore {
	return &BracketLegStore{db: db}
}

// UpsertBracketLeg inserts or updates a leg row, keyed by
// (ParentOrderID, LegType, Account).
func (s *BracketLegStore) UpsertBracketLeg(ctx context.Context, leg domain.BracketLeg) error {
	const query = `
		INSERT INTO bracket_legs (parent_order_id, leg_type, account, leg_order_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (parent_order_id, leg_type, account) DO UPDATE SET
			leg_order_id = EXCLUDED.leg_order_id,
			status = EXCLUDED.status,
			updated_at = NOW()`

	_, err := s.db.Exec(ctx, query,
		leg.ParentOrderID, string(leg.LegType), string(leg.Account), leg.LegOrderID, string(leg.Status))
	if err != nil {
		return fmt.Errorf("postgres: upsert bracket leg %s/%s: %w", leg.ParentOrderID, leg.LegType, err)
	}
	return nil
}

// ListBracketLegs returns every leg (either account) recorded for parentOrderID.
func (s *BracketLegStore) ListBracketLegs(ctx context.Context, parentOrderID string) ([]domain.BracketLeg, error) {
	rows, err := s.db.Query(ctx,
		`SELECT parent_order_id, leg_type, account, leg_order_id, status, created_at, updated_at
		 FROM bracket_legs WHERE parent_order_id = $1`, parentOrderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bracket legs %s: %w", parentOrderID, err)
	}
	defer rows.Close()

	var legs []domain.BracketLeg
	for rows.Next() {
		var leg domain.BracketLeg
		var legType, account, status string
		if err := rows.Scan(&leg.ParentOrderID, &legType, &account, &leg.LegOrderID, &status, &leg.CreatedAt, &leg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan bracket leg: %w", err)
		}
		leg.LegType = domain.LegType(legType)
		leg.Account = domain.Account(account)
		leg.Status = domain.OrderStatus(status)
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}
