package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// MappingStore implements domain.MappingStore using PostgreSQL.
type MappingStore struct {
	db querier
}

// NewMappingStore creates a new MappingStore backed by db.
func NewMappingStore(db querier) *MappingStore {
	return &MappingStore{db: db}
}

// UpsertMapping inserts or updates a CopyMapping row, keyed by
// LeaderOrderID: at most one follower order per leader order.
func (s *MappingStore) UpsertMapping(ctx context.Context, m domain.CopyMapping) error {
	const query = `
		INSERT INTO copy_mappings (
			leader_order_id, follower_order_id, leader_qty, follower_qty,
			sizing_strategy, capital_ratio, status, error_message, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (leader_order_id) DO UPDATE SET
			follower_order_id = EXCLUDED.follower_order_id,
			follower_qty = EXCLUDED.follower_qty,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = NOW()`

	_, err := s.db.Exec(ctx, query,
		m.LeaderOrderID, m.FollowerOrderID, m.LeaderQty, m.FollowerQty,
		m.SizingStrategy, m.CapitalRatio, string(m.Status), m.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert mapping %s: %w", m.LeaderOrderID, err)
	}
	return nil
}

// GetMappingByLeader returns the mapping for leaderOrderID, if one exists.
func (s *MappingStore) GetMappingByLeader(ctx context.Context, leaderOrderID string) (domain.CopyMapping, bool, error) {
	const query = `
		SELECT leader_order_id, follower_order_id, leader_qty, follower_qty,
			sizing_strategy, capital_ratio, status, error_message, created_at, updated_at
		FROM copy_mappings WHERE leader_order_id = $1`

	var m domain.CopyMapping
	var status string
	err := s.db.QueryRow(ctx, query, leaderOrderID).Scan(
		&m.LeaderOrderID, &m.FollowerOrderID, &m.LeaderQty, &m.FollowerQty,
		&m.SizingStrategy, &m.CapitalRatio, &status, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.CopyMapping{}, false, nil
		}
		return domain.CopyMapping{}, false, fmt.Errorf("postgres: get mapping %s: %w", leaderOrderID, err)
	}
	m.Status = domain.MappingStatus(status)
	return m, true, nil
}
