package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ConfigStore implements domain.ConfigStore using PostgreSQL. It backs the
// replication cursor (`last_leader_event_ts`) and any other small scalar
// values the engine needs to survive a restart.
type ConfigStore struct {
	db querier
}

// NewConfigStore creates a new ConfigStore backed by db.
func NewConfigStore(db querier) *ConfigStore {
	return &ConfigStore{db: db}
}

// GetConfig returns the value stored under key, if any.
func (s *ConfigStore) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(ctx, `SELECT value FROM config_kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("postgres: get config %s: %w", key, err)
	}
	return value, true, nil
}

// SetConfig inserts or overwrites the value stored under key.
func (s *ConfigStore) SetConfig(ctx context.Context, key, value string) error {
	const query = `
		INSERT INTO config_kv (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`
	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("postgres: set config %s: %w", key, err)
	}
	return nil
}
