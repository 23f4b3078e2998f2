package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	db querier
}

// NewEventStore creates a new EventStore backed by db.
func NewEventStore(db querier) *EventStore {
	return &EventStore{db: db}
}

// AppendEvent inserts an OrderEvent row. Rows are immutable and never
// updated or deleted once written.
func (s *EventStore) AppendEvent(ctx context.Context, e domain.OrderEvent) error {
	var payload any
	if len(e.Payload) > 0 {
		payload = e.Payload
	}

	const query = `
		INSERT INTO order_events (id, order_id, event_type, source, sequence, payload, event_ts, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO NOTHING`

	_, err := s.db.Exec(ctx, query,
		e.ID, e.OrderID, e.EventType, string(e.Source), e.Sequence, payload, e.EventTS)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.ID, err)
	}
	return nil
}

// ListEventsBefore returns every event recorded strictly before the given
// time, oldest first. Used by the cold-storage archiver.
func (s *EventStore) ListEventsBefore(ctx context.Context, before time.Time) ([]domain.OrderEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, order_id, event_type, source, sequence, payload, event_ts, recorded_at
		 FROM order_events WHERE recorded_at < $1 ORDER BY recorded_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before, err)
	}
	defer rows.Close()

	var events []domain.OrderEvent
	for rows.Next() {
		var e domain.OrderEvent
		var source string
		if err := rows.Scan(&e.ID, &e.OrderID, &e.EventType, &source, &e.Sequence, &e.Payload, &e.EventTS, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.Source = domain.EventSource(source)
		events = append(events, e)
	}
	return events, rows.Err()
}
