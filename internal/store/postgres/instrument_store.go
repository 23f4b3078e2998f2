package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// InstrumentStore implements domain.InstrumentStore using PostgreSQL.
type InstrumentStore struct {
	db querier
}

// NewInstrumentStore creates a new InstrumentStore backed by db.
func NewInstrumentStore(db querier) *InstrumentStore {
	return &InstrumentStore{db: db}
}

// UpsertInstrument records or refreshes instrument metadata.
func (s *InstrumentStore) UpsertInstrument(ctx context.Context, i domain.Instrument) error {
	const query = `
		INSERT INTO instruments (security_id, exchange_segment, trading_symbol, lot_size, tick_size, is_option, option_expiry, strike_price)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (security_id) DO UPDATE SET
			exchange_segment = EXCLUDED.exchange_segment,
			trading_symbol = EXCLUDED.trading_symbol,
			lot_size = EXCLUDED.lot_size,
			tick_size = EXCLUDED.tick_size,
			is_option = EXCLUDED.is_option,
			option_expiry = EXCLUDED.option_expiry,
			strike_price = EXCLUDED.strike_price`

	_, err := s.db.Exec(ctx, query,
		i.SecurityID, i.ExchangeSegment, i.TradingSymbol, i.LotSize, i.TickSize, i.IsOption, i.OptionExpiry, i.StrikePrice)
	if err != nil {
		return fmt.Errorf("postgres: upsert instrument %s: %w", i.SecurityID, err)
	}
	return nil
}

// GetInstrument returns instrument metadata by security id, if known.
func (s *InstrumentStore) GetInstrument(ctx context.Context, securityID string) (domain.Instrument, bool, error) {
	var i domain.Instrument
	err := s.db.QueryRow(ctx,
		`SELECT security_id, exchange_segment, trading_symbol, lot_size, tick_size, is_option, option_expiry, strike_price
		 FROM instruments WHERE security_id = $1`, securityID).
		Scan(&i.SecurityID, &i.ExchangeSegment, &i.TradingSymbol, &i.LotSize, &i.TickSize, &i.IsOption, &i.OptionExpiry, &i.StrikePrice)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Instrument{}, false, nil
		}
		return domain.Instrument{}, false, fmt.Errorf("postgres: get instrument %s: %w", securityID, err)
	}
	return i, true, nil
}
