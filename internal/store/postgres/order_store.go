package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// OrderStore implements domain.OrderStore using PostgreSQL.
type OrderStore struct {
	db querier
}

// NewOrderStore creates a new OrderStore backed by db (a pool or a tx).
func NewOrderStore(db querier) *OrderStore {
	return &OrderStore{db: db}
}

const orderUpsertQuery = `
	INSERT INTO orders (
		id, account, correlation_id, security_id, exchange_segment, trading_symbol,
		side, product, order_type, validity,
		quantity, disclosed_qty, price, trigger_price, filled_qty, remaining_qty, avg_price,
		status,
		bo_profit_value, bo_stop_loss_value, co_stop_loss_value,
		parent_order_id, leg_type,
		slice_group_id, slice_index,
		raw_request, raw_response,
		created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6,
		$7, $8, $9, $10,
		$11, $12, $13, $14, $15, $16, $17,
		$18,
		$19, $20, $21,
		$22, $23,
		$24, $25,
		$26, $27,
		$28, NOW()
	)
	ON CONFLICT (account, id) DO UPDATE SET
		correlation_id = EXCLUDED.correlation_id,
		quantity = EXCLUDED.quantity,
		disclosed_qty = EXCLUDED.disclosed_qty,
		price = EXCLUDED.price,
		trigger_price = EXCLUDED.trigger_price,
		filled_qty = EXCLUDED.filled_qty,
		remaining_qty = EXCLUDED.remaining_qty,
		avg_price = EXCLUDED.avg_price,
		status = EXCLUDED.status,
		bo_profit_value = EXCLUDED.bo_profit_value,
		bo_stop_loss_value = EXCLUDED.bo_stop_loss_value,
		co_stop_loss_value = EXCLUDED.co_stop_loss_value,
		raw_response = EXCLUDED.raw_response,
		updated_at = NOW()`

// UpsertOrder inserts a new order row or, if (account, id) already exists,
// updates its mutable fields. Rows are never deleted.
func (s *OrderStore) UpsertOrder(ctx context.Context, o domain.Order) error {
	var rawReq, rawResp any
	if len(o.RawRequest) > 0 {
		rawReq = o.RawRequest
	}
	if len(o.RawResponse) > 0 {
		rawResp = o.RawResponse
	}

	createdAt := o.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.Exec(ctx, orderUpsertQuery,
		o.ID, string(o.Account), o.CorrelationID, o.SecurityID, o.ExchangeSegment, o.TradingSymbol,
		string(o.Side), string(o.Product), string(o.OrderType), string(o.Validity),
		o.Quantity, o.DisclosedQty, o.Price, o.TriggerPrice, o.FilledQty, o.RemainingQty, o.AvgPrice,
		string(o.Status),
		o.BOProfitValue, o.BOStopLossValue, o.COStopLossValue,
		o.ParentOrderID, string(o.LegType),
		o.SliceGroupID, o.SliceIndex,
		rawReq, rawResp,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s/%s: %w", o.Account, o.ID, err)
	}
	return nil
}

const orderSelectCols = `id, account, correlation_id, security_id, exchange_segment, trading_symbol,
	side, product, order_type, validity,
	quantity, disclosed_qty, price, trigger_price, filled_qty, remaining_qty, avg_price,
	status,
	bo_profit_value, bo_stop_loss_value, co_stop_loss_value,
	parent_order_id, leg_type,
	slice_group_id, slice_index,
	raw_request, raw_response,
	created_at, updated_at`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var account, side, product, orderType, validity, status, legType string
	var rawReq, rawResp []byte

	err := scanner.Scan(
		&o.ID, &account, &o.CorrelationID, &o.SecurityID, &o.ExchangeSegment, &o.TradingSymbol,
		&side, &product, &orderType, &validity,
		&o.Quantity, &o.DisclosedQty, &o.Price, &o.TriggerPrice, &o.FilledQty, &o.RemainingQty, &o.AvgPrice,
		&status,
		&o.BOProfitValue, &o.BOStopLossValue, &o.COStopLossValue,
		&o.ParentOrderID, &legType,
		&o.SliceGroupID, &o.SliceIndex,
		&rawReq, &rawResp,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Account = domain.Account(account)
	o.Side = domain.OrderSide(side)
	o.Product = domain.ProductType(product)
	o.OrderType = domain.OrderType(orderType)
	o.Validity = domain.Validity(validity)
	o.Status = domain.OrderStatus(status)
	o.LegType = domain.LegType(legType)
	o.RawRequest = rawReq
	o.RawResponse = rawResp
	return o, nil
}

// GetOrder retrieves a single order by its broker-assigned id. Because the
// primary key is (account, id), and callers rarely know which account a bare
// id belongs to, this scans both accounts and returns the first match.
func (s *OrderStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	row := s.db.QueryRow(ctx, `SELECT `+orderSelectCols+` FROM orders WHERE id = $1 LIMIT 1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// GetOrderByCorrelation retrieves a follower order placed with the given
// client correlation id.
func (s *OrderStore) GetOrderByCorrelation(ctx context.Context, correlationID string) (domain.Order, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE correlation_id = $1 LIMIT 1`, correlationID)
	o, err := scanOrder(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order by correlation %s: %w", correlationID, err)
	}
	return o, nil
}

// ListByParent returns all legs (and the parent itself, if stored) sharing
// parentOrderID, ordered by creation time.
func (s *OrderStore) ListByParent(ctx context.Context, parentOrderID string) ([]domain.Order, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE parent_order_id = $1 OR id = $1 ORDER BY created_at ASC`,
		parentOrderID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders by parent %s: %w", parentOrderID, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order by parent: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// ListOrdersBefore returns every order created strictly before the given
// time, oldest first. Used by the cold-storage archiver.
func (s *OrderStore) ListOrdersBefore(ctx context.Context, before time.Time) ([]domain.Order, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+orderSelectCols+` FROM orders WHERE created_at < $1 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders before %s: %w", before, err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order before: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
