package domain

import "context"

// PlaceOrderRequest carries the fields needed to place a new order on an
// account. Zero values for optional fields (TriggerPrice, BO/CO legs) are
// omitted from the wire request by the broker client.
type PlaceOrderRequest struct {
	Account         Account
	CorrelationID   string
	SecurityID      string
	ExchangeSegment string
	TradingSymbol   string
	Side            OrderSide
	Product         ProductType
	OrderType       OrderType
	Validity        Validity
	Quantity        int64
	DisclosedQty    int64
	Price           float64
	TriggerPrice    float64
	BOProfitValue   float64
	BOStopLossValue float64
	COStopLossValue float64
	AMO             bool
}

// SliceOrderRequest is a PlaceOrderRequest split across multiple child
// orders because Quantity exceeds the instrument's freeze limit.
type SliceOrderRequest struct {
	PlaceOrderRequest
	SliceGroupID string
}

// ModifyOrderRequest carries the mutable fields of an in-flight order.
type ModifyOrderRequest struct {
	Account      Account
	OrderID      string
	OrderType    OrderType
	Quantity     int64
	Price        float64
	TriggerPrice float64
	Validity     Validity
	DisclosedQty int64

	// COStopLossValue carries a cover-order SL leg modification and
	// BOStopLossValue a bracket-order SL leg modification; both are zero for
	// ordinary modify requests.
	COStopLossValue float64
	BOStopLossValue float64
}

// Broker is the client surface for the brokerage REST and streaming APIs.
// Implementations must translate broker-specific error payloads into the
// sentinel errors in errors.go.
type Broker interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (Order, error)
	PlaceSliceOrder(ctx context.Context, req SliceOrderRequest) ([]Order, error)
	ModifyOrder(ctx context.Context, req ModifyOrderRequest) (Order, error)
	CancelOrder(ctx context.Context, account Account, orderID string) (Order, error)

	GetOrder(ctx context.Context, account Account, orderID string) (Order, error)
	GetOrderByCorrelation(ctx context.Context, account Account, correlationID string) (Order, error)
	ListOrders(ctx context.Context, account Account) ([]Order, error)
	ListTrades(ctx context.Context, account Account) ([]Order, error)

	GetFunds(ctx context.Context, account Account) (FundsSnapshot, error)
	ListInstruments(ctx context.Context) ([]Instrument, error)

	// Stream opens the order-update push channel for account and delivers
	// normalised events until ctx is cancelled or an unrecoverable error
	// occurs.
	Stream(ctx context.Context, account Account) (<-chan Event, <-chan error)
}
