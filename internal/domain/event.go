package domain

import "time"

// EventSource identifies where an OrderEvent originated.
type EventSource string

const (
	SourceStream   EventSource = "stream"
	SourceREST     EventSource = "rest"
	SourceRecovery EventSource = "recovery"
)

// OrderEvent is an append-only record of an observed order-lifecycle
// transition, used both for audit and for replaying history.
type OrderEvent struct {
	ID         string
	OrderID    string
	EventType  string
	Source     EventSource
	Sequence   int64
	Payload    []byte // raw JSON, broker-defined shape
	EventTS    time.Time
	RecordedAt time.Time
}

// Event is the normalised, tagged-variant representation the Stream Consumer
// and Recovery hand to the Replicator's single entry point; duck-typed
// broker payloads are translated into this at the boundary.
type Event struct {
	OrderID         string
	CorrelationID   string
	Account         Account
	Status          OrderStatus
	Source          EventSource
	Sequence        int64
	CreateTime      time.Time
	UpdateTime      time.Time
	Fields          OrderFields
	Raw             []byte
}

// OrderFields carries the broker-reported attributes of an order event. Not
// every field is populated for every event kind.
type OrderFields struct {
	SecurityID      string
	ExchangeSegment string
	TradingSymbol   string
	Side            OrderSide
	Product         ProductType
	OrderType       OrderType
	Validity        Validity

	Quantity     int64
	DisclosedQty int64
	Price        float64
	TriggerPrice float64
	FilledQty    int64
	RemainingQty int64
	AvgPrice     float64

	BOProfitValue   float64
	BOStopLossValue float64
	COStopLossValue float64

	ParentOrderID string
	LegType       LegType

	SliceGroupID string
	SliceIndex   int

	AMO bool
}
