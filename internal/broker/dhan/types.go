package dhan

import (
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// wireOrder mirrors the Dhan Orders API's JSON order representation. Field
// names follow the broker's wire casing verbatim; conversions to/from
// domain.Order live on this type.
type wireOrder struct {
	DhanClientID      string  `json:"dhanClientId"`
	OrderID           string  `json:"orderId"`
	CorrelationID     string  `json:"correlationId"`
	OrderStatus       string  `json:"orderStatus"`
	TransactionType   string  `json:"transactionType"`
	ExchangeSegment   string  `json:"exchangeSegment"`
	ProductType       string  `json:"productType"`
	OrderType         string  `json:"orderType"`
	Validity          string  `json:"validity"`
	TradingSymbol     string  `json:"tradingSymbol"`
	SecurityID        string  `json:"securityId"`
	Quantity          int64   `json:"quantity"`
	DisclosedQuantity int64   `json:"disclosedQuantity"`
	Price             float64 `json:"price"`
	TriggerPrice      float64 `json:"triggerPrice"`
	FilledQty         int64   `json:"filledQty"`
	RemainingQuantity int64   `json:"remainingQuantity"`
	AveragePrice      float64 `json:"averageTradedPrice"`

	BoProfitValue   float64 `json:"boProfitValue"`
	BoStopLossValue float64 `json:"boStopLossValue"`
	CoStopLossValue float64 `json:"coStopLossValue"`

	AfterMarketOrder bool `json:"afterMarketOrder"`

	LegName       string `json:"legName"`
	ParentOrderID string `json:"parentOrderId"`

	AlgoID string `json:"algoId"`

	CreateTime string `json:"createTime"`
	UpdateTime string `json:"updateTime"`
	ExchangeTime string `json:"exchangeTime"`
}

// placeOrderRequest is the wire body for POST /v2/orders.
type placeOrderRequest struct {
	DhanClientID      string  `json:"dhanClientId"`
	CorrelationID     string  `json:"correlationId,omitempty"`
	TransactionType   string  `json:"transactionType"`
	ExchangeSegment   string  `json:"exchangeSegment"`
	ProductType       string  `json:"productType"`
	OrderType         string  `json:"orderType"`
	Validity          string  `json:"validity"`
	SecurityID        string  `json:"securityId"`
	Quantity          int64   `json:"quantity"`
	DisclosedQuantity int64   `json:"disclosedQuantity,omitempty"`
	Price             float64 `json:"price,omitempty"`
	TriggerPrice      float64 `json:"triggerPrice,omitempty"`
	AfterMarketOrder  bool    `json:"afterMarketOrder,omitempty"`

	BoProfitValue   float64 `json:"boProfitValue,omitempty"`
	BoStopLossValue float64 `json:"boStopLossValue,omitempty"`
	CoStopLossValue float64 `json:"coStopLossValue,omitempty"`
}

// sliceOrderRequest is the wire body for POST /v2/orders/slicing.
type sliceOrderRequest struct {
	placeOrderRequest
}

// modifyOrderRequest is the wire body for PUT /v2/orders/{order-id}.
type modifyOrderRequest struct {
	DhanClientID      string  `json:"dhanClientId"`
	OrderID           string  `json:"orderId"`
	OrderType         string  `json:"orderType"`
	Quantity          int64   `json:"quantity"`
	Price             float64 `json:"price,omitempty"`
	TriggerPrice      float64 `json:"triggerPrice,omitempty"`
	Validity          string  `json:"validity"`
	DisclosedQuantity int64   `json:"disclosedQuantity,omitempty"`
	// CoStopLossValue carries a cover-order SL modification. The exact field
	// name is unconfirmed against Dhan's current API docs; verify before
	// placing live CO modify requests.
	CoStopLossValue float64 `json:"coStopLossValue,omitempty"`
}

// orderResponse is the wire body returned by place/modify/cancel endpoints.
type orderResponse struct {
	OrderID     string `json:"orderId"`
	OrderStatus string `json:"orderStatus"`
}

// sliceOrderResponse is the wire body returned by POST /v2/orders/slicing,
// one entry per child order produced by the broker's quantity-freeze split.
type sliceOrderResponse []orderResponse

// fundLimitResponse is the wire body returned by GET /v2/fundlimit.
type fundLimitResponse struct {
	AvailableBalance float64 `json:"availabelBalance"` // broker's verbatim (mis-spelled) field name
}

// instrumentRecord is one row of the broker's instrument master CSV/JSON
// feed, trimmed to the fields the Instrument Cache needs.
type instrumentRecord struct {
	SecurityID      string  `json:"SEM_SMST_SECURITY_ID"`
	ExchangeSegment string  `json:"SEM_EXM_EXCH_ID"`
	TradingSymbol   string  `json:"SEM_TRADING_SYMBOL"`
	LotSize         int64   `json:"SEM_LOT_UNITS"`
	TickSize        float64 `json:"SEM_TICK_SIZE"`
	InstrumentType  string  `json:"SEM_EXCH_INSTRUMENT_TYPE"`
	ExpiryDate      string  `json:"SEM_EXPIRY_DATE"`
	StrikePrice     float64 `json:"SEM_STRIKE_PRICE"`
}

func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	layouts := []string{"2006-01-02 15:04:05", time.RFC3339}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (w wireOrder) toDomain(account domain.Account) domain.Order {
	return domain.Order{
		ID:              w.OrderID,
		Account:         account,
		CorrelationID:   w.CorrelationID,
		SecurityID:      w.SecurityID,
		ExchangeSegment: w.ExchangeSegment,
		TradingSymbol:   w.TradingSymbol,
		Side:            domain.OrderSide(w.TransactionType),
		Product:         domain.ProductType(w.ProductType),
		OrderType:       domain.OrderType(w.OrderType),
		Validity:        domain.Validity(w.Validity),
		Quantity:        w.Quantity,
		DisclosedQty:    w.DisclosedQuantity,
		Price:           w.Price,
		TriggerPrice:    w.TriggerPrice,
		FilledQty:       w.FilledQty,
		RemainingQty:    w.RemainingQuantity,
		AvgPrice:        w.AveragePrice,
		Status:          normalizeStatus(w.OrderStatus),
		BOProfitValue:   w.BoProfitValue,
		BOStopLossValue: w.BoStopLossValue,
		COStopLossValue: w.CoStopLossValue,
		ParentOrderID:   w.ParentOrderID,
		LegType:         domain.LegType(w.LegName),
		CreatedAt:       parseWireTime(w.CreateTime),
		UpdatedAt:       parseWireTime(w.UpdateTime),
	}
}

// toDomainEvent converts a stream or recovery-fetched wireOrder into the
// Replicator's normalised Event, tagging it with source and an ordering
// sequence.
func (w wireOrder) toDomainEvent(account domain.Account, source domain.EventSource, sequence int64, raw []byte) domain.Event {
	createTime := parseWireTime(w.CreateTime)
	updateTime := parseWireTime(w.UpdateTime)
	if updateTime.IsZero() {
		updateTime = parseWireTime(w.ExchangeTime)
	}

	return domain.Event{
		OrderID:       w.OrderID,
		CorrelationID: w.CorrelationID,
		Account:       account,
		Status:        normalizeStatus(w.OrderStatus),
		Source:        source,
		Sequence:      sequence,
		CreateTime:    createTime,
		UpdateTime:    updateTime,
		Fields: domain.OrderFields{
			SecurityID:      w.SecurityID,
			ExchangeSegment: w.ExchangeSegment,
			TradingSymbol:   w.TradingSymbol,
			Side:            domain.OrderSide(w.TransactionType),
			Product:         domain.ProductType(w.ProductType),
			OrderType:       domain.OrderType(w.OrderType),
			Validity:        domain.Validity(w.Validity),
			Quantity:        w.Quantity,
			DisclosedQty:    w.DisclosedQuantity,
			Price:           w.Price,
			TriggerPrice:    w.TriggerPrice,
			FilledQty:       w.FilledQty,
			RemainingQty:    w.RemainingQuantity,
			AvgPrice:        w.AveragePrice,
			BOProfitValue:   w.BoProfitValue,
			BOStopLossValue: w.BoStopLossValue,
			COStopLossValue: w.CoStopLossValue,
			ParentOrderID:   w.ParentOrderID,
			LegType:         domain.LegType(w.LegName),
			AMO:             w.AfterMarketOrder,
		},
		Raw: raw,
	}
}

// normalizeStatus maps the broker's TRADED synonym onto EXECUTED and leaves
// every other status verbatim; MODIFIED is a transient event kind, never a
// resting Order.Status.
func normalizeStatus(raw string) domain.OrderStatus {
	s := domain.OrderStatus(raw)
	if s == domain.StatusTraded {
		return domain.StatusExecuted
	}
	return s
}

func (i instrumentRecord) toDomain() domain.Instrument {
	return domain.Instrument{
		SecurityID:      i.SecurityID,
		ExchangeSegment: i.ExchangeSegment,
		TradingSymbol:   i.TradingSymbol,
		LotSize:         i.LotSize,
		TickSize:        i.TickSize,
		IsOption:        i.InstrumentType == "OPTIDX" || i.InstrumentType == "OPTSTK",
		OptionExpiry:    i.ExpiryDate,
		StrikePrice:     i.StrikePrice,
	}
}

func placeRequestFromDomain(clientID string, req domain.PlaceOrderRequest) placeOrderRequest {
	return placeOrderRequest{
		DhanClientID:      clientID,
		CorrelationID:     req.CorrelationID,
		TransactionType:   string(req.Side),
		ExchangeSegment:   req.ExchangeSegment,
		ProductType:       string(req.Product),
		OrderType:         string(req.OrderType),
		Validity:          string(req.Validity),
		SecurityID:        req.SecurityID,
		Quantity:          req.Quantity,
		DisclosedQuantity: req.DisclosedQty,
		Price:             req.Price,
		TriggerPrice:      req.TriggerPrice,
		AfterMarketOrder:  req.AMO,
		BoProfitValue:     req.BOProfitValue,
		BoStopLossValue:   req.BOStopLossValue,
		CoStopLossValue:   req.COStopLossValue,
	}
}

func modifyRequestFromDomain(clientID string, req domain.ModifyOrderRequest) modifyOrderRequest {
	return modifyOrderRequest{
		DhanClientID:      clientID,
		OrderID:           req.OrderID,
		OrderType:         string(req.OrderType),
		Quantity:          req.Quantity,
		Price:             req.Price,
		TriggerPrice:      req.TriggerPrice,
		Validity:          string(req.Validity),
		DisclosedQuantity: req.DisclosedQty,
		CoStopLossValue:   req.COStopLossValue,
	}
}
