// Package dhan implements domain.Broker against the Dhan brokerage's v2
// REST and WebSocket order-update APIs.
package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/config"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// Client is the REST client for one Dhan trading account. One Client is
// constructed per account (leader, follower); Stream is implemented on the
// same type in stream.go.
type Client struct {
	account     domain.Account
	baseURL     string
	wsHost      string
	clientID    string
	accessToken string
	httpClient  *http.Client
}

// New creates a Client for account using the endpoints in cfg and the
// credentials in creds.
func New(account domain.Account, cfg config.DhanConfig, creds config.AccountConfig) *Client {
	return &Client{
		account:     account,
		baseURL:     cfg.BaseURL,
		wsHost:      cfg.WsHost,
		clientID:    creds.ClientID,
		accessToken: creds.AccessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PlaceOrder submits a new order via POST /orders.
func (c *Client) PlaceOrder(ctx context.Context, req domain.PlaceOrderRequest) (domain.Order, error) {
	wire := placeRequestFromDomain(c.clientID, req)
	respBody, err := c.doRequest(ctx, http.MethodPost, "/orders", wire, "place_order")
	if err != nil {
		return domain.Order{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("dhan: place_order: decode response: %w", err)
	}

	return c.GetOrder(ctx, req.Account, resp.OrderID)
}

// PlaceSliceOrder submits an order whose quantity exceeds the instrument's
// freeze limit via POST /orders/slicing, which the broker splits into
// multiple child orders and returns one orderId per child.
func (c *Client) PlaceSliceOrder(ctx context.Context, req domain.SliceOrderRequest) ([]domain.Order, error) {
	wire := sliceOrderRequest{placeOrderRequest: placeRequestFromDomain(c.clientID, req.PlaceOrderRequest)}
	respBody, err := c.doRequest(ctx, http.MethodPost, "/orders/slicing", wire, "place_slice_order")
	if err != nil {
		return nil, err
	}

	var resp sliceOrderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("dhan: place_slice_order: decode response: %w", err)
	}

	orders := make([]domain.Order, 0, len(resp))
	for _, child := range resp {
		order, err := c.GetOrder(ctx, req.Account, child.OrderID)
		if err != nil {
			return orders, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// ModifyOrder updates an in-flight order's mutable fields via PUT
// /orders/{order-id}.
func (c *Client) ModifyOrder(ctx context.Context, req domain.ModifyOrderRequest) (domain.Order, error) {
	wire := modifyRequestFromDomain(c.clientID, req)
	path := "/orders/" + req.OrderID
	respBody, err := c.doRequest(ctx, http.MethodPut, path, wire, "modify_order")
	if err != nil {
		return domain.Order{}, err
	}

	var resp orderResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("dhan: modify_order: decode response: %w", err)
	}

	return c.GetOrder(ctx, req.Account, resp.OrderID)
}

// CancelOrder cancels an order via DELETE /orders/{order-id}.
func (c *Client) CancelOrder(ctx context.Context, account domain.Account, orderID string) (domain.Order, error) {
	path := "/orders/" + orderID
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil, "cancel_order")
	if err != nil {
		return domain.Order{}, err
	}
	return c.GetOrder(ctx, account, orderID)
}

// GetOrder fetches an order by broker order id via GET /orders/{order-id}.
func (c *Client) GetOrder(ctx context.Context, account domain.Account, orderID string) (domain.Order, error) {
	path := "/orders/" + orderID
	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, "get_order")
	if err != nil {
		return domain.Order{}, err
	}

	var w wireOrder
	if err := json.Unmarshal(respBody, &w); err != nil {
		return domain.Order{}, fmt.Errorf("dhan: get_order: decode response: %w", err)
	}
	return w.toDomain(account), nil
}

// GetOrderByCorrelation fetches an order by the caller-supplied correlation
// id via GET /orders/external/{correlation-id}.
func (c *Client) GetOrderByCorrelation(ctx context.Context, account domain.Account, correlationID string) (domain.Order, error) {
	path := "/orders/external/" + correlationID
	respBody, err := c.doRequest(ctx, http.MethodGet, path, nil, "get_order_by_correlation")
	if err != nil {
		return domain.Order{}, err
	}

	var w wireOrder
	if err := json.Unmarshal(respBody, &w); err != nil {
		return domain.Order{}, fmt.Errorf("dhan: get_order_by_correlation: decode response: %w", err)
	}
	return w.toDomain(account), nil
}

// ListOrders returns the account's order book for the trading day via GET
// /orders.
func (c *Client) ListOrders(ctx context.Context, account domain.Account) ([]domain.Order, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/orders", nil, "list_orders")
	if err != nil {
		return nil, err
	}

	var wireOrders []wireOrder
	if err := json.Unmarshal(respBody, &wireOrders); err != nil {
		return nil, fmt.Errorf("dhan: list_orders: decode response: %w", err)
	}

	orders := make([]domain.Order, 0, len(wireOrders))
	for _, w := range wireOrders {
		orders = append(orders, w.toDomain(account))
	}
	return orders, nil
}

// ListTrades returns the account's executed trades for the trading day via
// GET /trades.
func (c *Client) ListTrades(ctx context.Context, account domain.Account) ([]domain.Order, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/trades", nil, "list_trades")
	if err != nil {
		return nil, err
	}

	var wireOrders []wireOrder
	if err := json.Unmarshal(respBody, &wireOrders); err != nil {
		return nil, fmt.Errorf("dhan: list_trades: decode response: %w", err)
	}

	orders := make([]domain.Order, 0, len(wireOrders))
	for _, w := range wireOrders {
		orders = append(orders, w.toDomain(account))
	}
	return orders, nil
}

// GetFunds fetches the account's available balance via GET /fundlimit.
func (c *Client) GetFunds(ctx context.Context, account domain.Account) (domain.FundsSnapshot, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/fundlimit", nil, "get_funds")
	if err != nil {
		return domain.FundsSnapshot{}, err
	}

	var resp fundLimitResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return domain.FundsSnapshot{}, fmt.Errorf("dhan: get_funds: decode response: %w", err)
	}

	return domain.FundsSnapshot{
		Account:          account,
		AvailableBalance: resp.AvailableBalance,
		FetchedAt:        time.Now(),
	}, nil
}

// ListInstruments fetches the exchange instrument master via GET
// /instrument/master.
func (c *Client) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	respBody, err := c.doRequest(ctx, http.MethodGet, "/instrument/master", nil, "list_instruments")
	if err != nil {
		return nil, err
	}

	var records []instrumentRecord
	if err := json.Unmarshal(respBody, &records); err != nil {
		return nil, fmt.Errorf("dhan: list_instruments: decode response: %w", err)
	}

	instruments := make([]domain.Instrument, 0, len(records))
	for _, r := range records {
		instruments = append(instruments, r.toDomain())
	}
	return instruments, nil
}

// doRequest builds, sends, and reads an HTTP request against the Dhan REST
// API, translating non-2xx responses into domain sentinel errors.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, op string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("dhan: %s: marshal request body: %w", op, err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("dhan: %s: create request: %w", op, err)
	}
	req.Header.Set("access-token", c.accessToken)
	req.Header.Set("client-id", c.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dhan: %s: %w: %v", op, domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("dhan: %s: read response: %w", op, err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody, op); err != nil {
		return nil, err
	}
	return respBody, nil
}

// Compile-time interface check; Stream is implemented in stream.go.
var _ domain.Broker = (*Client)(nil)
