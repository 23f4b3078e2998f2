package dhan

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 1 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// orderUpdateEnvelope is the outer frame the order-update feed wraps every
// push in; Data carries the order payload itself.
type orderUpdateEnvelope struct {
	Type string    `json:"Type"`
	Data wireOrder `json:"Data"`
}

// Stream opens the order-update WebSocket for account and normalises every
// push into a domain.Event, reconnecting with exponential backoff on
// disconnect until ctx is cancelled. The returned error channel receives one
// value per transient disconnect (for logging/alerting), dropped when its
// 4-slot buffer is already full, and is closed, along
// with the events channel, once ctx is done.
func (c *Client) Stream(ctx context.Context, account domain.Account) (<-chan domain.Event, <-chan error) {
	events := make(chan domain.Event, 64)
	errs := make(chan error, 4)

	go c.streamLoop(ctx, account, events, errs)

	return events, errs
}

func (c *Client) streamLoop(ctx context.Context, account domain.Account, events chan<- domain.Event, errs chan<- error) {
	defer close(events)
	defer close(errs)

	var sequence int64
	delay := reconnectDelay

	for {
		if ctx.Err() != nil {
			return
		}

		connected := false
		err := c.runConnection(ctx, account, events, &sequence, func() { connected = true })
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			select {
			case errs <- fmt.Errorf("dhan: stream: %w: %v", domain.ErrTransport, err):
			default:
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		if connected {
			// The session dialed successfully; whatever caused it to drop is
			// unrelated to the reconnect backoff, so start the next attempt
			// from the base delay again instead of carrying over growth from
			// a prior, unrelated failure streak.
			delay = reconnectDelay
		} else {
			delay *= 2
			if delay > maxReconnectDelay {
				delay = maxReconnectDelay
			}
		}
	}
}

// runConnection holds one WebSocket session open until it errors or ctx is
// cancelled. onConnect is called once the session dials successfully, before
// any messages are read, so the caller can reset its reconnect backoff.
func (c *Client) runConnection(ctx context.Context, account domain.Account, events chan<- domain.Event, sequence *int64, onConnect func()) error {
	wsURL := c.wsHost + "?version=2&token=" + url.QueryEscape(c.accessToken) + "&clientId=" + url.QueryEscape(c.clientID) + "&authType=2"

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close()
	onConnect()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		close(done)
	}()

	go c.pingLoop(conn, done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		event, ok := c.parseUpdate(account, message, atomic.AddInt64(sequence, 1))
		if !ok {
			continue
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// parseUpdate unmarshals a single order-update push. Messages the feed sends
// for connection housekeeping (e.g. "OrderFeed" subscribe acks) carry no
// order id and are silently dropped rather than surfaced as events.
func (c *Client) parseUpdate(account domain.Account, raw []byte, sequence int64) (domain.Event, bool) {
	var env orderUpdateEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Event{}, false
	}
	if env.Data.OrderID == "" {
		return domain.Event{}, false
	}

	return env.Data.toDomainEvent(account, domain.SourceStream, sequence, raw), true
}
