// Package stream consumes the leader account's order-update push channel
// and hands each normalised event to the Replicator, detecting disconnect
// boundaries so Recovery can backfill whatever the gap may have missed.
//
// The broker client's Stream method already runs its own internal
// exponential-backoff reconnect loop; this package's job is thinner than a
// full reconnect manager: track heartbeat staleness, count consecutive
// transient errors against a configured bound, and trigger recovery once a
// fresh event arrives after an error was observed.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mlt-5/copy-trading-dhan-sub001/internal/domain"
)

// Handler is the subset of replicator.Replicator the Consumer depends on.
type Handler interface {
	Handle(ctx context.Context, ev domain.Event) error
}

// Recoverer is the subset of recovery.Recovery the Consumer depends on.
type Recoverer interface {
	Run(ctx context.Context) error
}

// Config carries the Consumer's timing parameters.
type Config struct {
	HeartbeatTimeout     time.Duration
	MaxReconnectAttempts int
}

// Consumer wraps domain.Broker.Stream for the leader account.
type Consumer struct {
	broker     domain.Broker
	replicator Handler
	recovery   Recoverer
	cfg        Config
	logger     *slog.Logger
}

// New creates a Consumer. broker must be bound to the leader account.
func New(broker domain.Broker, replicator Handler, recovery Recoverer, cfg Config, logger *slog.Logger) *Consumer {
	return &Consumer{
		broker:     broker,
		replicator: replicator,
		recovery:   recovery,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "stream_consumer")),
	}
}

// Run opens the leader stream and dispatches events until ctx is cancelled
// or the stream fails permanently (both channels have closed, or the error
// channel reports MaxReconnectAttempts consecutive transient errors without
// an intervening successful event).
func (c *Consumer) Run(ctx context.Context) error {
	events, errs := c.broker.Stream(ctx, domain.AccountLeader)

	heartbeat := time.NewTimer(c.cfg.HeartbeatTimeout)
	defer heartbeat.Stop()

	attempts := 0
	disconnected := false

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				events = nil
				if errs == nil {
					return fmt.Errorf("stream: leader event channel closed")
				}
				continue
			}

			resetHeartbeat(heartbeat, c.cfg.HeartbeatTimeout)
			attempts = 0

			if disconnected {
				disconnected = false
				if err := c.recovery.Run(ctx); err != nil {
					c.logger.ErrorContext(ctx, "post-reconnect recovery failed", slog.String("error", err.Error()))
				}
			}

			if err := c.replicator.Handle(ctx, ev); err != nil {
				c.logger.ErrorContext(ctx, "replicator handle failed",
					slog.String("leader_order_id", ev.OrderID), slog.String("error", err.Error()))
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				if events == nil {
					return fmt.Errorf("stream: leader error channel closed")
				}
				continue
			}

			attempts++
			disconnected = true
			c.logger.WarnContext(ctx, "leader stream error",
				slog.Int("attempt", attempts), slog.String("error", err.Error()))

			if attempts >= c.cfg.MaxReconnectAttempts {
				return fmt.Errorf("stream: exceeded %d consecutive reconnect attempts: %w", c.cfg.MaxReconnectAttempts, err)
			}

		case <-heartbeat.C:
			c.logger.WarnContext(ctx, "no leader stream activity within heartbeat timeout",
				slog.Duration("timeout", c.cfg.HeartbeatTimeout))
			resetHeartbeat(heartbeat, c.cfg.HeartbeatTimeout)
		}
	}
}

func resetHeartbeat(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
