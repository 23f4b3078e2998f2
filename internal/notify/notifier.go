// Package notify delivers operator alerts to a single notification channel.
// Notifications can be filtered by event type so operators receive only the
// alerts they care about.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Sender is the interface a notification channel must implement.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Notifier dispatches notifications to a single Sender. It maintains a set
// of allowed event types; Notify only forwards messages whose event type is
// in the allowed set, while NotifyAll bypasses the filter. Sender may be nil,
// in which case every call is a no-op -- this lets the replicator and
// supervisor call Notify unconditionally regardless of whether an operator
// has configured a channel.
type Notifier struct {
	sender Sender
	events map[string]bool // allowed event types
	logger *slog.Logger
}

// NewNotifier creates a Notifier that delivers to sender. Only events whose
// type appears in the events slice will be forwarded by Notify. If events is
// empty, all event types are allowed.
func NewNotifier(sender Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		sender: sender,
		events: allowed,
		logger: logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to the sender only if the event type is in the
// allowed list. If no events were configured (empty list), all events pass.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}

	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a notification to the sender regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if n.sender == nil {
		return nil
	}

	if err := n.sender.Send(ctx, title, message); err != nil {
		n.logger.ErrorContext(ctx, "sender failed",
			slog.String("sender", n.sender.Name()),
			slog.String("error", err.Error()),
		)
		return err
	}

	n.logger.DebugContext(ctx, "notification sent",
		slog.String("sender", n.sender.Name()),
		slog.String("title", title),
	)
	return nil
}
