// Package notify fans trading alerts out to the configured channels.
// Delivery failures are logged and never block the trading path.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Event types emitted by the trader.
const (
	EventBuySuccess = "buy_success"
	EventBuyFailed  = "buy_failed"
	EventMarkdown   = "markdown"
)

// Sender is one delivery channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier dispatches events to every registered sender, filtered by an
// allow-list of event types. An empty allow-list lets everything through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	log     *slog.Logger
}

// New creates a Notifier delivering to the given senders.
func New(senders []Sender, events []string, log *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		log:     log.With("component", "notifier"),
	}
}

// Notify delivers the message to all senders when the event type is allowed.
// Individual sender failures are collected; one bad channel does not block
// the rest.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		return nil
	}
	if len(n.senders) == 0 {
		return nil
	}

	var failed []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.log.Error("sender failed", "sender", s.Name(), "error", err)
			failed = append(failed, fmt.Sprintf("%s: %v", s.Name(), err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}
