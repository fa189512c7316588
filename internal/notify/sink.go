package notify

import (
	"context"
	"fmt"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// DefaultEvents are announced when no filter is configured.
var DefaultEvents = []string{
	string(domain.EventProjectCreated),
	string(domain.EventProjectClosed),
	string(domain.EventProjectSettled),
	string(domain.EventAdminTransferred),
}

// EventSink formats ledger events as notifications. Delivery is best effort:
// a failing chat channel is logged by the Notifier and never retried, so a
// retry of the batch cannot repeat messages that already went out.
type EventSink struct {
	notifier *Notifier
}

// NewEventSink wraps n as an events sink.
func NewEventSink(n *Notifier) *EventSink {
	return &EventSink{notifier: n}
}

func (s *EventSink) Name() string { return "notifier" }

func (s *EventSink) Deliver(ctx context.Context, events []domain.Event) error {
	for _, e := range events {
		if !s.notifier.Allows(string(e.Type)) {
			continue
		}
		title, msg, ok := Format(e)
		if !ok {
			continue
		}
		_ = s.notifier.Notify(ctx, string(e.Type), title, msg)
	}
	return nil
}

// Format renders e for a chat channel. ok is false for event types that
// have no human-readable form.
func Format(e domain.Event) (title, message string, ok bool) {
	switch e.Type {
	case domain.EventProjectCreated:
		return "New project", fmt.Sprintf("#%d %q by %s, prize %s", e.ProjectID, e.Title, e.From.Hex(), e.Amount.Display()), true
	case domain.EventProjectFunded:
		return "Project funded", fmt.Sprintf("#%d +%s from %s", e.ProjectID, e.Amount.Display(), e.From.Hex()), true
	case domain.EventProjectClosed:
		return "Project closed", fmt.Sprintf("#%d stopped selling tickets", e.ProjectID), true
	case domain.EventProjectSettled:
		return "Project settled", fmt.Sprintf("#%d winning option %d", e.ProjectID, e.Option), true
	case domain.EventPrizeDistributed:
		return "Prize paid", fmt.Sprintf("#%d ticket %d: %s to %s", e.ProjectID, e.TicketID, e.Amount.Display(), e.To.Hex()), true
	case domain.EventOrderFilled:
		return "Ticket sold", fmt.Sprintf("order %d: %s to %s for %s", e.OrderID, e.From.Hex(), e.To.Hex(), e.Amount.Display()), true
	case domain.EventAdminTransferred:
		return "Admin changed", fmt.Sprintf("%s to %s", e.From.Hex(), e.To.Hex()), true
	}
	return "", "", false
}
