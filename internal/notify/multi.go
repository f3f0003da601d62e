package notify

import (
	"context"
	"log/slog"

	"github.com/sendrec/chaptersync/internal/cart"
)

var _ cart.OrderNotifier = (*MultiOrderNotifier)(nil)

// MultiOrderNotifier fans out order notifications to all registered notifiers.
// A failing notifier is logged and does not stop the others.
type MultiOrderNotifier struct {
	notifiers []cart.OrderNotifier
}

// NewMultiOrderNotifier creates a notifier that delegates to all provided
// order notifiers. Nil entries are skipped.
func NewMultiOrderNotifier(notifiers ...cart.OrderNotifier) *MultiOrderNotifier {
	m := &MultiOrderNotifier{}
	for _, n := range notifiers {
		if n != nil {
			m.notifiers = append(m.notifiers, n)
		}
	}
	return m
}

// Len reports how many notifiers are registered.
func (m *MultiOrderNotifier) Len() int {
	return len(m.notifiers)
}

func (m *MultiOrderNotifier) OrderSubmitted(ctx context.Context, order cart.Order) error {
	for _, n := range m.notifiers {
		if err := n.OrderSubmitted(ctx, order); err != nil {
			slog.Error("multi-notifier: order notification failed", "order_id", order.ID, "error", err)
		}
	}
	return nil
}
