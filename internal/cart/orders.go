package cart

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sendrec/chaptersync/internal/database"
)

// OrderNotifier is told about every submitted order.
type OrderNotifier interface {
	OrderSubmitted(ctx context.Context, order Order) error
}

// OrderService turns a cart into a stored order. Without a database the
// order is only logged.
type OrderService struct {
	db       database.DBTX
	notifier OrderNotifier
	now      func() time.Time
}

func NewOrderService(db database.DBTX) *OrderService {
	return &OrderService{db: db, now: time.Now}
}

func (s *OrderService) SetNotifier(n OrderNotifier) {
	s.notifier = n
}

// Submit checks out c and stores the order. The selected items leave the
// cart before the insert, so concurrent submits of one cart store a single
// order; they are restored when storing fails.
func (s *OrderService) Submit(ctx context.Context, sessionID string, c *Cart, name, address string) (Order, error) {
	order, err := c.Checkout(name, address, s.now())
	if err != nil {
		return Order{}, err
	}

	if s.db != nil {
		if _, err := s.db.Exec(ctx,
			`INSERT INTO orders (id, session_id, name, address, items, submitted_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			order.ID, sessionID, order.Name, order.Address, order.Items, order.Timestamp,
		); err != nil {
			c.Restore(order.Items)
			return Order{}, fmt.Errorf("store order: %w", err)
		}
	}

	slog.Info("checkout: order submitted",
		"order_id", order.ID,
		"session_id", sessionID,
		"name", order.Name,
		"items", order.Items,
	)

	if s.notifier != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.notifier.OrderSubmitted(ctx, order); err != nil {
				slog.Error("checkout: order notification failed", "order_id", order.ID, "error", err)
			}
		}()
	}
	return order, nil
}
