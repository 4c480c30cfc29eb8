package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/golden-feast/internal/domain/order"
)

var _ order.Notifier = (*Publisher)(nil)

// Publisher routes order notices to their rooms.
type Publisher struct {
	hub *Hub
}

// NewPublisher creates a Publisher on top of hub.
func NewPublisher(hub *Hub) *Publisher {
	return &Publisher{hub: hub}
}

// NewOrder announces n to the admin room.
func (p *Publisher) NewOrder(ctx context.Context, n order.NewOrderNotice) {
	delivered := p.hub.Publish(AdminRoom(), NewOrderEvent(n))
	zctx.From(ctx).Debug("Published new order",
		zap.String("order_id", n.OrderID),
		zap.Int("delivered", delivered),
	)
}

// OrderUpdated sends n to the customer's room.
func (p *Publisher) OrderUpdated(ctx context.Context, n order.UpdateNotice) {
	if n.CustomerID == "" {
		return
	}
	delivered := p.hub.Publish(CustomerRoom(n.CustomerID), OrderUpdatedEvent(n))
	zctx.From(ctx).Debug("Published order update",
		zap.String("order_id", n.OrderID),
		zap.String("customer_id", n.CustomerID),
		zap.Int("delivered", delivered),
	)
}
