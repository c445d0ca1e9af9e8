// README: Pushes order updates and status changes to connected clients.
package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"rxflow/internal/modules/order"
	"rxflow/internal/types"
)

const (
	EventOrderUpdated  = "order:updated"
	EventStatusChanged = "order:status"
)

type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type StatusPayload struct {
	OrderID   types.ID     `json:"orderId"`
	Status    order.Status `json:"status"`
	UpdatedBy types.ID     `json:"updatedBy"`
	Timestamp time.Time    `json:"timestamp"`
}

type Broadcaster struct {
	registry *Registry
	logger   *zap.Logger
}

func NewBroadcaster(registry *Registry, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{registry: registry, logger: logger}
}

// OrderUpdated sends the full order to admins and to the pharmacy, officer and
// requester connections of the order. Offline parties are skipped.
func (b *Broadcaster) OrderUpdated(ctx context.Context, o *order.Order) {
	msg := Message{Event: EventOrderUpdated, Data: o}
	seen := make(map[Client]bool)
	for _, c := range b.registry.Admins() {
		seen[c] = true
		b.send(ctx, c, msg)
	}
	for _, id := range o.Parties() {
		c, ok := b.registry.Lookup(id)
		if !ok || seen[c] {
			continue
		}
		seen[c] = true
		b.send(ctx, c, msg)
	}
}

// StatusChanged goes to every connection; clients filter what they show.
func (b *Broadcaster) StatusChanged(ctx context.Context, orderID types.ID, status order.Status, actor types.ID) {
	msg := Message{Event: EventStatusChanged, Data: StatusPayload{
		OrderID:   orderID,
		Status:    status,
		UpdatedBy: actor,
		Timestamp: time.Now(),
	}}
	for _, c := range b.registry.All() {
		b.send(ctx, c, msg)
	}
}

func (b *Broadcaster) send(ctx context.Context, c Client, msg Message) {
	if err := c.Send(ctx, msg); err != nil {
		b.logger.Debug("socket push dropped",
			zap.String("user_id", c.UserID().String()),
			zap.String("event", msg.Event),
			zap.Error(err),
		)
	}
}
