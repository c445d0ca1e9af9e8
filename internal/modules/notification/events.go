// README: Turns domain events into best-effort notifications.
package notification

import (
	"context"

	"rxflow/internal/events"
)

type EventHandler struct {
	svc *Service
}

func NewEventHandler(svc *Service) *EventHandler {
	return &EventHandler{svc: svc}
}

// Register subscribes the handler to every order-related event kind.
func (h *EventHandler) Register(bus *events.Bus) {
	bus.Subscribe(events.OrderStatusChanged, h.onStatusChanged)
	bus.Subscribe(events.DeliveryAssigned, h.onDeliveryAssigned)
	bus.Subscribe(events.PharmacyAssigned, h.onPharmacyAssigned)
}

func (h *EventHandler) onStatusChanged(ctx context.Context, e events.Event) error {
	return h.svc.SendOrderStatusNotification(ctx, e.OrderID, e.Status, e.Note)
}

func (h *EventHandler) onDeliveryAssigned(ctx context.Context, e events.Event) error {
	return h.svc.SendDeliveryAssignmentNotification(ctx, e.OrderID, e.DeliveryID, e.OfficerID)
}

func (h *EventHandler) onPharmacyAssigned(ctx context.Context, e events.Event) error {
	return h.svc.SendPharmacyAssignmentNotification(ctx, e.OrderID, e.PharmacyID)
}
