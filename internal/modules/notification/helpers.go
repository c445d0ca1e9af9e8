// README: Order-related notification helpers. Each one records the attempt on the order history.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"rxflow/internal/modules/order"
	"rxflow/internal/types"
)

type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	AppendNotification(ctx context.Context, orderID types.ID, rec order.NotificationRecord) error
}

const (
	KindOrderStatus        = "order_status"
	KindDeliveryAssignment = "delivery_assignment"
	KindPharmacyAssignment = "pharmacy_assignment"
	KindCustom             = "custom"
)

type CustomCommand struct {
	OrderID    types.ID
	SenderID   types.ID
	Recipients []types.ID
	Channel    Channel
	Subject    string
	Message    string
	Media      *Media
}

// SendOrderStatusNotification tells the requester about a status change.
func (s *Service) SendOrderStatusNotification(ctx context.Context, orderID types.ID, status, note string) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("Your order %s is now %s.", o.OrderNumber, humanStatus(status))
	if note != "" {
		msg += " " + note
	}
	return s.sendForOrder(ctx, o, KindOrderStatus, CreateSpec{
		Channel:    ChannelWhatsApp,
		Recipients: []types.ID{o.RequesterID},
		Message:    msg,
		Priority:   PriorityMedium,
		Tags:       []string{KindOrderStatus},
	})
}

func (s *Service) SendDeliveryAssignmentNotification(ctx context.Context, orderID, deliveryID, officerID types.ID) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if officerID == "" {
		officerID = o.OfficerID
	}
	if officerID == "" {
		return fmt.Errorf("%w: order %s has no delivery officer", ErrBadRequest, orderID)
	}
	msg := fmt.Sprintf("You have been assigned delivery %s for order %s.", deliveryID, o.OrderNumber)
	if o.DeliveryAddress != nil && o.DeliveryAddress.Line != "" {
		msg += " Deliver to: " + o.DeliveryAddress.Line + "."
	}
	return s.sendForOrder(ctx, o, KindDeliveryAssignment, CreateSpec{
		Channel:    ChannelWhatsApp,
		Recipients: []types.ID{officerID},
		Message:    msg,
		Priority:   PriorityHigh,
		Tags:       []string{KindDeliveryAssignment},
	})
}

func (s *Service) SendPharmacyAssignmentNotification(ctx context.Context, orderID, pharmacyID types.ID) error {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return err
	}
	if pharmacyID == "" {
		pharmacyID = o.PharmacyID
	}
	if pharmacyID == "" {
		return fmt.Errorf("%w: order %s has no pharmacy", ErrBadRequest, orderID)
	}
	return s.sendForOrder(ctx, o, KindPharmacyAssignment, CreateSpec{
		Channel:    ChannelWhatsApp,
		Recipients: []types.ID{pharmacyID},
		Message:    fmt.Sprintf("Order %s has been assigned to your pharmacy with %d item(s).", o.OrderNumber, len(o.Medications)),
		Priority:   PriorityHigh,
		Tags:       []string{KindPharmacyAssignment},
	})
}

func (s *Service) SendCustomNotification(ctx context.Context, cmd CustomCommand) error {
	o, err := s.orders.Get(ctx, cmd.OrderID)
	if err != nil {
		return err
	}
	recipients := cmd.Recipients
	if len(recipients) == 0 {
		recipients = []types.ID{o.RequesterID}
	}
	channel := cmd.Channel
	if channel == "" {
		channel = ChannelWhatsApp
	}
	return s.sendForOrder(ctx, o, KindCustom, CreateSpec{
		Channel:    channel,
		SenderID:   cmd.SenderID,
		Recipients: recipients,
		Subject:    cmd.Subject,
		Message:    cmd.Message,
		Media:      cmd.Media,
		Tags:       []string{KindCustom},
	})
}

// sendForOrder creates the notification and always appends a history record
// to the order, whatever happened to the send itself.
func (s *Service) sendForOrder(ctx context.Context, o *order.Order, kind string, spec CreateSpec) error {
	spec.OrderID = o.ID
	n, dispatched, createErr := s.create(ctx, spec)

	rec := order.NotificationRecord{
		Type:    kind,
		Channel: strings.ToUpper(string(spec.Channel)),
		SentAt:  s.now(),
	}
	if n != nil {
		rec.NotificationID = n.ID
	}
	switch {
	case createErr != nil:
		rec.Status = order.NotificationFailed
		rec.Note = createErr.Error()
	case dispatched:
		rec.Status = order.NotificationSent
	case !s.cfg.Enabled:
		rec.Status = order.NotificationPending
		rec.Note = "notifications are disabled"
	default:
		rec.Status = order.NotificationPending
		rec.Note = "scheduled for " + n.ScheduledFor.Format("2006-01-02 15:04")
	}

	appendErr := s.orders.AppendNotification(ctx, o.ID, rec)
	if appendErr != nil {
		s.logger.Warn("record order notification", zap.String("order_id", o.ID.String()), zap.Error(appendErr))
	}
	return errors.Join(createErr, appendErr)
}

func humanStatus(status string) string {
	return strings.ToLower(strings.ReplaceAll(status, "_", " "))
}
