// README: Order service implements status updates, assignment changes and the delivery hooks.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rxflow/internal/events"
	"rxflow/internal/types"
)

var (
	ErrNotFound      = fmt.Errorf("order %w", types.ErrNotFound)
	ErrBadRequest    = fmt.Errorf("order: %w", types.ErrInvalidInput)
	ErrInvalidStatus = fmt.Errorf("order status not allowed: %w", types.ErrInvalidInput)
	ErrConflict      = fmt.Errorf("order version %w", types.ErrConflict)
)

// maxHookRetries bounds re-reads when a system-driven mutation loses an optimistic race.
const maxHookRetries = 3

type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id types.ID) (*Order, error)
	Save(ctx context.Context, o *Order) error
	Delete(ctx context.Context, id types.ID) error
}

// Sequence hands out the per-month order counter.
type Sequence interface {
	Next(ctx context.Context, month time.Time) (int64, error)
}

type Broadcaster interface {
	OrderUpdated(ctx context.Context, o *Order)
	StatusChanged(ctx context.Context, orderID types.ID, status Status, actor types.ID)
}

type Publisher interface {
	Publish(e events.Event) bool
}

type Service struct {
	store       Repository
	seq         Sequence
	broadcaster Broadcaster
	publisher   Publisher
	logger      *zap.Logger
	now         func() time.Time
}

func NewService(store Repository, seq Sequence, broadcaster Broadcaster, publisher Publisher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		seq:         seq,
		broadcaster: broadcaster,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}
}

type CreateCommand struct {
	RequesterID      types.ID
	Type             Type
	Medications      []Medication
	DeliveryMethod   DeliveryMethod
	DeliveryAddress  *Address
	PickupPharmacyID types.ID
	ScheduleSlot     string
}

type StatusCommand struct {
	OrderID types.ID
	Status  Status
	Note    string
	ActorID types.ID
}

// UpdateCommand changes assignment and fulfilment fields. Nil fields are left untouched.
type UpdateCommand struct {
	OrderID          types.ID
	DeliveryMethod   *DeliveryMethod
	DeliveryAddress  *Address
	PickupPharmacyID *types.ID
	PharmacyID       *types.ID
	OfficerID        *types.ID
	ScheduleSlot     *string
	Invoice          *Invoice
	ActorID          types.ID
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Order, error) {
	if err := validateCreate(cmd); err != nil {
		return nil, err
	}
	now := s.now()
	n, err := s.seq.Next(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("order number: %w", err)
	}

	o := &Order{
		ID:               types.NewID(),
		OrderNumber:      FormatNumber(now, n),
		RequesterID:      cmd.RequesterID,
		Type:             cmd.Type,
		Medications:      cmd.Medications,
		DeliveryMethod:   cmd.DeliveryMethod,
		DeliveryAddress:  cmd.DeliveryAddress,
		PickupPharmacyID: cmd.PickupPharmacyID,
		ScheduleSlot:     cmd.ScheduleSlot,
		Status:           StatusPending,
		StatusHistory:    []StatusEntry{},
		Notifications:    []NotificationRecord{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	o.refreshCategory()
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}
	s.logger.Info("order created",
		zap.String("order_id", o.ID.String()),
		zap.String("order_number", o.OrderNumber),
		zap.String("category", string(o.Category)),
	)
	s.broadcastUpdated(ctx, o)
	return o, nil
}

func validateCreate(cmd CreateCommand) error {
	if cmd.RequesterID == "" || !cmd.Type.Valid() || len(cmd.Medications) == 0 {
		return ErrBadRequest
	}
	for _, m := range cmd.Medications {
		if strings.TrimSpace(m.Name) == "" || m.Quantity < 1 {
			return ErrBadRequest
		}
	}
	switch cmd.DeliveryMethod {
	case MethodDelivery:
		if cmd.DeliveryAddress == nil || strings.TrimSpace(cmd.DeliveryAddress.Line) == "" {
			return ErrBadRequest
		}
	case MethodPickup:
	default:
		return ErrBadRequest
	}
	return nil
}

// FormatNumber renders ORD-YYYYMM-NNNN.
func FormatNumber(month time.Time, n int64) string {
	return fmt.Sprintf("ORD-%s-%04d", month.Format("200601"), n)
}

// UpdateStatus records a caller-requested status. Any status may follow any
// other, including itself. A stale read surfaces as ErrConflict.
func (s *Service) UpdateStatus(ctx context.Context, cmd StatusCommand) (*Order, error) {
	if !cmd.Status.Settable() {
		return nil, ErrInvalidStatus
	}
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	actor := cmd.ActorID
	if actor == "" {
		actor = o.RequesterID
	}
	o.recordStatus(cmd.Status, cmd.Note, actor, s.now())
	if err := s.store.Save(ctx, o); err != nil {
		return nil, err
	}
	s.afterStatusChange(ctx, o, cmd.Note, actor)
	return o, nil
}

func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*Order, error) {
	o, err := s.store.Get(ctx, cmd.OrderID)
	if err != nil {
		return nil, err
	}
	prevPharmacy := o.PharmacyID

	if cmd.DeliveryMethod != nil {
		if *cmd.DeliveryMethod != MethodDelivery && *cmd.DeliveryMethod != MethodPickup {
			return nil, ErrBadRequest
		}
		o.DeliveryMethod = *cmd.DeliveryMethod
	}
	if cmd.DeliveryAddress != nil {
		o.DeliveryAddress = cmd.DeliveryAddress
	}
	if cmd.PickupPharmacyID != nil {
		o.PickupPharmacyID = *cmd.PickupPharmacyID
	}
	if cmd.PharmacyID != nil {
		o.PharmacyID = *cmd.PharmacyID
	}
	if cmd.OfficerID != nil {
		o.OfficerID = *cmd.OfficerID
	}
	if cmd.ScheduleSlot != nil {
		o.ScheduleSlot = *cmd.ScheduleSlot
	}
	if cmd.Invoice != nil {
		o.Invoice = cmd.Invoice
	}
	if o.DeliveryMethod == MethodDelivery && o.DeliveryAddress == nil {
		return nil, ErrBadRequest
	}
	o.refreshCategory()
	o.UpdatedAt = s.now()

	if err := s.store.Save(ctx, o); err != nil {
		return nil, err
	}
	s.broadcastUpdated(ctx, o)
	if o.PharmacyID != "" && o.PharmacyID != prevPharmacy {
		s.publish(events.Event{
			Kind:       events.PharmacyAssigned,
			OrderID:    o.ID,
			PharmacyID: o.PharmacyID,
			ActorID:    cmd.ActorID,
		})
	}
	return o, nil
}

// MarkOutForDelivery records the officer and moves the order out for delivery.
func (s *Service) MarkOutForDelivery(ctx context.Context, orderID, officerID, actor types.ID) (*Order, error) {
	return s.hookStatus(ctx, orderID, actor, StatusOutForDelivery, "Assigned for delivery", func(o *Order) {
		o.OfficerID = officerID
	})
}

func (s *Service) MarkCompleted(ctx context.Context, orderID, actor types.ID) (*Order, error) {
	return s.hookStatus(ctx, orderID, actor, StatusCompleted, "Delivery completed", nil)
}

// ResetAssignment returns the order to PENDING and clears the officer.
func (s *Service) ResetAssignment(ctx context.Context, orderID, actor types.ID) (*Order, error) {
	return s.hookStatus(ctx, orderID, actor, StatusPending, "Delivery removed", func(o *Order) {
		o.OfficerID = ""
	})
}

func (s *Service) hookStatus(ctx context.Context, orderID, actor types.ID, status Status, note string, mutate func(*Order)) (*Order, error) {
	o, err := s.retry(ctx, orderID, func(o *Order) error {
		if mutate != nil {
			mutate(o)
		}
		by := actor
		if by == "" {
			by = o.RequesterID
		}
		o.recordStatus(status, note, by, s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterStatusChange(ctx, o, note, o.StatusHistory[0].UpdatedBy)
	return o, nil
}

// AppendNotification adds rec to the order's notification history.
func (s *Service) AppendNotification(ctx context.Context, orderID types.ID, rec NotificationRecord) error {
	_, err := s.retry(ctx, orderID, func(o *Order) error {
		if rec.SentAt.IsZero() {
			rec.SentAt = s.now()
		}
		o.Notifications = append(o.Notifications, rec)
		o.UpdatedAt = s.now()
		return nil
	})
	return err
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Order, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id types.ID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("order deleted", zap.String("order_id", id.String()))
	return nil
}

func (s *Service) retry(ctx context.Context, orderID types.ID, apply func(*Order) error) (*Order, error) {
	var err error
	for attempt := 0; attempt < maxHookRetries; attempt++ {
		var o *Order
		o, err = s.store.Get(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if err = apply(o); err != nil {
			return nil, err
		}
		err = s.store.Save(ctx, o)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return nil, err
}

func (s *Service) afterStatusChange(ctx context.Context, o *Order, note string, actor types.ID) {
	s.logger.Info("order status changed",
		zap.String("order_id", o.ID.String()),
		zap.String("status", string(o.Status)),
		zap.String("actor", actor.String()),
	)
	s.broadcastUpdated(ctx, o)
	if s.broadcaster != nil {
		s.broadcaster.StatusChanged(ctx, o.ID, o.Status, actor)
	}
	s.publish(events.Event{
		Kind:    events.OrderStatusChanged,
		OrderID: o.ID,
		Status:  string(o.Status),
		Note:    note,
		ActorID: actor,
	})
}

func (s *Service) broadcastUpdated(ctx context.Context, o *Order) {
	if s.broadcaster != nil {
		s.broadcaster.OrderUpdated(ctx, o)
	}
}

func (s *Service) publish(e events.Event) {
	if s.publisher == nil {
		return
	}
	if !s.publisher.Publish(e) {
		s.logger.Warn("order event dropped", zap.String("kind", string(e.Kind)), zap.String("order_id", e.OrderID.String()))
	}
}
