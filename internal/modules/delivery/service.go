// README: Delivery service couples delivery writes to the parent order and the zone.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"rxflow/internal/events"
	"rxflow/internal/modules/order"
	"rxflow/internal/modules/zone"
	"rxflow/internal/types"
)

var (
	ErrNotFound      = fmt.Errorf("delivery %w", types.ErrNotFound)
	ErrBadRequest    = fmt.Errorf("delivery: %w", types.ErrInvalidInput)
	ErrReasonMissing = fmt.Errorf("failed delivery needs a reason: %w", types.ErrInvalidInput)
	ErrConflict      = fmt.Errorf("delivery version %w", types.ErrConflict)
)

const maxPingRetries = 3

type Repository interface {
	Create(ctx context.Context, d *Delivery) error
	Get(ctx context.Context, id types.ID) (*Delivery, error)
	Save(ctx context.Context, d *Delivery) error
	Delete(ctx context.Context, id types.ID) error
}

// Orders is the slice of the order service deliveries drive.
type Orders interface {
	Get(ctx context.Context, id types.ID) (*order.Order, error)
	MarkOutForDelivery(ctx context.Context, orderID, officerID, actor types.ID) (*order.Order, error)
	MarkCompleted(ctx context.Context, orderID, actor types.ID) (*order.Order, error)
	ResetAssignment(ctx context.Context, orderID, actor types.ID) (*order.Order, error)
}

type Zones interface {
	Resolve(ctx context.Context, zoneID types.ID) (*zone.Zone, error)
	RecordDelivery(ctx context.Context, zoneID types.ID, o zone.Outcome) error
	RecordRating(ctx context.Context, zoneID types.ID, rating int) error
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

// TravelEstimator gives the driving time between two points.
type TravelEstimator interface {
	TravelTime(ctx context.Context, from, to types.Point) (time.Duration, error)
}

type Publisher interface {
	Publish(e events.Event) bool
}

type Service struct {
	store     Repository
	orders    Orders
	zones     Zones
	tracker   PositionTracker
	geocoder  Geocoder
	travel    TravelEstimator
	publisher Publisher
	logger    *zap.Logger
	now       func() time.Time
}

type Deps struct {
	Orders    Orders
	Zones     Zones
	Tracker   PositionTracker
	Geocoder  Geocoder
	Travel    TravelEstimator
	Publisher Publisher
	Logger    *zap.Logger
}

func NewService(store Repository, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		orders:    deps.Orders,
		zones:     deps.Zones,
		tracker:   deps.Tracker,
		geocoder:  deps.Geocoder,
		travel:    deps.Travel,
		publisher: deps.Publisher,
		logger:    logger,
		now:       time.Now,
	}
}

type CreateCommand struct {
	OrderID       types.ID
	OfficerID     types.ID
	CoordinatorID types.ID
	ZoneID        types.ID
	Address       string
	Location      *types.Point
	Schedule      string
	DistanceKm    *float64
	ActorID       types.ID
}

type StatusCommand struct {
	DeliveryID types.ID
	Status     Status
	Reason     string
	Notes      string
	Location   *types.Point
	Proof      *Proof
	ActorID    types.ID
}

type LocationCommand struct {
	DeliveryID types.ID
	Location   types.Point
	Address    string
}

type FeedbackCommand struct {
	DeliveryID types.ID
	Rating     int
	Comment    string
}

// Create checks the order, zone containment and pricing before anything is
// written, then moves the order out for delivery. Without an explicit officer
// the zone's primary driver is assigned.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Delivery, error) {
	if cmd.OrderID == "" {
		return nil, ErrBadRequest
	}
	if cmd.Schedule != "" && !ValidSlot(cmd.Schedule) {
		return nil, ErrBadRequest
	}
	if _, err := s.orders.Get(ctx, cmd.OrderID); err != nil {
		return nil, err
	}

	now := s.now()
	d := &Delivery{
		ID:            types.NewID(),
		OrderID:       cmd.OrderID,
		OfficerID:     cmd.OfficerID,
		CoordinatorID: cmd.CoordinatorID,
		ZoneID:        cmd.ZoneID,
		Address:       strings.TrimSpace(cmd.Address),
		Location:      cmd.Location,
		Schedule:      cmd.Schedule,
		Status:        StatusPending,
		Attempts:      []Attempt{},
		Tracking:      []Breadcrumb{},
		CreatedAt:     now,
	}
	if cmd.ZoneID != "" {
		if err := s.checkZone(ctx, d, cmd.DistanceKm, now); err != nil {
			return nil, err
		}
	}
	if d.OfficerID != "" {
		d.Status = StatusAssigned
	}
	if d.EstimatedArrival == nil && d.Schedule != "" {
		if eta, ok := slotDeadline(d.Schedule, now); ok {
			d.EstimatedArrival = &eta
		}
	}
	d.track(d.Status, d.Location, "Delivery created", now)

	if err := s.store.Create(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("delivery created",
		zap.String("delivery_id", d.ID.String()),
		zap.String("order_id", d.OrderID.String()),
		zap.String("zone_id", d.ZoneID.String()),
	)

	if _, err := s.orders.MarkOutForDelivery(ctx, d.OrderID, d.OfficerID, cmd.ActorID); err != nil {
		s.logger.Error("mark order out for delivery", zap.String("order_id", d.OrderID.String()), zap.Error(err))
	}
	if d.OfficerID != "" && s.publisher != nil {
		s.publisher.Publish(events.Event{
			Kind:       events.DeliveryAssigned,
			OrderID:    d.OrderID,
			DeliveryID: d.ID,
			OfficerID:  d.OfficerID,
			ActorID:    cmd.ActorID,
		})
	}
	return d, nil
}

func (s *Service) checkZone(ctx context.Context, d *Delivery, distanceKm *float64, now time.Time) error {
	z, err := s.zones.Resolve(ctx, d.ZoneID)
	if err != nil {
		return err
	}
	if !z.AvailableAt(now) {
		return fmt.Errorf("%s on %s: %w", z.Name, now.Weekday(), zone.ErrZoneClosed)
	}
	if d.Location == nil && s.geocoder != nil && d.Address != "" {
		p, err := s.geocoder.Geocode(ctx, d.Address)
		if err != nil {
			s.logger.Warn("geocode delivery address", zap.String("address", d.Address), zap.Error(err))
		} else {
			d.Location = &p
		}
	}
	if d.Location == nil {
		return fmt.Errorf("zone %s needs coordinates: %w", d.ZoneID, zone.ErrAddressOutsideZone)
	}
	if !d.Location.Valid() || !zone.Contains(z, *d.Location) {
		return zone.ErrAddressOutsideZone
	}
	if distanceKm != nil {
		fee, err := zone.CalculatePrice(z, *distanceKm)
		if err != nil {
			return err
		}
		d.Fee = &fee
	}
	if z.EstimatedTime.MaxMinutes > 0 {
		eta := now.Add(time.Duration(z.EstimatedTime.MaxMinutes) * time.Minute)
		d.EstimatedArrival = &eta
	}
	if d.OfficerID == "" {
		if id, ok := z.PrimaryDriver(); ok {
			d.OfficerID = id
		}
	}
	return nil
}

func (s *Service) UpdateStatus(ctx context.Context, cmd StatusCommand) (*Delivery, error) {
	if !cmd.Status.Valid() {
		return nil, ErrBadRequest
	}
	if cmd.Status == StatusFailed && strings.TrimSpace(cmd.Reason) == "" {
		return nil, ErrReasonMissing
	}
	d, err := s.store.Get(ctx, cmd.DeliveryID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	entered := d.transition(cmd, now)
	if cmd.Status == StatusInTransit && cmd.Location != nil {
		s.refreshETA(ctx, d, *cmd.Location, now)
	}
	if err := s.store.Save(ctx, d); err != nil {
		return nil, err
	}
	s.logger.Info("delivery status changed",
		zap.String("delivery_id", d.ID.String()),
		zap.String("status", string(d.Status)),
		zap.Bool("repeat", !entered),
	)

	if cmd.Location != nil {
		s.trackOfficer(ctx, d, *cmd.Location)
	}
	if !entered {
		return d, nil
	}
	switch d.Status {
	case StatusDelivered:
		if _, err := s.orders.MarkCompleted(ctx, d.OrderID, cmd.ActorID); err != nil {
			s.logger.Error("complete parent order", zap.String("order_id", d.OrderID.String()), zap.Error(err))
		}
		s.recordOutcome(ctx, d, zone.Outcome{Success: true, Duration: d.duration()})
	case StatusFailed:
		s.recordOutcome(ctx, d, zone.Outcome{Success: false})
	}
	return d, nil
}

// refreshETA re-estimates arrival from the officer's position when transit
// starts. Estimator failures keep the previous ETA.
func (s *Service) refreshETA(ctx context.Context, d *Delivery, from types.Point, now time.Time) {
	if s.travel == nil || d.Location == nil {
		return
	}
	dur, err := s.travel.TravelTime(ctx, from, *d.Location)
	if err != nil {
		s.logger.Warn("estimate travel time", zap.String("delivery_id", d.ID.String()), zap.Error(err))
		return
	}
	eta := now.Add(dur)
	d.EstimatedArrival = &eta
}

// AppendLocation records a GPS ping under the current status.
func (s *Service) AppendLocation(ctx context.Context, cmd LocationCommand) (*Delivery, error) {
	if !cmd.Location.Valid() {
		return nil, ErrBadRequest
	}
	loc := cmd.Location
	var err error
	for attempt := 0; attempt < maxPingRetries; attempt++ {
		var d *Delivery
		d, err = s.store.Get(ctx, cmd.DeliveryID)
		if err != nil {
			return nil, err
		}
		d.track(d.Status, &loc, cmd.Address, s.now())
		err = s.store.Save(ctx, d)
		if err == nil {
			s.trackOfficer(ctx, d, loc)
			return d, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}
	}
	return nil, err
}

// SubmitFeedback stores the rating, then folds it into the zone rating. The
// zone update is best effort; the feedback stays even if it fails.
func (s *Service) SubmitFeedback(ctx context.Context, cmd FeedbackCommand) (*Delivery, error) {
	if cmd.Rating < 1 || cmd.Rating > 5 {
		return nil, fmt.Errorf("rating %d not in 1..5: %w", cmd.Rating, ErrBadRequest)
	}
	d, err := s.store.Get(ctx, cmd.DeliveryID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	d.Feedback = &Feedback{Rating: cmd.Rating, Comment: cmd.Comment, Timestamp: now}
	d.UpdatedAt = now
	if err := s.store.Save(ctx, d); err != nil {
		return nil, err
	}
	if d.ZoneID != "" && s.zones != nil {
		if err := s.zones.RecordRating(ctx, d.ZoneID, d.Feedback.Rating); err != nil {
			s.logger.Error("update zone rating", zap.String("zone_id", d.ZoneID.String()), zap.Error(err))
		}
	}
	return d, nil
}

// Delete removes the delivery and hands the order back to PENDING.
func (s *Service) Delete(ctx context.Context, id, actor types.ID) error {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	if _, err := s.orders.ResetAssignment(ctx, d.OrderID, actor); err != nil {
		s.logger.Error("reset order assignment", zap.String("order_id", d.OrderID.String()), zap.Error(err))
	}
	s.logger.Info("delivery deleted", zap.String("delivery_id", id.String()))
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Delivery, error) {
	return s.store.Get(ctx, id)
}

// NearbyOfficers lists officers whose last ping lies within radiusKm of p.
func (s *Service) NearbyOfficers(ctx context.Context, p types.Point, radiusKm float64) ([]OfficerPosition, error) {
	if s.tracker == nil {
		return nil, nil
	}
	if !p.Valid() || radiusKm <= 0 {
		return nil, ErrBadRequest
	}
	return s.tracker.Nearby(ctx, p, radiusKm)
}

func (s *Service) recordOutcome(ctx context.Context, d *Delivery, o zone.Outcome) {
	if d.ZoneID == "" || s.zones == nil {
		return
	}
	if err := s.zones.RecordDelivery(ctx, d.ZoneID, o); err != nil {
		s.logger.Error("update zone stats", zap.String("zone_id", d.ZoneID.String()), zap.Error(err))
	}
}

func (s *Service) trackOfficer(ctx context.Context, d *Delivery, p types.Point) {
	if s.tracker == nil || d.OfficerID == "" {
		return
	}
	if err := s.tracker.UpdatePosition(ctx, d.OfficerID, p); err != nil {
		s.logger.Warn("track officer position", zap.String("officer_id", d.OfficerID.String()), zap.Error(err))
	}
}
