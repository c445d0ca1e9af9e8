// README: Zone service answers containment and pricing questions and maintains zone stats.
package zone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"rxflow/internal/types"
)

var (
	ErrNotFound           = fmt.Errorf("zone %w", types.ErrNotFound)
	ErrBadRequest         = fmt.Errorf("zone: %w", types.ErrInvalidInput)
	ErrConflict           = fmt.Errorf("zone version %w", types.ErrConflict)
	ErrDuplicateName      = fmt.Errorf("zone name already exists: %w", types.ErrConflict)
	ErrInvalidZone        = fmt.Errorf("invalid zone: %w", types.ErrPrecondition)
	ErrAddressOutsideZone = fmt.Errorf("address outside zone: %w", types.ErrPrecondition)
	ErrDistanceExceeded   = fmt.Errorf("distance exceeds zone maximum: %w", types.ErrPrecondition)
	ErrZoneClosed         = fmt.Errorf("zone closed on that day: %w", types.ErrPrecondition)
)

// maxStatRetries bounds optimistic-lock retries for stats updates.
const maxStatRetries = 3

type Repository interface {
	Create(ctx context.Context, z *Zone) error
	Get(ctx context.Context, id types.ID) (*Zone, error)
	List(ctx context.Context) ([]*Zone, error)
	Save(ctx context.Context, z *Zone) error
}

type DistanceProvider interface {
	DistanceKm(ctx context.Context, from, to types.Point) (float64, error)
}

// HaversineDistance is the straight-line fallback when no routing provider is configured.
type HaversineDistance struct{}

func (HaversineDistance) DistanceKm(_ context.Context, from, to types.Point) (float64, error) {
	return haversineKm(from, to), nil
}

type Service struct {
	store    Repository
	distance DistanceProvider
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(store Repository, distance DistanceProvider, logger *zap.Logger) *Service {
	if distance == nil {
		distance = HaversineDistance{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, distance: distance, logger: logger, now: time.Now}
}

type CreateCommand struct {
	Name          string
	Boundary      orb.Polygon
	BasePrice     decimal.Decimal
	PricePerKm    decimal.Decimal
	MinimumOrder  decimal.Decimal
	MaxDistanceKm float64
	EstimatedTime EstimatedTime
	Availability  []DayAvailability
	Drivers       []DriverAssignment
}

type Quote struct {
	ZoneID     types.ID        `json:"zoneId"`
	DistanceKm float64         `json:"distanceKm"`
	Price      decimal.Decimal `json:"price"`
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Zone, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" || cmd.MaxDistanceKm <= 0 || cmd.BasePrice.IsNegative() || cmd.PricePerKm.IsNegative() {
		return nil, ErrBadRequest
	}
	if cmd.EstimatedTime.MinMinutes > cmd.EstimatedTime.MaxMinutes {
		return nil, ErrBadRequest
	}
	boundary, err := normalizeBoundary(cmd.Boundary)
	if err != nil {
		return nil, err
	}
	now := s.now()
	z := &Zone{
		ID:            types.NewID(),
		Name:          name,
		Boundary:      boundary,
		BasePrice:     cmd.BasePrice,
		PricePerKm:    cmd.PricePerKm,
		MinimumOrder:  cmd.MinimumOrder,
		MaxDistanceKm: cmd.MaxDistanceKm,
		EstimatedTime: cmd.EstimatedTime,
		Availability:  cmd.Availability,
		Drivers:       cmd.Drivers,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, z); err != nil {
		return nil, err
	}
	s.logger.Info("zone created", zap.String("zone_id", z.ID.String()), zap.String("name", z.Name))
	return z, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Zone, error) {
	return s.store.Get(ctx, id)
}

// Resolve loads a zone a caller referenced as a precondition. Unknown and
// inactive zones both yield ErrInvalidZone rather than ErrNotFound.
func (s *Service) Resolve(ctx context.Context, zoneID types.ID) (*Zone, error) {
	z, err := s.store.Get(ctx, zoneID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidZone
	}
	if err != nil {
		return nil, err
	}
	if !z.Active {
		return nil, ErrInvalidZone
	}
	return z, nil
}

// ValidateAddress resolves the zone and checks that p lies inside it.
func (s *Service) ValidateAddress(ctx context.Context, zoneID types.ID, p types.Point) (*Zone, error) {
	z, err := s.Resolve(ctx, zoneID)
	if err != nil {
		return nil, err
	}
	if !p.Valid() || !Contains(z, p) {
		return nil, ErrAddressOutsideZone
	}
	return z, nil
}

func (s *Service) Price(ctx context.Context, zoneID types.ID, distanceKm float64) (decimal.Decimal, error) {
	z, err := s.store.Get(ctx, zoneID)
	if err != nil {
		return decimal.Zero, err
	}
	return CalculatePrice(z, distanceKm)
}

// Quote measures the trip with the configured distance provider and prices it.
func (s *Service) Quote(ctx context.Context, zoneID types.ID, from, to types.Point) (Quote, error) {
	z, err := s.store.Get(ctx, zoneID)
	if err != nil {
		return Quote{}, err
	}
	if !Contains(z, to) {
		return Quote{}, ErrAddressOutsideZone
	}
	d, err := s.distance.DistanceKm(ctx, from, to)
	if err != nil {
		return Quote{}, fmt.Errorf("distance lookup: %w", err)
	}
	price, err := CalculatePrice(z, d)
	if err != nil {
		return Quote{}, err
	}
	return Quote{ZoneID: z.ID, DistanceKm: d, Price: price}, nil
}

// Locate returns the first active zone whose boundary contains p.
func (s *Service) Locate(ctx context.Context, p types.Point) (*Zone, error) {
	zones, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, z := range zones {
		if z.Active && Contains(z, p) {
			return z, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) RecordDelivery(ctx context.Context, zoneID types.ID, o Outcome) error {
	return s.mutateStats(ctx, zoneID, func(st *Stats) { st.recordOutcome(o) })
}

func (s *Service) RecordRating(ctx context.Context, zoneID types.ID, rating int) error {
	if rating < 1 || rating > 5 {
		return ErrBadRequest
	}
	return s.mutateStats(ctx, zoneID, func(st *Stats) { st.recordRating(rating) })
}

func (s *Service) mutateStats(ctx context.Context, zoneID types.ID, fn func(*Stats)) error {
	var err error
	for attempt := 0; attempt < maxStatRetries; attempt++ {
		var z *Zone
		z, err = s.store.Get(ctx, zoneID)
		if err != nil {
			return err
		}
		fn(&z.Stats)
		z.UpdatedAt = s.now()
		err = s.store.Save(ctx, z)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}
