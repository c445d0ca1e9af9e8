package zone

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxflow/internal/types"
)

type memRepo struct {
	mu    sync.Mutex
	zones map[types.ID]Zone
	saves int
}

func newMemRepo() *memRepo {
	return &memRepo{zones: map[types.ID]Zone{}}
}

func (r *memRepo) Create(_ context.Context, z *Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.zones {
		if existing.Name == z.Name {
			return ErrDuplicateName
		}
	}
	z.Version = 1
	r.zones[z.ID] = *z
	return nil
}

func (r *memRepo) Get(_ context.Context, id types.ID) (*Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	z, ok := r.zones[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &z, nil
}

func (r *memRepo) List(_ context.Context) ([]*Zone, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Zone, 0, len(r.zones))
	for _, z := range r.zones {
		z := z
		out = append(out, &z)
	}
	return out, nil
}

func (r *memRepo) Save(_ context.Context, z *Zone) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.zones[z.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != z.Version {
		return ErrConflict
	}
	z.Version++
	r.zones[z.ID] = *z
	r.saves++
	return nil
}

// square spans lng 0..1, lat 0..1.
func square() orb.Polygon {
	return orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}
}

func newTestZone(t *testing.T, svc *Service) *Zone {
	t.Helper()
	z, err := svc.Create(context.Background(), CreateCommand{
		Name:          "Central",
		Boundary:      square(),
		BasePrice:     decimal.RequireFromString("5"),
		PricePerKm:    decimal.RequireFromString("1.5"),
		MaxDistanceKm: 10,
		EstimatedTime: EstimatedTime{MinMinutes: 30, MaxMinutes: 60},
	})
	require.NoError(t, err)
	return z
}

func TestCalculatePrice(t *testing.T) {
	z := &Zone{
		BasePrice:     decimal.RequireFromString("5"),
		PricePerKm:    decimal.RequireFromString("1.5"),
		MaxDistanceKm: 10,
	}

	tests := []struct {
		name    string
		dist    float64
		want    string
		wantErr error
	}{
		{name: "zero distance is base price", dist: 0, want: "5"},
		{name: "four km", dist: 4, want: "11"},
		{name: "at max distance", dist: 10, want: "20"},
		{name: "fractional distance is exact", dist: 0.1, want: "5.15"},
		{name: "beyond max", dist: 12, wantErr: ErrDistanceExceeded},
		{name: "negative", dist: -1, wantErr: ErrBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculatePrice(z, tt.dist)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestDistanceExceeded_IsPrecondition(t *testing.T) {
	assert.True(t, errors.Is(ErrDistanceExceeded, types.ErrPrecondition))
	assert.True(t, errors.Is(ErrAddressOutsideZone, types.ErrPrecondition))
	assert.True(t, errors.Is(ErrInvalidZone, types.ErrPrecondition))
}

func TestContains(t *testing.T) {
	z := &Zone{Boundary: square()}
	assert.True(t, Contains(z, types.Point{Lat: 0.5, Lng: 0.5}))
	assert.False(t, Contains(z, types.Point{Lat: 2, Lng: 0.5}))
	assert.False(t, Contains(&Zone{}, types.Point{Lat: 0.5, Lng: 0.5}))
}

func TestCreate_ClosesRingAndRejectsBadInput(t *testing.T) {
	svc := NewService(newMemRepo(), nil, nil)
	z := newTestZone(t, svc)
	assert.True(t, z.Boundary[0].Closed())
	assert.True(t, z.Active)

	_, err := svc.Create(context.Background(), CreateCommand{Name: "Central", Boundary: square(), MaxDistanceKm: 5})
	require.ErrorIs(t, err, ErrDuplicateName)

	_, err = svc.Create(context.Background(), CreateCommand{Name: "Tiny", Boundary: orb.Polygon{orb.Ring{{0, 0}, {1, 1}}}, MaxDistanceKm: 5})
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = svc.Create(context.Background(), CreateCommand{Name: "", Boundary: square(), MaxDistanceKm: 5})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestValidateAddress(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), nil, nil)
	z := newTestZone(t, svc)

	got, err := svc.ValidateAddress(ctx, z.ID, types.Point{Lat: 0.5, Lng: 0.5})
	require.NoError(t, err)
	assert.Equal(t, z.ID, got.ID)

	_, err = svc.ValidateAddress(ctx, z.ID, types.Point{Lat: 5, Lng: 5})
	require.ErrorIs(t, err, ErrAddressOutsideZone)

	_, err = svc.ValidateAddress(ctx, "missing", types.Point{Lat: 0.5, Lng: 0.5})
	require.ErrorIs(t, err, ErrInvalidZone)
}

func TestResolve_UnknownOrInactiveZoneIsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	z := newTestZone(t, svc)

	got, err := svc.Resolve(ctx, z.ID)
	require.NoError(t, err)
	assert.Equal(t, z.ID, got.ID)

	_, err = svc.Resolve(ctx, "missing")
	require.ErrorIs(t, err, ErrInvalidZone)
	assert.NotErrorIs(t, err, ErrNotFound)

	z.Active = false
	require.NoError(t, repo.Save(ctx, z))
	_, err = svc.Resolve(ctx, z.ID)
	require.ErrorIs(t, err, ErrInvalidZone)

	// an inactive zone is rejected before the point is looked at
	_, err = svc.ValidateAddress(ctx, z.ID, types.Point{Lat: 5, Lng: 5})
	require.ErrorIs(t, err, ErrInvalidZone)
}

type fixedDistance float64

func (d fixedDistance) DistanceKm(context.Context, types.Point, types.Point) (float64, error) {
	return float64(d), nil
}

func TestQuote(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), fixedDistance(2), nil)
	z := newTestZone(t, svc)

	q, err := svc.Quote(ctx, z.ID, types.Point{Lat: 0.1, Lng: 0.1}, types.Point{Lat: 0.5, Lng: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 2.0, q.DistanceKm)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("8")))

	svc.distance = fixedDistance(50)
	_, err = svc.Quote(ctx, z.ID, types.Point{Lat: 0.1, Lng: 0.1}, types.Point{Lat: 0.5, Lng: 0.5})
	require.ErrorIs(t, err, ErrDistanceExceeded)
}

func TestLocate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), nil, nil)
	z := newTestZone(t, svc)

	got, err := svc.Locate(ctx, types.Point{Lat: 0.2, Lng: 0.8})
	require.NoError(t, err)
	assert.Equal(t, z.ID, got.ID)

	_, err = svc.Locate(ctx, types.Point{Lat: -3, Lng: 0.8})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRecordDelivery_Stats(t *testing.T) {
	ctx := context.Background()
	repo := newMemRepo()
	svc := NewService(repo, nil, nil)
	z := newTestZone(t, svc)

	require.NoError(t, svc.RecordDelivery(ctx, z.ID, Outcome{Success: true, Duration: 30 * time.Minute}))
	require.NoError(t, svc.RecordDelivery(ctx, z.ID, Outcome{Success: true, Duration: 60 * time.Minute}))
	require.NoError(t, svc.RecordDelivery(ctx, z.ID, Outcome{Success: false}))

	got, err := svc.Get(ctx, z.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stats.TotalDeliveries)
	assert.Equal(t, 2, got.Stats.SuccessfulDeliveries)
	assert.Equal(t, 1, got.Stats.FailedDeliveries)
	assert.InDelta(t, 45.0, got.Stats.AverageDeliveryMinutes, 1e-9)
}

func TestRecordRating_RunningMean(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), nil, nil)
	z := newTestZone(t, svc)

	// Deliveries without ratings must not dilute the mean.
	require.NoError(t, svc.RecordDelivery(ctx, z.ID, Outcome{Success: true}))
	require.NoError(t, svc.RecordRating(ctx, z.ID, 5))
	require.NoError(t, svc.RecordRating(ctx, z.ID, 3))
	require.NoError(t, svc.RecordRating(ctx, z.ID, 4))

	got, err := svc.Get(ctx, z.ID)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got.Stats.CustomerRating, 1e-9)
	assert.Equal(t, 3, got.Stats.RatedCount)

	require.ErrorIs(t, svc.RecordRating(ctx, z.ID, 6), ErrBadRequest)
}

func TestAvailableAtAndPrimaryDriver(t *testing.T) {
	z := &Zone{
		Availability: []DayAvailability{{Weekday: time.Monday, Active: true}, {Weekday: time.Sunday, Active: false}},
		Drivers:      []DriverAssignment{{DriverID: "b", Priority: 2}, {DriverID: "a", Priority: 1}},
	}
	monday := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	assert.True(t, z.AvailableAt(monday))
	assert.False(t, z.AvailableAt(monday.AddDate(0, 0, 6)))
	assert.False(t, z.AvailableAt(monday.AddDate(0, 0, 1)))

	id, ok := z.PrimaryDriver()
	require.True(t, ok)
	assert.Equal(t, types.ID("a"), id)
}
