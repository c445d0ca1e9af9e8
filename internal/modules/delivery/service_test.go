package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rxflow/internal/events"
	"rxflow/internal/modules/order"
	"rxflow/internal/modules/zone"
	"rxflow/internal/types"
)

// docRepo keeps JSON copies so callers never share memory with the store.
type docRepo[T any] struct {
	mu       sync.Mutex
	docs     map[types.ID][]byte
	versions map[types.ID]int
	notFound error
	conflict error
}

func newDocRepo[T any](notFound, conflict error) *docRepo[T] {
	return &docRepo[T]{docs: map[types.ID][]byte{}, versions: map[types.ID]int{}, notFound: notFound, conflict: conflict}
}

func (r *docRepo[T]) put(id types.ID, v *T) {
	b, _ := json.Marshal(v)
	r.docs[id] = b
}

func (r *docRepo[T]) get(id types.ID) (*T, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.docs[id]
	if !ok {
		return nil, 0, r.notFound
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, 0, err
	}
	return &v, r.versions[id], nil
}

func (r *docRepo[T]) create(id types.ID, v *T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(id, v)
	r.versions[id] = 1
}

func (r *docRepo[T]) save(id types.ID, version int, v *T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return r.notFound
	}
	if r.versions[id] != version {
		return r.conflict
	}
	r.put(id, v)
	r.versions[id]++
	return nil
}

func (r *docRepo[T]) remove(id types.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.docs[id]; !ok {
		return r.notFound
	}
	delete(r.docs, id)
	return nil
}

func (r *docRepo[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

type memDeliveries struct{ *docRepo[Delivery] }

func (m memDeliveries) Create(_ context.Context, d *Delivery) error {
	d.Version = 1
	m.create(d.ID, d)
	return nil
}

func (m memDeliveries) Get(_ context.Context, id types.ID) (*Delivery, error) {
	d, v, err := m.get(id)
	if err != nil {
		return nil, err
	}
	d.Version = v
	return d, nil
}

func (m memDeliveries) Save(_ context.Context, d *Delivery) error {
	if err := m.save(d.ID, d.Version, d); err != nil {
		return err
	}
	d.Version++
	return nil
}

func (m memDeliveries) Delete(_ context.Context, id types.ID) error { return m.remove(id) }

type memOrders struct{ *docRepo[order.Order] }

func (m memOrders) Create(_ context.Context, o *order.Order) error {
	o.Version = 1
	m.create(o.ID, o)
	return nil
}

func (m memOrders) Get(_ context.Context, id types.ID) (*order.Order, error) {
	o, v, err := m.get(id)
	if err != nil {
		return nil, err
	}
	o.Version = v
	return o, nil
}

func (m memOrders) Save(_ context.Context, o *order.Order) error {
	if err := m.save(o.ID, o.Version, o); err != nil {
		return err
	}
	o.Version++
	return nil
}

func (m memOrders) Delete(_ context.Context, id types.ID) error { return m.remove(id) }

type memZones struct{ *docRepo[zone.Zone] }

func (m memZones) Create(_ context.Context, z *zone.Zone) error {
	z.Version = 1
	m.create(z.ID, z)
	return nil
}

func (m memZones) Get(_ context.Context, id types.ID) (*zone.Zone, error) {
	z, v, err := m.get(id)
	if err != nil {
		return nil, err
	}
	z.Version = v
	return z, nil
}

func (m memZones) List(context.Context) ([]*zone.Zone, error) { return nil, nil }

func (m memZones) Save(_ context.Context, z *zone.Zone) error {
	if err := m.save(z.ID, z.Version, z); err != nil {
		return err
	}
	z.Version++
	return nil
}

type staticSequence struct {
	mu sync.Mutex
	n  int64
}

func (q *staticSequence) Next(context.Context, time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.n++
	return q.n, nil
}

type memTracker struct {
	mu        sync.Mutex
	positions map[types.ID]types.Point
}

func (t *memTracker) UpdatePosition(_ context.Context, id types.ID, p types.Point) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.positions == nil {
		t.positions = map[types.ID]types.Point{}
	}
	t.positions[id] = p
	return nil
}

func (t *memTracker) Nearby(context.Context, types.Point, float64) ([]OfficerPosition, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []OfficerPosition
	for id, p := range t.positions {
		out = append(out, OfficerPosition{OfficerID: id, Location: p})
	}
	return out, nil
}

type fixedTravel struct {
	d   time.Duration
	err error
}

func (f fixedTravel) TravelTime(context.Context, types.Point, types.Point) (time.Duration, error) {
	return f.d, f.err
}

type failingZones struct{ Zones }

func (failingZones) RecordRating(context.Context, types.ID, int) error {
	return errors.New("zone store down")
}

type fixture struct {
	svc        *Service
	deliveries memDeliveries
	orders     *order.Service
	zones      *zone.Service
	tracker    *memTracker
	bus        *events.Bus
	zone       *zone.Zone
	clock      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		deliveries: memDeliveries{newDocRepo[Delivery](ErrNotFound, ErrConflict)},
		tracker:    &memTracker{},
		bus:        events.NewBus(16, nil),
		clock:      time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC),
	}
	f.orders = order.NewService(memOrders{newDocRepo[order.Order](order.ErrNotFound, order.ErrConflict)}, &staticSequence{}, nil, f.bus, nil)
	f.zones = zone.NewService(memZones{newDocRepo[zone.Zone](zone.ErrNotFound, zone.ErrConflict)}, nil, nil)

	z, err := f.zones.Create(context.Background(), zone.CreateCommand{
		Name:          "Harbour",
		Boundary:      orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
		BasePrice:     decimal.RequireFromString("5"),
		PricePerKm:    decimal.RequireFromString("1.5"),
		MaxDistanceKm: 10,
		EstimatedTime: zone.EstimatedTime{MinMinutes: 20, MaxMinutes: 45},
	})
	require.NoError(t, err)
	f.zone = z

	f.svc = NewService(f.deliveries, Deps{
		Orders:    f.orders,
		Zones:     f.zones,
		Tracker:   f.tracker,
		Publisher: f.bus,
	})
	f.svc.now = func() time.Time {
		f.clock = f.clock.Add(time.Minute)
		return f.clock
	}
	return f
}

func (f *fixture) newOrder(t *testing.T) *order.Order {
	t.Helper()
	o, err := f.orders.Create(context.Background(), order.CreateCommand{
		RequesterID:     "cust-1",
		Type:            order.TypeRefill,
		Medications:     []order.Medication{{Name: "Atorvastatin", Quantity: 1}},
		DeliveryMethod:  order.MethodDelivery,
		DeliveryAddress: &order.Address{Line: "4 Quay St", Point: &types.Point{Lat: 0.5, Lng: 0.5}},
	})
	require.NoError(t, err)
	return o
}

func (f *fixture) create(t *testing.T, orderID types.ID) *Delivery {
	t.Helper()
	dist := 4.0
	d, err := f.svc.Create(context.Background(), CreateCommand{
		OrderID:    orderID,
		OfficerID:  "officer-1",
		ZoneID:     f.zone.ID,
		Address:    "4 Quay St",
		Location:   &types.Point{Lat: 0.5, Lng: 0.5},
		Schedule:   "10:00-12:00",
		DistanceKm: &dist,
		ActorID:    "staff-1",
	})
	require.NoError(t, err)
	return d
}

func TestCreate_AssignsOrderAndPrices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)

	d := f.create(t, o.ID)
	assert.Equal(t, StatusAssigned, d.Status)
	require.NotNil(t, d.Fee)
	assert.True(t, d.Fee.Equal(decimal.RequireFromString("11")))
	require.NotNil(t, d.EstimatedArrival)
	assert.Equal(t, 45*time.Minute, d.EstimatedArrival.Sub(d.CreatedAt))
	assert.Len(t, d.Tracking, 1)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusOutForDelivery, got.Status)
	assert.Equal(t, types.ID("officer-1"), got.OfficerID)

	var kinds []events.Kind
	f.bus.Subscribe(events.DeliveryAssigned, func(_ context.Context, e events.Event) error {
		kinds = append(kinds, e.Kind)
		assert.Equal(t, d.ID, e.DeliveryID)
		return nil
	})
	f.bus.Drain(ctx)
	assert.Equal(t, []events.Kind{events.DeliveryAssigned}, kinds)
}

func TestCreate_OutsideZoneLeavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)

	_, err := f.svc.Create(ctx, CreateCommand{
		OrderID:  o.ID,
		ZoneID:   f.zone.ID,
		Address:  "Far away",
		Location: &types.Point{Lat: 3, Lng: 3},
	})
	require.ErrorIs(t, err, zone.ErrAddressOutsideZone)
	require.ErrorIs(t, err, types.ErrPrecondition)
	assert.Equal(t, 0, f.deliveries.count())

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestCreate_Preconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	inside := &types.Point{Lat: 0.5, Lng: 0.5}
	far := 25.0

	_, err := f.svc.Create(ctx, CreateCommand{OrderID: "missing", ZoneID: f.zone.ID, Location: inside})
	require.ErrorIs(t, err, order.ErrNotFound)

	_, err = f.svc.Create(ctx, CreateCommand{OrderID: o.ID, ZoneID: "unknown", Location: inside})
	require.ErrorIs(t, err, zone.ErrInvalidZone)

	// an unknown zone wins over missing coordinates
	_, err = f.svc.Create(ctx, CreateCommand{OrderID: o.ID, ZoneID: "unknown"})
	require.ErrorIs(t, err, zone.ErrInvalidZone)
	assert.NotErrorIs(t, err, zone.ErrAddressOutsideZone)

	_, err = f.svc.Create(ctx, CreateCommand{OrderID: o.ID, ZoneID: f.zone.ID})
	require.ErrorIs(t, err, zone.ErrAddressOutsideZone)

	_, err = f.svc.Create(ctx, CreateCommand{OrderID: o.ID, ZoneID: f.zone.ID, Location: inside, DistanceKm: &far})
	require.ErrorIs(t, err, zone.ErrDistanceExceeded)

	_, err = f.svc.Create(ctx, CreateCommand{OrderID: o.ID, Schedule: "06:00-08:00"})
	require.ErrorIs(t, err, ErrBadRequest)

	assert.Equal(t, 0, f.deliveries.count())
}

func TestCreate_WithoutZoneUsesScheduleWindow(t *testing.T) {
	f := newFixture(t)
	o := f.newOrder(t)

	d, err := f.svc.Create(context.Background(), CreateCommand{OrderID: o.ID, Schedule: "12:00-14:00"})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status)
	require.NotNil(t, d.EstimatedArrival)
	assert.Equal(t, 14, d.EstimatedArrival.Hour())
	assert.Nil(t, d.Fee)
}

func TestUpdateStatus_DeliveredCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	d := f.create(t, o.ID)

	d, err := f.svc.UpdateStatus(ctx, StatusCommand{DeliveryID: d.ID, Status: StatusInTransit, ActorID: "officer-1"})
	require.NoError(t, err)
	start := *d.StartTime

	d, err = f.svc.UpdateStatus(ctx, StatusCommand{DeliveryID: d.ID, Status: StatusInTransit})
	require.NoError(t, err)
	assert.Equal(t, start, *d.StartTime)

	d, err = f.svc.UpdateStatus(ctx, StatusCommand{
		DeliveryID: d.ID,
		Status:     StatusDelivered,
		Location:   &types.Point{Lat: 0.4, Lng: 0.6},
		Proof:      &Proof{ReceiverName: "J. Doe"},
		ActorID:    "officer-1",
	})
	require.NoError(t, err)
	require.NotNil(t, d.CompletionTime)
	require.NotNil(t, d.ActualArrival)
	require.Len(t, d.Attempts, 1)
	assert.Equal(t, AttemptSuccess, d.Attempts[0].Status)
	require.NotNil(t, d.Proof)
	assert.False(t, d.Proof.Timestamp.IsZero())
	assert.Len(t, d.Tracking, 4)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)

	z, err := f.zones.Get(ctx, f.zone.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, z.Stats.SuccessfulDeliveries)
	assert.InDelta(t, 2.0, z.Stats.AverageDeliveryMinutes, 1e-9)

	_, tracked := f.tracker.positions["officer-1"]
	assert.True(t, tracked)
}

func TestUpdateStatus_FailedDoesNotTouchOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	d := f.create(t, o.ID)

	_, err := f.svc.UpdateStatus(ctx, StatusCommand{DeliveryID: d.ID, Status: StatusFailed})
	require.ErrorIs(t, err, ErrReasonMissing)

	d, err = f.svc.UpdateStatus(ctx, StatusCommand{DeliveryID: d.ID, Status: StatusFailed, Reason: "R"})
	require.NoError(t, err)
	require.Len(t, d.Attempts, 1)
	assert.Equal(t, AttemptFailed, d.Attempts[0].Status)
	assert.Equal(t, "R", d.Attempts[0].Reason)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusOutForDelivery, got.Status)

	z, err := f.zones.Get(ctx, f.zone.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, z.Stats.FailedDeliveries)
}

func TestUpdateStatus_UnknownStatus(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateStatus(context.Background(), StatusCommand{DeliveryID: "x", Status: "LOST"})
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = f.svc.UpdateStatus(context.Background(), StatusCommand{DeliveryID: "x", Status: StatusArrived})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAppendLocation_KeepsCurrentStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	d := f.create(t, o.ID)

	d, err := f.svc.AppendLocation(ctx, LocationCommand{DeliveryID: d.ID, Location: types.Point{Lat: 0.3, Lng: 0.3}, Address: "Main St"})
	require.NoError(t, err)
	last := d.Tracking[len(d.Tracking)-1]
	assert.Equal(t, StatusAssigned, last.Status)
	assert.Equal(t, "Main St", last.Note)
	require.NotNil(t, last.Location)
	assert.Equal(t, 0.3, last.Location.Lat)
	assert.Equal(t, types.Point{Lat: 0.3, Lng: 0.3}, f.tracker.positions["officer-1"])

	near, err := f.svc.NearbyOfficers(ctx, types.Point{Lat: 0.3, Lng: 0.3}, 5)
	require.NoError(t, err)
	require.Len(t, near, 1)

	_, err = f.svc.AppendLocation(ctx, LocationCommand{DeliveryID: "missing", Location: types.Point{Lat: 0.3, Lng: 0.3}})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDelete_ResetsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	d := f.create(t, o.ID)

	require.NoError(t, f.svc.Delete(ctx, d.ID, "admin-1"))
	_, err := f.svc.Get(ctx, d.ID)
	require.ErrorIs(t, err, ErrNotFound)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Empty(t, got.OfficerID)
}

func TestSubmitFeedback_ZoneFailureKeepsFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	d := f.create(t, o.ID)
	f.svc.zones = failingZones{f.zones}

	got, err := f.svc.SubmitFeedback(ctx, FeedbackCommand{DeliveryID: d.ID, Rating: 4, Comment: "fast"})
	require.NoError(t, err)
	require.NotNil(t, got.Feedback)
	assert.Equal(t, 4, got.Feedback.Rating)

	stored, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "fast", stored.Feedback.Comment)
}

func TestSubmitFeedback_RatingOutOfRange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	d := f.create(t, o.ID)

	for _, rating := range []int{0, 6, -1} {
		_, err := f.svc.SubmitFeedback(ctx, FeedbackCommand{DeliveryID: d.ID, Rating: rating})
		require.ErrorIs(t, err, ErrBadRequest, "rating %d", rating)
		require.ErrorIs(t, err, types.ErrInvalidInput)
	}

	stored, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Feedback)
	assert.Equal(t, d.Version, stored.Version)

	z, err := f.zones.Get(ctx, f.zone.ID)
	require.NoError(t, err)
	assert.Zero(t, z.Stats.RatedCount)

	_, err = f.svc.SubmitFeedback(ctx, FeedbackCommand{DeliveryID: "missing", Rating: 0})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestCreate_ClosedZone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)

	// the fixture clock is a Monday
	closed, err := f.zones.Create(ctx, zone.CreateCommand{
		Name:          "Weekend only",
		Boundary:      orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
		BasePrice:     decimal.RequireFromString("5"),
		MaxDistanceKm: 10,
		Availability: []zone.DayAvailability{
			{Weekday: time.Saturday, Active: true},
			{Weekday: time.Monday, Active: false},
		},
	})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, CreateCommand{OrderID: o.ID, ZoneID: closed.ID, Location: &types.Point{Lat: 0.5, Lng: 0.5}})
	require.ErrorIs(t, err, zone.ErrZoneClosed)
	require.ErrorIs(t, err, types.ErrPrecondition)
	assert.Equal(t, 0, f.deliveries.count())

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, got.Status)
}

func TestCreate_DefaultsToZonePrimaryDriver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)

	staffed, err := f.zones.Create(ctx, zone.CreateCommand{
		Name:          "Staffed",
		Boundary:      orb.Polygon{orb.Ring{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}},
		BasePrice:     decimal.RequireFromString("5"),
		MaxDistanceKm: 10,
		Drivers: []zone.DriverAssignment{
			{DriverID: "officer-backup", Priority: 2},
			{DriverID: "officer-lead", Priority: 1},
		},
	})
	require.NoError(t, err)

	d, err := f.svc.Create(ctx, CreateCommand{OrderID: o.ID, ZoneID: staffed.ID, Location: &types.Point{Lat: 0.5, Lng: 0.5}})
	require.NoError(t, err)
	assert.Equal(t, types.ID("officer-lead"), d.OfficerID)
	assert.Equal(t, StatusAssigned, d.Status)

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ID("officer-lead"), got.OfficerID)

	// an explicit officer is kept
	o2 := f.newOrder(t)
	d, err = f.svc.Create(ctx, CreateCommand{OrderID: o2.ID, OfficerID: "officer-9", ZoneID: staffed.ID, Location: &types.Point{Lat: 0.5, Lng: 0.5}})
	require.NoError(t, err)
	assert.Equal(t, types.ID("officer-9"), d.OfficerID)
}

func TestUpdateStatus_RepeatedFinalStatusCountsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.newOrder(t)
	d := f.create(t, o.ID)
	for i := 0; i < 2; i++ {
		var err error
		d, err = f.svc.UpdateStatus(ctx, StatusCommand{DeliveryID: d.ID, Status: StatusDelivered})
		require.NoError(t, err)
	}
	require.Len(t, d.Attempts, 1)
	completed := *d.CompletionTime
	assert.True(t, d.Tracking[len(d.Tracking)-1].Timestamp.After(completed))

	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.StatusHistory, 2)

	z, err := f.zones.Get(ctx, f.zone.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, z.Stats.TotalDeliveries)
	assert.Equal(t, 1, z.Stats.SuccessfulDeliveries)

	o2 := f.newOrder(t)
	d2 := f.create(t, o2.ID)
	for i := 0; i < 2; i++ {
		var err error
		d2, err = f.svc.UpdateStatus(ctx, StatusCommand{DeliveryID: d2.ID, Status: StatusFailed, Reason: "no answer"})
		require.NoError(t, err)
	}
	require.Len(t, d2.Attempts, 1)

	z, err = f.zones.Get(ctx, f.zone.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, z.Stats.TotalDeliveries)
	assert.Equal(t, 1, z.Stats.FailedDeliveries)
}

func TestUpdateStatus_InTransitReestimatesArrival(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.newOrder(t)
	d := f.create(t, o.ID)
	created := *d.EstimatedArrival

	f.svc.travel = fixedTravel{err: errors.New("maps down")}
	d, err := f.svc.UpdateStatus(ctx, StatusCommand{DeliveryID: d.ID, Status: StatusInTransit, Location: &types.Point{Lat: 0.2, Lng: 0.2}})
	require.NoError(t, err)
	assert.True(t, created.Equal(*d.EstimatedArrival))

	f.svc.travel = fixedTravel{d: 12 * time.Minute}
	d, err = f.svc.UpdateStatus(ctx, StatusCommand{DeliveryID: d.ID, Status: StatusInTransit, Location: &types.Point{Lat: 0.3, Lng: 0.3}})
	require.NoError(t, err)
	require.NotNil(t, d.EstimatedArrival)
	assert.Equal(t, d.UpdatedAt.Add(12*time.Minute), *d.EstimatedArrival)

	stored, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, stored.EstimatedArrival.Equal(*d.EstimatedArrival))
}

func TestEndToEnd_OrderDeliveryFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.newOrder(t)
	assert.Equal(t, order.StatusPending, o.Status)

	d := f.create(t, o.ID)
	got, err := f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusOutForDelivery, got.Status)

	d, err = f.svc.UpdateStatus(ctx, StatusCommand{DeliveryID: d.ID, Status: StatusDelivered})
	require.NoError(t, err)
	assert.NotNil(t, d.CompletionTime)
	got, err = f.orders.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCompleted, got.Status)
	assert.Len(t, got.StatusHistory, 2)

	_, err = f.svc.SubmitFeedback(ctx, FeedbackCommand{DeliveryID: d.ID, Rating: 5})
	require.NoError(t, err)
	z, err := f.zones.Get(ctx, f.zone.ID)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, z.Stats.CustomerRating, 1e-9)
	assert.Equal(t, 1, z.Stats.RatedCount)
}

func TestSlotDeadline(t *testing.T) {
	now := time.Date(2024, 6, 3, 11, 0, 0, 0, time.UTC)
	end, ok := slotDeadline("10:00-12:00", now)
	require.True(t, ok)
	assert.Equal(t, 12, end.Hour())

	_, ok = slotDeadline("08:00-10:00", now)
	assert.False(t, ok)

	end, ok = slotDeadline(SlotEmergency, now)
	require.True(t, ok)
	assert.Equal(t, time.Hour, end.Sub(now))
}
