// README: Officer live positions kept in a Redis GEO set.
package delivery

import (
	"context"

	"github.com/redis/go-redis/v9"

	"rxflow/internal/types"
)

const officerGeoKey = "geo:officers"

type PositionTracker interface {
	UpdatePosition(ctx context.Context, officerID types.ID, p types.Point) error
	Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]OfficerPosition, error)
}

type OfficerPosition struct {
	OfficerID  types.ID    `json:"officerId"`
	Location   types.Point `json:"location"`
	DistanceKm float64     `json:"distanceKm"`
}

type RedisTracker struct {
	redis *redis.Client
}

func NewRedisTracker(rdb *redis.Client) *RedisTracker {
	return &RedisTracker{redis: rdb}
}

func (t *RedisTracker) UpdatePosition(ctx context.Context, officerID types.ID, p types.Point) error {
	return t.redis.GeoAdd(ctx, officerGeoKey, &redis.GeoLocation{
		Name:      string(officerID),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

// Nearby returns officers sorted by distance, closest first.
func (t *RedisTracker) Nearby(ctx context.Context, p types.Point, radiusKm float64) ([]OfficerPosition, error) {
	locs, err := t.redis.GeoSearchLocation(ctx, officerGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  p.Lng,
			Latitude:   p.Lat,
			Radius:     radiusKm,
			RadiusUnit: "km",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]OfficerPosition, 0, len(locs))
	for _, l := range locs {
		out = append(out, OfficerPosition{
			OfficerID:  types.ID(l.Name),
			Location:   types.Point{Lat: l.Latitude, Lng: l.Longitude},
			DistanceKm: l.Dist,
		})
	}
	return out, nil
}
