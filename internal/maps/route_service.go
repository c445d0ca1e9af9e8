package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"rxflow/internal/types"
)

// RouteService handles interactions with Google Maps API.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API Key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// DistanceKm returns the driving distance between two points in kilometres.
func (s *RouteService) DistanceKm(ctx context.Context, from, to types.Point) (float64, error) {
	leg, err := s.firstLeg(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return float64(leg.Distance.Meters) / 1000.0, nil
}

// TravelTime returns the driving duration between two points.
func (s *RouteService) TravelTime(ctx context.Context, from, to types.Point) (time.Duration, error) {
	leg, err := s.firstLeg(ctx, from, to)
	if err != nil {
		return 0, err
	}
	return leg.Duration, nil
}

func (s *RouteService) firstLeg(ctx context.Context, from, to types.Point) (*maps.Leg, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLng(from),
		Destination: latLng(to),
		Mode:        maps.TravelModeDriving,
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, fmt.Errorf("no route found")
	}
	return routes[0].Legs[0], nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
