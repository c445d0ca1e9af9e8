// README: Pure geographic and pricing helpers for zones.
package zone

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/shopspring/decimal"

	"rxflow/internal/types"
)

func toOrb(p types.Point) orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Contains reports whether p lies inside the zone boundary. Points exactly on
// the boundary count as inside.
func Contains(z *Zone, p types.Point) bool {
	if len(z.Boundary) == 0 {
		return false
	}
	return planar.PolygonContains(z.Boundary, toOrb(p))
}

// CalculatePrice returns basePrice + distanceKm*pricePerKm. Distances beyond the
// zone maximum are rejected rather than clamped.
func CalculatePrice(z *Zone, distanceKm float64) (decimal.Decimal, error) {
	if distanceKm < 0 {
		return decimal.Zero, ErrBadRequest
	}
	if distanceKm > z.MaxDistanceKm {
		return decimal.Zero, ErrDistanceExceeded
	}
	return z.BasePrice.Add(decimal.NewFromFloat(distanceKm).Mul(z.PricePerKm)), nil
}

// haversineKm returns the great-circle distance in kilometres.
func haversineKm(a, b types.Point) float64 {
	return geo.DistanceHaversine(toOrb(a), toOrb(b)) / 1000.0
}

// normalizeBoundary closes open rings and rejects degenerate polygons.
func normalizeBoundary(poly orb.Polygon) (orb.Polygon, error) {
	if len(poly) == 0 {
		return nil, ErrBadRequest
	}
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		if len(ring) > 0 && !ring.Closed() {
			ring = append(append(orb.Ring{}, ring...), ring[0])
		}
		if len(ring) < 4 {
			return nil, ErrBadRequest
		}
		out[i] = ring
	}
	return out, nil
}
