// README: Delivery zone aggregate: service-area polygon, pricing, availability and rolling stats.
package zone

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"

	"rxflow/internal/types"
)

type EstimatedTime struct {
	MinMinutes int `json:"minMinutes"`
	MaxMinutes int `json:"maxMinutes"`
}

type Slot struct {
	Label    string `json:"label"`
	Capacity int    `json:"capacity"`
}

type DayAvailability struct {
	Weekday time.Weekday `json:"weekday"`
	Active  bool         `json:"active"`
	Slots   []Slot       `json:"slots"`
}

type DriverAssignment struct {
	DriverID types.ID `json:"driverId"`
	Priority int      `json:"priority"`
}

type Stats struct {
	TotalDeliveries        int     `json:"totalDeliveries"`
	SuccessfulDeliveries   int     `json:"successfulDeliveries"`
	FailedDeliveries       int     `json:"failedDeliveries"`
	AverageDeliveryMinutes float64 `json:"averageDeliveryTime"`
	CustomerRating         float64 `json:"customerRating"`
	RatedCount             int     `json:"ratedCount"`
}

type Zone struct {
	ID            types.ID           `json:"id"`
	Name          string             `json:"name"`
	Boundary      orb.Polygon        `json:"boundary"`
	BasePrice     decimal.Decimal    `json:"basePrice"`
	PricePerKm    decimal.Decimal    `json:"pricePerKm"`
	MinimumOrder  decimal.Decimal    `json:"minimumOrderValue"`
	MaxDistanceKm float64            `json:"maxDistance"`
	EstimatedTime EstimatedTime      `json:"estimatedTime"`
	Availability  []DayAvailability  `json:"availability"`
	Drivers       []DriverAssignment `json:"drivers"`
	Stats         Stats              `json:"stats"`
	Active        bool               `json:"active"`
	Version       int                `json:"-"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// Outcome is a finished delivery folded into the zone stats.
type Outcome struct {
	Success  bool
	Duration time.Duration
}

// AvailableAt reports whether the zone accepts deliveries on t's weekday. A zone
// without an availability table is always open.
func (z *Zone) AvailableAt(t time.Time) bool {
	if len(z.Availability) == 0 {
		return true
	}
	for _, d := range z.Availability {
		if d.Weekday == t.Weekday() {
			return d.Active
		}
	}
	return false
}

// PrimaryDriver returns the assigned driver with the lowest priority number.
func (z *Zone) PrimaryDriver() (types.ID, bool) {
	if len(z.Drivers) == 0 {
		return "", false
	}
	best := z.Drivers[0]
	for _, d := range z.Drivers[1:] {
		if d.Priority < best.Priority {
			best = d
		}
	}
	return best.DriverID, true
}

func (s *Stats) recordOutcome(o Outcome) {
	s.TotalDeliveries++
	if !o.Success {
		s.FailedDeliveries++
		return
	}
	if o.Duration > 0 {
		minutes := o.Duration.Minutes()
		s.AverageDeliveryMinutes = (s.AverageDeliveryMinutes*float64(s.SuccessfulDeliveries) + minutes) /
			float64(s.SuccessfulDeliveries+1)
	}
	s.SuccessfulDeliveries++
}

// recordRating folds one rating into the running mean weighted by the number of
// ratings received so far, not by the delivery count.
func (s *Stats) recordRating(rating int) {
	s.CustomerRating = (s.CustomerRating*float64(s.RatedCount) + float64(rating)) / float64(s.RatedCount+1)
	s.RatedCount++
}
