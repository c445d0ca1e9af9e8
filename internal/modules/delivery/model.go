// README: Delivery aggregate: physical fulfilment of one order with attempts, breadcrumbs, proof and feedback.
package delivery

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"rxflow/internal/types"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusAssigned  Status = "ASSIGNED"
	StatusPickedUp  Status = "PICKED_UP"
	StatusInTransit Status = "IN_TRANSIT"
	StatusArrived   Status = "ARRIVED"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAssigned, StatusPickedUp, StatusInTransit,
		StatusArrived, StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Final reports whether s closes the delivery.
func (s Status) Final() bool {
	return s == StatusDelivered || s == StatusFailed
}

// SlotEmergency is the only schedule label that is not a time window.
const SlotEmergency = "Emergency"

var ScheduleSlots = []string{
	"08:00-10:00",
	"10:00-12:00",
	"12:00-14:00",
	"14:00-16:00",
	"16:00-18:00",
	SlotEmergency,
}

func ValidSlot(label string) bool {
	for _, s := range ScheduleSlots {
		if s == label {
			return true
		}
	}
	return false
}

// emergencyWindow is the arrival promise for Emergency deliveries without a zone estimate.
const emergencyWindow = time.Hour

// slotDeadline returns the end of the slot window on now's day, or now plus
// the emergency window. A window that already closed yields false.
func slotDeadline(label string, now time.Time) (time.Time, bool) {
	if label == SlotEmergency {
		return now.Add(emergencyWindow), true
	}
	_, end, ok := strings.Cut(label, "-")
	if !ok {
		return time.Time{}, false
	}
	var h, m int
	if _, err := fmt.Sscanf(end, "%d:%d", &h, &m); err != nil {
		return time.Time{}, false
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if !t.After(now) {
		return time.Time{}, false
	}
	return t, true
}

type AttemptStatus string

const (
	AttemptSuccess AttemptStatus = "SUCCESS"
	AttemptFailed  AttemptStatus = "FAILED"
)

type Attempt struct {
	Time   time.Time     `json:"attemptTime"`
	Status AttemptStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Notes  string        `json:"notes,omitempty"`
}

type Breadcrumb struct {
	Status    Status       `json:"status"`
	Location  *types.Point `json:"location,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Note      string       `json:"note,omitempty"`
}

type Proof struct {
	SignatureURL string    `json:"signature,omitempty"`
	PhotoURL     string    `json:"photo,omitempty"`
	ReceiverName string    `json:"receiverName,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

type Feedback struct {
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Delivery struct {
	ID               types.ID         `json:"id"`
	OrderID          types.ID         `json:"orderId"`
	OfficerID        types.ID         `json:"deliveryOfficer,omitempty"`
	CoordinatorID    types.ID         `json:"coordinator,omitempty"`
	ZoneID           types.ID         `json:"zone,omitempty"`
	Address          string           `json:"deliveryAddress"`
	Location         *types.Point     `json:"coordinates,omitempty"`
	Schedule         string           `json:"schedule,omitempty"`
	Status           Status           `json:"status"`
	StartTime        *time.Time       `json:"startTime,omitempty"`
	CompletionTime   *time.Time       `json:"completionTime,omitempty"`
	EstimatedArrival *time.Time       `json:"estimatedArrival,omitempty"`
	ActualArrival    *time.Time       `json:"actualArrival,omitempty"`
	Attempts         []Attempt        `json:"deliveryAttempts"`
	Tracking         []Breadcrumb     `json:"trackingUpdates"`
	Proof            *Proof           `json:"proofOfDelivery,omitempty"`
	Feedback         *Feedback        `json:"feedback,omitempty"`
	Fee              *decimal.Decimal `json:"deliveryFee,omitempty"`
	Version          int              `json:"version"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func (d *Delivery) track(status Status, loc *types.Point, note string, at time.Time) {
	d.Tracking = append(d.Tracking, Breadcrumb{Status: status, Location: loc, Timestamp: at, Note: note})
	d.UpdatedAt = at
}

// transition applies cmd and reports whether it entered a new state. Repeating
// DELIVERED or FAILED only adds a breadcrumb.
func (d *Delivery) transition(cmd StatusCommand, at time.Time) bool {
	if d.Status == cmd.Status && cmd.Status.Final() {
		d.track(cmd.Status, cmd.Location, cmd.Notes, at)
		return false
	}
	d.Status = cmd.Status
	switch cmd.Status {
	case StatusInTransit:
		if d.StartTime == nil {
			d.StartTime = &at
		}
	case StatusDelivered:
		d.CompletionTime = &at
		d.ActualArrival = &at
		d.Attempts = append(d.Attempts, Attempt{Time: at, Status: AttemptSuccess, Notes: cmd.Notes})
		if cmd.Proof != nil {
			p := *cmd.Proof
			if p.Timestamp.IsZero() {
				p.Timestamp = at
			}
			d.Proof = &p
		}
	case StatusFailed:
		d.Attempts = append(d.Attempts, Attempt{Time: at, Status: AttemptFailed, Reason: cmd.Reason, Notes: cmd.Notes})
	}
	d.track(cmd.Status, cmd.Location, cmd.Notes, at)
	return true
}

// duration is start to completion, zero when either end is missing.
func (d *Delivery) duration() time.Duration {
	if d.StartTime == nil || d.CompletionTime == nil {
		return 0
	}
	return d.CompletionTime.Sub(*d.StartTime)
}
