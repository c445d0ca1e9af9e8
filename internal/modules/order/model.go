// README: Order aggregate, status ledger and notification history definitions.
package order

import (
	"time"

	"github.com/shopspring/decimal"

	"rxflow/internal/types"
)

type Status string

const (
	StatusPending        Status = "PENDING"
	StatusProcessing     Status = "PROCESSING"
	StatusReadyForPickup Status = "READY_FOR_PICKUP"
	StatusOutForDelivery Status = "OUT_FOR_DELIVERY"
	StatusDelivered      Status = "DELIVERED"
	StatusCancelled      Status = "CANCELLED"
	StatusCompleted      Status = "COMPLETED"
)

// settableStatuses are the statuses a caller may request through UpdateStatus.
// DELIVERED only exists so older documents still decode.
var settableStatuses = map[Status]bool{
	StatusPending:        true,
	StatusProcessing:     true,
	StatusReadyForPickup: true,
	StatusOutForDelivery: true,
	StatusCancelled:      true,
	StatusCompleted:      true,
}

func (s Status) Settable() bool {
	return settableStatuses[s]
}

type Type string

const (
	TypeRefill Type = "refill"
	TypeNew    Type = "new"
	TypeOTC    Type = "otc"
)

func (t Type) Valid() bool {
	return t == TypeRefill || t == TypeNew || t == TypeOTC
}

type DeliveryMethod string

const (
	MethodDelivery DeliveryMethod = "Delivery"
	MethodPickup   DeliveryMethod = "Pickup"
)

type Category string

const (
	CategoryWhatsAppRequest Category = "whatsapp-request"
	CategoryPharmacyPickup  Category = "pharmacy-pickup"
	CategoryCustomerPickup  Category = "customer-pickup"
)

// DeriveCategory maps the fulfilment choice onto the order category.
func DeriveCategory(method DeliveryMethod, pickupPharmacy types.ID) Category {
	if method == MethodDelivery {
		return CategoryWhatsAppRequest
	}
	if pickupPharmacy != "" {
		return CategoryPharmacyPickup
	}
	return CategoryCustomerPickup
}

type Medication struct {
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	Instructions string `json:"instructions,omitempty"`
}

type Address struct {
	Line  string       `json:"line"`
	Point *types.Point `json:"point,omitempty"`
}

type StatusEntry struct {
	Status    Status    `json:"status"`
	Note      string    `json:"note,omitempty"`
	UpdatedBy types.ID  `json:"updatedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "SENT"
	NotificationPending NotificationStatus = "PENDING"
	NotificationFailed  NotificationStatus = "FAILED"
)

// NotificationRecord is the order-side copy of a notification attempt.
type NotificationRecord struct {
	NotificationID types.ID           `json:"notificationId,omitempty"`
	Type           string             `json:"type"`
	Channel        string             `json:"channel"`
	Status         NotificationStatus `json:"status"`
	Note           string             `json:"note,omitempty"`
	SentAt         time.Time          `json:"sentAt"`
}

type InvoiceLine struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

func (l InvoiceLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Invoice struct {
	Lines       []InvoiceLine `json:"lines"`
	Subtotal    types.Money   `json:"subtotal"`
	DeliveryFee types.Money   `json:"deliveryFee"`
	Total       types.Money   `json:"total"`
	IssuedAt    time.Time     `json:"issuedAt"`
}

// NewInvoice totals the lines and adds the delivery fee.
func NewInvoice(lines []InvoiceLine, deliveryFee decimal.Decimal, currency string, issuedAt time.Time) Invoice {
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}
	sub := types.NewMoney(subtotal, currency)
	fee := types.NewMoney(deliveryFee, currency)
	return Invoice{
		Lines:       lines,
		Subtotal:    sub,
		DeliveryFee: fee,
		Total:       sub.Add(fee),
		IssuedAt:    issuedAt,
	}
}

type Order struct {
	ID               types.ID             `json:"id"`
	OrderNumber      string               `json:"orderNumber"`
	RequesterID      types.ID             `json:"requesterId"`
	Type             Type                 `json:"orderType"`
	Category         Category             `json:"orderCategory"`
	Medications      []Medication         `json:"medications"`
	DeliveryMethod   DeliveryMethod       `json:"deliveryMethod"`
	DeliveryAddress  *Address             `json:"deliveryAddress,omitempty"`
	PickupPharmacyID types.ID             `json:"pickupPharmacy,omitempty"`
	PharmacyID       types.ID             `json:"assignedPharmacy,omitempty"`
	OfficerID        types.ID             `json:"assignedDeliveryOfficer,omitempty"`
	Status           Status               `json:"status"`
	StatusHistory    []StatusEntry        `json:"statusHistory"`
	ScheduleSlot     string               `json:"deliverySchedule,omitempty"`
	Notifications    []NotificationRecord `json:"notificationHistory"`
	Invoice          *Invoice             `json:"invoice,omitempty"`
	Version          int                  `json:"version"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        time.Time            `json:"updatedAt"`
}

// recordStatus sets the status and prepends the matching ledger entry.
func (o *Order) recordStatus(status Status, note string, by types.ID, at time.Time) {
	o.Status = status
	entry := StatusEntry{Status: status, Note: note, UpdatedBy: by, Timestamp: at}
	o.StatusHistory = append([]StatusEntry{entry}, o.StatusHistory...)
	o.UpdatedAt = at
}

func (o *Order) refreshCategory() {
	o.Category = DeriveCategory(o.DeliveryMethod, o.PickupPharmacyID)
}

// Parties returns the user ids with a direct interest in the order.
func (o *Order) Parties() []types.ID {
	var out []types.ID
	for _, id := range []types.ID{o.PharmacyID, o.OfficerID, o.RequesterID} {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
