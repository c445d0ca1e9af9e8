// README: Notification aggregate with per-recipient delivery state and recurrence.
package notification

import (
	"time"

	"rxflow/internal/types"
)

type Channel string

const (
	ChannelWhatsApp Channel = "WHATSAPP"
	ChannelEmail    Channel = "EMAIL"
)

type RecipientStatus string

const (
	RecipientPending   RecipientStatus = "PENDING"
	RecipientSent      RecipientStatus = "SENT"
	RecipientDelivered RecipientStatus = "DELIVERED"
	RecipientFailed    RecipientStatus = "FAILED"
)

type Frequency string

const (
	Daily   Frequency = "DAILY"
	Weekly  Frequency = "WEEKLY"
	Monthly Frequency = "MONTHLY"
	Yearly  Frequency = "YEARLY"
)

type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

type Recipient struct {
	UserID        types.ID        `json:"user"`
	Status        RecipientStatus `json:"status"`
	DeliveredAt   *time.Time      `json:"deliveredAt,omitempty"`
	FailureReason string          `json:"failureReason,omitempty"`
}

type Media struct {
	URL         string `json:"url" validate:"required,url"`
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
}

type Pattern struct {
	Frequency Frequency  `json:"frequency" validate:"required,oneof=DAILY WEEKLY MONTHLY YEARLY"`
	Interval  int        `json:"interval" validate:"min=0"`
	EndDate   *time.Time `json:"endDate,omitempty"`
}

type Notification struct {
	ID           types.ID    `json:"id"`
	Channel      Channel     `json:"type"`
	SenderID     types.ID    `json:"sender"`
	Recipients   []Recipient `json:"recipients"`
	Message      string      `json:"message"`
	Subject      string      `json:"subject,omitempty"`
	Media        *Media      `json:"media,omitempty"`
	ScheduledFor time.Time   `json:"scheduledFor"`
	Recurring    bool        `json:"isRecurring"`
	Pattern      *Pattern    `json:"recurringPattern,omitempty"`
	Priority     Priority    `json:"priority"`
	Tags         []string    `json:"tags,omitempty"`
	OrderID      types.ID    `json:"relatedOrder,omitempty"`
	SuccessorID  types.ID    `json:"successor,omitempty"`
	Version      int         `json:"version"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

func (n *Notification) HasPending() bool {
	for _, r := range n.Recipients {
		if r.Status == RecipientPending {
			return true
		}
	}
	return false
}

// Due reports whether n should be dispatched at now.
func (n *Notification) Due(now time.Time) bool {
	return !n.ScheduledFor.After(now)
}

// Counts returns how many recipients are sent (or delivered), failed and pending.
func (n *Notification) Counts() (sent, failed, pending int) {
	for _, r := range n.Recipients {
		switch r.Status {
		case RecipientSent, RecipientDelivered:
			sent++
		case RecipientFailed:
			failed++
		default:
			pending++
		}
	}
	return sent, failed, pending
}

func pendingRecipients(ids []types.ID) []Recipient {
	out := make([]Recipient, 0, len(ids))
	for _, id := range ids {
		out = append(out, Recipient{UserID: id, Status: RecipientPending})
	}
	return out
}

func (n *Notification) recipientIDs() []types.ID {
	ids := make([]types.ID, 0, len(n.Recipients))
	for _, r := range n.Recipients {
		ids = append(ids, r.UserID)
	}
	return ids
}
