// README: Notification handlers: create, get, audit history, manual sweep, order messages.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"rxflow/internal/modules/notification"
	"rxflow/internal/types"
)

const defaultHistoryLimit = 50

type NotificationHandler struct {
	notification *notification.Service
}

func NewNotificationHandler(svc *notification.Service) *NotificationHandler {
	return &NotificationHandler{notification: svc}
}

type createNotificationReq struct {
	Channel      string                `json:"type"`
	Recipients   []string              `json:"recipients"`
	Subject      string                `json:"subject"`
	Message      string                `json:"message"`
	Media        *notification.Media   `json:"media"`
	ScheduledFor *time.Time            `json:"scheduledFor"`
	Recurring    bool                  `json:"isRecurring"`
	Pattern      *notification.Pattern `json:"recurringPattern"`
	Priority     string                `json:"priority"`
	Tags         []string              `json:"tags"`
	OrderID      string                `json:"relatedOrder"`
}

func (h *NotificationHandler) Create(c *gin.Context) {
	var req createNotificationReq
	if !bind(c, &req) {
		return
	}
	n, err := h.notification.Create(c.Request.Context(), notification.CreateSpec{
		Channel:      notification.Channel(req.Channel),
		SenderID:     caller(c),
		Recipients:   toIDs(req.Recipients),
		Message:      req.Message,
		Subject:      req.Subject,
		Media:        req.Media,
		ScheduledFor: req.ScheduledFor,
		Recurring:    req.Recurring,
		Pattern:      req.Pattern,
		Priority:     notification.Priority(req.Priority),
		Tags:         req.Tags,
		OrderID:      types.ID(req.OrderID),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, n)
}

func (h *NotificationHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	n, err := h.notification.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, n)
}

func (h *NotificationHandler) History(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	limit := int64(defaultHistoryLimit)
	if v := c.Query("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			writeError(c, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	entries, err := h.notification.History(c.Request.Context(), id, limit)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"entries": entries})
}

// Process runs the scheduled sweep once, outside the background ticker.
func (h *NotificationHandler) Process(c *gin.Context) {
	n, err := h.notification.ProcessScheduledNotifications(c.Request.Context(), time.Now())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"processed": n})
}

type customMessageReq struct {
	Channel    string              `json:"type"`
	Recipients []string            `json:"recipients"`
	Subject    string              `json:"subject"`
	Message    string              `json:"message"`
	Media      *notification.Media `json:"media"`
}

// OrderMessage sends a free-form message about an order and records it in
// the order's notification history.
func (h *NotificationHandler) OrderMessage(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req customMessageReq
	if !bind(c, &req) {
		return
	}
	err := h.notification.SendCustomNotification(c.Request.Context(), notification.CustomCommand{
		OrderID:    id,
		SenderID:   caller(c),
		Recipients: toIDs(req.Recipients),
		Channel:    notification.Channel(req.Channel),
		Subject:    req.Subject,
		Message:    req.Message,
		Media:      req.Media,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func toIDs(in []string) []types.ID {
	out := make([]types.ID, 0, len(in))
	for _, s := range in {
		out = append(out, types.ID(s))
	}
	return out
}
