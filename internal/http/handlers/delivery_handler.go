// README: Delivery handlers: create, status, live location, feedback, nearby officers.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"rxflow/internal/modules/delivery"
	"rxflow/internal/types"
)

const defaultNearbyRadiusKm = 5.0

type DeliveryHandler struct {
	delivery *delivery.Service
}

func NewDeliveryHandler(svc *delivery.Service) *DeliveryHandler {
	return &DeliveryHandler{delivery: svc}
}

type createDeliveryReq struct {
	OrderID       string   `json:"orderId"`
	OfficerID     string   `json:"deliveryOfficer"`
	CoordinatorID string   `json:"coordinator"`
	ZoneID        string   `json:"zone"`
	Address       string   `json:"address"`
	Lat           *float64 `json:"lat"`
	Lng           *float64 `json:"lng"`
	Schedule      string   `json:"schedule"`
	DistanceKm    *float64 `json:"distanceKm"`
}

func (h *DeliveryHandler) Create(c *gin.Context) {
	var req createDeliveryReq
	if !bind(c, &req) {
		return
	}
	cmd := delivery.CreateCommand{
		OrderID:       types.ID(req.OrderID),
		OfficerID:     types.ID(req.OfficerID),
		CoordinatorID: types.ID(req.CoordinatorID),
		ZoneID:        types.ID(req.ZoneID),
		Address:       req.Address,
		Schedule:      req.Schedule,
		DistanceKm:    req.DistanceKm,
		ActorID:       caller(c),
	}
	if req.Lat != nil && req.Lng != nil {
		cmd.Location = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	d, err := h.delivery.Create(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, d)
}

func (h *DeliveryHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := h.delivery.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type deliveryStatusReq struct {
	Status string          `json:"status"`
	Reason string          `json:"reason"`
	Notes  string          `json:"notes"`
	Lat    *float64        `json:"lat"`
	Lng    *float64        `json:"lng"`
	Proof  *delivery.Proof `json:"proofOfDelivery"`
}

func (h *DeliveryHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req deliveryStatusReq
	if !bind(c, &req) {
		return
	}
	cmd := delivery.StatusCommand{
		DeliveryID: id,
		Status:     delivery.Status(req.Status),
		Reason:     req.Reason,
		Notes:      req.Notes,
		Proof:      req.Proof,
		ActorID:    caller(c),
	}
	if req.Lat != nil && req.Lng != nil {
		cmd.Location = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}
	d, err := h.delivery.UpdateStatus(c.Request.Context(), cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type locationReq struct {
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Address string   `json:"address"`
}

func (h *DeliveryHandler) AppendLocation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req locationReq
	if !bind(c, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	d, err := h.delivery.AppendLocation(c.Request.Context(), delivery.LocationCommand{
		DeliveryID: id,
		Location:   types.Point{Lat: *req.Lat, Lng: *req.Lng},
		Address:    req.Address,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

type feedbackReq struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *DeliveryHandler) Feedback(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req feedbackReq
	if !bind(c, &req) {
		return
	}
	d, err := h.delivery.SubmitFeedback(c.Request.Context(), delivery.FeedbackCommand{
		DeliveryID: id,
		Rating:     req.Rating,
		Comment:    req.Comment,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}

func (h *DeliveryHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.delivery.Delete(c.Request.Context(), id, caller(c)); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DeliveryHandler) NearbyOfficers(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(c, http.StatusBadRequest, "lat and lng query parameters are required")
		return
	}
	radius := defaultNearbyRadiusKm
	if v := c.Query("radiusKm"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil || r <= 0 {
			writeError(c, http.StatusBadRequest, "invalid radiusKm")
			return
		}
		radius = r
	}
	officers, err := h.delivery.NearbyOfficers(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"officers": officers})
}
