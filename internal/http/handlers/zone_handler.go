// README: Zone handlers: create, get, price, quote, locate, address check.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/shopspring/decimal"

	"rxflow/internal/modules/zone"
	"rxflow/internal/types"
)

type ZoneHandler struct {
	zone *zone.Service
}

func NewZoneHandler(svc *zone.Service) *ZoneHandler {
	return &ZoneHandler{zone: svc}
}

// createZoneReq takes the boundary as GeoJSON polygon coordinates ([lng, lat] pairs).
type createZoneReq struct {
	Name          string                  `json:"name"`
	Boundary      orb.Polygon             `json:"boundary"`
	BasePrice     decimal.Decimal         `json:"basePrice"`
	PricePerKm    decimal.Decimal         `json:"pricePerKm"`
	MinimumOrder  decimal.Decimal         `json:"minimumOrderValue"`
	MaxDistanceKm float64                 `json:"maxDistance"`
	EstimatedTime zone.EstimatedTime      `json:"estimatedTime"`
	Availability  []zone.DayAvailability  `json:"availability"`
	Drivers       []zone.DriverAssignment `json:"drivers"`
}

func (h *ZoneHandler) Create(c *gin.Context) {
	var req createZoneReq
	if !bind(c, &req) {
		return
	}
	z, err := h.zone.Create(c.Request.Context(), zone.CreateCommand{
		Name:          req.Name,
		Boundary:      req.Boundary,
		BasePrice:     req.BasePrice,
		PricePerKm:    req.PricePerKm,
		MinimumOrder:  req.MinimumOrder,
		MaxDistanceKm: req.MaxDistanceKm,
		EstimatedTime: req.EstimatedTime,
		Availability:  req.Availability,
		Drivers:       req.Drivers,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, z)
}

func (h *ZoneHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	z, err := h.zone.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, z)
}

type priceReq struct {
	DistanceKm *float64 `json:"distanceKm"`
}

func (h *ZoneHandler) Price(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req priceReq
	if !bind(c, &req) {
		return
	}
	if req.DistanceKm == nil {
		writeError(c, http.StatusBadRequest, "distanceKm is required")
		return
	}
	price, err := h.zone.Price(c.Request.Context(), id, *req.DistanceKm)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"zoneId": id, "distanceKm": *req.DistanceKm, "price": price})
}

type quoteReq struct {
	FromLat float64 `json:"fromLat"`
	FromLng float64 `json:"fromLng"`
	ToLat   float64 `json:"toLat"`
	ToLng   float64 `json:"toLng"`
}

func (h *ZoneHandler) Quote(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req quoteReq
	if !bind(c, &req) {
		return
	}
	q, err := h.zone.Quote(c.Request.Context(), id,
		types.Point{Lat: req.FromLat, Lng: req.FromLng},
		types.Point{Lat: req.ToLat, Lng: req.ToLng},
	)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, q)
}

type pointReq struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (h *ZoneHandler) Locate(c *gin.Context) {
	var req pointReq
	if !bind(c, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	z, err := h.zone.Locate(c.Request.Context(), types.Point{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, z)
}

// ValidateAddress answers whether a point may be delivered to in the zone.
func (h *ZoneHandler) ValidateAddress(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req pointReq
	if !bind(c, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required")
		return
	}
	z, err := h.zone.ValidateAddress(c.Request.Context(), id, types.Point{Lat: *req.Lat, Lng: *req.Lng})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"zoneId": z.ID, "valid": true})
}
