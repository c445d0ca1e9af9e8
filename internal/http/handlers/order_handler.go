// README: Order handlers for create/get/update/status/delete.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rxflow/internal/modules/order"
	"rxflow/internal/types"
)

type OrderHandler struct {
	order *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{order: svc}
}

type createOrderReq struct {
	OrderType        order.Type           `json:"orderType"`
	Medications      []order.Medication   `json:"medications"`
	DeliveryMethod   order.DeliveryMethod `json:"deliveryMethod"`
	DeliveryAddress  *order.Address       `json:"deliveryAddress"`
	PickupPharmacyID string               `json:"pickupPharmacy"`
	DeliverySchedule string               `json:"deliverySchedule"`
}

func (h *OrderHandler) Create(c *gin.Context) {
	var req createOrderReq
	if !bind(c, &req) {
		return
	}
	o, err := h.order.Create(c.Request.Context(), order.CreateCommand{
		RequesterID:      caller(c),
		Type:             req.OrderType,
		Medications:      req.Medications,
		DeliveryMethod:   req.DeliveryMethod,
		DeliveryAddress:  req.DeliveryAddress,
		PickupPharmacyID: types.ID(req.PickupPharmacyID),
		ScheduleSlot:     req.DeliverySchedule,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, o)
}

func (h *OrderHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.order.Get(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type updateOrderReq struct {
	DeliveryMethod   *order.DeliveryMethod `json:"deliveryMethod"`
	DeliveryAddress  *order.Address        `json:"deliveryAddress"`
	PickupPharmacyID *string               `json:"pickupPharmacy"`
	PharmacyID       *string               `json:"assignedPharmacy"`
	OfficerID        *string               `json:"assignedDeliveryOfficer"`
	DeliverySchedule *string               `json:"deliverySchedule"`
	Invoice          *order.Invoice        `json:"invoice"`
}

func (h *OrderHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req updateOrderReq
	if !bind(c, &req) {
		return
	}
	o, err := h.order.Update(c.Request.Context(), order.UpdateCommand{
		OrderID:          id,
		DeliveryMethod:   req.DeliveryMethod,
		DeliveryAddress:  req.DeliveryAddress,
		PickupPharmacyID: optionalID(req.PickupPharmacyID),
		PharmacyID:       optionalID(req.PharmacyID),
		OfficerID:        optionalID(req.OfficerID),
		ScheduleSlot:     req.DeliverySchedule,
		Invoice:          req.Invoice,
		ActorID:          caller(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

type statusReq struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req statusReq
	if !bind(c, &req) {
		return
	}
	o, err := h.order.UpdateStatus(c.Request.Context(), order.StatusCommand{
		OrderID: id,
		Status:  order.Status(req.Status),
		Note:    req.Note,
		ActorID: caller(c),
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, o)
}

func (h *OrderHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.order.Delete(c.Request.Context(), id); err != nil {
		writeDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func optionalID(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
