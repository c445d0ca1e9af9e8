// README: Contact directory maintenance.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"rxflow/internal/modules/user"
	"rxflow/internal/types"
)

type ContactStore interface {
	Contact(ctx context.Context, id types.ID) (user.Contact, error)
	Upsert(ctx context.Context, c user.Contact) error
}

type UserHandler struct {
	store ContactStore
}

func NewUserHandler(store ContactStore) *UserHandler {
	return &UserHandler{store: store}
}

type upsertUserReq struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *UserHandler) Upsert(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req upsertUserReq
	if !bind(c, &req) {
		return
	}
	contact := user.Contact{ID: id, Name: req.Name, Phone: req.Phone, Email: req.Email, Role: user.Role(req.Role)}
	if err := h.store.Upsert(c.Request.Context(), contact); err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, contact)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	contact, err := h.store.Contact(c.Request.Context(), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, contact)
}
