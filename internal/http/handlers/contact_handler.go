// Contact HTTP handlers.
//
// This file exposes REST endpoints for the address book:
//   - POST   /contacts        (create)
//   - GET    /contacts        (list all for the caller)
//   - GET    /contacts/{id}   (fetch one)
//   - DELETE /contacts/{id}   (remove)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/services"
)

// CreateContactRequest is the JSON payload for creating a contact.
type CreateContactRequest struct {
	Name string `json:"name" binding:"required,min=1,max=255" example:"Maria Souza"`
	// Phone is stored as entered; normalization happens at send/match time.
	Phone string `json:"phone" binding:"required,min=1" example:"(11) 98765-4321"`
}

// ListContactsResponse wraps the caller's address book.
type ListContactsResponse struct {
	Contacts []domain.Contact `json:"contacts"`
}

func failContactError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyName), errors.Is(err, services.ErrInvalidPhone):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrContactNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "contact not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// CreateContact adds an address-book entry.
func (h *Handlers) CreateContact(c *gin.Context) {
	var req CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and phone required")
		return
	}
	contact, err := h.contactSvc.Create(c.Request.Context(), userID(c), req.Name, req.Phone)
	if err != nil {
		failContactError(c, err)
		return
	}
	ok(c, http.StatusCreated, contact)
}

// ListContacts returns the caller's full address book, name order.
func (h *Handlers) ListContacts(c *gin.Context) {
	list, err := h.contactSvc.List(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListContactsResponse{Contacts: list})
}

// GetContact returns one owned contact.
func (h *Handlers) GetContact(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contact id must be a UUID")
		return
	}
	contact, err := h.contactSvc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		failContactError(c, err)
		return
	}
	ok(c, http.StatusOK, contact)
}

// DeleteContact removes an owned contact.
func (h *Handlers) DeleteContact(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contact id must be a UUID")
		return
	}
	if err := h.contactSvc.Delete(c.Request.Context(), userID(c), id); err != nil {
		failContactError(c, err)
		return
	}
	noContent(c)
}
