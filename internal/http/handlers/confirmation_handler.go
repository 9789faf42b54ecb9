// Confirmation HTTP handlers.
//
// This file exposes REST endpoints for yes/no confirmations:
//   - POST /confirmations            (create, starts in pending)
//   - GET  /confirmations            (list paginated, newest first)
//   - GET  /confirmations/pending    (unresolved, oldest first)
//   - GET  /confirmations/{id}       (fetch one with its verdict)
//
// Resolution is not exposed over HTTP; only the webhook matcher moves a
// confirmation out of pending.
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/services"
)

// CreateConfirmationRequest is the JSON payload for creating a confirmation.
type CreateConfirmationRequest struct {
	ContactName string `json:"contact_name" binding:"required,min=1,max=255" example:"Maria Souza"`
	// ContactPhone is kept as entered and normalized during matching.
	ContactPhone   string     `json:"contact_phone" binding:"required,min=1" example:"(11) 98765-4321"`
	EventDate      *time.Time `json:"event_date,omitempty"`
	MessageContent string     `json:"message_content" binding:"required,min=1" example:"Confirma presença no jantar de sábado?"`
}

// ListConfirmationsResponse contains a page of confirmations and metadata.
type ListConfirmationsResponse struct {
	Confirmations []domain.Confirmation `json:"confirmations"`
	Pagination    Pagination            `json:"pagination"`
}

func failConfirmationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyName),
		errors.Is(err, services.ErrEmptyContent),
		errors.Is(err, services.ErrTooLong),
		errors.Is(err, services.ErrInvalidPhone):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrConfirmationNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "confirmation not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
	}
}

// CreateConfirmation stores a pending confirmation awaiting an inbound reply.
func (h *Handlers) CreateConfirmation(c *gin.Context) {
	var req CreateConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contact_name, contact_phone and message_content required")
		return
	}
	in := services.ConfirmationInput{
		ContactName:    req.ContactName,
		ContactPhone:   req.ContactPhone,
		MessageContent: sanitizeContent(req.MessageContent),
	}
	if req.EventDate != nil {
		in.EventDate = req.EventDate.UTC()
	}
	conf, err := h.confSvc.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		failConfirmationError(c, err)
		return
	}
	ok(c, http.StatusCreated, conf)
}

// ListConfirmations returns a page of the caller's confirmations.
func (h *Handlers) ListConfirmations(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.confSvc.ListPage(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListConfirmationsResponse{
		Confirmations: items,
		Pagination:    paginationMeta(page, pageSize, total),
	})
}

// ListPendingConfirmations returns the caller's unresolved confirmations,
// oldest first.
func (h *Handlers) ListPendingConfirmations(c *gin.Context) {
	items, err := h.confSvc.ListPending(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"confirmations": items})
}

// GetConfirmation returns one owned confirmation.
func (h *Handlers) GetConfirmation(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "confirmation id must be a UUID")
		return
	}
	conf, err := h.confSvc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		failConfirmationError(c, err)
		return
	}
	ok(c, http.StatusOK, conf)
}
