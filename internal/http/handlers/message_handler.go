// Message HTTP handlers.
//
// This file exposes REST endpoints for outbound messages:
//   - POST   /messages            (author one message, optionally scheduled)
//   - POST   /messages/bulk       (fan a message out to many contacts)
//   - GET    /messages            (list paginated messages for the caller)
//   - GET    /messages/{id}       (fetch a single message with its lifecycle state)
//   - DELETE /messages/{id}       (remove an owned message)
//   - POST   /messages/{id}/send  (dispatch a stored message immediately)
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

//
// DTOs
//

// SendMessageRequest is the JSON payload for authoring one message.
type SendMessageRequest struct {
	// ContactID is the target contact (UUID).
	ContactID string `json:"contact_id" binding:"required" example:"7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab"`
	// Content is the message text; {name}/{nome} are substituted at send time.
	Content string `json:"content" binding:"required,min=1" example:"Oi {name}, sua consulta é amanhã às 14h."`
	// Kind is "text" (default) or "media".
	Kind string `json:"kind" example:"text"`
	// ScheduledAt defers the send; empty means send as soon as possible.
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	// Recurrence is "none" (default) or "monthly".
	Recurrence string `json:"recurrence" example:"none"`
}

// BulkSendMessageRequest fans one message out to several contacts.
type BulkSendMessageRequest struct {
	ContactIDs  []string   `json:"contact_ids" binding:"required,min=1"`
	Content     string     `json:"content" binding:"required,min=1"`
	Kind        string     `json:"kind"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Recurrence  string     `json:"recurrence"`
}

// SendMessageResponse returns the created message rows.
type SendMessageResponse struct {
	Messages []domain.Message `json:"messages"`
}

// ListMessagesResponse contains a page of messages and pagination metadata.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// failSendError maps authoring/dispatch service errors onto the envelope.
func failSendError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrEmptyContent),
		errors.Is(err, services.ErrTooLong),
		errors.Is(err, services.ErrNoRecipients),
		errors.Is(err, services.ErrInvalidSchedule),
		errors.Is(err, services.ErrInvalidRecurrence),
		errors.Is(err, services.ErrInvalidKind):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrContactNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "contact not found")
	case errors.Is(err, services.ErrMessageNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
	case errors.Is(err, services.ErrNotSendable):
		fail(c, http.StatusConflict, ErrCodeNotSendable, "message is not in a sendable state")
	case errors.Is(err, services.ErrSessionNotReady):
		fail(c, http.StatusConflict, ErrCodeSessionNotReady, "whatsapp session not ready")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeSendFailed, err.Error())
	}
}

//
// Handlers
//

// SendMessage authors a single message, scheduled or immediate.
func (h *Handlers) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contact_id and content required")
		return
	}
	created, err := h.msgSvc.Send(c.Request.Context(), userID(c), services.SendInput{
		ContactIDs:  []string{req.ContactID},
		Content:     sanitizeContent(req.Content),
		Kind:        req.Kind,
		ScheduledAt: req.ScheduledAt,
		Recurrence:  req.Recurrence,
	})
	if err != nil {
		failSendError(c, err)
		return
	}
	ok(c, http.StatusCreated, SendMessageResponse{Messages: created})
}

// SendBulkMessage authors one message per target contact.
func (h *Handlers) SendBulkMessage(c *gin.Context) {
	var req BulkSendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "contact_ids and content required")
		return
	}
	created, err := h.msgSvc.Send(c.Request.Context(), userID(c), services.SendInput{
		ContactIDs:  req.ContactIDs,
		Content:     sanitizeContent(req.Content),
		Kind:        req.Kind,
		ScheduledAt: req.ScheduledAt,
		Recurrence:  req.Recurrence,
	})
	if err != nil {
		failSendError(c, err)
		return
	}
	ok(c, http.StatusCreated, SendMessageResponse{Messages: created})
}

// ListMessages returns a page of the caller's messages, newest first.
func (h *Handlers) ListMessages(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.msgSvc.ListPage(c.Request.Context(), userID(c), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: paginationMeta(page, pageSize, total),
	})
}

// GetMessage returns one owned message with its delivery state.
func (h *Handlers) GetMessage(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}
	m, err := h.msgSvc.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		failSendError(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// DeleteMessage removes an owned message.
func (h *Handlers) DeleteMessage(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}
	if err := h.msgSvc.Delete(c.Request.Context(), userID(c), id); err != nil {
		failSendError(c, err)
		return
	}
	noContent(c)
}

// SendMessageNow dispatches a stored message immediately, bypassing its
// schedule.
func (h *Handlers) SendMessageNow(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "message id must be a UUID")
		return
	}
	user := userID(c)
	if err := h.sender.SendNow(c.Request.Context(), user, id); err != nil {
		failSendError(c, err)
		return
	}
	m, err := h.msgSvc.Get(c.Request.Context(), user, id)
	if err != nil {
		// retention may have removed the row right after the send
		ok(c, http.StatusOK, gin.H{"id": id, "status": domain.StatusSent})
		return
	}
	ok(c, http.StatusOK, m)
}
