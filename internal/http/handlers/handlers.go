// Handler wiring and shared transport helpers.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses. Service dependencies are consumed
// through narrow interfaces so handler tests can substitute fakes.
package handlers

import (
	"context"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zapvite/go-wa-backend/internal/domain"
	"github.com/zapvite/go-wa-backend/internal/events"
	"github.com/zapvite/go-wa-backend/internal/services"
	"github.com/zapvite/go-wa-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// MessageAPI defines message authoring and retrieval operations consumed by
// HTTP handlers. Implementations must be safe for concurrent use and honor
// the provided context.
type MessageAPI interface {
	Send(ctx context.Context, userID string, in services.SendInput) ([]domain.Message, error)
	Get(ctx context.Context, userID, id string) (*domain.Message, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Message, int64, error)
	Delete(ctx context.Context, userID, id string) error
}

// SenderAPI triggers an immediate dispatch of a stored message.
type SenderAPI interface {
	SendNow(ctx context.Context, userID, messageID string) error
}

// ContactAPI defines address-book operations consumed by HTTP handlers.
type ContactAPI interface {
	Create(ctx context.Context, userID, name, phone string) (*domain.Contact, error)
	Get(ctx context.Context, userID, id string) (*domain.Contact, error)
	List(ctx context.Context, userID string) ([]domain.Contact, error)
	Delete(ctx context.Context, userID, id string) error
}

// ConfirmationAPI defines confirmation authoring and retrieval operations.
type ConfirmationAPI interface {
	Create(ctx context.Context, userID string, in services.ConfirmationInput) (*domain.Confirmation, error)
	Get(ctx context.Context, userID, id string) (*domain.Confirmation, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Confirmation, int64, error)
	ListPending(ctx context.Context, userID string) ([]domain.Confirmation, error)
}

// SessionAPI exposes the mirrored gateway session state.
type SessionAPI interface {
	Status(ctx context.Context, userID string) (*domain.WhatsAppSession, error)
}

// WebhookAPI ingests raw gateway events.
type WebhookAPI interface {
	Ingest(ctx context.Context, ev services.InboundEvent)
}

// SchedulerControl starts and stops the background dispatch loop.
type SchedulerControl interface {
	Start() bool
	Stop() bool
	IsRunning() bool
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints of the public API.
type Handlers struct {
	msgSvc     MessageAPI
	sender     SenderAPI
	contactSvc ContactAPI
	confSvc    ConfirmationAPI
	sessionSvc SessionAPI
	webhookSvc WebhookAPI
	scheduler  SchedulerControl
	ring       *events.Ring
}

// New constructs a Handlers instance bound to the given services.
func New(
	msgSvc MessageAPI,
	sender SenderAPI,
	contactSvc ContactAPI,
	confSvc ConfirmationAPI,
	sessionSvc SessionAPI,
	webhookSvc WebhookAPI,
	scheduler SchedulerControl,
	ring *events.Ring,
) *Handlers {
	return &Handlers{
		msgSvc:     msgSvc,
		sender:     sender,
		contactSvc: contactSvc,
		confSvc:    confSvc,
		sessionSvc: sessionSvc,
		webhookSvc: webhookSvc,
		scheduler:  scheduler,
		ring:       ring,
	}
}

// userID extracts the calling user id from the Gin context (set by upstream
// middleware). If absent, it falls back to the "X-User-ID" header, and
// finally to "demo-user". It never touches c.Request if it's nil.
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// clampPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.ClampInt(utils.AtoiDefault(c.Query("page_size"), defaultPageSize), 1, maxPageSize)
	return
}

// paginationMeta builds the response metadata for one page.
func paginationMeta(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
