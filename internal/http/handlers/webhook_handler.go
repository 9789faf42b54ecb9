// Webhook HTTP handlers.
//
//   - POST /webhooks/whatsapp  (gateway event ingest)
//   - GET  /webhooks/events    (recent raw events, for debugging)
//
// The ingest endpoint acknowledges with 200 {"received": true} for every
// parseable body, whatever the event does downstream; gateways treat
// non-200s as delivery failures and retry-loop otherwise. Only a body that
// cannot be decoded at all earns a 400.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zapvite/go-wa-backend/internal/events"
	"github.com/zapvite/go-wa-backend/internal/services"
	"github.com/zapvite/go-wa-backend/internal/utils"
)

// WebhookEventsResponse wraps the recent-events debugging view.
type WebhookEventsResponse struct {
	Events []events.Event `json:"events"`
	Total  uint64         `json:"total"`
}

// ReceiveWebhook ingests one gateway event.
func (h *Handlers) ReceiveWebhook(c *gin.Context) {
	var ev services.InboundEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "undecodable webhook body")
		return
	}
	h.webhookSvc.Ingest(c.Request.Context(), ev)
	ok(c, http.StatusOK, gin.H{"received": true})
}

// ListWebhookEvents returns the most recent raw events, newest first.
func (h *Handlers) ListWebhookEvents(c *gin.Context) {
	// the ring never holds more than its configured capacity anyway
	limit := utils.ClampInt(utils.AtoiDefault(c.Query("limit"), 20), 1, 500)
	ok(c, http.StatusOK, WebhookEventsResponse{
		Events: h.ring.Recent(limit),
		Total:  h.ring.Total(),
	})
}
