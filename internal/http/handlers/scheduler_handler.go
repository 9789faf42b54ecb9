// Scheduler HTTP handlers.
//
//   - POST /scheduler/start   (start the background dispatch loop)
//   - POST /scheduler/stop    (stop it)
//   - GET  /scheduler/status  (report whether it is running)
//
// Start/stop are idempotent: repeating a call reports the unchanged state
// instead of failing.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SchedulerStatusResponse reports the dispatch loop state.
type SchedulerStatusResponse struct {
	Running bool `json:"running"`
	// Changed is false when a start/stop call found the loop already in the
	// requested state.
	Changed bool `json:"changed,omitempty"`
}

// StartScheduler starts the dispatch loop.
func (h *Handlers) StartScheduler(c *gin.Context) {
	changed := h.scheduler.Start()
	ok(c, http.StatusOK, SchedulerStatusResponse{Running: true, Changed: changed})
}

// StopScheduler stops the dispatch loop.
func (h *Handlers) StopScheduler(c *gin.Context) {
	changed := h.scheduler.Stop()
	ok(c, http.StatusOK, SchedulerStatusResponse{Running: false, Changed: changed})
}

// SchedulerStatus reports whether the dispatch loop is running.
func (h *Handlers) SchedulerStatus(c *gin.Context) {
	ok(c, http.StatusOK, SchedulerStatusResponse{Running: h.scheduler.IsRunning()})
}
