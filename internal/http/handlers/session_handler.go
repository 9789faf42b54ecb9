// Session HTTP handlers.
//
//   - GET /sessions/status  (mirrored gateway session state for the caller)
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/zapvite/go-wa-backend/internal/services"
)

// SessionStatusHandler returns the caller's mirrored session state,
// refreshed by a live gateway probe when possible.
func (h *Handlers) SessionStatusHandler(c *gin.Context) {
	s, err := h.sessionSvc.Status(c.Request.Context(), userID(c))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "no session known for user")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, s)
}
