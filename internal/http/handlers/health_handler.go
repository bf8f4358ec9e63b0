// Health HTTP handler.
//
// The health surface reports connectivity of the sender and receiver stores
// independently, so one side being down is visible without masking the
// other.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse reports process liveness plus per-store connectivity.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Databases map[string]string `json:"databases"`
}

// Health godoc
// @ID          health
// @Summary     Liveness and per-store connectivity
// @Tags        Health
// @Produce     json
// @Success     200 {object} handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	status := func(p Pinger) string {
		if p == nil {
			return "unknown"
		}
		if err := p(); err != nil {
			return "disconnected"
		}
		return "connected"
	}
	ok(c, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Databases: map[string]string{
			"sender":   status(h.pingSender),
			"receiver": status(h.pingReceiver),
		},
	})
}
