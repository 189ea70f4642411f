package handlers

import (
	"net/http"

	"github.com/responseable/onboarding/internal/api/response"
)

// HealthHandler answers liveness probes. It deliberately has no dependencies;
// a database outage must not make the process look dead, since the event
// queue recovers on its own once the database returns.
type HealthHandler struct{}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, _ *http.Request) {
	response.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
