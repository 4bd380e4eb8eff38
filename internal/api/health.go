package api

import (
	"net/http"
	"time"

	"github.com/ryosuke1832/remind/internal/api/respond"
)

// HealthReporter is the aggregated service health.
type HealthReporter interface {
	IsHealthy() bool
	Degraded() bool
	Components() map[string]bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	health HealthReporter
}

func NewHealthHandler(h HealthReporter) *HealthHandler { return &HealthHandler{health: h} }

// CheckHealth handles GET /api/health
// Always returns 200; body reports healthy, degraded or unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	status := "unhealthy"
	switch {
	case h.health.Degraded():
		status = "degraded"
	case h.health.IsHealthy():
		status = "healthy"
	}
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     status,
		"components": h.health.Components(),
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
