package handlers

import (
	"net/http"
	"time"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/repositories"
)

var startTime = time.Now()

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	health repositories.HealthRepository
}

// NewHealthHandlers constructs health endpoints; the repository may be nil,
// in which case readiness only reports process liveness.
func NewHealthHandlers(health repositories.HealthRepository) *HealthHandlers {
	return &HealthHandlers{health: health}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    domain.HealthStatusOK,
		"uptime":    time.Since(startTime).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readyz verifies the backing store is reachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.health == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": domain.HealthStatusOK})
		return
	}

	if err := h.health.Ping(r.Context()); err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": domain.HealthStatusError,
			"error":  err.Error(),
		})
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": domain.HealthStatusOK})
}
