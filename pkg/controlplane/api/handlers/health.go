package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/drover-ai/drover/pkg/controlplane/store"
)

// HealthCheckTimeout bounds the registry store ping so a slow database
// cannot block health probes indefinitely.
const HealthCheckTimeout = 5 * time.Second

// HealthHandler handles the unauthenticated health endpoints.
//
//   - Liveness probe: is the server process running?
//   - Readiness probe: can the server reach the registry store?
type HealthHandler struct {
	store     store.Store
	startTime time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(s store.Store) *HealthHandler {
	return &HealthHandler{
		store:     s,
		startTime: time.Now(),
	}
}

// Liveness handles GET /health. Always succeeds while the HTTP server is
// responsive.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	WriteJSONOK(w, map[string]any{
		"status":     "healthy",
		"service":    "drover",
		"started_at": h.startTime.UTC().Format(time.RFC3339),
		"uptime":     uptime.Round(time.Second).String(),
		"uptime_sec": int64(uptime.Seconds()),
	})
}

// Readiness handles GET /health/ready. Returns 503 until the registry
// store answers a ping.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  "store not initialized",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), HealthCheckTimeout)
	defer cancel()

	start := time.Now()
	if err := h.store.Ping(ctx); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	WriteJSONOK(w, map[string]any{
		"status":        "healthy",
		"store_latency": time.Since(start).String(),
	})
}
