package handler

import (
	"net/http"

	"github.com/sakif/hangout/internal/health"
)

// HealthHandler serves the liveness and readiness endpoints.
type HealthHandler struct {
	checks *health.ReadinessRunner
}

func NewHealthHandler(checks *health.ReadinessRunner) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// HandleLive answers as long as the process serves HTTP.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReady checks the store, Redis and the Daily API key.
//
// HTTP: GET /readyz → 200 when every check passes, 503 otherwise.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ready, results := h.checks.Ready(r.Context())
	if results == nil {
		results = []health.CheckResult{}
	}
	status, label := http.StatusOK, "ready"
	if !ready {
		status, label = http.StatusServiceUnavailable, "unready"
	}
	writeJSON(w, status, map[string]any{"status": label, "checks": results})
}
