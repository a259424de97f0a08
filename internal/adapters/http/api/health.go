package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/blastppv/internal/domain/model"
	"github.com/okian/blastppv/pkg/metrics"
)

// ReadinessChecker reports whether the model is loaded.
type ReadinessChecker interface {
	Ready(ctx context.Context) error
	ModelInfo() model.Info
}

// HealthHandler handles liveness, readiness and metrics requests.
type HealthHandler struct {
	checker ReadinessChecker
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker ReadinessChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

type healthResponse struct {
	Status string      `json:"status"`
	Model  *model.Info `json:"model,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// HandleHealth handles GET /healthz. The process is live even when the
// model failed to load.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}

// HandleReady handles GET /readyz and reports 503 while the model is
// unavailable.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	if err := h.checker.Ready(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status: "not ready",
			Error:  model.ErrUnavailable.Error(),
		})
		return
	}
	info := h.checker.ModelInfo()
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready", Model: &info})
}

// MetricsHandler serves the custom Prometheus registry.
func (h *HealthHandler) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
