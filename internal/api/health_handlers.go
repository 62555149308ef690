package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/contentrank/internal/health"
)

// readyTimeout bounds all dependency checks of one readiness probe.
const readyTimeout = 5 * time.Second

// NamedChecker is a dependency included in readiness.
type NamedChecker struct {
	Name    string
	Checker health.Checker
}

// HealthHandlers serves the liveness and readiness probes.
type HealthHandlers struct {
	checkers         []NamedChecker
	calibrationLabel func() string
	timeNow          func() time.Time
}

// HealthHandlersConfig configures HealthHandlers.
type HealthHandlersConfig struct {
	Checkers []NamedChecker

	// Calibration returns the active calibration version. Optional.
	Calibration func() string
}

// NewHealthHandlers creates the probe handlers.
func NewHealthHandlers(cfg HealthHandlersConfig) *HealthHandlers {
	return &HealthHandlers{checkers: cfg.Checkers, calibrationLabel: cfg.Calibration, timeNow: time.Now}
}

// HealthResponse is the probe body.
type HealthResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	Calibration string            `json:"calibration,omitempty"`
	Timestamp   string            `json:"timestamp"`
}

// Health handles GET /health. It only proves the process can answer.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, r.Context(), http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.timeNow().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready: 503 when any configured dependency fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"metrics": "ok"},
		Timestamp: h.timeNow().UTC().Format(time.RFC3339),
	}
	if h.calibrationLabel != nil {
		resp.Calibration = h.calibrationLabel()
	}
	status := http.StatusOK
	for _, c := range h.checkers {
		if err := c.Checker.HealthCheck(ctx); err != nil {
			resp.Checks[c.Name] = "error"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			slog.WarnContext(ctx, "readiness check failed", "dependency", c.Name, "error", err)
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	writeJSON(w, ctx, status, resp)
}
