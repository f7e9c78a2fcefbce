package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthCheckTimeout = 5 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// VersionReporter reports the runner version.
type VersionReporter interface {
	Version(ctx context.Context) (string, error)
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db     Pinger
	runner VersionReporter
}

// NewHealthHandler creates a new health handler. runner may be nil.
func NewHealthHandler(db Pinger, runner VersionReporter) *HealthHandler {
	return &HealthHandler{db: db, runner: runner}
}

// Health returns the health status of the API and its dependencies. Only
// the database decides the status code; a missing runner is reported but
// the UI stays usable for history and export.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if h.runner != nil {
		if version, err := h.runner.Version(ctx); err != nil {
			slog.Warn("Runner health check failed", "error", err)
			checks["runner"] = "unavailable"
		} else {
			checks["runner"] = "ok"
			status["runner_version"] = version
		}
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
