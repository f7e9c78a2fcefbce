package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ModelManager lists, downloads and removes runner models.
type ModelManager interface {
	List(ctx context.Context) ([]domain.Model, error)
	Pull(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
}

// ModelHandler handles model management endpoints.
type ModelHandler struct {
	models      ModelManager
	timeout     time.Duration
	pullTimeout time.Duration
}

// NewModelHandler creates a model handler. timeout bounds list and delete;
// pullTimeout bounds downloads.
func NewModelHandler(models ModelManager, timeout, pullTimeout time.Duration) *ModelHandler {
	return &ModelHandler{models: models, timeout: timeout, pullTimeout: pullTimeout}
}

// RegisterRoutes registers model routes.
func (h *ModelHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/models", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/pull", h.Pull)
		r.Post("/delete", h.Delete)
	})
}

// List returns installed models. Failures yield an empty list.
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r.Context(), h.timeout)
	defer cancel()

	models, err := h.models.List(ctx)
	if err != nil {
		slog.Warn("Failed to list models", "error", err)
		models = []domain.Model{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"models": models})
}

type modelRequest struct {
	Name string `json:"name"`
}

// Pull downloads a model.
func (h *ModelHandler) Pull(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "pull", h.pullTimeout, h.models.Pull)
}

// Delete removes a model.
func (h *ModelHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, "delete", h.timeout, h.models.Remove)
}

func (h *ModelHandler) apply(w http.ResponseWriter, r *http.Request, action string, timeout time.Duration, fn func(context.Context, string) error) {
	var req modelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		req = modelRequest{}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		Error(w, http.StatusBadRequest, "Model name is required")
		return
	}

	ctx, cancel := withTimeout(r.Context(), timeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx, name); err != nil {
		slog.Error("Model "+action+" failed", "model", name, "error", err, "duration", time.Since(start))
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	slog.Info("Model "+action+" finished", "model", name, "duration", time.Since(start))
	JSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
