package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

const simulatedResponse = "This is a simulated response from Ollama API"

// DebugHandler echoes requests for frontend development without a runner.
type DebugHandler struct{}

// NewDebugHandler creates a debug handler.
func NewDebugHandler() *DebugHandler {
	return &DebugHandler{}
}

// RegisterRoutes registers debug routes.
func (h *DebugHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/debug/*", h.Echo)
}

// Echo returns the posted body alongside a canned response.
func (h *DebugHandler) Echo(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var data json.RawMessage
	if len(raw) > 0 {
		if !json.Valid(raw) {
			Error(w, http.StatusBadRequest, "Invalid JSON")
			return
		}
		data = raw
	}

	endpoint := "/" + chi.URLParam(r, "*")
	slog.Debug("Debug echo", "endpoint", endpoint, "bytes", len(raw))

	JSON(w, http.StatusOK, map[string]interface{}{
		"status":   "success",
		"endpoint": endpoint,
		"data":     data,
		"response": simulatedResponse,
	})
}
