package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/ashureev/ollama-manager/internal/export"
	"github.com/ashureev/ollama-manager/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// ChatService is the completion and history surface the chat routes need.
type ChatService interface {
	Complete(ctx context.Context, model string, messages []domain.Message) domain.CompletionResult
	MostRecentHistory(ctx context.Context) ([]domain.Message, error)
}

// ChatHandler handles chat completion, history and export endpoints.
type ChatHandler struct {
	svc     ChatService
	limiter *middleware.RateLimiter
}

// NewChatHandler creates a chat handler. limiter may be nil to disable
// per-client throttling of completions.
func NewChatHandler(svc ChatService, limiter *middleware.RateLimiter) *ChatHandler {
	return &ChatHandler{svc: svc, limiter: limiter}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/history", h.History)
		r.With(middleware.RateLimit(h.limiter)).Post("/completion", h.Completion)
		r.Post("/export", h.Export)
	})
}

type completionRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
}

type completionError struct {
	Category domain.ErrorCategory `json:"category"`
	Detail   string               `json:"detail,omitempty"`
}

type completionResponse struct {
	Response string           `json:"response"`
	Error    *completionError `json:"error,omitempty"`
}

// Completion runs one chat completion. It always answers 200; failures are
// carried in the body so the UI can show the message as the assistant turn.
func (h *ChatHandler) Completion(w http.ResponseWriter, r *http.Request) {
	var req completionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Debug("Malformed completion request", "error", err)
		req = completionRequest{}
	}

	result := h.svc.Complete(r.Context(), req.Model, req.Messages)

	resp := completionResponse{Response: result.Response}
	if !result.OK() {
		resp.Error = &completionError{Category: result.Category, Detail: result.Detail}
	}
	JSON(w, http.StatusOK, resp)
}

// History returns the most recently stored conversation.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	messages, err := h.svc.MostRecentHistory(r.Context())
	if err != nil {
		slog.Error("Failed to load chat history", "error", err)
		messages = []domain.Message{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"history": messages})
}

type exportRequest struct {
	Format   export.Format    `json:"format"`
	Messages []domain.Message `json:"messages"`
}

// Export renders the posted conversation as Markdown or JSON.
func (h *ChatHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	content, err := export.Render(req.Format, req.Messages)
	if err != nil {
		if errors.Is(err, export.ErrInvalidFormat) {
			Error(w, http.StatusBadRequest, "Invalid format")
			return
		}
		slog.Error("Failed to export conversation", "error", err)
		Error(w, http.StatusInternalServerError, "Export failed")
		return
	}

	JSON(w, http.StatusOK, map[string]string{"content": content})
}
