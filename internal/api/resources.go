package api

import (
	"context"
	"net/http"

	"github.com/ashureev/ollama-manager/internal/domain"
	"github.com/go-chi/chi/v5"
)

// ResourceReader returns the current host utilisation.
type ResourceReader interface {
	Current(ctx context.Context) domain.ResourceUsage
}

// ResourceHandler serves host utilisation snapshots and the live feed.
type ResourceHandler struct {
	reader ResourceReader
	feed   http.Handler
}

// NewResourceHandler creates a resource handler. feed serves /ws/resources
// and may be nil.
func NewResourceHandler(reader ResourceReader, feed http.Handler) *ResourceHandler {
	return &ResourceHandler{reader: reader, feed: feed}
}

// RegisterRoutes registers resource routes.
func (h *ResourceHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/resources", h.Resources)
	if h.feed != nil {
		r.Get("/ws/resources", h.feed.ServeHTTP)
	}
}

// Resources returns CPU, memory and GPU utilisation in percent.
func (h *ResourceHandler) Resources(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.reader.Current(r.Context()))
}
