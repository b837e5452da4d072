package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/intentions-server/internal/model"
	"github.com/go-chi/chi/v5"
)

const defaultHealthCheckTimeout = 5 * time.Second

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	model   model.Pinger
	backend string
	timeout time.Duration
}

// NewHealthHandler creates a new health handler for the named model backend.
func NewHealthHandler(p model.Pinger, backend string) *HealthHandler {
	return &HealthHandler{model: p, backend: backend, timeout: defaultHealthCheckTimeout}
}

// Health returns the health status of the API and the model backend.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":  "healthy",
		"backend": h.backend,
		"checks":  checks,
	}
	statusCode := http.StatusOK

	if err := h.model.Ping(ctx); err != nil {
		slog.Error("Health check failed", "backend", h.backend, "error", err)
		status["status"] = "degraded"
		checks["model"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["model"] = "ok"
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
