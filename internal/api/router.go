package api

import (
	"net/http"

	"github.com/ashureev/intentions-server/internal/metrics"
	"github.com/ashureev/intentions-server/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the server's routes and middleware. m may be nil, in which
// case /metrics is not served.
func NewRouter(allowedOrigins []string, intentionsHandler *IntentionsHandler, healthHandler *HealthHandler, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins))

	healthHandler.RegisterHealth(r)
	intentionsHandler.RegisterRoutes(r)

	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	return r
}
