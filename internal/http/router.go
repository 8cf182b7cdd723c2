// Package http wires the API handlers into a chi router.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ragguard/internal/handlers"
	"ragguard/internal/rag"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Engine rag.Engine
	// MaxBudget caps the budget a request may ask for.
	MaxBudget time.Duration
	// Checks are the backend probes behind /health.
	Checks map[string]func(ctx context.Context) error
	// Gatherer is served on /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	retrieveHandler := handlers.NewRetrieveHandler(deps.Engine, deps.MaxBudget)
	healthHandler := handlers.NewHealthHandler(deps.Checks)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodPost, "/retrieve", retrieveHandler)
	})
	r.Method(http.MethodGet, "/health", healthHandler)

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
