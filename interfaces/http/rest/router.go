// Package rest wires the HTTP surface: snapshot and projection reads,
// parse seeding, health probes and the websocket upgrade endpoint.
package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"flowsketch-backend/infrastructure/config"
	"flowsketch-backend/interfaces/http/rest/handlers"
	"flowsketch-backend/interfaces/http/rest/middleware"
	"flowsketch-backend/interfaces/websocket"
	"flowsketch-backend/pkg/auth"
	"flowsketch-backend/pkg/observability"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Diagram   *handlers.DiagramHandler
	Spec      *handlers.SpecHandler
	Parse     *handlers.ParseHandler
	WebSocket *websocket.Server
}

// NewRouter assembles the chi router. Health probes and metrics are
// unauthenticated; everything under /api/v1 and the websocket endpoint
// require a user identity.
func NewRouter(cfg *config.Config, h Handlers, validator *auth.Validator, metrics *observability.Metrics, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	r.Handle("/metrics", metrics.Handler())

	authMiddleware := middleware.Auth(validator, !cfg.IsProduction())

	r.Route("/api/v1/projects/{projectID}", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Get("/diagram", h.Diagram.Get)
		r.Put("/diagram", h.Diagram.Apply)
		r.Get("/diagram/validate", h.Diagram.Validate)
		r.Get("/specification", h.Spec.Get)
		r.Put("/specification", h.Spec.Apply)
		r.Post("/parse", h.Parse.Parse)
	})

	r.With(authMiddleware).Handle("/ws", h.WebSocket)

	return r
}
