/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin frontends

ROUTE GROUPS:
  /api/evaluate/*       Stateless formula/condition evaluation
  /api/policies/*       Policy management and conflict reports
  /api/occurrences/*    Occurrence tracking
  /api/payroll/*        Payroll evaluation runs
  /api/admin/*          Batch resets and legal limits

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Stateless evaluation
		r.Route("/evaluate", func(r chi.Router) {
			r.Post("/", h.Evaluate)
			r.Post("/condition", h.EvaluateCondition)
		})

		// Policy routes. The conflicts route must be registered before
		// the {id} routes so "conflicts" is not parsed as a policy ID.
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/conflicts", h.ListConflicts)
			r.Get("/{id}", h.GetPolicy)
			r.Delete("/{id}", h.DeletePolicy)
			r.Post("/{id}/activate", h.ActivatePolicy)
		})

		// Occurrence routes
		r.Route("/occurrences", func(r chi.Router) {
			r.Post("/", h.RecordOccurrence)
			r.Get("/{policy}/{employee}/{type}", h.GetOccurrence)
		})

		// Payroll routes
		r.Route("/payroll", func(r chi.Router) {
			r.Post("/run", h.RunPayroll)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/occurrences/reset", h.ResetOccurrences)
			r.Post("/occurrences/sweep", h.SweepOccurrences)
			r.Get("/limits/{jurisdiction}", h.GetLimits)
		})
	})

	return r
}
