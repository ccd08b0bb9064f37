/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/plan          Plan-wide settings
  /api/people/*      People
  /api/accounts/*    Accounts, balances, projections
  /api/strategies/*  Strategies and their rules
  /api/export,import Snapshot transfer
  /api/reset         Plan wipe (single-user tool, no auth)

SECURITY NOTE:
  No authentication middleware. This is a single-user local planning
  tool; the listen address should stay on localhost.

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
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Plan settings
		r.Get("/plan", h.GetSettings)
		r.Put("/plan", h.UpdateSettings)

		// People
		r.Route("/people", func(r chi.Router) {
			r.Get("/", h.ListPeople)
			r.Post("/", h.CreatePerson)
			r.Get("/{id}", h.GetPerson)
			r.Put("/{id}", h.UpdatePerson)
			r.Delete("/{id}", h.DeletePerson)
		})

		// Accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.ListAccounts)
			r.Post("/", h.CreateAccount)
			r.Get("/{id}", h.GetAccount)
			r.Put("/{id}", h.UpdateAccount)
			r.Delete("/{id}", h.DeleteAccount)
			r.Get("/{id}/balances", h.ListBalances)
			r.Post("/{id}/balances", h.CreateBalance)
			r.Get("/{id}/projection", h.GetProjection)
		})

		// Recorded balances
		r.Route("/balances", func(r chi.Router) {
			r.Put("/{id}", h.UpdateBalance)
			r.Delete("/{id}", h.DeleteBalance)
		})

		// Strategies and rules
		r.Route("/strategies", func(r chi.Router) {
			r.Get("/", h.ListStrategies)
			r.Post("/", h.CreateStrategy)
			r.Get("/{id}", h.GetStrategy)
			r.Put("/{id}", h.RenameStrategy)
			r.Delete("/{id}", h.DeleteStrategy)
			r.Post("/{id}/select", h.SelectStrategy)
			r.Post("/{id}/deposits", h.CreateDeposit)
			r.Post("/{id}/withdrawals", h.CreateWithdrawal)
		})
		r.Route("/deposits", func(r chi.Router) {
			r.Put("/{id}", h.UpdateDeposit)
			r.Delete("/{id}", h.DeleteDeposit)
		})
		r.Route("/withdrawals", func(r chi.Router) {
			r.Put("/{id}", h.UpdateWithdrawal)
			r.Delete("/{id}", h.DeleteWithdrawal)
		})

		// Aggregates
		r.Get("/totals", h.GetTotals)
		r.Get("/income", h.GetIncomeBreakdown)

		// Persistence
		r.Get("/export", h.Export)
		r.Post("/import", h.Import)
		r.Get("/snapshots", h.ListSnapshots)
		r.Post("/reset", h.Reset)
	})

	return r
}
