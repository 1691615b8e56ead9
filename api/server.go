/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions for
  the renewal daemon's operational surface.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /healthz                  Liveness and store reachability
  /api/employees/*          Entitlement preview, balances, order history
  /api/orders/*             Placement and the approval workflow
  /api/runs                 Renewal run history
  /api/integrity/*          Referential-integrity reports
  /api/admin/*              Manual job triggers

SECURITY NOTE:
  No authentication middleware. The daemon is expected to sit behind the
  platform's gateway.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/renewald/main.go: Server startup
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

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Route("/employees", func(r chi.Router) {
			r.Get("/{ref}", h.GetEmployee)
			r.Get("/{ref}/entitlement", h.GetEntitlement)
			r.Get("/{ref}/balance", h.GetBalance)
			r.Get("/{ref}/orders", h.ListEmployeeOrders)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.PlaceOrder)
			r.Get("/{ref}", h.GetOrder)
			r.Post("/{ref}/approve/site", h.ApproveBySiteAdmin)
			r.Post("/{ref}/approve/company", h.ApproveByCompanyAdmin)
			r.Post("/{ref}/dispatch", h.DispatchOrder)
			r.Post("/{ref}/deliver", h.DeliverOrder)
			r.Post("/{ref}/cancel", h.CancelOrder)
			r.Post("/{ref}/return", h.ReturnOrder)
		})

		r.Get("/runs", h.ListRuns)
		r.Get("/integrity/reports", h.ListIntegrityReports)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/renewal/run", h.TriggerRenewal)
			r.Post("/integrity/run", h.TriggerIntegrity)
		})
	})

	return r
}
