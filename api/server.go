/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Connects URLs to handlers. Every route under /api speaks JSON.

MIDDLEWARE STACK:
  1. RequestID:     chi request id
  2. CorrelationID: X-Correlation-ID echoed or generated (uuid)
  3. RequestLogger: one zap line per request
  4. Recoverer:     panic -> 500
  5. Actor:         X-Actor header -> created_by / changed_by
  6. CORS:          origins from configuration

ROUTE GROUPS:
  /api/collaborators/*   balances, entries, verify-and-convert
  /api/entries/*         append, edit, delete, history
  /api/bulk/*            bulk operations and corrections
  /api/holidays/*        holiday calendar
  /api/reports/*         all-collaborator balance report
  /api/reconciliation/*  run log
  /metrics               Prometheus

SECURITY NOTE:
  No authentication middleware. The actor header is trusted as-is and is
  expected to be set by the gateway in front of this service.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(CorrelationID)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(Actor)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader, CorrelationIDHeader},
		ExposedHeaders:   []string{CorrelationIDHeader},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/collaborators", func(r chi.Router) {
			r.Get("/", h.ListCollaborators)
			r.Post("/", h.SaveCollaborator)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/entries", h.ListEntries)
			r.Post("/{id}/verify-convert", h.VerifyAndConvert)
			r.Post("/{id}/reconcile", h.Reconcile)
		})

		r.Route("/entries", func(r chi.Router) {
			r.Post("/", h.AppendEntry)
			r.Put("/{id}", h.EditEntry)
			r.Delete("/{id}", h.DeleteEntry)
			r.Get("/{id}/history", h.EntryHistory)
		})

		r.Route("/bulk", func(r chi.Router) {
			r.Post("/", h.CreateBulk)
			r.Get("/{id}/entries", h.BulkEntries)
			r.Get("/{id}/corrections", h.ListBulkCorrections)
			r.Post("/{id}/corrections", h.CorrectBulk)
			r.Get("/{id}/lineage", h.BulkLineage)
		})

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Delete("/{date}", h.DeleteHoliday)
		})

		r.Get("/reports/balances", h.BalanceReport)
		r.Get("/reconciliation/runs", h.ListReconciliationRuns)
	})

	return r
}
