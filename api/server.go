/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the admin frontend
  5. Actor:      X-Actor header -> context (audit, decided_by)

ROUTE GROUPS:
  /api/attendance/*   Attendance ledger
  /api/leave/*        Leave registry and decisions
  /api/payroll/*      Payroll aggregation
  /api/audit          Audit trail query
  /api/scenarios/*    Demo data

SECURITY NOTE:
  No authentication middleware. X-Actor is trusted as sent; put an
  authenticating proxy in front that sets it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/workforce-engine/generic"
)

// ActorHeader names the acting admin.
const ActorHeader = "X-Actor"

// RouterOptions holds the tunables cmd/server reads from config.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", ActorHeader},
		AllowCredentials: true,
	}))
	r.Use(ActorMiddleware)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/attendance/{username}", func(r chi.Router) {
			r.Get("/", h.ListAttendance)
			r.Get("/month/{yearMonth}", h.GetMonthSummary)
			r.Get("/{date}", h.GetAttendance)
			r.Put("/{date}", h.MarkAttendance)
			r.Delete("/{date}", h.RemoveAttendance)
		})

		r.Route("/leave", func(r chi.Router) {
			r.Post("/", h.SubmitLeave)
			r.Get("/pending", h.ListPendingLeave)
			r.Get("/{username}", h.ListUserLeave)
			r.Get("/{username}/{id}", h.GetLeave)
			r.Post("/{username}/{id}/approve", h.ApproveLeave)
			r.Post("/{username}/{id}/reject", h.RejectLeave)
			r.Post("/{username}/{id}/reconsider", h.ReconsiderLeave)
		})

		r.Route("/payroll", func(r chi.Router) {
			r.Post("/preview", h.PreviewPayroll)
			r.Post("/bulk-paid", h.BulkMarkPaid)
			r.Get("/{username}/{yearMonth}", h.GetPayroll)
			r.Put("/{username}/{yearMonth}", h.SavePayroll)
			r.Put("/{username}/{yearMonth}/status", h.SetPaymentStatus)
			r.Get("/{username}/{yearMonth}/days", h.GetPayrollDays)
		})

		r.Get("/audit", h.QueryAudit)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}

// ActorMiddleware puts the X-Actor header on the request context. Requests
// without it act as generic.SystemActor.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			r = r.WithContext(generic.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
