/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, echoed in X-Request-Id
  2. Logger:     zap request log with request id and trace id
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a frontend

ROUTE GROUPS:
  /api/properties, /api/units      Owner context and reports per property
  /api/obligations, /api/charges   Billing: obligations, payments, late fees
  /api/late-fee-configs, /api/sweep
  /api/trust                       Trust accounts
  /api/categories, /api/expenses   Expense ledger
  /api/receipts                    Receipt queue
  /api/reports                     Cross-property reports
  /api/scenarios                   Demo scenarios
  /health                          Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

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

// RouterConfig holds transport settings.
type RouterConfig struct {
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
			ExposedHeaders:   []string{"X-Request-Id", "Content-Disposition"},
			AllowCredentials: true,
		}))
	}

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		// Property routes
		r.Route("/properties", func(r chi.Router) {
			r.Get("/", h.ListProperties)
			r.Post("/", h.CreateProperty)
			r.Get("/{id}", h.GetProperty)
			r.Get("/{id}/units", h.ListUnits)
			r.Post("/{id}/units", h.CreateUnit)
			r.Get("/{id}/rent-roll", h.RentRoll)
			r.Get("/{id}/aging", h.Aging)
		})
		r.Post("/units/{id}/leases", h.CreateLease)

		// Obligation routes
		r.Route("/obligations", func(r chi.Router) {
			r.Get("/", h.ListObligations)
			r.Post("/", h.CreateObligation)
			r.Get("/{id}", h.GetObligation)
			r.Delete("/{id}", h.DeactivateObligation)
			r.Post("/{id}/supersede", h.SupersedeObligation)
			r.Get("/{id}/outstanding", h.GetOutstanding)
			r.Get("/{id}/payments", h.ListPayments)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Get("/{id}/charges", h.ListCharges)
			r.Post("/{id}/sweep", h.SweepObligation)
		})

		// Late-fee routes
		r.Route("/late-fee-configs", func(r chi.Router) {
			r.Get("/", h.ListLateFeeConfigs)
			r.Post("/", h.SetLateFeeConfig)
		})
		r.Post("/charges/{id}/waive", h.WaiveCharge)
		r.Get("/payments/{id}/allocations", h.GetAllocations)
		r.Post("/sweep", h.TriggerSweep)

		// Trust routes
		r.Route("/trust", func(r chi.Router) {
			r.Get("/accounts", h.ListAccounts)
			r.Post("/accounts", h.OpenAccount)
			r.Get("/accounts/{id}", h.GetAccount)
			r.Get("/accounts/{id}/transactions", h.AccountHistory)
			r.Post("/accounts/{id}/deposits", h.Deposit)
			r.Post("/accounts/{id}/withdrawals", h.Withdraw)
			r.Get("/accounts/{id}/reconcile", h.ReconcileAccount)
			r.Post("/transfers", h.Transfer)
			r.Post("/reconcile", h.ReconcileAll)
		})

		// Expense routes
		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.ListCategories)
			r.Post("/", h.CreateCategory)
			r.Get("/{id}", h.GetCategory)
			r.Patch("/{id}", h.UpdateCategory)
			r.Post("/{id}/deactivate", h.DeactivateCategory)
		})
		r.Route("/expenses", func(r chi.Router) {
			r.Get("/", h.ListExpenses)
			r.Post("/", h.RecordExpense)
			r.Get("/{id}", h.GetExpense)
			r.Post("/{id}/status", h.UpdateExpenseStatus)
			r.Put("/{id}/category", h.RecategorizeExpense)
		})
		r.Route("/receipts", func(r chi.Router) {
			r.Post("/", h.SubmitReceipt)
			r.Get("/{id}/draft", h.DraftFromReceipt)
		})

		// Report routes
		r.Get("/reports/expenses", h.ExpenseReport)

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
