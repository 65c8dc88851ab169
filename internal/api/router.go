package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fastprodman/creditledger/internal/auth"
)

const requestTimeout = 10 * time.Second

// NewRouter registers every endpoint. All /v1 routes require a bearer token
// and provision the caller's account on first contact.
func NewRouter(svc Services, resolver auth.Resolver, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	h := NewHandler(svc, log)
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(resolver))
		r.Use(provisionAccount(svc.Ledger))

		r.Get("/credits/balance", h.GetBalanceHandler)
		r.Get("/credits/transactions", h.ListTransactionsHandler)
		r.Get("/credits/eligibility", h.EligibilityHandler)
		r.Post("/sessions/start", h.StartSessionHandler)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)

			r.Post("/refunds", h.RefundHandler)
			r.Get("/accounts/{userId}/audit", h.AuditHandler)
		})
	})

	return r
}
