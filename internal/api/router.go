package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/feastly/settlement/internal/payout"
	"github.com/feastly/settlement/internal/rates"
	"github.com/feastly/settlement/internal/repository"
	"github.com/feastly/settlement/internal/settlement"
)

// NewRouter creates the chi router with all API routes mounted.
func NewRouter(
	registry *rates.Registry,
	importer *rates.Importer,
	recorder *settlement.Recorder,
	batcher *payout.Batcher,
	txnRepo *repository.TransactionRepo,
	webhookSecret string,
	logger *zap.Logger,
) http.Handler {
	h := &Handlers{
		registry:      registry,
		importer:      importer,
		recorder:      recorder,
		batcher:       batcher,
		txnRepo:       txnRepo,
		webhookSecret: webhookSecret,
		logger:        logger,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Rates.
		r.Post("/rates", h.CreateRate)
		r.Post("/rates/import", h.ImportRates)
		r.Post("/rates/{id}/deactivate", h.DeactivateRate)
		r.Get("/rates/resolve", h.ResolveRate)

		// Payment events.
		r.Post("/webhooks/stripe", h.StripeWebhook)
		r.Post("/orders/{id}/paid", h.OrderPaid)
		r.Post("/orders/{id}/refund", h.OrderRefund)

		// Ledger.
		r.Get("/transactions", h.ListTransactions)
		r.Get("/vendors/{id}/balance", h.VendorBalance)
		r.Get("/dashboard", h.Dashboard)

		// Payouts.
		r.Post("/payouts/batches", h.CreateBatch)
		r.Get("/payouts/batches", h.ListBatches)
		r.Get("/payouts/batches/{id}", h.GetBatch)
		r.Post("/payouts/batches/{id}/processing", h.BatchProcessing)
		r.Post("/payouts/batches/{id}/complete", h.BatchComplete)
	})

	return r
}
