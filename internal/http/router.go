package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_pos/internal/logger"
	"github.com/fjod/go_pos/internal/register"
	"github.com/fjod/go_pos/internal/syncer"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterConfig struct {
	Register       *register.Register
	Syncer         *syncer.Controller
	Logger         *logger.Logger
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
}

func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cartHandler := NewCartHandler(cfg.Register, log, timeout)
	productHandler := NewProductHandler(cfg.Register, log, timeout)
	transactionHandler := NewTransactionHandler(cfg.Register, log, timeout)
	syncHandler := NewSyncHandler(cfg.Syncer, cfg.Register.Queue(), cfg.Register.Online, log, timeout)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status": "ok",
			"online": cfg.Register.Online(),
		})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Post("/refresh", productHandler.RefreshProducts)
		})
		r.Get("/categories", productHandler.ListCategories)
		r.Get("/payment-methods", productHandler.PaymentMethods)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Put("/items/{item_id}", cartHandler.UpdateQuantity)
			r.Delete("/items/{item_id}", cartHandler.RemoveItem)
		})
		r.Post("/checkout", cartHandler.Checkout)

		r.Route("/pending", func(r chi.Router) {
			r.Get("/", syncHandler.ListPending)
			r.Delete("/", syncHandler.ClearPending)
			r.Delete("/{local_id}", syncHandler.RemovePending)
		})
		r.Route("/sync", func(r chi.Router) {
			r.Get("/", syncHandler.Status)
			r.Post("/", syncHandler.Sync)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", transactionHandler.ListTransactions)
			r.Get("/{id}/refund", transactionHandler.RefundForm)
			r.Post("/{id}/refund", transactionHandler.RefundTransaction)
		})
		r.Route("/refunds", func(r chi.Router) {
			r.Get("/", transactionHandler.ListRefunds)
			r.Post("/", transactionHandler.CreateRefund)
		})
	})

	return r
}
