package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/infra/observability"
	"github.com/boddenberg/finance-core/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Pinger reports whether the document store backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles everything the router exposes.
type Services struct {
	Transactions *service.TransactionService
	Categories   *service.CategoryService
	Merchants    *service.MerchantAggregator
	Statistics   *service.StatisticsAggregator
	Auth         *service.AuthService

	// Store and Backend feed /healthz and /readyz. Store may be nil.
	Store   Pinger
	Backend string
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svc Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svc.Store, svc.Backend, logger))
	r.Get("/readyz", readyzHandler(svc.Store, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/core", coreMetricsHandler(metrics))

		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(svc.Auth, logger))

			// Statistics
			r.Get("/statistics", statisticsHandler(svc.Statistics, logger))

			// Transactions
			r.Get("/transactions", listTransactionsHandler(svc.Transactions, logger))
			r.Post("/transactions", createTransactionHandler(svc.Transactions, logger))
			r.Get("/transactions/{transactionId}", getTransactionHandler(svc.Transactions, logger))
			r.Put("/transactions/{transactionId}", updateTransactionHandler(svc.Transactions, logger))
			r.Delete("/transactions/{transactionId}", deleteTransactionHandler(svc.Transactions, logger))

			// Categories
			r.Get("/categories", listCategoriesHandler(svc.Categories, logger))
			r.Post("/categories", addCategoryHandler(svc.Categories, logger))
			r.Post("/categories/seed", seedCategoriesHandler(svc.Categories, logger))
			r.Delete("/categories/{categoryId}", deleteCategoryHandler(svc.Categories, logger))

			// Merchants
			r.Get("/merchants", listMerchantsHandler(svc.Merchants, logger))
			r.Post("/merchants/resolve", resolveMerchantHandler(svc.Merchants, logger))
			r.Get("/merchants/{merchantId}", getMerchantHandler(svc.Merchants, logger))
			r.Delete("/merchants/{merchantId}", deleteMerchantHandler(svc.Merchants, logger))
			r.Put("/merchants/{merchantId}/note", updateMerchantNoteHandler(svc.Merchants, logger))
			r.Post("/merchants/{merchantId}/transactions", recordMerchantTransactionHandler(svc.Merchants, logger))
		})
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(store Pinger, backend string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "finance-core", Status: "healthy", LastChecked: now},
		}

		if store != nil {
			start := time.Now()
			err := store.Ping(r.Context())
			status := "healthy"
			if err != nil {
				logger.Warn("store ping failed", zap.String("backend", backend), zap.Error(err))
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name:        backend,
				Status:      status,
				LatencyMs:   time.Since(start).Milliseconds(),
				LastChecked: now,
			})
		}

		overall := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overall = s.Status
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler(store Pinger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := store.Ping(ctx); err != nil {
				logger.Warn("not ready", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func coreMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}
