package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/finance-core/internal/config"
	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/handler"
	"github.com/boddenberg/finance-core/internal/infra/amqp"
	"github.com/boddenberg/finance-core/internal/infra/cache"
	"github.com/boddenberg/finance-core/internal/infra/docstore"
	"github.com/boddenberg/finance-core/internal/infra/memory"
	"github.com/boddenberg/finance-core/internal/infra/observability"
	"github.com/boddenberg/finance-core/internal/infra/resilience"
	"github.com/boddenberg/finance-core/internal/infra/sqlite"
	"github.com/boddenberg/finance-core/internal/infra/supabase"
	"github.com/boddenberg/finance-core/internal/port"
	"github.com/boddenberg/finance-core/internal/service"

	"go.uber.org/zap"
)

// backendStore is what the entrypoint needs from a DocumentStore backend.
type backendStore interface {
	port.DocumentStore
	handler.Pinger
}

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}
	weekStart, _ := cfg.WeekStartDay()
	loc, _ := cfg.Location()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
		zap.String("week_start", weekStart.String()),
		zap.String("timezone", loc.String()),
	)

	// --- Tracing ---
	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "finance-core")
		if err != nil {
			logger.Fatal("failed to init tracer", zap.Error(err))
		}
		defer shutdown(context.Background())
	}

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Store ---
	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()
	repo := docstore.New(store, cfg.StoreBackend, metrics)

	// --- Cache ---
	categoryCache := cache.New[[]domain.Category](cfg.CacheTTL, cache.WithMetrics("categories", metrics))
	defer categoryCache.Close()

	// --- Services ---
	clock := port.SystemClock(loc)
	merchants := service.NewMerchantAggregator(repo, clock, metrics, logger)
	transactions := service.NewTransactionService(repo, merchants, clock, cfg.TransactionListLimit, metrics, logger)
	categories := service.NewCategoryService(repo, categoryCache, clock, metrics, logger)
	statistics := service.NewStatisticsAggregator(repo, repo, clock, weekStart, metrics, logger)
	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.JWTAccessTTL, logger)

	// --- Events ---
	if cfg.AMQPURL != "" {
		publisher, err := amqp.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Fatal("failed to connect to AMQP", zap.Error(err))
		}
		defer publisher.Close()

		stop := service.ForwardEvents(publisher, logger,
			merchants.Events(),
			transactions.Events(),
			categories.Events(),
		)
		defer stop()
	} else {
		logger.Info("AMQP_URL not set, change events stay in process")
	}

	// --- Router ---
	router := handler.NewRouter(handler.Services{
		Transactions: transactions,
		Categories:   categories,
		Merchants:    merchants,
		Statistics:   statistics,
		Auth:         authSvc,
		Store:        store,
		Backend:      cfg.StoreBackend,
	}, metrics, logger)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openStore builds the configured DocumentStore. The returned func releases it.
func openStore(cfg *config.Config, logger *zap.Logger) (backendStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		s, err := sqlite.NewStore(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing sqlite store", zap.Error(err))
			}
		}, nil

	case config.BackendSupabase:
		logger.Info("using Supabase as document store", zap.String("supabase_url", cfg.SupabaseURL))
		c := supabase.NewClient(
			&http.Client{Timeout: cfg.HTTPTimeout},
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"),
			resilience.Config{
				MaxRetries:     cfg.MaxRetries,
				InitialBackoff: cfg.InitialBackoff,
				MaxConcurrency: cfg.MaxConcurrency,
			},
			logger,
		)
		return c, func() {}, nil

	default:
		logger.Warn("using in-memory document store, data is lost on restart")
		return memory.NewStore(), func() {}, nil
	}
}
