package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apiorder "github.com/nazeru/storefront-go/internal/api/order"
	"github.com/nazeru/storefront-go/internal/catalog"
	"github.com/nazeru/storefront-go/internal/config"
	"github.com/nazeru/storefront-go/internal/order"
	"github.com/nazeru/storefront-go/internal/order/tracking"
	"github.com/nazeru/storefront-go/internal/order/tx"
	"github.com/nazeru/storefront-go/internal/storage/postgres"
	"github.com/nazeru/storefront-go/pkg/kafka"
	"github.com/nazeru/storefront-go/pkg/logging"
	"github.com/nazeru/storefront-go/pkg/metrics"
	"github.com/nazeru/storefront-go/pkg/outbox"
)

type catalogStore interface {
	tx.Catalog
	Upsert(ctx context.Context, p catalog.Product) error
}

func main() {
	cfg, err := config.Read()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New("storefront", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srvMetrics := metrics.NewServerMetrics(reg, "api")
	orderMetrics := metrics.NewOrderMetrics(reg)

	var (
		pool   *pgxpool.Pool
		store  catalogStore
		ledger order.Ledger
	)
	switch cfg.Store {
	case config.StoreMemory:
		store, ledger = catalog.NewMemoryStore(), order.NewMemoryLedger()
	default:
		pool, err = postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("database unavailable", zap.Error(err))
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			logger.Fatal("migration failed", zap.Error(err))
		}
		store, ledger = catalog.NewPostgresStore(pool), order.NewPostgresLedger(pool, cfg.KafkaTopic)
	}
	if cfg.SeedCatalog {
		seedDemoCatalog(ctx, store, logger)
	}

	deps := order.Deps{
		Ledger:            ledger,
		Catalog:           store,
		Logger:            logger,
		Metrics:           orderMetrics,
		StrictTransitions: cfg.StrictTransitions,
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		deps.Tracking = tracking.NewCache(rdb, cfg.TrackingCacheTTL, logger)
	}

	svc, err := order.NewService(deps)
	if err != nil {
		logger.Fatal("order service", zap.Error(err))
	}

	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
	if kafkaClient.Enabled() && pool != nil {
		writer := kafkaClient.NewWriter()
		defer writer.Close()
		relay := outbox.NewRelay(outbox.NewPGStore(pool), writer, logger, cfg.OutboxPollInterval)
		go relay.Run(ctx)
		logger.Info("outbox relay started", zap.String("topic", cfg.KafkaTopic))
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID, middleware.Recoverer, srvMetrics.Middleware, middleware.Timeout(cfg.RequestTimeout))
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if pool != nil {
			if err := postgres.Ping(r.Context(), pool); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "db_error"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "store": cfg.Store})
	})
	router.Handle("/metrics", metrics.Handler(reg))
	apiorder.NewOrderHandler(svc, logger).RegisterRoutes()(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("storefront listening",
		zap.String("port", cfg.Port), zap.String("store", cfg.Store), zap.Bool("strict_transitions", cfg.StrictTransitions))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func seedDemoCatalog(ctx context.Context, store catalogStore, logger *zap.Logger) {
	demo := []catalog.Product{
		{ID: "P1", SKU: "MUG-001", Name: "Ceramic Mug", Category: "kitchen", Price: decimal.RequireFromString("10.00"), Stock: 50, IsActive: true},
		{ID: "P2", SKU: "LMP-001", Name: "Desk Lamp", Category: "home", Price: decimal.RequireFromString("30.00"), Stock: 20, IsActive: true},
		{ID: "P3", SKU: "NTB-001", Name: "Notebook", Category: "office", Price: decimal.RequireFromString("4.50"), Stock: 200, IsActive: true},
		{ID: "P4", SKU: "CHR-001", Name: "Office Chair", Category: "office", Price: decimal.RequireFromString("149.99"), Stock: 3, IsActive: true},
	}
	for _, p := range demo {
		if err := store.Upsert(ctx, p); err != nil {
			logger.Warn("demo product not seeded", logging.ProductID(p.ID), zap.Error(err))
		}
	}
	logger.Info("demo catalog seeded", zap.Int("products", len(demo)))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
