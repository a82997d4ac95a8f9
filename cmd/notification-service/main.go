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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/nazeru/storefront-go/internal/config"
	"github.com/nazeru/storefront-go/internal/notification"
	"github.com/nazeru/storefront-go/internal/storage/postgres"
	"github.com/nazeru/storefront-go/pkg/contracts"
	"github.com/nazeru/storefront-go/pkg/kafka"
	"github.com/nazeru/storefront-go/pkg/logging"
	"github.com/nazeru/storefront-go/pkg/metrics"
)

const retryDelay = 2 * time.Second

func main() {
	cfg, err := config.Read()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.Store != config.StorePostgres {
		log.Fatal("config error: notification-service requires STORE=postgres")
	}

	logger, err := logging.New("notification-service", cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("database unavailable", zap.Error(err))
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	srvMetrics := metrics.NewServerMetrics(reg, "notification")
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "notification",
		Name:      "events_total",
		Help:      "Consumed order events, by type and result.",
	}, []string{"type", "result"})
	reg.MustRegister(consumed)

	kafkaClient := kafka.NewClient(cfg.KafkaBrokers)
	if kafkaClient.Enabled() {
		go consumeEvents(ctx, kafkaClient, cfg, notification.NewRecorder(pool), consumed, logger)
	} else {
		logger.Warn("KAFKA_BROKERS empty, consumer disabled")
	}

	router := chi.NewRouter()
	router.Use(srvMetrics.Middleware)
	router.Get("/health", healthHandler(pool))
	router.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("notification-service listening", zap.String("port", cfg.Port), zap.String("topic", cfg.KafkaTopic))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

func healthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := postgres.Ping(r.Context(), pool); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "db_error"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}
}

func consumeEvents(ctx context.Context, client *kafka.Client, cfg config.Config, rec *notification.Recorder, consumed *prometheus.CounterVec, logger *zap.Logger) {
	reader := client.NewReader(cfg.KafkaTopic, cfg.KafkaGroupID)
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read error", zap.Error(err))
			time.Sleep(retryDelay)
			continue
		}

		evt, err := contracts.Decode(msg.Value)
		if err != nil {
			logger.Warn("event decode error", zap.Int64("offset", msg.Offset), zap.Error(err))
			consumed.WithLabelValues("unknown", "malformed").Inc()
			_ = reader.CommitMessages(ctx, msg)
			continue
		}

		// Committing a later offset would skip this event, so it is retried
		// in place until it is stored.
		fresh, err := rec.Record(ctx, evt)
		for err != nil {
			logger.Error("notification save error", logging.EventID(evt.EventID), zap.Error(err))
			consumed.WithLabelValues(evt.Type, "error").Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
			fresh, err = rec.Record(ctx, evt)
		}

		result := "recorded"
		if !fresh {
			result = "duplicate"
		}
		consumed.WithLabelValues(evt.Type, result).Inc()
		logger.Info("order event consumed",
			logging.EventID(evt.EventID), logging.OrderNumber(evt.OrderNumber), logging.Step(evt.Type), logging.Status(result))

		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Warn("kafka commit error", logging.EventID(evt.EventID), zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
