// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	Port           string
	DatabaseURL    string
	Store          string
	RequestTimeout time.Duration
	LogLevel       string

	RedisAddr        string
	TrackingCacheTTL time.Duration

	KafkaBrokers       string
	KafkaTopic         string
	KafkaGroupID       string
	OutboxPollInterval time.Duration

	StrictTransitions bool

	// SeedCatalog upserts the demo products at startup.
	SeedCatalog bool
}

// Read loads configuration once at startup. DATABASE_URL is required unless
// STORE=memory.
func Read() (Config, error) {
	cfg := Config{
		Port:         getenv("PORT", "8080"),
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Store:        strings.ToLower(getenv("STORE", StorePostgres)),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		RedisAddr:    getenv("REDIS_ADDR", ""),
		KafkaBrokers: getenv("KAFKA_BROKERS", ""),
		KafkaTopic:   getenv("KAFKA_TOPIC", "storefront.orders"),
		KafkaGroupID: getenv("KAFKA_GROUP_ID", "notification-service"),
	}

	toutMS, err := strconv.Atoi(getenv("REQUEST_TIMEOUT_MS", "2500"))
	if err != nil || toutMS <= 0 {
		return Config{}, errors.New("REQUEST_TIMEOUT_MS must be a positive integer")
	}
	cfg.RequestTimeout = time.Duration(toutMS) * time.Millisecond

	if cfg.TrackingCacheTTL, err = time.ParseDuration(getenv("TRACKING_CACHE_TTL", "30s")); err != nil {
		return Config{}, fmt.Errorf("TRACKING_CACHE_TTL: %w", err)
	}
	if cfg.OutboxPollInterval, err = time.ParseDuration(getenv("OUTBOX_POLL_INTERVAL", "1s")); err != nil {
		return Config{}, fmt.Errorf("OUTBOX_POLL_INTERVAL: %w", err)
	}
	if cfg.StrictTransitions, err = parseBool(getenv("STRICT_STATUS_TRANSITIONS", "true")); err != nil {
		return Config{}, fmt.Errorf("STRICT_STATUS_TRANSITIONS: %w", err)
	}

	seedDefault := "false"
	if cfg.Store == StoreMemory {
		seedDefault = "true"
	}
	if cfg.SeedCatalog, err = parseBool(getenv("SEED_DEMO_CATALOG", seedDefault)); err != nil {
		return Config{}, fmt.Errorf("SEED_DEMO_CATALOG: %w", err)
	}

	switch cfg.Store {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return Config{}, errors.New("DATABASE_URL is required")
		}
	case StoreMemory:
	default:
		return Config{}, fmt.Errorf("STORE must be %q or %q, got %q", StorePostgres, StoreMemory, cfg.Store)
	}
	return cfg, nil
}

func parseBool(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true, nil
	case "0", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", v)
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
