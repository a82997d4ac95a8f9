package logging

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a JSON logger tagged with the service name. Every line carries
// "service" and an ISO8601 "timestamp" so lines from different binaries can be
// merged into one stream.
func New(service, level string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if strings.TrimSpace(level) != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, err
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.InitialFields = map[string]any{"service": service}

	return cfg.Build()
}

func OrderID(v string) zap.Field     { return zap.String("order_id", v) }
func OrderNumber(v string) zap.Field { return zap.String("order_number", v) }
func ProductID(v string) zap.Field   { return zap.String("product_id", v) }
func EventID(v string) zap.Field     { return zap.String("event_id", v) }
func Step(v string) zap.Field        { return zap.String("step", v) }
func Status(v string) zap.Field      { return zap.String("status", v) }

func Duration(d time.Duration) zap.Field {
	return zap.Int64("duration_ms", d.Milliseconds())
}
