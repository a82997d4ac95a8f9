package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/nazeru/storefront-go/pkg/logging"
)

const defaultBatch = 100

// Store is the relay's view of the outbox table.
type Store interface {
	Pending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Pending(ctx context.Context, limit int) ([]Record, error) {
	return FetchPending(ctx, s.pool, limit)
}

func (s *PGStore) MarkSent(ctx context.Context, id int64) error {
	return MarkSent(ctx, s.pool, id)
}

// Relay publishes pending outbox records in id order. A record is marked
// sent only after the broker accepted it, so delivery is at least once.
type Relay struct {
	store    Store
	pub      Publisher
	log      *zap.Logger
	interval time.Duration
	batch    int
}

func NewRelay(store Store, pub Publisher, log *zap.Logger, interval time.Duration) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	return &Relay{store: store, pub: pub, log: log, interval: interval, batch: defaultBatch}
}

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("outbox relay flush failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many records were sent. It
// stops at the first publish failure to keep per-order ordering.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	recs, err := r.store.Pending(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, rec := range recs {
		msg := kafka.Message{Topic: rec.Topic, Key: []byte(rec.Key), Value: rec.Payload, Time: rec.CreatedAt}
		if err := r.pub.WriteMessages(ctx, msg); err != nil {
			return sent, err
		}
		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			return sent, err
		}
		r.log.Debug("outbox event published", logging.EventID(rec.EventID), zap.String("topic", rec.Topic))
		sent++
	}
	return sent, nil
}
