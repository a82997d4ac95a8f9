// Package tracking caches the public order tracking view in Redis.
package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nazeru/storefront-go/internal/order/domain"
	"github.com/nazeru/storefront-go/pkg/logging"
)

const (
	keyPrefix   = "storefront:tracking:"
	floorPrefix = "storefront:tracking-floor:"
	defaultTTL  = 30 * time.Second
)

// storeScript writes a view unless an invalidation recorded a newer version
// for the order after the view was loaded.
// KEYS: view, floor. ARGV: payload, version, ttl in ms.
const storeScript = `
local floor = redis.call('GET', KEYS[2])
if floor and tonumber(ARGV[2]) < tonumber(floor) then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`

// Cache is a cache-aside store for tracking views. Concurrent misses for one
// order number share a single load. Redis failures degrade to a direct load.
type Cache struct {
	rdb   redis.Cmdable
	ttl   time.Duration
	log   *zap.Logger
	group singleflight.Group
}

func NewCache(rdb redis.Cmdable, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{rdb: rdb, ttl: ttl, log: log}
}

func Key(number string) string {
	return keyPrefix + number
}

func floorKey(number string) string {
	return floorPrefix + number
}

func (c *Cache) Fetch(ctx context.Context, number string, load func(ctx context.Context) (domain.Tracking, error)) (domain.Tracking, error) {
	raw, err := c.rdb.Get(ctx, Key(number)).Bytes()
	switch {
	case err == nil:
		var t domain.Tracking
		if uerr := json.Unmarshal(raw, &t); uerr == nil {
			return t, nil
		}
		c.log.Warn("tracking cache entry unreadable", logging.OrderNumber(number))
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn("tracking cache read failed", logging.OrderNumber(number), zap.Error(err))
		return load(ctx)
	}

	v, err, _ := c.group.Do(number, func() (any, error) {
		t, err := load(ctx)
		if err != nil {
			return domain.Tracking{}, err
		}
		c.store(ctx, number, t)
		return t, nil
	})
	if err != nil {
		return domain.Tracking{}, err
	}
	return v.(domain.Tracking), nil
}

func (c *Cache) store(ctx context.Context, number string, t domain.Tracking) {
	data, err := json.Marshal(t)
	if err != nil {
		c.log.Warn("tracking cache encode failed", logging.OrderNumber(number), zap.Error(err))
		return
	}
	stored, err := c.rdb.Eval(ctx, storeScript,
		[]string{Key(number), floorKey(number)},
		string(data), t.Version(), c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		c.log.Warn("tracking cache write failed", logging.OrderNumber(number), zap.Error(err))
		return
	}
	if stored == 0 {
		c.log.Debug("stale tracking view not cached", logging.OrderNumber(number))
	}
}

// Invalidate drops the cached view and records version as the oldest view
// that may be cached again, so a load that raced the change cannot write
// the old view back.
func (c *Cache) Invalidate(ctx context.Context, number string, version int64) error {
	if err := c.rdb.Set(ctx, floorKey(number), version, c.ttl).Err(); err != nil {
		return err
	}
	return c.rdb.Del(ctx, Key(number)).Err()
}
