// Package pricecache wraps a price oracle with a shared Redis cache so that
// tight monitor loops do not hammer the upstream price API.
package pricecache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"dexpilot/internal/ports"
)

const defaultTTL = 3 * time.Second

// errCacheMiss signals an absent key regardless of the backing store.
var errCacheMiss = errors.New("price cache miss")

// kvStore is the slice of Redis the cache needs.
type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

type redisStore struct {
	client redis.UniversalClient
}

func (s redisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", errCacheMiss
	}
	return val, err
}

func (s redisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// CachedOracle is a read-through ports.PriceOracle decorator. Cache failures
// degrade to the inner oracle instead of failing the lookup.
type CachedOracle struct {
	inner  ports.PriceOracle
	store  kvStore
	ttl    time.Duration
	logger ports.Logger
}

// Config holds configuration for the cached oracle.
type Config struct {
	Inner  ports.PriceOracle
	Client redis.UniversalClient
	TTL    time.Duration
	Logger ports.Logger
}

// New creates a caching decorator around an existing oracle.
func New(cfg Config) (*CachedOracle, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redis client is required for price cache")
	}
	return newWithStore(cfg.Inner, redisStore{client: cfg.Client}, cfg.TTL, cfg.Logger)
}

func newWithStore(inner ports.PriceOracle, store kvStore, ttl time.Duration, logger ports.Logger) (*CachedOracle, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner oracle is required for price cache")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for price cache")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &CachedOracle{inner: inner, store: store, ttl: ttl, logger: logger}, nil
}

func cacheKey(pair string) string {
	return "price:" + pair
}

// GetPrice returns the cached price for the pair, falling back to the inner
// oracle on a miss. Only positive prices are cached; a zero price means the
// upstream has no data and must be re-asked next tick.
func (c *CachedOracle) GetPrice(ctx context.Context, pair string) (float64, error) {
	key := cacheKey(pair)

	cached, err := c.store.Get(ctx, key)
	if err == nil {
		price, parseErr := strconv.ParseFloat(cached, 64)
		if parseErr == nil && price > 0 {
			return price, nil
		}
	} else if !errors.Is(err, errCacheMiss) {
		c.logger.Warn(ctx, "price cache read failed", map[string]interface{}{
			"pair": pair, "error": err.Error(),
		})
	}

	price, err := c.inner.GetPrice(ctx, pair)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return price, nil
	}

	if err := c.store.Set(ctx, key, strconv.FormatFloat(price, 'f', -1, 64), c.ttl); err != nil {
		c.logger.Warn(ctx, "price cache write failed", map[string]interface{}{
			"pair": pair, "error": err.Error(),
		})
	}
	return price, nil
}
