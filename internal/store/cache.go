package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/postpulse/postpulse-backend/internal/metrics"
	"github.com/postpulse/postpulse-backend/pkg/kv"
	"go.uber.org/zap"
)

// ErrCacheMiss is returned by Get when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Cache key namespaces
const (
	KeyTimeline = "pp:timeline"
	KeyScore    = "pp:score"
	KeyPartner  = "pp:partner-feed"
)

// Key joins a namespace with its parts.
func Key(namespace string, parts ...string) string {
	return strings.Join(append([]string{namespace}, parts...), ":")
}

// Cache stores JSON values in a kv.Store and fans out update events through a
// Broker.
type Cache struct {
	kv     kv.Store
	broker Broker

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(store kv.Store, broker Broker, logger *zap.SugaredLogger, m *metrics.Metrics) *Cache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if broker == nil {
		broker = NewMemoryBroker()
	}
	return &Cache{kv: store, broker: broker, logger: logger, metrics: m}
}

// namespace trims the variable suffix off a key so metric labels stay bounded.
func namespace(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[0] + ":" + parts[1]
}

func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	data, err := c.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			c.metrics.RecordCacheMiss(ctx, namespace(key))
			return ErrCacheMiss
		}
		c.logger.Errorw("Cache get error", "key", key, "error", err)
		return fmt.Errorf("cache get error: %w", err)
	}
	c.metrics.RecordCacheHit(ctx, namespace(key))

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if err := c.kv.Set(ctx, key, data, ttl); err != nil {
		c.logger.Errorw("Cache set error", "key", key, "error", err)
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, err := c.kv.Del(ctx, keys...); err != nil {
		c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := c.kv.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	return ok, nil
}

// Remaining returns how long key stays cached; -1 means no expiry.
func (c *Cache) Remaining(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.kv.TTL(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, ErrCacheMiss
	}
	return ttl, err
}

// Publish marshals message to JSON and sends it on channel.
func (c *Cache) Publish(ctx context.Context, channel string, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}
	if err := c.broker.Publish(ctx, channel, data); err != nil {
		c.logger.Errorw("Publish error", "channel", channel, "error", err)
		return fmt.Errorf("pubsub publish error: %w", err)
	}
	return nil
}

func (c *Cache) Subscribe(ctx context.Context, channels ...string) Subscription {
	return c.broker.Subscribe(ctx, channels...)
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.kv.Ping(ctx)
}

func (c *Cache) Close() error {
	return errors.Join(c.broker.Close(), c.kv.Close())
}
