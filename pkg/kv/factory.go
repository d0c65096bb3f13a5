package kv

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Backend represents the storage backend type
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendFailover Backend = "failover"
)

// Config holds configuration for creating a Store instance
type Config struct {
	Backend Backend

	// RedisAddr is host:port or a redis:// URL.
	RedisAddr string

	// JanitorInterval controls how often the memory store evicts expired keys.
	// Zero selects 30 seconds.
	JanitorInterval time.Duration

	// ProbeInterval controls how often a failed-over store probes Redis.
	ProbeInterval time.Duration

	// StartupProbeTimeout bounds the initial Redis ping.
	StartupProbeTimeout time.Duration

	// Logger receives failover events. Optional.
	Logger LogFunc
}

// StoreFactory defines a function that creates a Store instance
type StoreFactory func(cfg Config) (Store, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[Backend]StoreFactory)
)

// RegisterBackend registers a store factory for a given backend
func RegisterBackend(backend Backend, factory StoreFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[backend] = factory
}

func lookup(backend Backend) (StoreFactory, error) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[backend]
	if !ok {
		return nil, fmt.Errorf("%s backend not registered", backend)
	}
	return f, nil
}

// NewStoreFromConfig creates a Store for cfg.Backend.
//
// The redis backend fails when Redis is unreachable. The failover backend
// starts on whichever of Redis or memory is healthy and keeps probing Redis.
func NewStoreFromConfig(cfg Config) (Store, error) {
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 30 * time.Second
	}
	if cfg.ProbeInterval == 0 {
		cfg.ProbeInterval = 5 * time.Second
	}
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = func(string, ...any) {}
	}

	switch cfg.Backend {
	case BackendMemory, "":
		f, err := lookup(BackendMemory)
		if err != nil {
			return nil, err
		}
		return f(cfg)

	case BackendRedis:
		store, err := newRedis(cfg)
		if err != nil {
			return nil, err
		}
		if err := ping(store, cfg.StartupProbeTimeout); err != nil {
			store.Close()
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		return store, nil

	case BackendFailover:
		return newFailover(cfg)

	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis, BackendFailover)
	}
}

func newRedis(cfg Config) (Store, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("redis address is required for backend %s", cfg.Backend)
	}
	f, err := lookup(BackendRedis)
	if err != nil {
		return nil, err
	}
	return f(cfg)
}

func newFailover(cfg Config) (Store, error) {
	memFactory, err := lookup(BackendMemory)
	if err != nil {
		return nil, err
	}
	memoryStore, err := memFactory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory store for failover: %w", err)
	}

	redisStore, err := newRedis(cfg)
	if err != nil {
		cfg.Logger("Redis unavailable at startup; using in-memory store", "error", err.Error())
		return memoryStore, nil
	}

	if err := ping(redisStore, cfg.StartupProbeTimeout); err != nil {
		cfg.Logger("Redis unhealthy at startup; using in-memory store and probing", "error", err.Error())
		return NewFailoverStoreWithFallbackActive(redisStore, memoryStore, cfg.ProbeInterval, cfg.Logger), nil
	}

	cfg.Logger("Redis healthy at startup; using Redis with in-memory failover")
	return NewFailoverStore(redisStore, memoryStore, cfg.ProbeInterval, cfg.Logger), nil
}

func ping(s Store, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Ping(ctx)
}
