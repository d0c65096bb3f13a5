// Package app builds the shared components from configuration for the
// server and CLI entrypoints.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/postpulse/postpulse-backend/internal/config"
	"github.com/postpulse/postpulse-backend/internal/metrics"
	"github.com/postpulse/postpulse-backend/internal/pipeline"
	"github.com/postpulse/postpulse-backend/internal/repository"
	"github.com/postpulse/postpulse-backend/internal/sources"
	"github.com/postpulse/postpulse-backend/internal/sources/linkedin"
	"github.com/postpulse/postpulse-backend/internal/sources/mock"
	"github.com/postpulse/postpulse-backend/internal/store"
	"github.com/postpulse/postpulse-backend/pkg/kv"
	_ "github.com/postpulse/postpulse-backend/pkg/kv/memory"
	kvredis "github.com/postpulse/postpulse-backend/pkg/kv/redis"
)

// NewProvider returns the upstream source selected by PP_SOURCE_PROVIDER.
func NewProvider(cfg *config.Config, logger *zap.SugaredLogger, m *metrics.Metrics) sources.Provider {
	if cfg.Source.Provider == "mock" {
		logger.Infow("Using synthetic data provider", "seed", cfg.Source.MockSeed, "posts", cfg.Source.MockPostCount)
		return mock.NewGenerator(logger, cfg.Source.MockSeed, cfg.Source.MockPostCount)
	}

	var observer sources.Observer
	if m != nil {
		observer = m
	}
	return linkedin.NewProvider(linkedin.Options{
		BaseURL:    cfg.Source.BaseURL,
		APIVersion: cfg.Source.APIVersion,
		Timeout:    cfg.Source.Timeout,
		PageSize:   cfg.Source.PageSize,
		MaxPages:   cfg.Source.MaxPages,
	}, logger, observer)
}

// NewPipeline builds the uncached pipeline service.
func NewPipeline(cfg *config.Config, provider sources.Provider, logger *zap.SugaredLogger, m *metrics.Metrics) (*pipeline.Service, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return pipeline.NewService(provider, pipeline.Options{
		TrendDays:        cfg.Pipeline.TrendDays,
		TimelineLimit:    cfg.Pipeline.TimelineLimit,
		MediaProxyPrefix: cfg.Pipeline.MediaProxyPrefix,
		StableIDs:        cfg.Pipeline.StableSnapshotIDs,
		Location:         loc,
	}, logger, m), nil
}

// NewCache opens the configured key/value backend and pairs it with a pub/sub
// broker. Redis stores share their client with a Redis broker; every other
// backend publishes in process.
func NewCache(cfg *config.Config, logger *zap.SugaredLogger, m *metrics.Metrics) (*store.Cache, error) {
	kvStore, err := kv.NewStoreFromConfig(kv.Config{
		Backend:   kv.Backend(cfg.Cache.Backend),
		RedisAddr: cfg.Cache.RedisAddr,
		Logger:    logger.Infow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Cache.Backend, err)
	}

	var broker store.Broker
	if rs, ok := kvStore.(*kvredis.Store); ok {
		broker = store.NewRedisBroker(rs.Client(), logger)
	} else {
		broker = store.NewMemoryBroker()
	}
	logger.Infow("Cache ready", "backend", cfg.Cache.Backend, "broker", fmt.Sprintf("%T", broker))
	return store.NewCache(kvStore, broker, logger, m), nil
}

// NewRepository opens the configured repository and applies migrations.
func NewRepository(cfg *config.Config, logger *zap.SugaredLogger) (repository.Repository, error) {
	return repository.New(repository.Config{
		Driver:      cfg.Database.Driver,
		DSN:         cfg.Database.DSN,
		AutoMigrate: true,
	}, logger)
}
