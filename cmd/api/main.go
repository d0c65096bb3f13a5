package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/postpulse/postpulse-backend/internal/api"
	"github.com/postpulse/postpulse-backend/internal/app"
	"github.com/postpulse/postpulse-backend/internal/config"
	"github.com/postpulse/postpulse-backend/internal/jobs"
	"github.com/postpulse/postpulse-backend/internal/log"
	"github.com/postpulse/postpulse-backend/internal/metrics"
	"github.com/postpulse/postpulse-backend/internal/pipeline"
	"github.com/postpulse/postpulse-backend/internal/synergy"
	"github.com/postpulse/postpulse-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting PostPulse API server",
		"env", cfg.Env,
		"addr", cfg.HTTPAddr,
		"provider", cfg.Source.Provider,
	)

	metricsObj, metricsHandler, err := metrics.Setup("postpulse-api")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	cache, err := app.NewCache(cfg, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to setup cache", "error", err)
	}
	defer cache.Close()

	repo, err := app.NewRepository(cfg, logger)
	if err != nil {
		logger.Fatalw("Failed to initialize repository", "error", err)
	}
	defer repo.Close()

	provider := app.NewProvider(cfg, logger, metricsObj)
	svc, err := app.NewPipeline(cfg, provider, logger, metricsObj)
	if err != nil {
		logger.Fatalw("Failed to build pipeline", "error", err)
	}
	runner := pipeline.NewCached(svc, cache, pipeline.CacheOptions{
		TTL:         cfg.Cache.TTL,
		DegradedTTL: cfg.Cache.DegradedTTL,
		RunTimeout:  cfg.Pipeline.RunTimeout,
	}, logger)
	partners := synergy.NewService(repo, runner, provider, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	hub := ws.NewHub(cache, logger, metricsObj, cfg.Security.CORSAllowedOrigins)
	go hub.Run(bgCtx)

	pruner := jobs.NewHistoryPruner(repo, logger, jobs.HistoryPrunerConfig{
		Retention: cfg.History.Retention,
		Interval:  cfg.History.PruneInterval,
	})
	go func() {
		if err := pruner.Start(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Errorw("History pruner stopped", "error", err)
		}
	}()

	handler := api.NewHandler(api.Deps{
		Runner:   runner,
		Partners: partners,
		History:  repo,
		Stream:   hub,
		Checks: map[string]api.Pinger{
			"cache":      cache,
			"repository": repo,
		},
		Logger: logger,
	})
	middleware := api.NewMiddleware(logger, metricsObj)
	router := handler.Routes(middleware, metricsHandler, cfg.Security.CORSAllowedOrigins, cfg.Security.RateLimitRPM)

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// No WriteTimeout: /v1/stream holds connections open; other routes carry
	// their own timeout middleware.
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		bgCancel()
		hub.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}
