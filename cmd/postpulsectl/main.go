package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/postpulse/postpulse-backend/internal/app"
	"github.com/postpulse/postpulse-backend/internal/config"
	"github.com/postpulse/postpulse-backend/internal/log"
	"github.com/postpulse/postpulse-backend/internal/pipeline"
)

var (
	tokenFlag string
	daysFlag  int
	limitFlag int
	jsonFlag  bool
	rootCmd   = &cobra.Command{
		Use:           "postpulsectl",
		Short:         "Build LinkedIn timelines, analytics and scores from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// env carries what every subcommand needs.
type env struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	svc    *pipeline.Service
}

func newEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := log.NewSugar(cfg.Env, "warn")
	if err != nil {
		return nil, err
	}
	provider := app.NewProvider(cfg, logger, nil)
	svc, err := app.NewPipeline(cfg, provider, logger, nil)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, svc: svc}, nil
}

func token() (string, error) {
	if tokenFlag != "" {
		return tokenFlag, nil
	}
	if t := os.Getenv("PP_TOKEN"); t != "" {
		return t, nil
	}
	return "", fmt.Errorf("--token or PP_TOKEN required")
}

func run(ctx context.Context, e *env) (*pipeline.Result, error) {
	t, err := token()
	if err != nil {
		return nil, err
	}
	return e.svc.Run(ctx, pipeline.Request{Token: t, Days: daysFlag, Limit: limitFlag})
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&tokenFlag, "token", "t", "", "LinkedIn bearer token (or PP_TOKEN)")
	rootCmd.PersistentFlags().IntVarP(&daysFlag, "days", "d", 0, "Trend window in days (default PP_TREND_DAYS)")
	rootCmd.PersistentFlags().IntVarP(&limitFlag, "limit", "l", 0, "Maximum posts (default PP_TIMELINE_LIMIT)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print JSON instead of tables")

	rootCmd.AddCommand(timelineCmd(), analyticsCmd(), scoreCmd(), partnersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
