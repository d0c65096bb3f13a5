package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ScorePruner deletes score history older than a cutoff.
type ScorePruner interface {
	PruneScores(ctx context.Context, cutoff time.Time) (int64, error)
}

type HistoryPrunerConfig struct {
	Retention time.Duration // records older than this are deleted
	Interval  time.Duration // time between prune passes
}

// DefaultHistoryPrunerConfig keeps 90 days and prunes hourly.
func DefaultHistoryPrunerConfig() HistoryPrunerConfig {
	return HistoryPrunerConfig{
		Retention: 90 * 24 * time.Hour,
		Interval:  time.Hour,
	}
}

type HistoryPruner struct {
	repo   ScorePruner
	logger *zap.SugaredLogger
	config HistoryPrunerConfig
	now    func() time.Time

	mu        sync.Mutex
	cancelCtx context.CancelFunc
}

func NewHistoryPruner(repo ScorePruner, logger *zap.SugaredLogger, config HistoryPrunerConfig) *HistoryPruner {
	defaults := DefaultHistoryPrunerConfig()
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &HistoryPruner{repo: repo, logger: logger, config: config, now: time.Now}
}

// Start prunes once immediately and then every interval until ctx ends or
// Stop is called.
func (p *HistoryPruner) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancelCtx = cancel
	p.mu.Unlock()
	defer cancel()

	p.logger.Infow("Starting history pruner",
		"retention", p.config.Retention,
		"interval", p.config.Interval,
	)

	p.PruneOnce(ctx)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Infow("History pruner stopping due to context cancellation")
			return ctx.Err()
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}

func (p *HistoryPruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelCtx != nil {
		p.cancelCtx()
	}
}

// PruneOnce runs a single pass and returns the number of deleted records.
// Failures are logged and retried on the next tick.
func (p *HistoryPruner) PruneOnce(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.config.Retention)
	n, err := p.repo.PruneScores(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warnw("Failed to prune score history", "cutoff", cutoff, "error", err)
		}
		return 0
	}
	if n > 0 {
		p.logger.Infow("Pruned score history", "deleted", n, "cutoff", cutoff)
	}
	return n
}
