package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/postpulse-backend/internal/analytics"
	"github.com/postpulse/postpulse-backend/internal/repository"
)

type recordingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (r *recordingPruner) PruneScores(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cutoffs = append(r.cutoffs, cutoff)
	return 1, r.err
}

func (r *recordingPruner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cutoffs)
}

func TestPruneOnceUsesRetention(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	for _, age := range []time.Duration{time.Hour, 48 * time.Hour, 10 * 24 * time.Hour} {
		_, err := repo.AppendScore(ctx, repository.ScoreRecord{
			Member:     "fp",
			Scores:     analytics.Scores{Overall: 1},
			ComputedAt: now.Add(-age),
		})
		require.NoError(t, err)
	}

	p := NewHistoryPruner(repo, nil, HistoryPrunerConfig{Retention: 24 * time.Hour, Interval: time.Minute})
	p.now = func() time.Time { return now }

	assert.Equal(t, int64(2), p.PruneOnce(ctx))
	left, err := repo.ListScores(ctx, "fp", 10)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestPruneOnceSwallowsErrors(t *testing.T) {
	p := NewHistoryPruner(&recordingPruner{err: errors.New("db down")}, nil, HistoryPrunerConfig{})
	assert.Zero(t, p.PruneOnce(context.Background()))
	assert.Equal(t, 90*24*time.Hour, p.config.Retention)
}

func TestStartTicksUntilStopped(t *testing.T) {
	repo := &recordingPruner{}
	p := NewHistoryPruner(repo, nil, HistoryPrunerConfig{Retention: time.Hour, Interval: 10 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- p.Start(context.Background()) }()

	assert.Eventually(t, func() bool { return repo.calls() >= 3 }, time.Second, 5*time.Millisecond)
	p.Stop()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}
