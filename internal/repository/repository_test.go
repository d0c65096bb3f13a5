package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/postpulse-backend/internal/analytics"
)

const (
	member  = "urn:li:person:me"
	partner = "urn:li:person:friend"
)

func backends(t *testing.T) map[string]func(t *testing.T) Repository {
	return map[string]func(t *testing.T) Repository{
		"memory": func(t *testing.T) Repository {
			return NewMemoryRepository()
		},
		"sqlite": func(t *testing.T) Repository {
			repo, err := New(Config{Driver: DriverSQLite, DSN: ":memory:", AutoMigrate: true}, nil)
			require.NoError(t, err)
			return repo
		},
	}
}

func TestRepositoryBackends(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("Partners", func(t *testing.T) {
				repo := open(t)
				defer repo.Close()
				testPartners(t, repo)
			})
			t.Run("Scores", func(t *testing.T) {
				repo := open(t)
				defer repo.Close()
				testScores(t, repo)
			})
		})
	}
}

func testPartners(t *testing.T, repo Repository) {
	ctx := context.Background()
	require.NoError(t, repo.Ping(ctx))

	created, err := repo.AddPartner(ctx, Partner{MemberURN: member, Name: "Friend", PartnerURN: partner})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = repo.AddPartner(ctx, Partner{MemberURN: member, Name: "Again", PartnerURN: partner})
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = repo.AddPartner(ctx, Partner{MemberURN: "urn:li:person:someone", Name: "Friend", PartnerURN: partner})
	require.NoError(t, err)

	second, err := repo.AddPartner(ctx, Partner{
		MemberURN:  member,
		Name:       "Second",
		PartnerURN: "urn:li:person:second",
		CreatedAt:  created.CreatedAt.Add(time.Second),
	})
	require.NoError(t, err)

	list, err := repo.ListPartners(ctx, member)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, created, list[0])
	assert.Equal(t, second.ID, list[1].ID)

	got, err := repo.GetPartner(ctx, member, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = repo.GetPartner(ctx, "urn:li:person:someone", created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, repo.RemovePartner(ctx, "urn:li:person:someone", created.ID), ErrNotFound)
	require.NoError(t, repo.RemovePartner(ctx, member, created.ID))
	assert.ErrorIs(t, repo.RemovePartner(ctx, member, created.ID), ErrNotFound)

	list, err = repo.ListPartners(ctx, member)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	empty, err := repo.ListPartners(ctx, "urn:li:person:nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func testScores(t *testing.T, repo Repository) {
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := repo.AppendScore(ctx, ScoreRecord{
			Member:     "fp-1",
			Scores:     analytics.Scores{PostingActivity: i, Overall: float64(i) / 2},
			ComputedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		})
		require.NoError(t, err)
	}
	_, err := repo.AppendScore(ctx, ScoreRecord{Member: "fp-2", ComputedAt: base})
	require.NoError(t, err)

	recent, err := repo.ListScores(ctx, "fp-1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, 4, recent[0].Scores.PostingActivity)
	assert.Equal(t, 2.0, recent[0].Scores.Overall)
	assert.Equal(t, base.Add(4*24*time.Hour), recent[0].ComputedAt)
	assert.Equal(t, 2, recent[2].Scores.PostingActivity)

	n, err := repo.PruneScores(ctx, base.Add(2*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	all, err := repo.ListScores(ctx, "fp-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	other, err := repo.ListScores(ctx, "fp-2", 10)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestRebind(t *testing.T) {
	pg := NewSQLRepository(nil, DriverPostgres, nil)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := NewSQLRepository(nil, DriverSQLite, nil)
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(Config{Driver: "mysql"}, nil)
	assert.Error(t, err)

	_, err = New(Config{Driver: DriverPostgres}, nil)
	assert.ErrorContains(t, err, "DSN is required")
}

func TestGooseDialect(t *testing.T) {
	d, err := GooseDialect(DriverSQLite)
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", d)

	_, err = GooseDialect(DriverMemory)
	assert.Error(t, err)
}
