// Package repository persists synergy partners and score history on
// PostgreSQL, SQLite or process memory.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/postpulse/postpulse-backend/internal/analytics"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

// Partner is another member whose posts the owner follows.
type Partner struct {
	ID         uuid.UUID `json:"id"`
	MemberURN  string    `json:"memberUrn"`
	Name       string    `json:"name"`
	PartnerURN string    `json:"partnerUrn"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ScoreRecord is one computed dashboard score. Member is the caller's token
// fingerprint.
type ScoreRecord struct {
	ID         uuid.UUID        `json:"id"`
	Member     string           `json:"member"`
	Scores     analytics.Scores `json:"scores"`
	ComputedAt time.Time        `json:"computedAt"`
}

type Repository interface {
	// AddPartner stores p, assigning ID and CreatedAt when unset. A second
	// partner with the same member and partner urn fails with ErrDuplicate.
	AddPartner(ctx context.Context, p Partner) (Partner, error)
	ListPartners(ctx context.Context, memberURN string) ([]Partner, error)
	GetPartner(ctx context.Context, memberURN string, id uuid.UUID) (Partner, error)
	RemovePartner(ctx context.Context, memberURN string, id uuid.UUID) error

	AppendScore(ctx context.Context, rec ScoreRecord) (ScoreRecord, error)

	// ListScores returns up to limit records, most recent first.
	ListScores(ctx context.Context, member string, limit int) ([]ScoreRecord, error)

	// PruneScores deletes records computed before cutoff.
	PruneScores(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

func prepare(p Partner, now time.Time) Partner {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Millisecond)
	return p
}

func prepareScore(rec ScoreRecord, now time.Time) ScoreRecord {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.ComputedAt.IsZero() {
		rec.ComputedAt = now
	}
	rec.ComputedAt = rec.ComputedAt.UTC().Truncate(time.Millisecond)
	return rec
}
