package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process memory. Data is lost on
// restart.
type MemoryRepository struct {
	mu       sync.RWMutex
	partners map[uuid.UUID]Partner
	scores   map[uuid.UUID]ScoreRecord
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		partners: make(map[uuid.UUID]Partner),
		scores:   make(map[uuid.UUID]ScoreRecord),
		now:      time.Now,
	}
}

func (r *MemoryRepository) AddPartner(_ context.Context, p Partner) (Partner, error) {
	p = prepare(p, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.partners[p.ID]; ok {
		return Partner{}, ErrDuplicate
	}
	for _, existing := range r.partners {
		if existing.MemberURN == p.MemberURN && existing.PartnerURN == p.PartnerURN {
			return Partner{}, ErrDuplicate
		}
	}
	r.partners[p.ID] = p
	return p, nil
}

func (r *MemoryRepository) ListPartners(_ context.Context, memberURN string) ([]Partner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Partner, 0)
	for _, p := range r.partners {
		if p.MemberURN == memberURN {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (r *MemoryRepository) GetPartner(_ context.Context, memberURN string, id uuid.UUID) (Partner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.partners[id]
	if !ok || p.MemberURN != memberURN {
		return Partner{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) RemovePartner(_ context.Context, memberURN string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.partners[id]
	if !ok || p.MemberURN != memberURN {
		return ErrNotFound
	}
	delete(r.partners, id)
	return nil
}

func (r *MemoryRepository) AppendScore(_ context.Context, rec ScoreRecord) (ScoreRecord, error) {
	rec = prepareScore(rec, r.now())

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scores[rec.ID]; ok {
		return ScoreRecord{}, ErrDuplicate
	}
	r.scores[rec.ID] = rec
	return rec, nil
}

func (r *MemoryRepository) ListScores(_ context.Context, member string, limit int) ([]ScoreRecord, error) {
	if limit <= 0 {
		limit = 30
	}
	r.mu.RLock()
	out := make([]ScoreRecord, 0)
	for _, rec := range r.scores {
		if rec.Member == member {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.After(out[j].ComputedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) PruneScores(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, rec := range r.scores {
		if rec.ComputedAt.Before(cutoff) {
			delete(r.scores, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *MemoryRepository) Close() error {
	return nil
}
