// Package synergy manages the partners a member follows and builds their
// feeds annotated with the member's own interactions.
package synergy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/postpulse/postpulse-backend/internal/analytics"
	"github.com/postpulse/postpulse-backend/internal/pipeline"
	"github.com/postpulse/postpulse-backend/internal/posts"
	"github.com/postpulse/postpulse-backend/internal/repository"
	"github.com/postpulse/postpulse-backend/internal/sources"
)

var (
	ErrInvalidPartner      = errors.New("invalid partner")
	ErrIdentityUnavailable = errors.New("member identity unavailable")
)

// IdentityResolver maps a token to the member it belongs to.
type IdentityResolver interface {
	FetchIdentity(ctx context.Context, token string) (sources.Identity, error)
}

type Service struct {
	repo     repository.Repository
	runner   pipeline.Runner
	identity IdentityResolver
	logger   *zap.SugaredLogger
}

func NewService(repo repository.Repository, runner pipeline.Runner, identity IdentityResolver, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: repo, runner: runner, identity: identity, logger: logger}
}

// FeedPost is a partner post plus whether the member commented on it.
type FeedPost struct {
	posts.Post
	CommentedByMember bool `json:"commentedByMember"`
}

type Feed struct {
	Partner            repository.Partner `json:"partner"`
	Posts              []FeedPost         `json:"posts"`
	MutualInteractions int                `json:"mutualInteractions"`
	Degraded           []string           `json:"degraded"`
}

func (s *Service) member(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", pipeline.ErrMissingToken
	}
	id, err := s.identity.FetchIdentity(ctx, token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	if id.PersonURN == "" {
		return "", ErrIdentityUnavailable
	}
	return id.PersonURN, nil
}

// AddPartner registers partnerURN for the token's member.
func (s *Service) AddPartner(ctx context.Context, token, name, partnerURN string) (repository.Partner, error) {
	partnerURN = strings.TrimSpace(partnerURN)
	name = strings.TrimSpace(name)
	if !posts.IsPersonURN(partnerURN) || len(partnerURN) == len("urn:li:person:") {
		return repository.Partner{}, fmt.Errorf("%w: %q is not a person urn", ErrInvalidPartner, partnerURN)
	}
	if name == "" {
		return repository.Partner{}, fmt.Errorf("%w: name is required", ErrInvalidPartner)
	}

	member, err := s.member(ctx, token)
	if err != nil {
		return repository.Partner{}, err
	}
	if member == partnerURN {
		return repository.Partner{}, fmt.Errorf("%w: cannot partner with yourself", ErrInvalidPartner)
	}

	p, err := s.repo.AddPartner(ctx, repository.Partner{MemberURN: member, Name: name, PartnerURN: partnerURN})
	if err != nil {
		return repository.Partner{}, err
	}
	s.logger.Infow("Partner added", "partner_id", p.ID, "partner", partnerURN)
	return p, nil
}

func (s *Service) ListPartners(ctx context.Context, token string) ([]repository.Partner, error) {
	member, err := s.member(ctx, token)
	if err != nil {
		return nil, err
	}
	return s.repo.ListPartners(ctx, member)
}

func (s *Service) RemovePartner(ctx context.Context, token string, id uuid.UUID) error {
	member, err := s.member(ctx, token)
	if err != nil {
		return err
	}
	if err := s.repo.RemovePartner(ctx, member, id); err != nil {
		return err
	}
	s.logger.Infow("Partner removed", "partner_id", id)
	return nil
}

// Feed builds the partner's timeline and flags the posts the member has
// commented on.
func (s *Service) Feed(ctx context.Context, token string, id uuid.UUID, days, limit int) (*Feed, error) {
	member, err := s.member(ctx, token)
	if err != nil {
		return nil, err
	}
	partner, err := s.repo.GetPartner(ctx, member, id)
	if err != nil {
		return nil, err
	}

	res, err := s.runner.Run(ctx, pipeline.Request{
		Token:   token,
		Days:    days,
		Limit:   limit,
		Partner: partner.PartnerURN,
	})
	if err != nil {
		return nil, err
	}

	commented := CommentedPosts(res.Actions, member)
	feed := &Feed{
		Partner:  partner,
		Posts:    make([]FeedPost, 0, len(res.Posts)),
		Degraded: res.Degraded,
	}
	for _, p := range res.Posts {
		fp := FeedPost{Post: p, CommentedByMember: commented[p.ID]}
		if fp.CommentedByMember {
			feed.MutualInteractions++
		}
		feed.Posts = append(feed.Posts, fp)
	}
	return feed, nil
}

// CommentedPosts returns the ids of posts actor has commented on.
func CommentedPosts(actions []posts.Action, actor string) map[string]bool {
	out := make(map[string]bool)
	for _, a := range actions {
		if a.Kind == posts.ActionComment && a.Actor == actor && a.Object != "" {
			out[a.Object] = true
		}
	}
	return out
}

// MutualScore rates how often the member engages with a partner's posts on
// the 0-10 scale.
func (f *Feed) MutualScore() int {
	return analytics.MutualInteractions(f.MutualInteractions)
}
