// Package pipeline fetches both upstream sources concurrently and turns them
// into a merged timeline with its aggregates and scores.
package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/postpulse/postpulse-backend/internal/analytics"
	"github.com/postpulse/postpulse-backend/internal/metrics"
	"github.com/postpulse/postpulse-backend/internal/posts"
	"github.com/postpulse/postpulse-backend/internal/sources"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrMissingToken is returned when a request carries no bearer token.
var ErrMissingToken = errors.New("missing bearer token")

// Source names used in logs, metrics and Result.Degraded.
const (
	SourceIdentity    = "identity"
	SourceChangelog   = "changelog"
	SourceProfile     = "snapshot:" + sources.DomainProfile
	SourceConnections = "snapshot:" + sources.DomainConnections
	SourceShares      = "snapshot:" + sources.DomainShares
)

// Runner builds a Result for a Request.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}

type Options struct {
	TrendDays        int
	TimelineLimit    int
	MediaProxyPrefix string
	StableIDs        bool
	Location         *time.Location
	Now              func() time.Time
}

type Service struct {
	provider sources.Provider
	opts     Options
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
}

func NewService(provider sources.Provider, opts Options, logger *zap.SugaredLogger, m *metrics.Metrics) *Service {
	if opts.TrendDays <= 0 {
		opts.TrendDays = 28
	}
	if opts.TimelineLimit <= 0 {
		opts.TimelineLimit = 100
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{provider: provider, opts: opts, logger: logger, metrics: m}
}

// Provider returns the upstream source.
func (s *Service) Provider() sources.Provider {
	return s.provider
}

// Resolve fills zero Days and Limit with the configured defaults.
func (s *Service) Resolve(req Request) Request {
	if req.Days <= 0 {
		req.Days = s.opts.TrendDays
	}
	if req.Limit <= 0 {
		req.Limit = s.opts.TimelineLimit
	}
	return req
}

type fetched struct {
	identity    sources.Identity
	events      []sources.ChangelogEvent
	profile     []sources.SnapshotElement
	connections []sources.SnapshotElement
	shares      []sources.SnapshotElement

	mu       sync.Mutex
	degraded []string
}

func (f *fetched) degrade(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.degraded = append(f.degraded, source)
}

// Run fetches every source concurrently. A failing source is logged and
// treated as empty; only cancellation of ctx fails the run.
func (s *Service) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Token == "" {
		return nil, ErrMissingToken
	}
	req = s.Resolve(req)

	f, err := s.fetch(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	now := req.Now
	if now.IsZero() {
		now = s.opts.Now()
	}
	res := s.build(req, f, now)
	s.metrics.RecordPipelineRun(ctx, req.Scope())
	s.logger.Debugw("Pipeline run complete",
		"scope", res.Scope,
		"posts", len(res.Posts),
		"degraded", res.Degraded,
	)
	return res, nil
}

func (s *Service) fetch(ctx context.Context, token string) (*fetched, error) {
	f := &fetched{
		events:      []sources.ChangelogEvent{},
		profile:     []sources.SnapshotElement{},
		connections: []sources.SnapshotElement{},
		shares:      []sources.SnapshotElement{},
	}

	var g errgroup.Group
	g.Go(func() error {
		return s.call(ctx, f, SourceIdentity, func() error {
			id, err := s.provider.FetchIdentity(ctx, token)
			if err == nil {
				f.identity = id
			}
			return err
		})
	})
	g.Go(func() error {
		return s.call(ctx, f, SourceChangelog, func() error {
			events, err := s.provider.FetchChangelog(ctx, token)
			if err == nil {
				f.events = events
			}
			return err
		})
	})
	for _, d := range []struct {
		source string
		domain string
		dst    *[]sources.SnapshotElement
	}{
		{SourceProfile, sources.DomainProfile, &f.profile},
		{SourceConnections, sources.DomainConnections, &f.connections},
		{SourceShares, sources.DomainShares, &f.shares},
	} {
		g.Go(func() error {
			return s.call(ctx, f, d.source, func() error {
				elements, err := s.provider.FetchSnapshot(ctx, token, d.domain)
				if err == nil {
					*d.dst = elements
				}
				return err
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	sort.Strings(f.degraded)
	return f, nil
}

// call runs one fetch, records it, and swallows every error except the
// caller's own cancellation.
func (s *Service) call(ctx context.Context, f *fetched, source string, fn func() error) error {
	start := time.Now()
	err := fn()
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordSourceFetch(ctx, source, status, time.Since(start))

	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	s.logger.Warnw("Source unavailable; continuing without it",
		"source", source,
		"provider", s.provider.Name(),
		"error", err,
	)
	f.degrade(source)
	return nil
}

func (s *Service) build(req Request, f *fetched, now time.Time) *Result {
	loc := s.opts.Location
	member := f.identity.PersonURN
	attr := req.attribution(member)
	popts := posts.Options{
		Now:              now,
		Location:         loc,
		MediaProxyPrefix: s.opts.MediaProxyPrefix,
		StableIDs:        s.opts.StableIDs,
	}

	idx := posts.BuildEngagementIndex(f.events)
	changelog := posts.NormalizeChangelog(f.events, idx, attr, popts)

	shareRecords := sources.Records(f.shares, sources.DomainShares)
	historical := posts.NormalizeSnapshot(shareRecords, attr, popts)
	if dropped := len(shareRecords) - len(historical); dropped > 0 && req.Partner == "" {
		s.metrics.RecordSkipped(SourceShares, "filtered", dropped)
	}

	merged := posts.Merge(changelog, historical, 0)
	timeline := merged
	if req.Limit > 0 && len(timeline) > req.Limit {
		timeline = timeline[:req.Limit]
	}
	actions := posts.ExtractActions(f.events)
	profile := posts.NormalizeProfile(sources.Records(f.profile, sources.DomainProfile))
	connections := len(sources.Records(f.connections, sources.DomainConnections))

	histogram := analytics.ContentHistogram(merged)
	trend := analytics.DailyTrend(merged, actions, req.Days, now, loc)
	agg := Analytics{
		Histogram:        histogram,
		Hashtags:         analytics.RankHashtags(merged, analytics.TopHashtags),
		Trend:            trend,
		WeeklyTrend:      analytics.WeeklyTrend(trend),
		ConnectionGrowth: analytics.ConnectionGrowth(connections, actions, req.Days, now, loc),
		Totals:           analytics.ComputeTotals(merged, connections),
	}

	inputs := analytics.ScoreInputs{
		CompletedProfileFields: profile.CompletedFields(),
		PostCount:              len(merged),
		TotalEngagement:        agg.Totals.Engagement,
		AcceptedInvitations:    analytics.AcceptedInvitations(actions),
		DistinctMediaTypes:     analytics.DistinctMediaTypes(histogram),
		TotalConnections:       connections,
		CommentsCreated:        analytics.CommentsBy(actions, member),
	}

	degraded := f.degraded
	if degraded == nil {
		degraded = []string{}
	}
	return &Result{
		Member:      f.identity,
		Scope:       req.Scope(),
		Posts:       timeline,
		Actions:     actions,
		Profile:     profile,
		Connections: connections,
		Analytics:   agg,
		ScoreInputs: inputs,
		Scores:      analytics.ComputeScores(inputs),
		Degraded:    degraded,
		GeneratedAt: now,
	}
}
