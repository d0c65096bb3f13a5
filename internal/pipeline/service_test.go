package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/postpulse/postpulse-backend/internal/posts"
	"github.com/postpulse/postpulse-backend/internal/sources"
	"github.com/postpulse/postpulse-backend/internal/store"
	"github.com/postpulse/postpulse-backend/pkg/kv/memory"
)

const (
	me    = "urn:li:person:me"
	other = "urn:li:person:other"
	token = "tok"
)

var now = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) FetchIdentity(ctx context.Context, token string) (sources.Identity, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(sources.Identity), args.Error(1)
}

func (m *MockProvider) FetchChangelog(ctx context.Context, token string) ([]sources.ChangelogEvent, error) {
	args := m.Called(ctx, token)
	return args.Get(0).([]sources.ChangelogEvent), args.Error(1)
}

func (m *MockProvider) FetchSnapshot(ctx context.Context, token, domain string) ([]sources.SnapshotElement, error) {
	args := m.Called(ctx, token, domain)
	return args.Get(0).([]sources.SnapshotElement), args.Error(1)
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Health() sources.ProviderHealth { return sources.ProviderHealth{Healthy: true} }

func ms(t time.Time) int64 { return t.UnixMilli() }

func changelogFixture() []sources.ChangelogEvent {
	post := func(id, author, owner string, at time.Time, text string) sources.ChangelogEvent {
		return sources.ChangelogEvent{
			ResourceName: sources.ResourceUGCPosts,
			ResourceID:   id,
			Method:       sources.MethodCreate,
			Owner:        owner,
			Actor:        author,
			CapturedAt:   ms(at),
			Activity:     sources.Record{"author": author, "text": text},
		}
	}
	act := func(resource, actor, object string, at time.Time) sources.ChangelogEvent {
		return sources.ChangelogEvent{
			ResourceName: resource,
			Method:       sources.MethodCreate,
			Owner:        me,
			Actor:        actor,
			CapturedAt:   ms(at),
			Activity:     sources.Record{"object": object},
		}
	}
	return []sources.ChangelogEvent{
		post("urn:li:share:1", me, me, now.Add(-time.Hour), "Hello #Go"),
		post("urn:li:share:2", other, other, now.Add(-2*time.Hour), "Partner post #AI"),
		act(sources.ResourceLikes, other, "urn:li:share:1", now.Add(-30*time.Minute)),
		act(sources.ResourceLikes, other, "urn:li:share:1", now.Add(-20*time.Minute)),
		act(sources.ResourceComments, me, "urn:li:share:2", now.Add(-10*time.Minute)),
		{
			ResourceName: sources.ResourceInvitations,
			Method:       sources.MethodUpdate,
			Owner:        me,
			Actor:        other,
			CapturedAt:   ms(now.Add(-48 * time.Hour)),
			Activity:     sources.Record{"status": "ACCEPTED"},
		},
	}
}

func snapshotFixture(domain string) []sources.SnapshotElement {
	var data []sources.Record
	switch domain {
	case sources.DomainProfile:
		data = []sources.Record{{"Headline": "Engineer", "Summary": "Builds things"}}
	case sources.DomainConnections:
		data = []sources.Record{{}, {}, {}}
	case sources.DomainShares:
		data = []sources.Record{
			{
				"Date":            "2025-03-10 09:00:00",
				"ShareLink":       "https://www.linkedin.com/feed/update/urn:li:activity:777",
				"ShareCommentary": "Old #go post",
				"LikesCount":      "5",
			},
			{"Date": "2025-03-01", "ShareCommentary": "Company news", "Visibility": "COMPANY"},
		}
	}
	return []sources.SnapshotElement{{Domain: domain, Data: data}}
}

func newHealthyProvider() *MockProvider {
	p := &MockProvider{}
	p.On("FetchIdentity", mock.Anything, token).Return(sources.Identity{PersonURN: me}, nil)
	p.On("FetchChangelog", mock.Anything, token).Return(changelogFixture(), nil)
	for _, d := range []string{sources.DomainProfile, sources.DomainConnections, sources.DomainShares} {
		p.On("FetchSnapshot", mock.Anything, token, d).Return(snapshotFixture(d), nil)
	}
	return p
}

func newTestService(p sources.Provider) *Service {
	return NewService(p, Options{
		TrendDays:     7,
		TimelineLimit: 10,
		Location:      time.UTC,
		Now:           func() time.Time { return now },
	}, zap.NewNop().Sugar(), nil)
}

func TestRunMergesBothSources(t *testing.T) {
	p := newHealthyProvider()
	res, err := newTestService(p).Run(context.Background(), Request{Token: token})
	require.NoError(t, err)
	p.AssertExpectations(t)

	require.Len(t, res.Posts, 2)
	assert.Equal(t, "urn:li:share:1", res.Posts[0].ID)
	assert.Equal(t, posts.SourceChangelog, res.Posts[0].Source)
	assert.Equal(t, 2, res.Posts[0].Likes)
	assert.Equal(t, "777", res.Posts[1].ID)
	assert.Equal(t, 5, res.Posts[1].Likes)

	assert.Equal(t, "mine", res.Scope)
	assert.Equal(t, me, res.Member.PersonURN)
	assert.Empty(t, res.Degraded)
	assert.NotNil(t, res.Degraded)
	assert.Equal(t, 3, res.Connections)
	assert.Equal(t, now, res.GeneratedAt)

	a := res.Analytics
	assert.Len(t, a.Trend, 7)
	assert.Len(t, a.ConnectionGrowth, 7)
	assert.Equal(t, 3, a.ConnectionGrowth[6].Total)
	assert.Equal(t, 2, a.ConnectionGrowth[3].Total)
	require.NotEmpty(t, a.Hashtags)
	assert.Equal(t, "#go", a.Hashtags[0].Tag)
	assert.Equal(t, 2, a.Hashtags[0].Count)
	assert.Equal(t, 2, a.Histogram[posts.MediaText])
	assert.Equal(t, 7, a.Totals.Engagement)

	in := res.ScoreInputs
	assert.Equal(t, 2, in.CompletedProfileFields)
	assert.Equal(t, 2, in.PostCount)
	assert.Equal(t, 1, in.AcceptedInvitations)
	assert.Equal(t, 1, in.CommentsCreated)
	assert.Equal(t, 5, res.Scores.ProfileCompleteness)
}

func TestRunPartnerScope(t *testing.T) {
	p := newHealthyProvider()
	res, err := newTestService(p).Run(context.Background(), Request{Token: token, Partner: other})
	require.NoError(t, err)

	require.Len(t, res.Posts, 1)
	assert.Equal(t, "urn:li:share:2", res.Posts[0].ID)
	assert.Equal(t, "partner", res.Scope)
}

func TestRunDegradesFailedSource(t *testing.T) {
	p := &MockProvider{}
	p.On("FetchIdentity", mock.Anything, token).Return(sources.Identity{}, errors.New("userinfo 500"))
	p.On("FetchChangelog", mock.Anything, token).Return([]sources.ChangelogEvent{}, errors.New("timeout"))
	for _, d := range []string{sources.DomainProfile, sources.DomainConnections, sources.DomainShares} {
		p.On("FetchSnapshot", mock.Anything, token, d).Return(snapshotFixture(d), nil)
	}

	res, err := newTestService(p).Run(context.Background(), Request{Token: token})
	require.NoError(t, err)
	assert.Equal(t, []string{SourceChangelog, SourceIdentity}, res.Degraded)
	require.Len(t, res.Posts, 1)
	assert.Equal(t, "777", res.Posts[0].ID)
	assert.NotNil(t, res.Actions)
}

func TestRunAllSourcesDown(t *testing.T) {
	p := &MockProvider{}
	p.On("FetchIdentity", mock.Anything, token).Return(sources.Identity{}, errors.New("down"))
	p.On("FetchChangelog", mock.Anything, token).Return([]sources.ChangelogEvent{}, errors.New("down"))
	p.On("FetchSnapshot", mock.Anything, token, mock.Anything).Return([]sources.SnapshotElement{}, errors.New("down"))

	res, err := newTestService(p).Run(context.Background(), Request{Token: token})
	require.NoError(t, err)
	assert.Empty(t, res.Posts)
	assert.NotNil(t, res.Posts)
	assert.Len(t, res.Degraded, 5)
	assert.Len(t, res.Analytics.Trend, 7)
	assert.Zero(t, res.Scores.Overall)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &MockProvider{}
	p.On("FetchIdentity", mock.Anything, token).Return(sources.Identity{}, context.Canceled)
	p.On("FetchChangelog", mock.Anything, token).Return([]sources.ChangelogEvent{}, context.Canceled)
	p.On("FetchSnapshot", mock.Anything, token, mock.Anything).Return([]sources.SnapshotElement{}, context.Canceled)

	_, err := newTestService(p).Run(ctx, Request{Token: token})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunMissingToken(t *testing.T) {
	_, err := newTestService(&MockProvider{}).Run(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestRunLimitTruncatesAfterSort(t *testing.T) {
	p := newHealthyProvider()
	res, err := newTestService(p).Run(context.Background(), Request{Token: token, Limit: 1})
	require.NoError(t, err)
	require.Len(t, res.Posts, 1)
	assert.Equal(t, "urn:li:share:1", res.Posts[0].ID)
}

func TestRunAggregatesCoverWholeTimeline(t *testing.T) {
	events := make([]sources.ChangelogEvent, 0, 12)
	for i := 0; i < 12; i++ {
		events = append(events, sources.ChangelogEvent{
			ResourceName: sources.ResourceUGCPosts,
			ResourceID:   fmt.Sprintf("urn:li:share:%d", 100+i),
			Method:       sources.MethodCreate,
			Owner:        me,
			Actor:        me,
			CapturedAt:   ms(now.Add(-time.Duration(i*12) * time.Hour)),
			Activity:     sources.Record{"author": me, "text": fmt.Sprintf("Post %d #go", i)},
		})
	}
	p := &MockProvider{}
	p.On("FetchIdentity", mock.Anything, token).Return(sources.Identity{PersonURN: me}, nil)
	p.On("FetchChangelog", mock.Anything, token).Return(events, nil)
	p.On("FetchSnapshot", mock.Anything, token, mock.Anything).Return([]sources.SnapshotElement{}, nil)
	svc := newTestService(p)

	short, err := svc.Run(context.Background(), Request{Token: token, Limit: 1})
	require.NoError(t, err)
	full, err := svc.Run(context.Background(), Request{Token: token, Limit: 12})
	require.NoError(t, err)

	assert.Len(t, short.Posts, 1)
	assert.Len(t, full.Posts, 12)
	assert.Equal(t, full.Posts[0], short.Posts[0])

	assert.Equal(t, 12, short.ScoreInputs.PostCount)
	assert.Equal(t, 12, short.Analytics.Totals.Posts)
	assert.Equal(t, full.ScoreInputs, short.ScoreInputs)
	assert.Equal(t, full.Scores, short.Scores)
	assert.Equal(t, full.Analytics, short.Analytics)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("secret-token")
	assert.Len(t, a, 32)
	assert.Equal(t, a, Fingerprint("secret-token"))
	assert.NotEqual(t, a, Fingerprint("other-token"))
	assert.NotContains(t, a, "secret")
	assert.Equal(t, "timeline."+a, Topic(a))

	base := Request{Token: "t", Days: 7, Limit: 10}
	partner := base
	partner.Partner = other
	assert.NotEqual(t, CacheKey(base), CacheKey(partner))
	assert.Equal(t, CacheKey(base), CacheKey(Request{Token: "t", Days: 7, Limit: 10, Now: now}))
}

type countingRunner struct {
	mu       sync.Mutex
	calls    int
	gate     chan struct{}
	degraded []string
	runErr   error
}

func (r *countingRunner) Run(ctx context.Context, req Request) (*Result, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	r.runErr = ctx.Err()
	r.mu.Unlock()
	degraded := r.degraded
	if degraded == nil {
		degraded = []string{}
	}
	return &Result{Scope: req.Scope(), Posts: []posts.Post{{ID: "1"}}, Degraded: degraded, GeneratedAt: now}, nil
}

func (r *countingRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestCache(t *testing.T) *store.Cache {
	c := store.NewCache(memory.New(0), store.NewMemoryBroker(), zap.NewNop().Sugar(), nil)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCachedServesFromCacheAndPublishes(t *testing.T) {
	cache := newTestCache(t)
	runner := &countingRunner{}
	cached := NewCached(runner, cache, CacheOptions{TTL: time.Minute}, nil)
	ctx := context.Background()

	sub := cache.Subscribe(ctx, Topic(Fingerprint(token)))
	defer sub.Close()

	req := Request{Token: token, Days: 7, Limit: 10}
	first, err := cached.Run(ctx, req)
	require.NoError(t, err)
	second, err := cached.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, 1, runner.calls)
	assert.Equal(t, first.Posts, second.Posts)

	select {
	case msg := <-sub.Channel():
		assert.Contains(t, msg.Payload, EventTimelineUpdated)
	case <-time.After(time.Second):
		t.Fatal("no update event published")
	}

	_, err = cached.Run(ctx, Request{Token: token, Days: 7, Limit: 10, Refresh: true})
	require.NoError(t, err)
	assert.Equal(t, 2, runner.calls)

	require.NoError(t, cached.Invalidate(ctx, req))
	_, err = cached.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 3, runner.calls)
}

func TestCachedCollapsesConcurrentMisses(t *testing.T) {
	runner := &countingRunner{gate: make(chan struct{})}
	cached := NewCached(runner, newTestCache(t), CacheOptions{TTL: time.Minute}, nil)
	req := Request{Token: token, Days: 7, Limit: 10}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.Run(context.Background(), req)
			assert.NoError(t, err)
		}()
	}
	assert.Eventually(t, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.calls == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(runner.gate)
	wg.Wait()

	assert.Equal(t, 1, runner.calls)
}

func TestCachedCanceledCallerLeavesSharedRunAlive(t *testing.T) {
	runner := &countingRunner{gate: make(chan struct{})}
	cached := NewCached(runner, newTestCache(t), CacheOptions{TTL: time.Minute}, nil)
	req := Request{Token: token, Days: 7, Limit: 10}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := cached.Run(firstCtx, req)
		firstErr <- err
	}()
	assert.Eventually(t, func() bool { return runner.callCount() == 1 }, time.Second, 5*time.Millisecond)

	type outcome struct {
		res *Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := cached.Run(context.Background(), req)
		second <- outcome{res, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(runner.gate)
	select {
	case out := <-second:
		require.NoError(t, out.err)
		require.NotNil(t, out.res)
		assert.Len(t, out.res.Posts, 1)
	case <-time.After(time.Second):
		t.Fatal("joined caller did not return")
	}

	assert.Equal(t, 1, runner.callCount())
	runner.mu.Lock()
	assert.NoError(t, runner.runErr)
	runner.mu.Unlock()
}

func TestCachedDegradedResultExpiresSooner(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()
	req := Request{Token: token, Days: 7, Limit: 10}

	healthy := NewCached(&countingRunner{}, cache, CacheOptions{TTL: time.Hour}, nil)
	_, err := healthy.Run(ctx, req)
	require.NoError(t, err)
	ttl, err := cache.Remaining(ctx, CacheKey(req))
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Minute)

	require.NoError(t, healthy.Invalidate(ctx, req))

	degraded := NewCached(&countingRunner{degraded: []string{SourceChangelog}}, cache,
		CacheOptions{TTL: time.Hour, DegradedTTL: 10 * time.Second}, nil)
	res, err := degraded.Run(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, []string{SourceChangelog}, res.Degraded)
	ttl, err = cache.Remaining(ctx, CacheKey(req))
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, 10*time.Second)
}

func TestCachedMissingToken(t *testing.T) {
	cached := NewCached(&countingRunner{}, newTestCache(t), CacheOptions{TTL: time.Minute}, nil)
	_, err := cached.Run(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrMissingToken)
}
