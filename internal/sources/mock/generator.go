package mock

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap"

	"github.com/postpulse/postpulse-backend/internal/sources"
)

var hashtags = []string{"#AI", "#golang", "#leadership", "#hiring", "#startups", "#productivity", "#remote", "#data"}

var categories = []string{"NONE", "IMAGE", "VIDEO", "ARTICLE", "NONE", "IMAGE"}

// Generator produces synthetic member data. Output is a pure function of the
// seed, the token and the clock, so repeated calls agree.
type Generator struct {
	logger    *zap.SugaredLogger
	seed      uint64
	postCount int
	now       func() time.Time

	mu     sync.RWMutex
	health sources.ProviderHealth
}

// NewGenerator creates a new mock data generator
func NewGenerator(logger *zap.SugaredLogger, seed int64, postCount int) *Generator {
	if postCount <= 0 {
		postCount = 24
	}
	return &Generator{
		logger:    logger,
		seed:      uint64(seed),
		postCount: postCount,
		now:       time.Now,
		health: sources.ProviderHealth{
			Healthy:     true,
			LastSuccess: time.Now(),
		},
	}
}

// WithClock pins the generator clock.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

func (g *Generator) Name() string {
	return "mock"
}

func (g *Generator) Health() sources.ProviderHealth {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.health
}

func (g *Generator) touch() {
	g.mu.Lock()
	g.health.LastSuccess = time.Now()
	g.mu.Unlock()
}

func (g *Generator) faker(token, stream string) *gofakeit.Faker {
	h := fnv.New64a()
	_, _ = h.Write([]byte(token))
	_, _ = h.Write([]byte(stream))
	return gofakeit.New(g.seed ^ h.Sum64())
}

func (g *Generator) memberURN(token string) string {
	f := g.faker(token, "identity")
	return "urn:li:person:" + f.Numerify("mock#########")
}

func (g *Generator) FetchIdentity(ctx context.Context, token string) (sources.Identity, error) {
	if err := ctx.Err(); err != nil {
		return sources.Identity{}, err
	}
	f := g.faker(token, "name")
	g.touch()
	return sources.Identity{PersonURN: g.memberURN(token), Name: f.FirstName() + " " + f.LastName()}, nil
}

func (g *Generator) text(f *gofakeit.Faker) string {
	words := make([]string, 0, 14)
	for i := 0; i < f.Number(6, 12); i++ {
		words = append(words, f.Word())
	}
	for i := 0; i < f.Number(0, 3); i++ {
		words = append(words, hashtags[f.Number(0, len(hashtags)-1)])
	}
	return strings.Join(words, " ")
}

// FetchChangelog emits recent posts plus the likes, comments and invitations
// around them, newest first.
func (g *Generator) FetchChangelog(ctx context.Context, token string) ([]sources.ChangelogEvent, error) {
	if err := ctx.Err(); err != nil {
		return []sources.ChangelogEvent{}, err
	}
	f := g.faker(token, "changelog")
	member := g.memberURN(token)
	now := g.now()

	events := make([]sources.ChangelogEvent, 0, 50)
	var id int64
	next := func(resource, method string, ts time.Time, activity sources.Record) {
		id++
		events = append(events, sources.ChangelogEvent{
			ID:           id,
			ResourceName: resource,
			ResourceID:   fmt.Sprintf("urn:li:%s:%d", strings.ReplaceAll(resource, "/", "-"), id),
			Method:       method,
			Owner:        member,
			Actor:        member,
			CapturedAt:   ts.UnixMilli(),
			ProcessedAt:  ts.Add(time.Second).UnixMilli(),
			Activity:     activity,
		})
	}

	posts := f.Number(3, 8)
	for i := 0; i < posts && len(events) < 50; i++ {
		posted := now.Add(-time.Duration(f.Number(1, 20*24)) * time.Hour)
		postURN := fmt.Sprintf("urn:li:ugcPost:%d", 7_000_000_000+f.Number(1, 999_999))
		category := categories[f.Number(0, len(categories)-1)]

		content := map[string]any{
			"shareCommentary":    map[string]any{"text": g.text(f)},
			"shareMediaCategory": category,
		}
		if category == "IMAGE" || category == "VIDEO" {
			status := "READY"
			if f.Number(0, 4) == 0 {
				status = "PROCESSING"
			}
			content["media"] = []any{map[string]any{
				"media":  "urn:li:digitalmediaAsset:" + f.Numerify("D4E##########"),
				"status": status,
			}}
		}
		id++
		events = append(events, sources.ChangelogEvent{
			ID:           id,
			ResourceName: sources.ResourceUGCPosts,
			ResourceID:   postURN,
			Method:       sources.MethodCreate,
			Owner:        member,
			Actor:        member,
			CapturedAt:   posted.UnixMilli(),
			ProcessedAt:  posted.Add(time.Second).UnixMilli(),
			Activity: sources.Record{
				"author":          member,
				"lifecycleState":  "PUBLISHED",
				"specificContent": map[string]any{"com.linkedin.ugc.ShareContent": content},
			},
		})

		for j := 0; j < f.Number(0, 6) && len(events) < 50; j++ {
			at := posted.Add(time.Duration(f.Number(1, 72)) * time.Hour)
			if at.After(now) {
				at = now
			}
			resource := sources.ResourceLikes
			if f.Number(0, 2) == 0 {
				resource = sources.ResourceComments
			}
			next(resource, sources.MethodCreate, at, sources.Record{"object": postURN})
		}
	}

	for i := 0; i < f.Number(0, 6) && len(events) < 50; i++ {
		status := "ACCEPTED"
		if f.Bool() {
			status = "PENDING"
		}
		at := now.Add(-time.Duration(f.Number(1, 27*24)) * time.Hour)
		next(sources.ResourceInvitations, sources.MethodUpdate, at, sources.Record{"status": status})
	}

	sortNewestFirst(events)
	g.touch()
	g.logger.Debugw("Generated mock changelog", "events", len(events))
	return events, nil
}

// FetchSnapshot emits PROFILE, CONNECTIONS and MEMBER_SHARE_INFO exports.
func (g *Generator) FetchSnapshot(ctx context.Context, token, domain string) ([]sources.SnapshotElement, error) {
	if err := ctx.Err(); err != nil {
		return []sources.SnapshotElement{}, err
	}
	f := g.faker(token, "snapshot:"+domain)
	now := g.now()

	var data []sources.Record
	switch domain {
	case sources.DomainProfile:
		data = []sources.Record{{
			"First Name":   f.FirstName(),
			"Last Name":    f.LastName(),
			"Headline":     f.JobTitle(),
			"Summary":      g.text(f),
			"Industry":     f.RandomString([]string{"Software Development", "Financial Services", "Marketing", ""}),
			"Geo Location": f.City(),
		}}
	case sources.DomainConnections:
		n := f.Number(40, 400)
		data = make([]sources.Record, 0, n)
		for i := 0; i < n; i++ {
			data = append(data, sources.Record{
				"First Name":   f.FirstName(),
				"Last Name":    f.LastName(),
				"Company":      f.Company(),
				"Connected On": now.AddDate(0, 0, -f.Number(0, 900)).Format("02 Jan 2006"),
			})
		}
	case sources.DomainShares:
		data = make([]sources.Record, 0, g.postCount)
		for i := 0; i < g.postCount; i++ {
			posted := now.AddDate(0, 0, -f.Number(5, 365))
			rec := sources.Record{
				"Date":            posted.Format("2006-01-02 15:04:05"),
				"ShareCommentary": g.text(f),
				"Visibility":      f.RandomString([]string{"MEMBER_NETWORK", "PUBLIC", "PUBLIC", "COMPANY"}),
				"LikesCount":      fmt.Sprint(f.Number(0, 300)),
				"CommentsCount":   fmt.Sprint(f.Number(0, 40)),
				"SharesCount":     fmt.Sprint(f.Number(0, 15)),
				"MediaType":       categories[f.Number(0, len(categories)-1)],
			}
			if f.Number(0, 3) > 0 {
				rec["ShareLink"] = fmt.Sprintf("https://www.linkedin.com/feed/update/urn:li:activity:%d/", 6_900_000_000_000_000_000+int64(f.Number(1, 99_999_999)))
			}
			data = append(data, rec)
		}
	default:
		data = []sources.Record{}
	}

	g.touch()
	return []sources.SnapshotElement{{Domain: domain, Data: data}}, nil
}

func sortNewestFirst(events []sources.ChangelogEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CapturedAt > events[j].CapturedAt
	})
}
