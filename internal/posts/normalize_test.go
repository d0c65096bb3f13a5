package posts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/postpulse-backend/internal/sources"
)

const me = "urn:li:person:me"

var testNow = time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)

func testOpts() Options {
	return Options{Now: testNow, Location: time.UTC, MediaProxyPrefix: "/media/"}
}

func ugcPost(id string, capturedAt int64, activity sources.Record) sources.ChangelogEvent {
	if activity == nil {
		activity = sources.Record{}
	}
	if _, ok := activity["author"]; !ok {
		activity["author"] = me
	}
	return sources.ChangelogEvent{
		ResourceName: sources.ResourceUGCPosts,
		ResourceID:   id,
		Method:       sources.MethodCreate,
		Owner:        me,
		Actor:        me,
		CapturedAt:   capturedAt,
		Activity:     activity,
	}
}

func action(resource, object string) sources.ChangelogEvent {
	return sources.ChangelogEvent{
		ResourceName: resource,
		Method:       sources.MethodCreate,
		Owner:        me,
		Actor:        me,
		CapturedAt:   testNow.UnixMilli(),
		Activity:     sources.Record{"object": object},
	}
}

func shareContent(fields map[string]any) sources.Record {
	return sources.Record{
		"specificContent": map[string]any{shareContentKey: fields},
	}
}

func TestBuildEngagementIndex(t *testing.T) {
	events := []sources.ChangelogEvent{
		ugcPost("A", testNow.UnixMilli(), nil),
		action(sources.ResourceLikes, "A"),
		action(sources.ResourceLikes, "A"),
		action(sources.ResourceLikes, "A"),
		action(sources.ResourceComments, "A"),
		action(sources.ResourceShares, "B"),
		{ResourceName: sources.ResourceLikes, Method: sources.MethodDelete, Activity: sources.Record{"object": "A"}},
		{ResourceName: sources.ResourceLikes, Method: sources.MethodCreate},
		{ResourceName: sources.ResourceLikes, Method: sources.MethodCreate, Activity: sources.Record{"object": 42.0}},
	}

	idx := BuildEngagementIndex(events)

	assert.Equal(t, Engagement{Likes: 3, Comments: 1}, idx.Lookup("A"))
	assert.Equal(t, Engagement{Shares: 1}, idx.Lookup("B"))
	assert.Equal(t, Engagement{}, idx.Lookup("missing"))
	assert.Len(t, idx, 2)
}

func TestNormalizeChangelogPostEngagementAttribution(t *testing.T) {
	events := []sources.ChangelogEvent{
		ugcPost("A", testNow.UnixMilli(), nil),
		action(sources.ResourceLikes, "A"),
		action(sources.ResourceLikes, "A"),
		action(sources.ResourceLikes, "A"),
	}
	idx := BuildEngagementIndex(events)

	p, ok := NormalizeChangelogPost(events[0], idx, Mine(me), testOpts())
	require.True(t, ok)
	assert.Equal(t, "A", p.ID)
	assert.Equal(t, 3, p.Likes)
	assert.Equal(t, 0, p.Comments)
	assert.Equal(t, SourceChangelog, p.Source)
}

func TestNormalizeChangelogPostFilters(t *testing.T) {
	base := func() sources.ChangelogEvent { return ugcPost("A", testNow.UnixMilli(), nil) }

	tests := []struct {
		name   string
		mutate func(ev *sources.ChangelogEvent)
		attr   Attribution
		want   bool
	}{
		{"accepted", func(ev *sources.ChangelogEvent) {}, Mine(me), true},
		{"not a post", func(ev *sources.ChangelogEvent) { ev.ResourceName = sources.ResourceLikes }, Mine(me), false},
		{"deleted method", func(ev *sources.ChangelogEvent) { ev.Method = sources.MethodDelete }, Mine(me), false},
		{"deleted lifecycle", func(ev *sources.ChangelogEvent) { ev.Activity["lifecycleState"] = "DELETED" }, Mine(me), false},
		{"removed lifecycle", func(ev *sources.ChangelogEvent) { ev.Activity["lifecycleState"] = "REMOVED" }, Mine(me), false},
		{"organization author", func(ev *sources.ChangelogEvent) { ev.Activity["author"] = "urn:li:organization:9" }, Mine(me), false},
		{"other owner", func(ev *sources.ChangelogEvent) { ev.Owner = "urn:li:person:other" }, Mine(me), false},
		{"unknown member skips owner check", func(ev *sources.ChangelogEvent) { ev.Owner = "urn:li:person:other" }, Mine(""), true},
		{"update kept", func(ev *sources.ChangelogEvent) { ev.Method = sources.MethodUpdate }, Mine(me), true},
		{"partner match", func(ev *sources.ChangelogEvent) { ev.Activity["author"] = "urn:li:person:p" }, Partner("urn:li:person:p"), true},
		{"partner mismatch", func(ev *sources.ChangelogEvent) {}, Partner("urn:li:person:p"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := base()
			tt.mutate(&ev)
			_, ok := NormalizeChangelogPost(ev, EngagementIndex{}, tt.attr, testOpts())
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestNormalizeChangelogPostText(t *testing.T) {
	tests := []struct {
		name      string
		processed sources.Record
		activity  sources.Record
		want      string
	}{
		{
			name:      "processed commentary first",
			processed: shareContent(map[string]any{"shareCommentary": map[string]any{"text": "processed"}}),
			activity:  shareContent(map[string]any{"shareCommentary": map[string]any{"text": "raw"}}),
			want:      "processed",
		},
		{
			name:     "raw commentary",
			activity: shareContent(map[string]any{"shareCommentary": map[string]any{"text": "raw"}}),
			want:     "raw",
		},
		{
			name:     "generic text",
			activity: sources.Record{"text": "plain"},
			want:     "plain",
		},
		{
			name:     "fallback",
			activity: sources.Record{},
			want:     "Post content from LinkedIn",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ugcPost("A", testNow.UnixMilli(), tt.activity)
			ev.ProcessedActivity = tt.processed
			p, ok := NormalizeChangelogPost(ev, nil, Mine(me), testOpts())
			require.True(t, ok)
			assert.Equal(t, tt.want, p.Text)
		})
	}
}

func TestNormalizeChangelogPostTimestamp(t *testing.T) {
	ev := ugcPost("A", 0, nil)
	ev.ProcessedAt = testNow.Add(-48 * time.Hour).UnixMilli()
	p, ok := NormalizeChangelogPost(ev, nil, Mine(me), testOpts())
	require.True(t, ok)
	assert.Equal(t, ev.ProcessedAt, p.Timestamp)
	assert.Equal(t, 2, p.DaysSincePosted)
	assert.False(t, p.CanRepost)

	ev.ProcessedAt = 0
	p, ok = NormalizeChangelogPost(ev, nil, Mine(me), testOpts())
	require.True(t, ok)
	assert.Equal(t, testNow.UnixMilli(), p.Timestamp)
	assert.Equal(t, 0, p.DaysSincePosted)

	ev.CapturedAt = testNow.Add(-30 * 24 * time.Hour).UnixMilli()
	p, _ = NormalizeChangelogPost(ev, nil, Mine(me), testOpts())
	assert.Equal(t, 30, p.DaysSincePosted)
	assert.True(t, p.CanRepost)
}

func TestNormalizeChangelogPostMedia(t *testing.T) {
	tests := []struct {
		name      string
		content   map[string]any
		wantType  MediaType
		wantThumb string
	}{
		{
			name:     "no content",
			content:  map[string]any{},
			wantType: MediaText,
		},
		{
			name: "ready asset",
			content: map[string]any{
				"shareMediaCategory": "IMAGE",
				"media":              []any{map[string]any{"media": "urn:li:digitalmediaAsset:C4E22", "status": "READY"}},
			},
			wantType:  MediaImage,
			wantThumb: "/media/C4E22",
		},
		{
			name: "processing asset",
			content: map[string]any{
				"shareMediaCategory": "VIDEO",
				"media":              []any{map[string]any{"media": "urn:li:digitalmediaAsset:C4E22", "status": "PROCESSING"}},
			},
			wantType: MediaVideo,
		},
		{
			name: "untyped media",
			content: map[string]any{
				"media": []any{map[string]any{"thumbnails": []any{map[string]any{"url": "https://cdn/x.png"}}}},
			},
			wantType:  MediaImage,
			wantThumb: "https://cdn/x.png",
		},
		{
			name: "article entity thumbnail",
			content: map[string]any{
				"shareMediaCategory": "ARTICLE",
				"content": map[string]any{"contentEntities": []any{
					map[string]any{"thumbnails": []any{map[string]any{"resolvedUrl": "https://cdn/article.jpg"}}},
				}},
			},
			wantType:  MediaArticle,
			wantThumb: "https://cdn/article.jpg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := ugcPost("A", testNow.UnixMilli(), shareContent(tt.content))
			p, ok := NormalizeChangelogPost(ev, nil, Mine(me), testOpts())
			require.True(t, ok)
			assert.Equal(t, tt.wantType, p.MediaType)
			assert.Equal(t, tt.wantThumb, p.Thumbnail)
		})
	}
}

func TestNormalizeChangelogPostIdempotent(t *testing.T) {
	ev := ugcPost("A", testNow.Add(-72*time.Hour).UnixMilli(), shareContent(map[string]any{
		"shareCommentary":    map[string]any{"text": "hello #Go"},
		"shareMediaCategory": "IMAGE",
		"media":              []any{map[string]any{"media": "urn:li:digitalmediaAsset:X", "status": "READY"}},
	}))
	idx := EngagementIndex{"A": {Likes: 2}}

	a, okA := NormalizeChangelogPost(ev, idx, Mine(me), testOpts())
	b, okB := NormalizeChangelogPost(ev, idx, Mine(me), testOpts())
	require.True(t, okA)
	require.True(t, okB)
	assert.Equal(t, a, b)
}

func TestNormalizeSnapshotPost(t *testing.T) {
	t.Run("permalink id and counts", func(t *testing.T) {
		rec := sources.Record{
			"Date":            "2025-03-01 09:30:00",
			"ShareLink":       "https://www.linkedin.com/feed/update/urn:li:activity:7101234567890/",
			"ShareCommentary": `"Shipping ""v2"" today"`,
			"LikesCount":      "1,204",
			"CommentsCount":   12.0,
			"SharesCount":     "n/a",
			"MediaType":       "VIDEO",
		}
		p, ok := NormalizeSnapshotPost(rec, 3, Mine(me), testOpts())
		require.True(t, ok)
		assert.Equal(t, "7101234567890", p.ID)
		assert.Equal(t, `Shipping "v2" today`, p.Text)
		assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC).UnixMilli(), p.Timestamp)
		assert.Equal(t, 1204, p.Likes)
		assert.Equal(t, 12, p.Comments)
		assert.Equal(t, 0, p.Shares)
		assert.Equal(t, MediaVideo, p.MediaType)
		assert.Equal(t, SourceHistorical, p.Source)
		assert.Equal(t, 14, p.DaysSincePosted)
	})

	t.Run("header variants", func(t *testing.T) {
		rec := sources.Record{
			"Share Date":       "2025-01-01",
			"Share Commentary": "lower keys",
			"Likes":            7.0,
			"MediaUrl":         "https://media.licdn.com/x.jpg",
		}
		p, ok := NormalizeSnapshotPost(rec, 0, Mine(me), testOpts())
		require.True(t, ok)
		assert.Equal(t, "lower keys", p.Text)
		assert.Equal(t, 7, p.Likes)
		assert.Equal(t, MediaImage, p.MediaType)
		assert.Equal(t, "https://media.licdn.com/x.jpg", p.Thumbnail)
		assert.True(t, p.CanRepost)
	})

	t.Run("synthetic id", func(t *testing.T) {
		rec := sources.Record{"shareCommentary": "no link", "shareDate": "garbage"}
		p, ok := NormalizeSnapshotPost(rec, 5, Mine(me), testOpts())
		require.True(t, ok)
		assert.Equal(t, testNow.UnixMilli(), p.Timestamp)
		assert.Equal(t, "historical_1742040000000_5", p.ID)
	})

	t.Run("stable id ignores index", func(t *testing.T) {
		opts := testOpts()
		opts.StableIDs = true
		rec := sources.Record{"ShareCommentary": "Same  text", "Date": "2025-03-01 09:30:00"}
		a, _ := NormalizeSnapshotPost(rec, 1, Mine(me), opts)
		b, _ := NormalizeSnapshotPost(rec, 9, Mine(me), opts)
		assert.Equal(t, a.ID, b.ID)
		assert.Contains(t, a.ID, "historical_")
	})

	t.Run("rejections", func(t *testing.T) {
		rejected := []sources.Record{
			nil,
			{"Visibility": "COMPANY", "ShareCommentary": "x"},
			{"visibility": "organization_only", "ShareCommentary": "x"},
			{"Date": "2025-01-01", "LikesCount": "3"},
		}
		for i, rec := range rejected {
			_, ok := NormalizeSnapshotPost(rec, i, Mine(me), testOpts())
			assert.False(t, ok, "record %d", i)
		}
		_, ok := NormalizeSnapshotPost(sources.Record{"ShareCommentary": "x"}, 0, Partner("urn:li:person:p"), testOpts())
		assert.False(t, ok)
	})
}

func TestParseMediaType(t *testing.T) {
	assert.Equal(t, MediaText, ParseMediaType("", false))
	assert.Equal(t, MediaImage, ParseMediaType("", true))
	assert.Equal(t, MediaText, ParseMediaType("NONE", false))
	assert.Equal(t, MediaArticle, ParseMediaType("article", false))
	assert.Equal(t, MediaURNReference, ParseMediaType("URN_REFERENCE", false))
	assert.Equal(t, MediaImage, ParseMediaType("SOMETHING_NEW", true))
}

func TestExtractActionsAndProfile(t *testing.T) {
	events := []sources.ChangelogEvent{
		ugcPost("A", testNow.UnixMilli(), nil),
		action(sources.ResourceComments, "A"),
		{ResourceName: sources.ResourceInvitations, Method: sources.MethodUpdate, CapturedAt: 10, Activity: sources.Record{"status": "ACCEPTED"}},
		{ResourceName: sources.ResourceInvitations, Method: sources.MethodCreate, CapturedAt: 11, Activity: sources.Record{"status": "PENDING"}},
		{ResourceName: sources.ResourceMessages, Method: sources.MethodCreate, CapturedAt: 12},
		{ResourceName: sources.ResourceLikes, Method: sources.MethodDelete, CapturedAt: 13},
	}

	actions := ExtractActions(events)
	require.Len(t, actions, 4)
	assert.Equal(t, ActionPost, actions[0].Kind)
	assert.Equal(t, ActionComment, actions[1].Kind)
	assert.Equal(t, "A", actions[1].Object)
	assert.True(t, actions[2].Accepted)
	assert.False(t, actions[3].Accepted)

	profile := NormalizeProfile([]sources.Record{{"Headline": "Engineer", "Geo Location": "Berlin", "Summary": " "}})
	assert.Equal(t, 2, profile.CompletedFields())
	assert.Equal(t, 0, NormalizeProfile(nil).CompletedFields())
}
