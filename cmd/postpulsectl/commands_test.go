package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postpulse/postpulse-backend/internal/analytics"
	"github.com/postpulse/postpulse-backend/internal/pipeline"
	"github.com/postpulse/postpulse-backend/internal/posts"
	"github.com/postpulse/postpulse-backend/internal/repository"
)

func sampleResult() *pipeline.Result {
	return &pipeline.Result{
		Posts: []posts.Post{{
			ID:        "7001",
			Text:      "Shipping   a new\nrelease today #golang",
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
			Likes:     4,
			MediaType: posts.MediaText,
			Source:    posts.SourceChangelog,
		}},
		Analytics: pipeline.Analytics{
			Histogram: map[posts.MediaType]int{posts.MediaText: 1},
			Hashtags:  []analytics.HashtagCount{{Tag: "#golang", Count: 1}},
			Trend:     []analytics.DayBucket{{Date: "2024-03-01", Posts: 1, Engagements: 4}},
			Totals:    analytics.Totals{Posts: 1, Likes: 4, Engagement: 4, AvgEngagementPerPost: 4},
		},
		Scores:   analytics.Scores{PostingActivity: 1, Overall: 1.4},
		Degraded: []string{"snapshot:PROFILE"},
	}
}

func TestRenderTimeline(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderTimeline(&buf, sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "7001")
	assert.Contains(t, out, "Shipping a new release today #golang")
	assert.Contains(t, out, "degraded sources: snapshot:PROFILE")
}

func TestRenderAnalytics(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderAnalytics(&buf, sampleResult()))

	out := buf.String()
	assert.Contains(t, out, "#golang")
	assert.Contains(t, out, "2024-03-01")
	assert.Contains(t, out, "URN_REFERENCE")
}

func TestRenderScores(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderScores(&buf, sampleResult()))
	assert.Contains(t, buf.String(), "posting activity")
	assert.Contains(t, buf.String(), "1.4/10")
}

func TestRenderPartners(t *testing.T) {
	var buf bytes.Buffer
	id := uuid.New()
	require.NoError(t, renderPartners(&buf, []repository.Partner{{ID: id, Name: "Ada", PartnerURN: "urn:li:person:ada"}}))
	assert.Contains(t, buf.String(), id.String())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
	assert.Equal(t, "a b", truncate(" a \n b ", 5))
}

func TestTokenFromEnv(t *testing.T) {
	tokenFlag = ""
	t.Setenv("PP_TOKEN", "env-token")
	tok, err := token()
	require.NoError(t, err)
	assert.Equal(t, "env-token", tok)

	t.Setenv("PP_TOKEN", "")
	_, err = token()
	assert.Error(t, err)
}
