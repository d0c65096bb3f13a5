package pipeline

import (
	"time"

	"github.com/postpulse/postpulse-backend/internal/analytics"
	"github.com/postpulse/postpulse-backend/internal/posts"
	"github.com/postpulse/postpulse-backend/internal/sources"
)

// Request selects whose timeline to build and over which window.
type Request struct {
	Token string

	// Days is the trend window. Zero selects the configured default.
	Days int

	// Limit bounds the merged timeline. Zero selects the configured default.
	Limit int

	// Partner switches attribution from the member's own posts to posts
	// authored by this person urn.
	Partner string

	// Now pins the clock for age and trend computations.
	Now time.Time

	// Refresh skips the cache lookup.
	Refresh bool
}

// Scope names the attribution the request selects.
func (r Request) Scope() string {
	if r.Partner != "" {
		return "partner"
	}
	return "mine"
}

func (r Request) attribution(member string) posts.Attribution {
	if r.Partner != "" {
		return posts.Partner(r.Partner)
	}
	return posts.Mine(member)
}

// Analytics are the aggregates derived from a merged timeline.
type Analytics struct {
	Histogram        map[posts.MediaType]int  `json:"histogram"`
	Hashtags         []analytics.HashtagCount `json:"hashtags"`
	Trend            []analytics.DayBucket    `json:"trend"`
	WeeklyTrend      []analytics.WeekBucket   `json:"weeklyTrend"`
	ConnectionGrowth []analytics.GrowthPoint  `json:"connectionGrowth"`
	Totals           analytics.Totals         `json:"totals"`
}

// Result is one pipeline run. Slices and maps are never nil.
type Result struct {
	Member      sources.Identity      `json:"member"`
	Scope       string                `json:"scope"`
	Posts       []posts.Post          `json:"posts"`
	Actions     []posts.Action        `json:"actions"`
	Profile     posts.Profile         `json:"profile"`
	Connections int                   `json:"connections"`
	Analytics   Analytics             `json:"analytics"`
	ScoreInputs analytics.ScoreInputs `json:"scoreInputs"`
	Scores      analytics.Scores      `json:"scores"`

	// Degraded lists the sources that failed and were treated as empty.
	Degraded    []string  `json:"degraded"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// UpdateEvent is published after a fresh run is cached.
type UpdateEvent struct {
	Type        string    `json:"type"`
	Scope       string    `json:"scope"`
	Posts       int       `json:"posts"`
	Degraded    []string  `json:"degraded"`
	GeneratedAt time.Time `json:"generatedAt"`
}

const EventTimelineUpdated = "timeline_updated"
