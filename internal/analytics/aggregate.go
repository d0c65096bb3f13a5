// Package analytics derives histograms, rankings, trends and profile scores
// from a reconciled post timeline. Every function is a pure fold over its
// inputs.
package analytics

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/postpulse/postpulse-backend/internal/posts"
)

// TopHashtags is the size of the hashtag ranking.
const TopHashtags = 10

var hashtagRe = regexp.MustCompile(`#\w+`)

// ContentHistogram counts posts per media type. Every type in
// posts.MediaTypes is present, zero when unseen.
func ContentHistogram(ps []posts.Post) map[posts.MediaType]int {
	h := make(map[posts.MediaType]int, len(posts.MediaTypes))
	for _, mt := range posts.MediaTypes {
		h[mt] = 0
	}
	for _, p := range ps {
		mt := p.MediaType
		if _, ok := h[mt]; !ok {
			mt = posts.MediaText
		}
		h[mt]++
	}
	return h
}

// DistinctMediaTypes counts histogram buckets with at least one post.
func DistinctMediaTypes(h map[posts.MediaType]int) int {
	n := 0
	for _, c := range h {
		if c > 0 {
			n++
		}
	}
	return n
}

type HashtagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// RankHashtags returns the top n lower-cased hashtags by frequency. Ties keep
// first-seen order.
func RankHashtags(ps []posts.Post, n int) []HashtagCount {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, p := range ps {
		for _, tag := range hashtagRe.FindAllString(p.Text, -1) {
			tag = strings.ToLower(tag)
			if _, ok := counts[tag]; !ok {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}

	ranked := make([]HashtagCount, 0, len(order))
	for _, tag := range order {
		ranked = append(ranked, HashtagCount{Tag: tag, Count: counts[tag]})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Totals summarizes engagement over a timeline.
type Totals struct {
	Posts                 int     `json:"posts"`
	Likes                 int     `json:"likes"`
	Comments              int     `json:"comments"`
	Shares                int     `json:"shares"`
	Engagement            int     `json:"engagement"`
	AvgEngagementPerPost  float64 `json:"avgEngagementPerPost"`
	EngagementRatePercent float64 `json:"engagementRatePercent"`
	RepostCandidates      int     `json:"repostCandidates"`
}

// ComputeTotals sums engagement. The rate is engagement per connection in
// percent, zero without connections.
func ComputeTotals(ps []posts.Post, connections int) Totals {
	var t Totals
	for _, p := range ps {
		t.Posts++
		t.Likes += p.Likes
		t.Comments += p.Comments
		t.Shares += p.Shares
		if p.CanRepost {
			t.RepostCandidates++
		}
	}
	t.Engagement = t.Likes + t.Comments + t.Shares

	eng := decimal.NewFromInt(int64(t.Engagement))
	if t.Posts > 0 {
		t.AvgEngagementPerPost = eng.Div(decimal.NewFromInt(int64(t.Posts))).Round(2).InexactFloat64()
	}
	if connections > 0 {
		t.EngagementRatePercent = eng.Div(decimal.NewFromInt(int64(connections))).Mul(dHundred).Round(2).InexactFloat64()
	}
	return t
}
