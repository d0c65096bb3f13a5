package analytics

import (
	"time"

	"github.com/postpulse/postpulse-backend/internal/posts"
)

const dateLayout = "2006-01-02"

type DayBucket struct {
	Date        string `json:"date"`
	Posts       int    `json:"posts"`
	Engagements int    `json:"engagements"`
}

type WeekBucket struct {
	WeekStart   string `json:"weekStart"`
	Posts       int    `json:"posts"`
	Engagements int    `json:"engagements"`
}

type GrowthPoint struct {
	Date  string `json:"date"`
	Total int    `json:"total"`
}

// dayKeys returns the last n local calendar dates, oldest first, ending today.
func dayKeys(n int, now time.Time, loc *time.Location) []string {
	if loc == nil {
		loc = time.Local
	}
	if n < 0 {
		n = 0
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = today.AddDate(0, 0, i-(n-1)).Format(dateLayout)
	}
	return keys
}

func dayKey(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ts).In(loc).Format(dateLayout)
}

// DailyTrend returns exactly days buckets, oldest to newest. Posts count by
// creation date; likes and comments from actions count as engagements.
func DailyTrend(ps []posts.Post, actions []posts.Action, days int, now time.Time, loc *time.Location) []DayBucket {
	keys := dayKeys(days, now, loc)
	buckets := make([]DayBucket, len(keys))
	index := make(map[string]int, len(keys))
	for i, k := range keys {
		buckets[i] = DayBucket{Date: k}
		index[k] = i
	}

	for _, p := range ps {
		if i, ok := index[dayKey(p.Timestamp, loc)]; ok {
			buckets[i].Posts++
		}
	}
	for _, a := range actions {
		if a.Kind != posts.ActionLike && a.Kind != posts.ActionComment {
			continue
		}
		if i, ok := index[dayKey(a.Timestamp, loc)]; ok {
			buckets[i].Engagements++
		}
	}
	return buckets
}

// WeeklyTrend folds daily buckets into consecutive seven-day groups starting
// from the oldest day. The final group may be shorter.
func WeeklyTrend(daily []DayBucket) []WeekBucket {
	weeks := make([]WeekBucket, 0, (len(daily)+6)/7)
	for i, d := range daily {
		if i%7 == 0 {
			weeks = append(weeks, WeekBucket{WeekStart: d.Date})
		}
		w := &weeks[len(weeks)-1]
		w.Posts += d.Posts
		w.Engagements += d.Engagements
	}
	return weeks
}

// ConnectionGrowth reconstructs the connection total for each of the last days
// by walking back from current and subtracting each day's accepted
// invitations. The series is non-decreasing and never below zero.
func ConnectionGrowth(current int, accepted []posts.Action, days int, now time.Time, loc *time.Location) []GrowthPoint {
	keys := dayKeys(days, now, loc)
	perDay := make(map[string]int)
	for _, a := range accepted {
		if a.Kind == posts.ActionInvitation && a.Accepted {
			perDay[dayKey(a.Timestamp, loc)]++
		}
	}

	points := make([]GrowthPoint, len(keys))
	running := current
	if running < 0 {
		running = 0
	}
	for i := len(keys) - 1; i >= 0; i-- {
		points[i] = GrowthPoint{Date: keys[i], Total: running}
		running -= perDay[keys[i]]
		if running < 0 {
			running = 0
		}
	}
	return points
}

// AcceptedInvitations counts accepted invitation actions.
func AcceptedInvitations(actions []posts.Action) int {
	n := 0
	for _, a := range actions {
		if a.Kind == posts.ActionInvitation && a.Accepted {
			n++
		}
	}
	return n
}

// CommentsBy counts comment actions by actor. An empty actor counts all.
func CommentsBy(actions []posts.Action, actor string) int {
	n := 0
	for _, a := range actions {
		if a.Kind == posts.ActionComment && (actor == "" || a.Actor == actor) {
			n++
		}
	}
	return n
}
