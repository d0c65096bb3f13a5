package posts

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/postpulse/postpulse-backend/internal/sources"
)

// Header spellings seen in MEMBER_SHARE_INFO exports, most specific first.
var (
	keysDate       = []string{"Date", "Share Date", "shareDate", "date", "Created Date"}
	keysLink       = []string{"ShareLink", "shareLink", "Share Link", "link", "URL"}
	keysCommentary = []string{"ShareCommentary", "shareCommentary", "Share Commentary", "commentary", "Commentary"}
	keysVisibility = []string{"Visibility", "visibility", "Share Visibility", "ShareVisibility"}
	keysLikes      = []string{"LikesCount", "Likes", "likes", "likesCount", "Likes Count"}
	keysComments   = []string{"CommentsCount", "Comments", "comments", "commentsCount", "Comments Count"}
	keysShares     = []string{"SharesCount", "Shares", "shares", "sharesCount", "Shares Count"}
	keysMediaType  = []string{"MediaType", "mediaType", "Media Type", "SharedMediaType"}
	keysMediaURL   = []string{"MediaUrl", "mediaUrl", "Media URL", "MediaURL"}
)

var activityIDRe = regexp.MustCompile(`activity(?:-|:|%3A)(\d+)`)

var snapshotDateLayouts = []string{
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
	"Jan 2, 2006",
	"02 Jan 2006",
}

// NormalizeSnapshotPost converts one MEMBER_SHARE_INFO record into a Post.
// index is the record's position in the export and only feeds the synthetic id.
func NormalizeSnapshotPost(rec sources.Record, index int, attr Attribution, opts Options) (Post, bool) {
	if rec == nil {
		return Post{}, false
	}
	vis := strings.ToUpper(rec.String(keysVisibility...))
	if strings.Contains(vis, "COMPANY") || strings.Contains(vis, "ORGANIZATION") {
		return Post{}, false
	}

	text := cleanCommentary(rec.String(keysCommentary...))
	link := rec.String(keysLink...)
	if text == "" && link == "" {
		return Post{}, false
	}
	if !attr.acceptSnapshot(rec) {
		return Post{}, false
	}

	now := opts.now()
	ts := parseSnapshotDate(rec.String(keysDate...), opts.location(), now)

	mediaURL := rec.String(keysMediaURL...)
	mediaType := ParseMediaType(rec.String(keysMediaType...), mediaURL != "")

	var thumbnail string
	if strings.HasPrefix(mediaURL, "http://") || strings.HasPrefix(mediaURL, "https://") {
		thumbnail = mediaURL
	}

	days, canRepost := age(ts, now)
	return Post{
		ID:              snapshotID(link, text, ts, index, opts.StableIDs),
		Text:            text,
		Timestamp:       ts,
		Likes:           nonNegative(rec.Int(keysLikes...)),
		Comments:        nonNegative(rec.Int(keysComments...)),
		Shares:          nonNegative(rec.Int(keysShares...)),
		MediaType:       mediaType,
		Thumbnail:       thumbnail,
		CanRepost:       canRepost,
		DaysSincePosted: days,
		Source:          SourceHistorical,
		Link:            link,
	}, true
}

// NormalizeSnapshot normalizes every MEMBER_SHARE_INFO record and drops the
// rejected ones.
func NormalizeSnapshot(records []sources.Record, attr Attribution, opts Options) []Post {
	out := make([]Post, 0, len(records))
	for i, rec := range records {
		if p, ok := NormalizeSnapshotPost(rec, i, attr, opts); ok {
			out = append(out, p)
		}
	}
	return out
}

// ActivityID extracts the numeric activity id from a share permalink.
func ActivityID(link string) string {
	if m := activityIDRe.FindStringSubmatch(link); m != nil {
		return m[1]
	}
	return ""
}

func snapshotID(link, text string, ts int64, index int, stable bool) string {
	if id := ActivityID(link); id != "" {
		return id
	}
	if stable {
		return StableID(text, ts)
	}
	return fmt.Sprintf("historical_%d_%d", ts, index)
}

// StableID hashes normalized text and the minute-rounded timestamp so a
// record keeps its id when export ordering shifts.
func StableID(text string, ts int64) string {
	norm := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	minute := ts / int64(time.Minute/time.Millisecond)
	sum := sha3.Sum256([]byte(fmt.Sprintf("%s|%d", norm, minute)))
	return "historical_" + hex.EncodeToString(sum[:8])
}

func parseSnapshotDate(raw string, loc *time.Location, now time.Time) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UnixMilli()
	}
	for _, layout := range snapshotDateLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UnixMilli()
		}
	}
	return now.UnixMilli()
}

// cleanCommentary strips the CSV quoting the export wraps around commentary.
func cleanCommentary(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		s = s[1 : len(s)-1]
	}
	return strings.TrimSpace(strings.ReplaceAll(s, `""`, `"`))
}

func nonNegative(n int64) int {
	if n < 0 {
		return 0
	}
	return int(n)
}
