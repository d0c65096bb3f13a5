package posts

import (
	"regexp"
	"strings"

	"github.com/postpulse/postpulse-backend/internal/sources"
)

const shareContentKey = "com.linkedin.ugc.ShareContent"

var digitalMediaAssetRe = regexp.MustCompile(`urn:li:digitalmediaAsset:(.+)`)

// NormalizeChangelogPost converts a ugcPosts event into a Post. It reports
// false for events that are not live posts attributed by attr.
func NormalizeChangelogPost(ev sources.ChangelogEvent, idx EngagementIndex, attr Attribution, opts Options) (Post, bool) {
	if ev.ResourceName != sources.ResourceUGCPosts || ev.Method == sources.MethodDelete {
		return Post{}, false
	}
	if ev.ResourceID == "" {
		return Post{}, false
	}

	payloads := []sources.Record{ev.ProcessedActivity, ev.Activity}

	switch strings.ToUpper(firstString(payloads, "lifecycleState")) {
	case "DELETED", "REMOVED":
		return Post{}, false
	}

	author := firstString(payloads, "author")
	if author == "" {
		author = ev.Actor
	}
	if !IsPersonURN(author) {
		return Post{}, false
	}
	if !attr.acceptChangelog(author, ev.Owner) {
		return Post{}, false
	}

	ts := ev.CapturedAt
	if ts <= 0 {
		ts = ev.ProcessedAt
	}
	now := opts.now()
	if ts <= 0 {
		ts = now.UnixMilli()
	}

	mediaType, thumbnail := changelogMedia(payloads, opts.MediaProxyPrefix)
	eng := idx.Lookup(ev.ResourceID)
	days, canRepost := age(ts, now)

	return Post{
		ID:              ev.ResourceID,
		Text:            changelogText(payloads),
		Timestamp:       ts,
		Likes:           eng.Likes,
		Comments:        eng.Comments,
		Shares:          eng.Shares,
		MediaType:       mediaType,
		Thumbnail:       thumbnail,
		CanRepost:       canRepost,
		DaysSincePosted: days,
		Source:          SourceChangelog,
		Author:          author,
	}, true
}

// NormalizeChangelog normalizes every event and drops the rejected ones.
func NormalizeChangelog(events []sources.ChangelogEvent, idx EngagementIndex, attr Attribution, opts Options) []Post {
	out := make([]Post, 0)
	for _, ev := range events {
		if p, ok := NormalizeChangelogPost(ev, idx, attr, opts); ok {
			out = append(out, p)
		}
	}
	return out
}

func changelogText(payloads []sources.Record) string {
	for _, p := range payloads {
		if s := p.PathString("specificContent", shareContentKey, "shareCommentary", "text"); strings.TrimSpace(s) != "" {
			return s
		}
	}
	for _, p := range payloads {
		if s := p.String("text", "commentary"); s != "" {
			return s
		}
		if s := p.PathString("text", "text"); strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fallbackText
}

func changelogMedia(payloads []sources.Record, proxyPrefix string) (MediaType, string) {
	var content sources.Record
	for _, p := range payloads {
		if c := p.PathRecord("specificContent", shareContentKey); c != nil {
			content = c
			break
		}
	}

	media := content.PathList("media")
	mediaType := ParseMediaType(content.String("shareMediaCategory"), len(media) > 0)

	if len(media) > 0 {
		return mediaType, mediaThumbnail(sources.AsRecord(media[0]), proxyPrefix)
	}
	if mediaType == MediaArticle {
		for _, p := range append([]sources.Record{content}, payloads...) {
			if u := entityThumbnail(p); u != "" {
				return mediaType, u
			}
		}
	}
	return mediaType, ""
}

// mediaThumbnail emits a proxy reference only for READY digital media assets,
// falling back to a direct thumbnail URL.
func mediaThumbnail(item sources.Record, proxyPrefix string) string {
	if item == nil {
		return ""
	}
	if m := digitalMediaAssetRe.FindStringSubmatch(item.String("media")); m != nil {
		if item.String("status") != "READY" {
			return ""
		}
		return proxyPrefix + m[1]
	}
	return item.PathString("thumbnails", "0", "url")
}

func entityThumbnail(r sources.Record) string {
	thumb := r.PathRecord("content", "contentEntities", "0", "thumbnails", "0")
	if thumb == nil {
		thumb = r.PathRecord("contentEntities", "0", "thumbnails", "0")
	}
	return thumb.String("resolvedUrl", "url")
}

func firstString(payloads []sources.Record, key string) string {
	for _, p := range payloads {
		if s := p.String(key); s != "" {
			return s
		}
	}
	return ""
}
