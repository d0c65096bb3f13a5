package posts

import "github.com/postpulse/postpulse-backend/internal/sources"

// Engagement holds social action counts for one post.
type Engagement struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
	Shares   int `json:"shares"`
}

// EngagementIndex maps a post id to the CREATE social actions that reference it.
type EngagementIndex map[string]Engagement

// BuildEngagementIndex scans the changelog once. Actions without a string
// activity.object are skipped, so posts outside the fetched window are
// under-counted.
func BuildEngagementIndex(events []sources.ChangelogEvent) EngagementIndex {
	idx := make(EngagementIndex)
	for _, ev := range events {
		if ev.Method != sources.MethodCreate {
			continue
		}
		switch ev.ResourceName {
		case sources.ResourceLikes, sources.ResourceComments, sources.ResourceShares:
		default:
			continue
		}
		if ev.Activity == nil {
			continue
		}
		target, ok := ev.Activity["object"].(string)
		if !ok || target == "" {
			continue
		}

		e := idx[target]
		switch ev.ResourceName {
		case sources.ResourceLikes:
			e.Likes++
		case sources.ResourceComments:
			e.Comments++
		case sources.ResourceShares:
			e.Shares++
		}
		idx[target] = e
	}
	return idx
}

// Lookup returns the counts for id, zero when absent.
func (idx EngagementIndex) Lookup(id string) Engagement {
	return idx[id]
}
