package posts

import (
	"strings"

	"github.com/postpulse/postpulse-backend/internal/sources"
)

type ActionKind string

const (
	ActionPost       ActionKind = "post"
	ActionLike       ActionKind = "like"
	ActionComment    ActionKind = "comment"
	ActionShare      ActionKind = "share"
	ActionInvitation ActionKind = "invitation"
)

// Action is a narrowed CREATE or invitation event from the changelog.
type Action struct {
	Kind      ActionKind `json:"kind"`
	Timestamp int64      `json:"timestamp"`
	Actor     string     `json:"actor,omitempty"`
	Object    string     `json:"object,omitempty"`
	Accepted  bool       `json:"accepted,omitempty"`
}

// ExtractActions narrows the changelog to the events the aggregates count.
// Invitations are kept whatever their method since acceptance arrives as an
// UPDATE.
func ExtractActions(events []sources.ChangelogEvent) []Action {
	out := make([]Action, 0, len(events))
	for _, ev := range events {
		ts := ev.CapturedAt
		if ts <= 0 {
			ts = ev.ProcessedAt
		}
		if ts <= 0 {
			continue
		}

		var kind ActionKind
		switch ev.ResourceName {
		case sources.ResourceUGCPosts:
			kind = ActionPost
		case sources.ResourceLikes:
			kind = ActionLike
		case sources.ResourceComments:
			kind = ActionComment
		case sources.ResourceShares:
			kind = ActionShare
		case sources.ResourceInvitations:
			status := firstString([]sources.Record{ev.ProcessedActivity, ev.Activity}, "status")
			out = append(out, Action{
				Kind:      ActionInvitation,
				Timestamp: ts,
				Actor:     ev.Actor,
				Accepted:  strings.EqualFold(status, "ACCEPTED"),
			})
			continue
		default:
			continue
		}
		if ev.Method != sources.MethodCreate {
			continue
		}

		obj, _ := ev.Activity["object"].(string)
		out = append(out, Action{Kind: kind, Timestamp: ts, Actor: ev.Actor, Object: obj})
	}
	return out
}

// Profile is the narrowed PROFILE snapshot record.
type Profile struct {
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Headline  string `json:"headline,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Industry  string `json:"industry,omitempty"`
	Location  string `json:"location,omitempty"`
}

// CompletedFields counts the filled fields out of headline, summary,
// industry and location.
func (p Profile) CompletedFields() int {
	n := 0
	for _, f := range []string{p.Headline, p.Summary, p.Industry, p.Location} {
		if strings.TrimSpace(f) != "" {
			n++
		}
	}
	return n
}

// NormalizeProfile reads the first PROFILE record.
func NormalizeProfile(records []sources.Record) Profile {
	if len(records) == 0 {
		return Profile{}
	}
	r := records[0]
	return Profile{
		FirstName: r.String("First Name", "firstName", "FirstName"),
		LastName:  r.String("Last Name", "lastName", "LastName"),
		Headline:  r.String("Headline", "headline"),
		Summary:   r.String("Summary", "summary"),
		Industry:  r.String("Industry", "industry"),
		Location:  r.String("Geo Location", "Location", "location", "geoLocation"),
	}
}
