package sources

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Changelog resource kinds and methods.
const (
	ResourceUGCPosts    = "ugcPosts"
	ResourceLikes       = "socialActions/likes"
	ResourceComments    = "socialActions/comments"
	ResourceShares      = "socialActions/shares"
	ResourceInvitations = "invitations"
	ResourceMessages    = "messages"

	MethodCreate = "CREATE"
	MethodUpdate = "UPDATE"
	MethodDelete = "DELETE"
)

// ChangelogEvent is one entry of the member changelog feed.
type ChangelogEvent struct {
	ID                int64  `json:"id"`
	ResourceName      string `json:"resourceName"`
	ResourceID        string `json:"resourceId"`
	Method            string `json:"method"`
	Owner             string `json:"owner"`
	Actor             string `json:"actor"`
	CapturedAt        int64  `json:"capturedAt"`
	ProcessedAt       int64  `json:"processedAt"`
	Activity          Record `json:"activity,omitempty"`
	ProcessedActivity Record `json:"processedActivity,omitempty"`

	// Raw keeps the element as received for debugging and replay.
	Raw json.RawMessage `json:"-"`
}

// SnapshotElement is one domain-scoped block of a snapshot export.
type SnapshotElement struct {
	Domain string   `json:"snapshotDomain"`
	Data   []Record `json:"snapshotData"`
}

// Paging mirrors the Rest.li paging block.
type Paging struct {
	Start int `json:"start"`
	Count int `json:"count"`
	Total int `json:"total"`
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

// HasNext reports whether the page advertises a following page.
func (p Paging) HasNext() bool {
	for _, l := range p.Links {
		if l.Rel == "next" {
			return true
		}
	}
	return false
}

type envelope struct {
	Elements []json.RawMessage `json:"elements"`
	Paging   Paging            `json:"paging"`
}

// ErrNoElements is returned when a payload lacks an elements array.
var ErrNoElements = errors.New("payload has no elements array")

// DecodeChangelog decodes a changelog page element by element. Malformed
// elements are skipped and counted instead of failing the page.
func DecodeChangelog(body []byte) (events []ChangelogEvent, paging Paging, skipped int, err error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return []ChangelogEvent{}, Paging{}, 0, fmt.Errorf("decode changelog page: %w", err)
	}
	if env.Elements == nil {
		return []ChangelogEvent{}, env.Paging, 0, ErrNoElements
	}

	events = make([]ChangelogEvent, 0, len(env.Elements))
	for _, raw := range env.Elements {
		var ev ChangelogEvent
		if err := json.Unmarshal(raw, &ev); err != nil || ev.ResourceName == "" {
			skipped++
			continue
		}
		ev.Raw = raw
		events = append(events, ev)
	}
	return events, env.Paging, skipped, nil
}

// DecodeSnapshot decodes a snapshot page element by element, dropping
// elements without a domain or with a non-array data block.
func DecodeSnapshot(body []byte) (elements []SnapshotElement, paging Paging, skipped int, err error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return []SnapshotElement{}, Paging{}, 0, fmt.Errorf("decode snapshot page: %w", err)
	}
	if env.Elements == nil {
		return []SnapshotElement{}, env.Paging, 0, ErrNoElements
	}

	elements = make([]SnapshotElement, 0, len(env.Elements))
	for _, raw := range env.Elements {
		var el struct {
			Domain string            `json:"snapshotDomain"`
			Data   []json.RawMessage `json:"snapshotData"`
		}
		if err := json.Unmarshal(raw, &el); err != nil || el.Domain == "" {
			skipped++
			continue
		}
		out := SnapshotElement{Domain: el.Domain, Data: make([]Record, 0, len(el.Data))}
		for _, item := range el.Data {
			var rec Record
			if err := json.Unmarshal(item, &rec); err != nil || rec == nil {
				skipped++
				continue
			}
			out.Data = append(out.Data, rec)
		}
		elements = append(elements, out)
	}
	return elements, env.Paging, skipped, nil
}
