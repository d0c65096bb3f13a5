package posts

import (
	"strings"

	"github.com/postpulse/postpulse-backend/internal/sources"
)

const personURNPrefix = "urn:li:person:"

// IsPersonURN reports whether urn names a member rather than an organization.
func IsPersonURN(urn string) bool {
	return strings.HasPrefix(urn, personURNPrefix)
}

// Attribution decides which records belong to the timeline being built.
type Attribution struct {
	Name string

	// Changelog receives the post author and the event owner.
	Changelog func(author, owner string) bool

	// Snapshot receives a MEMBER_SHARE_INFO record.
	Snapshot func(rec sources.Record) bool
}

// Mine keeps the authenticated member's own posts. An empty memberURN skips
// the owner check.
func Mine(memberURN string) Attribution {
	return Attribution{
		Name: "mine",
		Changelog: func(_, owner string) bool {
			return memberURN == "" || owner == memberURN
		},
		Snapshot: func(sources.Record) bool { return true },
	}
}

// Partner keeps changelog posts authored by partnerURN. The snapshot export
// only ever contains the member's own shares, so it contributes nothing.
func Partner(partnerURN string) Attribution {
	return Attribution{
		Name: "partner:" + partnerURN,
		Changelog: func(author, _ string) bool {
			return author == partnerURN
		},
		Snapshot: func(sources.Record) bool { return false },
	}
}

func (a Attribution) acceptChangelog(author, owner string) bool {
	if a.Changelog == nil {
		return true
	}
	return a.Changelog(author, owner)
}

func (a Attribution) acceptSnapshot(rec sources.Record) bool {
	if a.Snapshot == nil {
		return true
	}
	return a.Snapshot(rec)
}
