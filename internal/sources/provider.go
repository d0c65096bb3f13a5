package sources

import (
	"context"
	"time"
)

// Snapshot domains fetched by the pipeline.
const (
	DomainProfile     = "PROFILE"
	DomainConnections = "CONNECTIONS"
	DomainShares      = "MEMBER_SHARE_INFO"
)

// Identity describes the member the bearer token belongs to.
type Identity struct {
	PersonURN string `json:"person_urn"`
	Name      string `json:"name,omitempty"`
}

// Provider defines the interface for member data sources.
//
// Every fetch returns a non-nil slice even when it also returns an error, so
// callers can treat a failed source as empty input.
type Provider interface {
	// FetchIdentity resolves the member urn for a token.
	FetchIdentity(ctx context.Context, token string) (Identity, error)

	// FetchChangelog returns the most recent activity events, newest first.
	FetchChangelog(ctx context.Context, token string) ([]ChangelogEvent, error)

	// FetchSnapshot returns the export elements of one snapshot domain.
	FetchSnapshot(ctx context.Context, token, domain string) ([]SnapshotElement, error)

	// Name returns the provider identifier
	Name() string

	// Health returns current provider health status
	Health() ProviderHealth
}

// ProviderHealth represents the current status of a provider
type ProviderHealth struct {
	Healthy     bool      `json:"healthy"`
	LastError   string    `json:"last_error,omitempty"`
	LastSuccess time.Time `json:"last_success"`
	Failures    int       `json:"failures"`
}

// Observer receives counts of records dropped while decoding or narrowing.
type Observer interface {
	RecordSkipped(source, reason string, n int)
}

// Records returns the snapshot data of every element in the given domain.
func Records(elements []SnapshotElement, domain string) []Record {
	out := make([]Record, 0)
	for _, el := range elements {
		if el.Domain != domain {
			continue
		}
		out = append(out, el.Data...)
	}
	return out
}
