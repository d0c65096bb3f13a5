package linkedin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/postpulse/postpulse-backend/internal/sources"
)

const (
	DefaultBaseURL    = "https://api.linkedin.com"
	DefaultAPIVersion = "202312"

	changelogPath = "/rest/memberChangeLogs"
	snapshotPath  = "/rest/memberSnapshotData"
	userinfoPath  = "/v2/userinfo"
)

// ErrUnauthorized is returned when LinkedIn rejects the bearer token.
var ErrUnauthorized = errors.New("linkedin rejected the access token")

// StatusError is a non-2xx response from LinkedIn.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("linkedin %s: status %d: %s", e.Path, e.Status, e.Body)
}

type Options struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	PageSize   int
	MaxPages   int
}

// Provider implements sources.Provider against the LinkedIn DMA REST API.
type Provider struct {
	logger   *zap.SugaredLogger
	client   *resty.Client
	observer sources.Observer
	pageSize int
	maxPages int

	mu     sync.RWMutex
	health sources.ProviderHealth
}

// NewProvider creates a LinkedIn provider. observer may be nil.
func NewProvider(opts Options, logger *zap.SugaredLogger, observer sources.Observer) *Provider {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.APIVersion == "" {
		opts.APIVersion = DefaultAPIVersion
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 50
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1
	}

	client := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json").
		SetHeader("LinkedIn-Version", opts.APIVersion).
		SetHeader("X-Restli-Protocol-Version", "2.0.0")

	return &Provider{
		logger:   logger,
		client:   client,
		observer: observer,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		health: sources.ProviderHealth{
			Healthy:     true,
			LastSuccess: time.Now(),
		},
	}
}

func (p *Provider) Name() string {
	return "linkedin"
}

func (p *Provider) Health() sources.ProviderHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health
}

func (p *Provider) updateHealth(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err == nil {
		p.health.Healthy = true
		p.health.LastSuccess = time.Now()
		p.health.LastError = ""
		return
	}
	// A cancelled caller says nothing about LinkedIn.
	if errors.Is(err, context.Canceled) {
		return
	}
	p.health.Healthy = false
	p.health.LastError = err.Error()
	p.health.Failures++
}

func (p *Provider) get(ctx context.Context, token, path string, query map[string]string) ([]byte, error) {
	resp, err := p.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(query).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("linkedin %s: %w", path, err)
	}
	switch {
	case resp.StatusCode() == 401 || resp.StatusCode() == 403:
		return nil, fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode())
	case resp.IsError() || resp.StatusCode() < 200 || resp.StatusCode() >= 300:
		body := resp.String()
		if len(body) > 256 {
			body = body[:256]
		}
		return nil, &StatusError{Path: path, Status: resp.StatusCode(), Body: body}
	}
	return resp.Body(), nil
}

// FetchIdentity resolves the member urn from the OpenID userinfo endpoint.
func (p *Provider) FetchIdentity(ctx context.Context, token string) (sources.Identity, error) {
	body, err := p.get(ctx, token, userinfoPath, nil)
	if err != nil {
		p.updateHealth(err)
		return sources.Identity{}, err
	}

	var info struct {
		Sub  string `json:"sub"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		err = fmt.Errorf("decode userinfo: %w", err)
		p.updateHealth(err)
		return sources.Identity{}, err
	}
	if info.Sub == "" {
		err := errors.New("userinfo has no subject")
		p.updateHealth(err)
		return sources.Identity{}, err
	}

	p.updateHealth(nil)
	return sources.Identity{PersonURN: "urn:li:person:" + info.Sub, Name: info.Name}, nil
}

// FetchChangelog reads one page of the member changelog. The feed is a
// bounded window of recent events, so older pages are never requested.
func (p *Provider) FetchChangelog(ctx context.Context, token string) ([]sources.ChangelogEvent, error) {
	body, err := p.get(ctx, token, changelogPath, map[string]string{
		"q":     "memberAndApplication",
		"count": strconv.Itoa(p.pageSize),
	})
	if err != nil {
		p.updateHealth(err)
		return []sources.ChangelogEvent{}, err
	}

	events, _, skipped, err := sources.DecodeChangelog(body)
	if err != nil {
		p.updateHealth(err)
		return []sources.ChangelogEvent{}, err
	}
	p.reportSkipped("changelog", skipped)

	p.updateHealth(nil)
	p.logger.Debugw("Fetched changelog", "events", len(events), "skipped", skipped)
	return events, nil
}

// FetchSnapshot pages through one snapshot domain. Any failed page discards
// the whole domain.
func (p *Provider) FetchSnapshot(ctx context.Context, token, domain string) ([]sources.SnapshotElement, error) {
	all := make([]sources.SnapshotElement, 0)
	start := 0

	for page := 0; page < p.maxPages; page++ {
		body, err := p.get(ctx, token, snapshotPath, map[string]string{
			"q":      "criteria",
			"domain": domain,
			"start":  strconv.Itoa(start),
			"count":  strconv.Itoa(p.pageSize),
		})
		if err != nil {
			p.updateHealth(err)
			return []sources.SnapshotElement{}, err
		}

		elements, paging, skipped, err := sources.DecodeSnapshot(body)
		if err != nil {
			p.updateHealth(err)
			return []sources.SnapshotElement{}, fmt.Errorf("snapshot %s page %d: %w", domain, page, err)
		}
		p.reportSkipped("snapshot", skipped)
		all = append(all, elements...)

		if !paging.HasNext() || len(elements) == 0 {
			break
		}
		start += len(elements)
	}

	p.updateHealth(nil)
	p.logger.Debugw("Fetched snapshot", "domain", domain, "elements", len(all))
	return all, nil
}

func (p *Provider) reportSkipped(source string, n int) {
	if n == 0 {
		return
	}
	p.logger.Warnw("Skipped malformed elements", "source", source, "count", n)
	if p.observer != nil {
		p.observer.RecordSkipped(source, "malformed", n)
	}
}
