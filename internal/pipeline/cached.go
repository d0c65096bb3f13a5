package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/postpulse/postpulse-backend/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	defaultDegradedTTL = 30 * time.Second
	defaultRunTimeout  = time.Minute
)

// CacheOptions configures a Cached runner. Zero durations take defaults.
type CacheOptions struct {
	// TTL applies to complete Results. Zero means no expiry.
	TTL time.Duration
	// DegradedTTL caps the TTL of Results missing one or more sources.
	DegradedTTL time.Duration
	// RunTimeout bounds a shared upstream run. The run is detached from
	// the callers that joined it.
	RunTimeout time.Duration
}

// Cached serves Results from a TTL cache keyed by token fingerprint and query.
// Concurrent identical misses share one upstream run.
type Cached struct {
	runner Runner
	cache  *store.Cache
	opts   CacheOptions
	group  singleflight.Group
	logger *zap.SugaredLogger
}

func NewCached(runner Runner, cache *store.Cache, opts CacheOptions, logger *zap.SugaredLogger) *Cached {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.DegradedTTL <= 0 {
		opts.DegradedTTL = defaultDegradedTTL
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = defaultRunTimeout
	}
	return &Cached{runner: runner, cache: cache, opts: opts, logger: logger}
}

// CacheKey returns the cache key for req.
func CacheKey(req Request) string {
	return store.Key(store.KeyTimeline, Fingerprint(req.Token), queryFingerprint(req))
}

func (c *Cached) Run(ctx context.Context, req Request) (*Result, error) {
	if req.Token == "" {
		return nil, ErrMissingToken
	}
	if r, ok := c.runner.(interface{ Resolve(Request) Request }); ok {
		req = r.Resolve(req)
	}
	key := CacheKey(req)

	if !req.Refresh {
		var cached Result
		err := c.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, store.ErrCacheMiss) {
			c.logger.Warnw("Timeline cache read failed; recomputing", "error", err)
		}
	}

	// A caller that gives up leaves the run going for everyone else that
	// joined the key.
	ch := c.group.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RunTimeout)
		defer cancel()
		res, err := c.runner.Run(runCtx, req)
		if err != nil {
			return nil, err
		}
		c.store(runCtx, key, req, res)
		return res, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*Result), nil
	}
}

// ttlFor shortens the lifetime of degraded Results so a transient source
// failure is retried well before the full TTL.
func (c *Cached) ttlFor(res *Result) time.Duration {
	if len(res.Degraded) == 0 {
		return c.opts.TTL
	}
	if c.opts.TTL > 0 && c.opts.TTL < c.opts.DegradedTTL {
		return c.opts.TTL
	}
	return c.opts.DegradedTTL
}

func (c *Cached) store(ctx context.Context, key string, req Request, res *Result) {
	if err := c.cache.Set(ctx, key, res, c.ttlFor(res)); err != nil {
		c.logger.Warnw("Timeline cache write failed", "error", err)
		return
	}

	event := UpdateEvent{
		Type:        EventTimelineUpdated,
		Scope:       res.Scope,
		Posts:       len(res.Posts),
		Degraded:    res.Degraded,
		GeneratedAt: res.GeneratedAt,
	}
	if err := c.cache.Publish(ctx, Topic(Fingerprint(req.Token)), event); err != nil {
		c.logger.Warnw("Timeline update publish failed", "error", err)
	}
}

// Invalidate drops the cached Result for req.
func (c *Cached) Invalidate(ctx context.Context, req Request) error {
	if r, ok := c.runner.(interface{ Resolve(Request) Request }); ok {
		req = r.Resolve(req)
	}
	return c.cache.Delete(ctx, CacheKey(req))
}
