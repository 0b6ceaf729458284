package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"hangar/internal/hosting"
	"hangar/internal/registry/metrics"
	dErrors "hangar/pkg/domain-errors"
	"hangar/pkg/domain"
	"hangar/pkg/platform/retry"
	"hangar/pkg/platform/sentinel"
	"hangar/pkg/requestcontext"
)

const (
	defaultTTL        = time.Hour
	defaultBatchSize  = 5
	defaultBatchDelay = 500 * time.Millisecond
)

// Platform is the subset of the hosting client the cache needs.
type Platform interface {
	ListSites(ctx context.Context) ([]hosting.Site, error)
	DomainCount(ctx context.Context, siteID domain.SiteID) (int, error)
}

// Cache serves site occupancy snapshots. Reads hit the store while the
// snapshot is inside its TTL; expiry or an explicit bypass triggers a full
// refresh against the platform. A refresh that cannot even list sites falls
// back to the stale snapshot rather than failing the caller.
type Cache struct {
	platform   Platform
	store      Store
	ttl        time.Duration
	batchSize  int
	batchDelay time.Duration
	policy     retry.Policy
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// Serializes refreshes within this process.
	mu sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a snapshot stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithFetchBatch bounds concurrent count fetches and the pause between
// batches, keeping refreshes under the platform's rate limits.
func WithFetchBatch(size int, delay time.Duration) Option {
	return func(c *Cache) {
		if size > 0 {
			c.batchSize = size
		}
		if delay >= 0 {
			c.batchDelay = delay
		}
	}
}

// WithRetryPolicy overrides the retry policy for the site list fetch.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Cache) {
		c.policy = policy
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics attaches registry metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) {
		c.metrics = m
	}
}

// WithSleep injects the inter-batch wait. Tests pass a recorder.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Cache) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// New builds a Cache over the given platform client and snapshot store.
func New(platform Platform, store Store, opts ...Option) (*Cache, error) {
	if platform == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "platform client is required")
	}
	if store == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "snapshot store is required")
	}
	c := &Cache{
		platform:   platform,
		store:      store,
		ttl:        defaultTTL,
		batchSize:  defaultBatchSize,
		batchDelay: defaultBatchDelay,
		sleep:      sleepContext,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Counts returns the current snapshot. With useCache true a fresh-enough
// stored snapshot is served directly; otherwise the platform is re-queried.
func (c *Cache) Counts(ctx context.Context, useCache bool) (Snapshot, error) {
	if !useCache {
		c.metrics.IncrementRead("bypass")
		return c.Refresh(ctx)
	}

	snap, err := c.store.Load(ctx)
	if err == nil && !snap.Stale(requestcontext.Now(ctx), c.ttl) {
		c.metrics.IncrementRead("hit")
		return snap, nil
	}
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		c.logger.WarnContext(ctx, "registry store read failed", "error", err)
	}
	c.metrics.IncrementRead("miss")
	return c.Refresh(ctx)
}

// Refresh rebuilds the snapshot: one site list fetch, then per-site counts
// in bounded batches with a pause between batches. A site whose count fetch
// fails is recorded as CountUnknown; the refresh itself never aborts over
// individual sites.
func (c *Cache) Refresh(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	var sites []hosting.Site
	result := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var err error
		sites, err = c.platform.ListSites(ctx)
		return err
	})
	if result.Err != nil {
		if stale, loadErr := c.store.Load(ctx); loadErr == nil {
			c.logger.WarnContext(ctx, "site list fetch failed, serving stale snapshot",
				"error", result.Err,
				"attempts", result.Attempts,
				"snapshot_age", requestcontext.Now(ctx).Sub(stale.FetchedAt).String(),
			)
			c.metrics.IncrementRead("stale")
			return stale, nil
		}
		return Snapshot{}, dErrors.Wrap(result.Err, dErrors.CodeUnavailable, "refresh site registry")
	}

	snap := Snapshot{
		Sites:     sites,
		Counts:    c.fetchCounts(ctx, sites),
		FetchedAt: requestcontext.Now(ctx),
	}
	if err := c.store.Save(ctx, snap); err != nil {
		c.logger.WarnContext(ctx, "registry snapshot save failed", "error", err)
	}

	unknown := 0
	for id, count := range snap.Counts {
		if count == CountUnknown {
			unknown++
			continue
		}
		c.metrics.SetOccupancy(id.String(), count)
	}
	c.metrics.SetUnknownCounts(unknown)
	c.metrics.ObserveRefresh(time.Since(start))
	c.logger.InfoContext(ctx, "site registry refreshed",
		"sites", len(sites),
		"unknown_counts", unknown,
	)
	return snap, nil
}

func (c *Cache) fetchCounts(ctx context.Context, sites []hosting.Site) map[domain.SiteID]int {
	counts := make(map[domain.SiteID]int, len(sites))
	var mu sync.Mutex

	for offset := 0; offset < len(sites); offset += c.batchSize {
		end := min(offset+c.batchSize, len(sites))

		g, gctx := errgroup.WithContext(ctx)
		for _, site := range sites[offset:end] {
			g.Go(func() error {
				count, err := c.platform.DomainCount(gctx, site.ID)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					counts[site.ID] = CountUnknown
					c.logger.WarnContext(ctx, "site occupancy fetch failed",
						"site", site.ID,
						"error", err,
					)
					return nil
				}
				counts[site.ID] = count
				return nil
			})
		}
		_ = g.Wait()

		if end == len(sites) {
			break
		}
		if err := c.sleep(ctx, c.batchDelay); err != nil {
			for _, site := range sites[end:] {
				counts[site.ID] = CountUnknown
			}
			break
		}
	}
	return counts
}

// NoteAllocation bumps the cached occupancy after a successful allocation so
// subsequent selections see the slot as spent without waiting for the next
// refresh. Failures are logged, never surfaced; the cache self-corrects on
// refresh.
func (c *Cache) NoteAllocation(ctx context.Context, id domain.SiteID) {
	if err := c.store.Increment(ctx, id); err != nil {
		c.logger.WarnContext(ctx, "occupancy bump failed",
			"site", id,
			"error", err,
		)
	}
}

// Invalidate drops the stored snapshot; the next read refreshes.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.store.Clear(ctx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
