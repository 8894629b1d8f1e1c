package rules

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gyaneshwarpardhi/docflow/internal/condition"
	"github.com/gyaneshwarpardhi/docflow/internal/metrics"
)

// DefaultTTL bounds how stale a served rule list may be.
const DefaultTTL = 60 * time.Second

// Source loads active rules joined with their workflows.
type Source interface {
	FetchActiveRules(ctx context.Context) ([]Entry, error)
}

// Snapshot is what the cache serves. When the latest fetch failed, Rules is
// the last good list (empty if there never was one), Stale is true and
// FetchErr holds the failure.
type Snapshot struct {
	Rules     []*ActiveRule
	FetchedAt time.Time
	Stale     bool
	FetchErr  error
}

// Cache serves the ordered active rule list with a TTL.
type Cache struct {
	src    Source
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
	group  singleflight.Group

	mu    sync.RWMutex
	last  *Snapshot // last successful fetch
	valid bool      // false after Invalidate until the next successful fetch
	gen   uint64
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = l }
}

// NewCache creates an empty cache over src.
func NewCache(src Source, opts ...CacheOption) *Cache {
	c := &Cache{src: src, ttl: DefaultTTL, now: time.Now, logger: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// GetActiveRules returns the ordered active rules.
func (c *Cache) GetActiveRules(ctx context.Context) []*ActiveRule {
	return c.Get(ctx).Rules
}

// Get returns the cached snapshot while it is within the TTL and has not
// been invalidated; otherwise it fetches. Concurrent misses share a fetch.
func (c *Cache) Get(ctx context.Context) Snapshot {
	c.mu.RLock()
	if c.fresh() {
		snap := *c.last
		c.mu.RUnlock()
		return snap
	}
	gen := c.gen
	c.mu.RUnlock()

	// Keyed by generation so a caller arriving after Invalidate never joins
	// a fetch that started before it.
	v, _, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (interface{}, error) {
		return c.refresh(ctx, gen), nil
	})
	return v.(Snapshot)
}

// Invalidate makes the next Get fetch regardless of the TTL.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.gen++
}

func (c *Cache) fresh() bool {
	return c.valid && c.last != nil && c.now().Sub(c.last.FetchedAt) < c.ttl
}

func (c *Cache) refresh(ctx context.Context, gen uint64) Snapshot {
	entries, err := c.src.FetchActiveRules(ctx)
	if err != nil {
		return c.stale(err)
	}

	rs := c.compile(entries)
	snap := &Snapshot{Rules: rs, FetchedAt: c.now()}
	metrics.RuleCacheFetches.WithLabelValues("ok").Inc()

	c.mu.Lock()
	c.last = snap
	c.valid = c.gen == gen
	c.mu.Unlock()
	return *snap
}

func (c *Cache) stale(err error) Snapshot {
	metrics.RuleCacheFetches.WithLabelValues("error").Inc()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		c.logger.Warn("rule fetch failed with no cached rules", "err", err)
		return Snapshot{Rules: []*ActiveRule{}, Stale: true, FetchErr: err}
	}
	c.logger.Warn("rule fetch failed, serving stale rules", "err", err,
		"rules", len(c.last.Rules), "fetched_at", c.last.FetchedAt)
	metrics.RuleCacheFetches.WithLabelValues("stale").Inc()
	return Snapshot{Rules: c.last.Rules, FetchedAt: c.last.FetchedAt, Stale: true, FetchErr: err}
}

// compile filters inactive entries, compiles conditions and sorts. A rule
// whose condition does not compile is skipped.
func (c *Cache) compile(entries []Entry) []*ActiveRule {
	rs := make([]*ActiveRule, 0, len(entries))
	for _, e := range entries {
		if !e.Rule.IsActive || !e.Workflow.IsActive {
			continue
		}
		expr, err := condition.Compile(e.Rule.Conditions)
		if err != nil {
			c.logger.Warn("skipping rule with invalid conditions", "rule_id", e.Rule.ID, "err", err)
			continue
		}
		rs = append(rs, &ActiveRule{Rule: e.Rule, Workflow: e.Workflow, Condition: expr})
	}
	sortRules(rs)
	return rs
}
