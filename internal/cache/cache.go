// Package cache memoises the aggregated word counts of crawled articles for
// the lifetime of the process.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/frequency"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/metrics"
)

// ArticleCache maps an article title to the aggregate computed for it: the
// article's own words plus everything merged from its sub-crawl. Entries are
// never evicted.
//
// By default the cache is keyed by title alone, so a later crawl that
// reaches a title at a different depth reuses the aggregate computed at the
// original depth. With depth-aware keying each (title, depth) pair gets its
// own entry.
type ArticleCache struct {
	mu         sync.RWMutex
	entries    map[string]frequency.Counts
	depthAware bool
	metrics    *metrics.Metrics
	logger     *slog.Logger
	hits       atomic.Int64
	misses     atomic.Int64
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Entries    int     `json:"entries"`
	HitRate    float64 `json:"hit_rate"`
	DepthAware bool    `json:"depth_aware"`
}

// New creates an empty cache. m may be nil.
func New(depthAware bool, m *metrics.Metrics) *ArticleCache {
	return &ArticleCache{
		entries:    make(map[string]frequency.Counts),
		depthAware: depthAware,
		metrics:    m,
		logger:     slog.Default().With("component", "article-cache"),
	}
}

// Get returns the aggregate stored for title. depth is only consulted when
// the cache is depth-aware. The returned mapping is shared and must not be
// modified.
func (c *ArticleCache) Get(title string, depth int) (frequency.Counts, bool) {
	key := c.buildKey(title, depth)
	c.mu.RLock()
	counts, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "title", title, "depth", depth)
	return counts, true
}

// Put stores a copy of counts as the aggregate for title, replacing any
// previous entry as a whole.
func (c *ArticleCache) Put(title string, depth int, counts frequency.Counts) {
	key := c.buildKey(title, depth)
	entry := counts.Clone()
	c.mu.Lock()
	c.entries[key] = entry
	size := len(c.entries)
	c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.CacheEntries.Set(float64(size))
	}
}

// Len returns the number of cached aggregates.
func (c *ArticleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// DepthAware reports whether entries are keyed by (title, depth).
func (c *ArticleCache) DepthAware() bool {
	return c.depthAware
}

// Contains reports whether an aggregate is stored for title without
// counting as a hit or a miss.
func (c *ArticleCache) Contains(title string, depth int) bool {
	key := c.buildKey(title, depth)
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

func (c *ArticleCache) Stats() Stats {
	s := Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Entries:    c.Len(),
		DepthAware: c.depthAware,
	}
	if lookups := s.Hits + s.Misses; lookups > 0 {
		s.HitRate = float64(s.Hits) / float64(lookups)
	}
	return s
}

func (c *ArticleCache) buildKey(title string, depth int) string {
	if !c.depthAware {
		return title
	}
	return fmt.Sprintf("%s\x00%d", title, depth)
}
