// Package crawler implements the depth-bounded article crawl. Starting from a
// root title it fetches the article, counts its words, follows a capped
// number of outbound links concurrently, and merges everything into one
// word-frequency mapping. Fetches across the whole process share one permit
// pool; aggregates are memoised in the article cache.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/frequency"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/source"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/tracing"
)

// NormalizeFunc maps article text to word counts. It must return a mapping
// the caller may modify.
type NormalizeFunc func(text string) frequency.Counts

// Shared holds the state every crawl in the process contends for: the
// article cache and the fetch permit pool.
type Shared struct {
	Cache   *cache.ArticleCache
	Permits *semaphore.Weighted
}

// NewShared builds the process-wide crawl state from cfg. m may be nil.
func NewShared(cfg config.CrawlConfig, m *metrics.Metrics) *Shared {
	return &Shared{
		Cache:   cache.New(cfg.DepthAwareCache, m),
		Permits: semaphore.NewWeighted(cfg.MaxConcurrentFetches),
	}
}

// Engine crawls articles from a Source.
type Engine struct {
	source       source.Source
	normalize    NormalizeFunc
	shared       *Shared
	fanOut       int
	fetchDelay   time.Duration
	fetchTimeout time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// New creates an Engine. m may be nil.
func New(src source.Source, normalize NormalizeFunc, shared *Shared, cfg config.CrawlConfig, m *metrics.Metrics) *Engine {
	return &Engine{
		source:       src,
		normalize:    normalize,
		shared:       shared,
		fanOut:       cfg.FanOut,
		fetchDelay:   cfg.FetchDelay,
		fetchTimeout: cfg.FetchTimeout,
		metrics:      m,
		logger:       slog.Default().With("component", "crawl-engine"),
	}
}

// Crawl returns the word counts of title and of the articles reachable from
// it within depth link hops, following at most fanOut links per article.
// Articles that cannot be fetched contribute nothing; a missing root yields
// an empty mapping. The returned mapping is owned by the caller.
func (e *Engine) Crawl(ctx context.Context, title string, depth int) frequency.Counts {
	visited := newVisitedSet()
	start := time.Now()
	counts := e.crawl(ctx, title, depth, visited)
	e.logger.Debug("crawl finished",
		"title", title,
		"depth", depth,
		"articles_visited", visited.len(),
		"unique_words", len(counts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	if counts == nil {
		return frequency.Counts{}
	}
	return counts.Clone()
}

func (e *Engine) crawl(ctx context.Context, title string, depth int, visited *visitedSet) frequency.Counts {
	if depth < 0 || !visited.mark(title) {
		return nil
	}

	ctx, span := tracing.StartChildSpan(ctx, "crawl")
	span.SetAttr("title", title)
	span.SetAttr("depth", depth)
	defer span.End()

	if cached, ok := e.shared.Cache.Get(title, depth); ok {
		span.SetAttr("cache", "hit")
		return cached
	}

	article, err := e.fetch(ctx, title)
	if err != nil {
		if errors.Is(err, apperrors.ErrArticleNotFound) {
			e.logger.Debug("article not found", "title", title)
		} else {
			e.logger.Warn("article fetch failed, counting it as empty", "title", title, "error", err)
		}
		return nil
	}

	counts := e.normalize(article.Text)
	if depth > 0 {
		links := article.Links
		if len(links) > e.fanOut {
			links = links[:e.fanOut]
		}
		results := make([]frequency.Counts, len(links))
		var g errgroup.Group
		for i, link := range links {
			g.Go(func() error {
				results[i] = e.crawl(ctx, link, depth-1, visited)
				return nil
			})
		}
		_ = g.Wait()
		for _, sub := range results {
			frequency.MergeInto(counts, sub)
		}
	}

	// A cancelled crawl has dropped some of its children; keep the partial
	// aggregate out of the cache.
	if ctx.Err() != nil {
		return counts
	}
	e.shared.Cache.Put(title, depth, counts)
	return counts
}

// fetch holds one process-wide permit for the politeness delay and the
// fetch itself.
func (e *Engine) fetch(ctx context.Context, title string) (*source.Article, error) {
	if err := e.shared.Permits.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring fetch permit: %w", err)
	}
	defer e.shared.Permits.Release(1)
	if e.metrics != nil {
		e.metrics.FetchPermitsInUse.Inc()
		defer e.metrics.FetchPermitsInUse.Dec()
	}

	if err := sleep(ctx, e.fetchDelay); err != nil {
		return nil, fmt.Errorf("waiting before fetch: %w", err)
	}

	start := time.Now()
	var fetched *source.Article
	err := resilience.WithTimeout(ctx, e.fetchTimeout, "fetch "+title, func(ctx context.Context) error {
		article, err := e.source.Fetch(ctx, title)
		if err != nil {
			return err
		}
		fetched = article
		return nil
	})
	e.recordFetch(time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return fetched, nil
}

func (e *Engine) recordFetch(elapsed time.Duration, err error) {
	if e.metrics == nil {
		return
	}
	e.metrics.FetchDuration.Observe(elapsed.Seconds())
	switch {
	case err == nil:
		e.metrics.ArticlesFetched.WithLabelValues("found").Inc()
	case errors.Is(err, apperrors.ErrArticleNotFound):
		e.metrics.ArticlesFetched.WithLabelValues("not_found").Inc()
	default:
		e.metrics.ArticlesFetched.WithLabelValues("error").Inc()
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
