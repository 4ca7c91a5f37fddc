package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/frequency"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/source"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/metrics"
)

// fakeSource serves articles from memory and records how it was called.
type fakeSource struct {
	articles map[string]source.Article
	failures map[string]error
	latency  time.Duration
	block    bool

	mu       sync.Mutex
	fetches  map[string]int
	inFlight atomic.Int64
	maxSeen  atomic.Int64
}

func newFakeSource(articles ...source.Article) *fakeSource {
	f := &fakeSource{
		articles: make(map[string]source.Article),
		failures: make(map[string]error),
		fetches:  make(map[string]int),
	}
	for _, a := range articles {
		f.articles[a.Title] = a
	}
	return f
}

func (f *fakeSource) Fetch(ctx context.Context, title string) (*source.Article, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	f.mu.Lock()
	f.fetches[title]++
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.failures[title]; ok {
		return nil, err
	}
	a, ok := f.articles[title]
	if !ok {
		return nil, fmt.Errorf("fetching %q: %w", title, apperrors.ErrArticleNotFound)
	}
	return &a, nil
}

func (f *fakeSource) fetchCount(title string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches[title]
}

func (f *fakeSource) totalFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.fetches {
		total += n
	}
	return total
}

func testConfig() config.CrawlConfig {
	return config.CrawlConfig{
		MaxDepth:             5,
		FanOut:               5,
		MaxConcurrentFetches: 5,
		FetchDelay:           0,
		FetchTimeout:         time.Second,
	}
}

func newTestEngine(src source.Source, cfg config.CrawlConfig) *Engine {
	return New(src, normalizer.Normalize, NewShared(cfg, nil), cfg, nil)
}

func TestCrawlMergesLinkedArticles(t *testing.T) {
	src := newFakeSource(
		source.Article{Title: "A", Text: "the cat sat", Links: []string{"B"}},
		source.Article{Title: "B", Text: "cat ran"},
	)
	e := newTestEngine(src, testConfig())

	got := e.Crawl(context.Background(), "A", 1)

	assert.Equal(t, frequency.Counts{"cat": 2, "sat": 1, "ran": 1}, got)
}

func TestCrawlDepthZeroDoesNotRecurse(t *testing.T) {
	text := "Soda is a carbonated drink. Soda water is also called club soda."
	src := newFakeSource(
		source.Article{Title: "Soda", Text: text, Links: []string{"Water", "Sugar"}},
		source.Article{Title: "Water", Text: "water"},
	)
	e := newTestEngine(src, testConfig())

	got := e.Crawl(context.Background(), "Soda", 0)

	assert.Equal(t, normalizer.Normalize(text), got)
	assert.Equal(t, 1, src.totalFetches())
}

func TestCrawlNegativeDepthIsEmpty(t *testing.T) {
	src := newFakeSource(source.Article{Title: "A", Text: "cat"})
	e := newTestEngine(src, testConfig())

	got := e.Crawl(context.Background(), "A", -1)

	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Zero(t, src.totalFetches())
}

func TestCrawlSelfLinkCountsOnce(t *testing.T) {
	src := newFakeSource(source.Article{Title: "Loop", Text: "loop word", Links: []string{"Loop", "Loop"}})
	e := newTestEngine(src, testConfig())

	got := e.Crawl(context.Background(), "Loop", 3)

	assert.Equal(t, frequency.Counts{"loop": 1, "word": 1}, got)
	assert.Equal(t, 1, src.fetchCount("Loop"))
}

func TestCrawlCycleTerminates(t *testing.T) {
	src := newFakeSource(
		source.Article{Title: "A", Text: "alpha", Links: []string{"B"}},
		source.Article{Title: "B", Text: "beta", Links: []string{"A"}},
	)
	e := newTestEngine(src, testConfig())

	got := e.Crawl(context.Background(), "A", 4)

	assert.Equal(t, frequency.Counts{"alpha": 1, "beta": 1}, got)
}

func TestCrawlSharedDescendantFetchedOnce(t *testing.T) {
	src := newFakeSource(
		source.Article{Title: "A", Text: "root", Links: []string{"B", "C"}},
		source.Article{Title: "B", Text: "left", Links: []string{"D"}},
		source.Article{Title: "C", Text: "right", Links: []string{"D"}},
		source.Article{Title: "D", Text: "shared"},
	)
	e := newTestEngine(src, testConfig())

	got := e.Crawl(context.Background(), "A", 2)

	assert.Equal(t, frequency.Counts{"root": 1, "left": 1, "right": 1, "shared": 1}, got)
	assert.Equal(t, 1, src.fetchCount("D"))
}

func TestCrawlFanOutKeepsFirstLinksInOrder(t *testing.T) {
	links := []string{"L1", "L2", "L3", "L4", "L5", "L6", "L7", "L8"}
	articles := []source.Article{{Title: "Hub", Text: "hub", Links: links}}
	for _, l := range links {
		articles = append(articles, source.Article{Title: l, Text: "leaf"})
	}
	src := newFakeSource(articles...)
	e := newTestEngine(src, testConfig())

	got := e.Crawl(context.Background(), "Hub", 1)

	assert.Equal(t, frequency.Counts{"hub": 1, "leaf": 5}, got)
	for _, l := range links[:5] {
		assert.Equal(t, 1, src.fetchCount(l), l)
	}
	for _, l := range links[5:] {
		assert.Zero(t, src.fetchCount(l), l)
	}
}

func TestCrawlAbsorbsMissingAndFailingLinks(t *testing.T) {
	src := newFakeSource(
		source.Article{Title: "A", Text: "cat", Links: []string{"Missing", "Broken", "B"}},
		source.Article{Title: "Broken", Text: "never read"},
		source.Article{Title: "B", Text: "dog"},
	)
	src.failures["Broken"] = errors.New("connection reset")
	e := newTestEngine(src, testConfig())

	got := e.Crawl(context.Background(), "A", 1)

	assert.Equal(t, frequency.Counts{"cat": 1, "dog": 1}, got)
}

func TestCrawlMissingRootIsEmpty(t *testing.T) {
	e := newTestEngine(newFakeSource(), testConfig())

	got := e.Crawl(context.Background(), "NonexistentArticle", 1)

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCrawlFetchTimeoutCountsAsEmpty(t *testing.T) {
	src := newFakeSource(source.Article{Title: "Slow", Text: "slow"})
	src.block = true
	cfg := testConfig()
	cfg.FetchTimeout = 20 * time.Millisecond
	e := newTestEngine(src, cfg)

	got := e.Crawl(context.Background(), "Slow", 0)

	assert.Empty(t, got)
}

func TestCrawlReusesCacheAcrossRequests(t *testing.T) {
	src := newFakeSource(
		source.Article{Title: "A", Text: "cat sat", Links: []string{"B"}},
		source.Article{Title: "B", Text: "cat ran"},
	)
	e := newTestEngine(src, testConfig())

	first := e.Crawl(context.Background(), "A", 1)
	second := e.Crawl(context.Background(), "A", 1)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, src.fetchCount("A"))
	assert.Equal(t, 1, src.fetchCount("B"))
}

func TestCrawlCachedAggregateIgnoresLaterDepth(t *testing.T) {
	src := newFakeSource(
		source.Article{Title: "A", Text: "cat", Links: []string{"B"}},
		source.Article{Title: "B", Text: "dog"},
	)
	e := newTestEngine(src, testConfig())

	e.Crawl(context.Background(), "A", 1)
	got := e.Crawl(context.Background(), "A", 0)

	assert.Equal(t, frequency.Counts{"cat": 1, "dog": 1}, got, "depth-insensitive cache returns the depth-1 aggregate")
}

func TestCrawlDepthAwareCacheRecomputes(t *testing.T) {
	src := newFakeSource(
		source.Article{Title: "A", Text: "cat", Links: []string{"B"}},
		source.Article{Title: "B", Text: "dog"},
	)
	cfg := testConfig()
	cfg.DepthAwareCache = true
	e := newTestEngine(src, cfg)

	e.Crawl(context.Background(), "A", 1)
	got := e.Crawl(context.Background(), "A", 0)

	assert.Equal(t, frequency.Counts{"cat": 1}, got)
	assert.Equal(t, 2, src.fetchCount("A"))
}

func TestCrawlResultOwnedByCaller(t *testing.T) {
	src := newFakeSource(source.Article{Title: "A", Text: "cat"})
	e := newTestEngine(src, testConfig())

	got := e.Crawl(context.Background(), "A", 0)
	got["cat"] = 99
	delete(got, "cat")

	assert.Equal(t, frequency.Counts{"cat": 1}, e.Crawl(context.Background(), "A", 0))
}

func TestCrawlHonoursPermitLimit(t *testing.T) {
	var articles []source.Article
	var rootLinks []string
	for i := 0; i < 5; i++ {
		child := fmt.Sprintf("C%d", i)
		rootLinks = append(rootLinks, child)
		var grandchildren []string
		for j := 0; j < 5; j++ {
			gc := fmt.Sprintf("C%d-G%d", i, j)
			grandchildren = append(grandchildren, gc)
			articles = append(articles, source.Article{Title: gc, Text: "grandchild"})
		}
		articles = append(articles, source.Article{Title: child, Text: "child", Links: grandchildren})
	}
	articles = append(articles, source.Article{Title: "Root", Text: "root", Links: rootLinks})

	src := newFakeSource(articles...)
	src.latency = 5 * time.Millisecond
	cfg := testConfig()
	cfg.MaxConcurrentFetches = 2
	e := newTestEngine(src, cfg)

	got := e.Crawl(context.Background(), "Root", 2)

	assert.Equal(t, frequency.Counts{"root": 1, "child": 5, "grandchild": 25}, got)
	assert.LessOrEqual(t, src.maxSeen.Load(), int64(2))
}

func TestPermitPoolSharedAcrossCrawls(t *testing.T) {
	var articles []source.Article
	for r := 0; r < 4; r++ {
		var links []string
		for i := 0; i < 5; i++ {
			title := fmt.Sprintf("R%d-L%d", r, i)
			links = append(links, title)
			articles = append(articles, source.Article{Title: title, Text: "leaf"})
		}
		articles = append(articles, source.Article{Title: fmt.Sprintf("R%d", r), Text: "root", Links: links})
	}
	src := newFakeSource(articles...)
	src.latency = 5 * time.Millisecond
	cfg := testConfig()
	cfg.MaxConcurrentFetches = 3
	e := newTestEngine(src, cfg)

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			got := e.Crawl(context.Background(), fmt.Sprintf("R%d", r), 1)
			assert.Equal(t, frequency.Counts{"root": 1, "leaf": 5}, got)
		}(r)
	}
	wg.Wait()

	assert.LessOrEqual(t, src.maxSeen.Load(), int64(3))
}

func TestConcurrentCrawlsOfSameTitleAgree(t *testing.T) {
	src := newFakeSource(
		source.Article{Title: "A", Text: "the cat sat", Links: []string{"B", "C"}},
		source.Article{Title: "B", Text: "cat ran", Links: []string{"C"}},
		source.Article{Title: "C", Text: "dog ran"},
	)
	src.latency = 2 * time.Millisecond
	e := newTestEngine(src, testConfig())

	const n = 8
	results := make([]frequency.Counts, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Crawl(context.Background(), "A", 2)
		}(i)
	}
	wg.Wait()

	want := frequency.Counts{"cat": 2, "sat": 1, "ran": 2, "dog": 1}
	for i := range results {
		assert.Equal(t, want, results[i])
	}
}

func TestCancelledCrawlIsNotCached(t *testing.T) {
	src := newFakeSource(
		source.Article{Title: "A", Text: "cat", Links: []string{"Slow"}},
		source.Article{Title: "Slow", Text: "dog"},
	)
	src.latency = 200 * time.Millisecond
	shared := NewShared(testConfig(), nil)
	e := New(src, normalizer.Normalize, shared, testConfig(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	e.Crawl(ctx, "A", 1)

	_, ok := shared.Cache.Get("A", 1)
	assert.False(t, ok)
}

func TestCrawlRecordsMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	src := newFakeSource(
		source.Article{Title: "A", Text: "cat", Links: []string{"Missing", "B"}},
		source.Article{Title: "B", Text: "dog"},
	)
	cfg := testConfig()
	e := New(src, normalizer.Normalize, NewShared(cfg, m), cfg, m)

	e.Crawl(context.Background(), "A", 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ArticlesFetched.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ArticlesFetched.WithLabelValues("not_found")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FetchPermitsInUse))
}

func TestFetchDelayApplied(t *testing.T) {
	src := newFakeSource(source.Article{Title: "A", Text: "cat"})
	cfg := testConfig()
	cfg.FetchDelay = 30 * time.Millisecond
	e := newTestEngine(src, cfg)

	start := time.Now()
	got := e.Crawl(context.Background(), "A", 0)

	require.Equal(t, frequency.Counts{"cat": 1}, got)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestVisitedSetMarksOnce(t *testing.T) {
	v := newVisitedSet()
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if v.mark("Soda") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	assert.Equal(t, 1, v.len())
}
