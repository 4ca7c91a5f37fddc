package analytics

import (
	"context"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

// Stats summarises every query event seen since the aggregator started.
type Stats struct {
	TotalQueries     int64          `json:"total_queries"`
	ReadQueries      int64          `json:"read_queries"`
	FilteredQueries  int64          `json:"filtered_queries"`
	NotFound         int64          `json:"not_found"`
	Errors           int64          `json:"errors"`
	RootCacheHits    int64          `json:"root_cache_hits"`
	RootCacheHitRate float64        `json:"root_cache_hit_rate"`
	SharedCrawls     int64          `json:"shared_crawls"`
	AvgLatencyMs     float64        `json:"avg_latency_ms"`
	P50LatencyMs     int64          `json:"p50_latency_ms"`
	P95LatencyMs     int64          `json:"p95_latency_ms"`
	P99LatencyMs     int64          `json:"p99_latency_ms"`
	AvgUniqueWords   float64        `json:"avg_unique_words"`
	DepthHistogram   map[int]int64  `json:"depth_histogram"`
	TopArticles      []ArticleCount `json:"top_articles"`
	MissingArticles  []ArticleCount `json:"missing_articles"`
	QueriesPerMinute float64        `json:"queries_per_minute"`
}

// ArticleCount pairs an article title with how often it was queried.
type ArticleCount struct {
	Article string `json:"article"`
	Count   int64  `json:"count"`
}

// Aggregator folds query events into running Stats.
type Aggregator struct {
	mu          sync.RWMutex
	total       int64
	byKind      map[QueryKind]int64
	notFound    int64
	errors      int64
	rootHits    int64
	shared      int64
	uniqueWords int64
	answered    int64
	depths      map[int]int64
	latencies   []int64
	next        int
	articles    map[string]int64
	missing     map[string]int64
	startTime   time.Time
	now         func() time.Time
	logger      *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byKind:    make(map[QueryKind]int64),
		depths:    make(map[int]int64),
		latencies: make([]int64, 0, 1024),
		articles:  make(map[string]int64),
		missing:   make(map[string]int64),
		startTime: time.Now(),
		now:       time.Now,
		logger:    slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent decodes QueryEvents from the bus into agg. Undecodable
// messages are logged and skipped so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key, value []byte) error {
		ev, err := kafka.DecodeJSON[QueryEvent](value)
		if err != nil {
			agg.logger.Error("skipping undecodable event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(ev)
		return nil
	}
}

// Record adds one event.
func (a *Aggregator) Record(ev QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byKind[ev.Kind]++
	a.depths[ev.Depth]++
	a.articles[ev.Article]++
	if ev.RootCached {
		a.rootHits++
	}
	if ev.Shared {
		a.shared++
	}
	switch ev.Outcome {
	case OutcomeNotFound:
		a.notFound++
		a.missing[ev.Article]++
	case OutcomeError:
		a.errors++
	case OutcomeOK:
		a.answered++
		a.uniqueWords += int64(ev.UniqueWords)
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, ev.LatencyMs)
	} else {
		a.latencies[a.next] = ev.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}
}

// Stats returns a snapshot of the aggregate.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	s := Stats{
		TotalQueries:    a.total,
		ReadQueries:     a.byKind[QueryRead],
		FilteredQueries: a.byKind[QueryFiltered],
		NotFound:        a.notFound,
		Errors:          a.errors,
		RootCacheHits:   a.rootHits,
		SharedCrawls:    a.shared,
		DepthHistogram:  make(map[int]int64, len(a.depths)),
		TopArticles:     topN(a.articles, 10),
		MissingArticles: topN(a.missing, 10),
	}
	for d, n := range a.depths {
		s.DepthHistogram[d] = n
	}
	if a.total > 0 {
		s.RootCacheHitRate = float64(a.rootHits) / float64(a.total)
	}
	if a.answered > 0 {
		s.AvgUniqueWords = float64(a.uniqueWords) / float64(a.answered)
	}
	if len(a.latencies) > 0 {
		sorted := slices.Clone(a.latencies)
		slices.Sort(sorted)
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		s.AvgLatencyMs = float64(sum) / float64(len(sorted))
		s.P50LatencyMs = percentile(sorted, 50)
		s.P95LatencyMs = percentile(sorted, 95)
		s.P99LatencyMs = percentile(sorted, 99)
	}
	if minutes := a.now().Sub(a.startTime).Minutes(); minutes > 0 {
		s.QueriesPerMinute = float64(a.total) / minutes
	}
	return s
}

// percentile picks the nearest-rank value from an ascending slice.
func percentile(sorted []int64, pct int) int64 {
	idx := pct * len(sorted) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []ArticleCount {
	out := make([]ArticleCount, 0, len(counts))
	for article, count := range counts {
		out = append(out, ArticleCount{Article: article, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Article < out[j].Article
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
