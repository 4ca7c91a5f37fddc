// Package query answers word-frequency queries on top of the crawl engine:
// it validates parameters, runs or joins a crawl, and shapes the counts into
// percentages, optionally filtered by an ignore list and a percentile.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/frequency"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/tracing"
)

// readDecimals is the rounding applied to read-query percentages. Filtered
// queries report unrounded shares.
const readDecimals = 2

// Crawler produces the aggregated word counts for a root article.
type Crawler interface {
	Crawl(ctx context.Context, title string, depth int) frequency.Counts
}

// CacheLookup reports whether a root aggregate is already cached.
type CacheLookup interface {
	Contains(title string, depth int) bool
}

// Tracker receives one event per answered query.
type Tracker interface {
	Track(event analytics.QueryEvent)
}

// ReadResult is the answer to a read query.
type ReadResult struct {
	Title           string             `json:"title"`
	WordCounts      frequency.Counts   `json:"word_counts"`
	WordPercentages map[string]float64 `json:"word_percentages"`
}

// FilteredRequest holds the parameters of a filtered query.
type FilteredRequest struct {
	Article    string   `json:"article"`
	Depth      int      `json:"depth"`
	IgnoreList []string `json:"ignore_list"`
	Percentile float64  `json:"percentile"`
}

// FilteredResult is the answer to a filtered query. Percentages are relative
// to the filtered total.
type FilteredResult struct {
	Title              string             `json:"title"`
	FilteredWordCounts frequency.Counts   `json:"filtered_word_counts"`
	WordPercentages    map[string]float64 `json:"word_percentages"`
}

// Service runs read and filtered queries. Identical queries in flight at the
// same time share a single crawl.
type Service struct {
	crawler  Crawler
	lookup   CacheLookup
	tracker  Tracker
	metrics  *metrics.Metrics
	maxDepth int
	group    singleflight.Group
}

// New creates a Service. lookup, tracker and m may be nil.
func New(crawler Crawler, lookup CacheLookup, tracker Tracker, maxDepth int, m *metrics.Metrics) *Service {
	return &Service{
		crawler:  crawler,
		lookup:   lookup,
		tracker:  tracker,
		metrics:  m,
		maxDepth: maxDepth,
	}
}

// ReadQuery returns the word counts of article crawled to depth together with
// each word's share of the total, rounded to two decimals.
func (s *Service) ReadQuery(ctx context.Context, article string, depth int) (*ReadResult, error) {
	ev := analytics.QueryEvent{Kind: analytics.QueryRead, Article: article, Depth: depth}
	ctx, span := s.start(ctx, &ev)
	defer s.finish(ctx, span, &ev)

	if err := s.validate(article, depth); err != nil {
		ev.Outcome = analytics.OutcomeInvalid
		return nil, err
	}

	counts, err := s.aggregate(ctx, &ev)
	if err != nil {
		ev.Outcome = outcome(err)
		return nil, err
	}

	ev.UniqueWords, ev.TotalWords = len(counts), counts.Total()
	return &ReadResult{
		Title:           article,
		WordCounts:      counts,
		WordPercentages: counts.Percentages(readDecimals),
	}, nil
}

// FilteredQuery crawls req.Article, removes the ignore list, keeps the words
// below req.Percentile and reports their shares of the filtered total.
func (s *Service) FilteredQuery(ctx context.Context, req FilteredRequest) (*FilteredResult, error) {
	ev := analytics.QueryEvent{
		Kind:        analytics.QueryFiltered,
		Article:     req.Article,
		Depth:       req.Depth,
		Percentile:  req.Percentile,
		IgnoreCount: len(req.IgnoreList),
	}
	ctx, span := s.start(ctx, &ev)
	defer s.finish(ctx, span, &ev)

	if err := s.validate(req.Article, req.Depth); err != nil {
		ev.Outcome = analytics.OutcomeInvalid
		return nil, err
	}
	if req.Percentile < 0 || req.Percentile > 100 {
		ev.Outcome = analytics.OutcomeInvalid
		return nil, apperrors.InvalidInput("percentile must be between 0 and 100, got %g", req.Percentile)
	}

	counts, err := s.aggregate(ctx, &ev)
	if err != nil {
		ev.Outcome = outcome(err)
		return nil, err
	}

	filtered := FilterPercentile(counts.Without(req.IgnoreList), req.Percentile)
	ev.UniqueWords, ev.TotalWords = len(filtered), filtered.Total()
	return &FilteredResult{
		Title:              req.Article,
		FilteredWordCounts: filtered,
		WordPercentages:    filtered.Percentages(-1),
	}, nil
}

func (s *Service) validate(article string, depth int) error {
	if strings.TrimSpace(article) == "" {
		return apperrors.InvalidInput("article must not be empty")
	}
	if depth < 0 || depth > s.maxDepth {
		return apperrors.InvalidInput("depth must be between 0 and %d, got %d", s.maxDepth, depth)
	}
	return nil
}

// aggregate returns a caller-owned copy of the crawl result for the query's
// root. An empty aggregate means the root does not exist.
func (s *Service) aggregate(ctx context.Context, ev *analytics.QueryEvent) (frequency.Counts, error) {
	if s.lookup != nil {
		ev.RootCached = s.lookup.Contains(ev.Article, ev.Depth)
	}

	key := fmt.Sprintf("%d\x00%s", ev.Depth, ev.Article)
	ch := s.group.DoChan(key, func() (any, error) {
		counts := s.crawler.Crawl(ctx, ev.Article, ev.Depth)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return counts, nil
	})

	var counts frequency.Counts
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("crawling %q: %w", ev.Article, ctx.Err())
	case res := <-ch:
		switch {
		case res.Err == nil:
			counts = res.Val.(frequency.Counts)
			if res.Shared {
				ev.Shared = true
				counts = counts.Clone()
			}
		case ctx.Err() == nil:
			// The crawl we joined belonged to a caller that gave up.
			counts = s.crawler.Crawl(ctx, ev.Article, ev.Depth)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("crawling %q: %w", ev.Article, err)
	}
	if len(counts) == 0 {
		return nil, apperrors.ArticleDoesNotExist(ev.Article)
	}
	return counts, nil
}

func (s *Service) start(ctx context.Context, ev *analytics.QueryEvent) (context.Context, *tracing.Span) {
	ev.Timestamp = time.Now().UTC()
	ev.RequestID = logger.RequestID(ctx)
	ctx, span := tracing.StartSpan(ctx, string(ev.Kind)+"-query", ev.RequestID)
	span.SetAttr("article", ev.Article)
	span.SetAttr("depth", ev.Depth)
	return ctx, span
}

func (s *Service) finish(ctx context.Context, span *tracing.Span, ev *analytics.QueryEvent) {
	span.End()
	if ev.Outcome == "" {
		ev.Outcome = analytics.OutcomeOK
	}
	elapsed := time.Since(ev.Timestamp)
	ev.LatencyMs = elapsed.Milliseconds()

	log := logger.FromContext(ctx).With("component", "query-service")
	span.Log(ctx, log)
	log.Info("query answered",
		"kind", ev.Kind,
		"article", ev.Article,
		"depth", ev.Depth,
		"outcome", ev.Outcome,
		"unique_words", ev.UniqueWords,
		"root_cached", ev.RootCached,
		"shared", ev.Shared,
		"spans", span.Count(),
		"latency_ms", ev.LatencyMs,
	)

	if s.metrics != nil {
		s.metrics.QueriesTotal.WithLabelValues(string(ev.Kind), ev.Outcome).Inc()
		s.metrics.QueryLatency.WithLabelValues(string(ev.Kind)).Observe(elapsed.Seconds())
	}
	if s.tracker != nil && ev.Outcome != analytics.OutcomeInvalid {
		s.tracker.Track(*ev)
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrArticleNotFound):
		return analytics.OutcomeNotFound
	case errors.Is(err, apperrors.ErrInvalidInput):
		return analytics.OutcomeInvalid
	default:
		return analytics.OutcomeError
	}
}
