package query

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/frequency"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/metrics"
)

type fakeCrawler struct {
	results map[string]frequency.Counts
	gate    chan struct{}
	calls   atomic.Int32
}

func (f *fakeCrawler) Crawl(ctx context.Context, title string, depth int) frequency.Counts {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return frequency.Counts{}
		}
	}
	return f.results[title].Clone()
}

type recordingTracker struct {
	mu     sync.Mutex
	events []analytics.QueryEvent
}

func (r *recordingTracker) Track(ev analytics.QueryEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingTracker) all() []analytics.QueryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]analytics.QueryEvent(nil), r.events...)
}

type alwaysCached struct{}

func (alwaysCached) Contains(string, int) bool { return true }

func sodaCrawler() *fakeCrawler {
	return &fakeCrawler{results: map[string]frequency.Counts{
		"Soda": {"soda": 3, "water": 2, "sugar": 1},
	}}
}

func TestReadQuery(t *testing.T) {
	tracker := &recordingTracker{}
	svc := New(sodaCrawler(), alwaysCached{}, tracker, 3, nil)

	ctx := logger.WithRequestID(context.Background(), "req-1")
	res, err := svc.ReadQuery(ctx, "Soda", 1)

	require.NoError(t, err)
	assert.Equal(t, "Soda", res.Title)
	assert.Equal(t, frequency.Counts{"soda": 3, "water": 2, "sugar": 1}, res.WordCounts)
	assert.Equal(t, map[string]float64{"soda": 50, "water": 33.33, "sugar": 16.67}, res.WordPercentages)

	events := tracker.all()
	require.Len(t, events, 1)
	assert.Equal(t, analytics.QueryRead, events[0].Kind)
	assert.Equal(t, analytics.OutcomeOK, events[0].Outcome)
	assert.Equal(t, "req-1", events[0].RequestID)
	assert.Equal(t, 6, events[0].TotalWords)
	assert.True(t, events[0].RootCached)
}

func TestReadQueryMissingArticle(t *testing.T) {
	tracker := &recordingTracker{}
	svc := New(sodaCrawler(), nil, tracker, 3, nil)

	_, err := svc.ReadQuery(context.Background(), "NonexistentArticle", 1)

	require.ErrorIs(t, err, apperrors.ErrArticleNotFound)
	assert.Equal(t, "Article 'NonexistentArticle' does not exist on Wikipedia.", apperrors.Message(err))
	assert.Equal(t, analytics.OutcomeNotFound, tracker.all()[0].Outcome)
}

func TestReadQueryValidation(t *testing.T) {
	crawler := sodaCrawler()
	tracker := &recordingTracker{}
	svc := New(crawler, nil, tracker, 3, nil)

	for _, tc := range []struct {
		article string
		depth   int
	}{
		{"", 0},
		{"   ", 0},
		{"Soda", -1},
		{"Soda", 4},
	} {
		_, err := svc.ReadQuery(context.Background(), tc.article, tc.depth)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, "%q depth %d", tc.article, tc.depth)
	}
	assert.Zero(t, crawler.calls.Load())
	assert.Empty(t, tracker.all())
}

func TestFilteredQuery(t *testing.T) {
	crawler := &fakeCrawler{results: map[string]frequency.Counts{
		"Soda": {"soda": 5, "python": 4, "water": 3, "sugar": 2},
	}}
	svc := New(crawler, nil, nil, 3, nil)

	res, err := svc.FilteredQuery(context.Background(), FilteredRequest{
		Article:    "Soda",
		Depth:      1,
		IgnoreList: []string{"python", "programming"},
		Percentile: 80,
	})

	require.NoError(t, err)
	assert.Equal(t, "Soda", res.Title)
	assert.Equal(t, frequency.Counts{"soda": 5}, res.FilteredWordCounts)
	assert.Equal(t, map[string]float64{"soda": 100}, res.WordPercentages)
}

func TestFilteredQueryPercentagesUnrounded(t *testing.T) {
	crawler := &fakeCrawler{results: map[string]frequency.Counts{
		"Soda": {"soda": 2, "water": 1, "sugar": 1},
	}}
	svc := New(crawler, nil, nil, 3, nil)

	res, err := svc.FilteredQuery(context.Background(), FilteredRequest{Article: "Soda", Percentile: 100})

	require.NoError(t, err)
	assert.Equal(t, frequency.Counts{"soda": 2, "sugar": 1}, res.FilteredWordCounts)
	assert.InDelta(t, 200.0/3, res.WordPercentages["soda"], 1e-9)
	assert.InDelta(t, 100.0/3, res.WordPercentages["sugar"], 1e-9)
}

func TestFilteredQueryEverythingIgnored(t *testing.T) {
	svc := New(sodaCrawler(), nil, nil, 3, nil)

	res, err := svc.FilteredQuery(context.Background(), FilteredRequest{
		Article:    "Soda",
		IgnoreList: []string{"soda", "water", "sugar"},
		Percentile: 100,
	})

	require.NoError(t, err)
	assert.Empty(t, res.FilteredWordCounts)
	assert.Empty(t, res.WordPercentages)
}

func TestFilteredQueryRejectsPercentile(t *testing.T) {
	svc := New(sodaCrawler(), nil, nil, 3, nil)
	for _, p := range []float64{-1, 100.5} {
		_, err := svc.FilteredQuery(context.Background(), FilteredRequest{Article: "Soda", Percentile: p})
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	}
}

func TestIdenticalQueriesShareOneCrawl(t *testing.T) {
	crawler := sodaCrawler()
	crawler.gate = make(chan struct{})
	svc := New(crawler, nil, nil, 3, nil)

	const n = 5
	results := make([]*ReadResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.ReadQuery(context.Background(), "Soda", 2)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	require.Eventually(t, func() bool { return crawler.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(crawler.gate)
	wg.Wait()

	assert.Equal(t, int32(1), crawler.calls.Load())
	results[0].WordCounts["soda"] = 1000
	for _, res := range results[1:] {
		assert.Equal(t, 3, res.WordCounts["soda"], "shared results are copied per caller")
	}
}

func TestQueryCancelled(t *testing.T) {
	crawler := sodaCrawler()
	crawler.gate = make(chan struct{})
	svc := New(crawler, nil, nil, 3, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := svc.ReadQuery(ctx, "Soda", 0)

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 504, apperrors.HTTPStatusCode(err))
}

func TestJoinedCrawlOfCancelledCallerIsRetried(t *testing.T) {
	crawler := sodaCrawler()
	crawler.gate = make(chan struct{})
	svc := New(crawler, nil, nil, 3, nil)

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan struct{})
	go func() {
		defer close(leaderDone)
		_, _ = svc.ReadQuery(leaderCtx, "Soda", 1)
	}()
	require.Eventually(t, func() bool { return crawler.calls.Load() == 1 }, time.Second, time.Millisecond)

	followerDone := make(chan *ReadResult)
	go func() {
		res, err := svc.ReadQuery(context.Background(), "Soda", 1)
		assert.NoError(t, err)
		followerDone <- res
	}()
	time.Sleep(20 * time.Millisecond)
	cancelLeader()
	<-leaderDone
	close(crawler.gate)

	res := <-followerDone
	require.NotNil(t, res)
	assert.Equal(t, 3, res.WordCounts["soda"])
}

func TestQueryMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	svc := New(sodaCrawler(), nil, nil, 3, m)

	_, _ = svc.ReadQuery(context.Background(), "Soda", 0)
	_, _ = svc.ReadQuery(context.Background(), "Missing", 0)
	_, _ = svc.FilteredQuery(context.Background(), FilteredRequest{Article: "Soda", Percentile: 50})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("read", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("read", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("filtered", "ok")))
}
