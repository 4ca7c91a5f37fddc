// Package wikipedia fetches articles from the MediaWiki Action API.
package wikipedia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/source"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/resilience"
)

// maxBodyBytes caps a single API response. Extracts of the longest articles
// stay well below it.
const maxBodyBytes = 16 << 20

// errRetryable marks responses worth asking for again: throttling, server
// errors and transport failures.
var errRetryable = errors.New("retryable upstream error")

// Client is a source.Source backed by one language edition of Wikipedia.
type Client struct {
	endpoint     string
	userAgent    string
	maxLinkPages int
	http         *http.Client
	retry        resilience.RetryConfig
	breaker      *resilience.CircuitBreaker
	logger       *slog.Logger
}

var _ source.Source = (*Client)(nil)

// New creates a Client. m may be nil.
func New(cfg config.WikipediaConfig, m *metrics.Metrics) *Client {
	c := &Client{
		endpoint:     cfg.Endpoint(),
		userAgent:    cfg.UserAgent,
		maxLinkPages: cfg.MaxLinkPages,
		http:         &http.Client{Timeout: cfg.RequestTimeout},
		retry: resilience.RetryConfig{
			MaxAttempts:  cfg.RetryAttempts,
			InitialDelay: cfg.RetryDelay,
			Jitter:       0.2,
			Retryable:    func(err error) bool { return errors.Is(err, errRetryable) },
		},
		logger: slog.Default().With("component", "wikipedia-client"),
	}
	if c.maxLinkPages <= 0 {
		c.maxLinkPages = 1
	}
	c.breaker = resilience.NewCircuitBreaker("wikipedia", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.BreakerFailure,
		ResetTimeout:     cfg.BreakerReset,
		IsFailure:        func(err error) bool { return errors.Is(err, errRetryable) },
		OnStateChange: func(name string, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	if m != nil {
		m.CircuitBreakerState.WithLabelValues("wikipedia").Set(float64(resilience.StateClosed))
	}
	return c
}

// Fetch returns the plain-text extract and the article-namespace links of
// title, following redirects. A title Wikipedia does not know yields an
// error wrapping apperrors.ErrArticleNotFound.
func (c *Client) Fetch(ctx context.Context, title string) (*source.Article, error) {
	var article *source.Article
	err := c.breaker.Execute(func() error {
		return resilience.Retry(ctx, "wikipedia fetch "+title, c.retry, func(ctx context.Context) error {
			a, err := c.fetchOnce(ctx, title)
			if err != nil {
				return err
			}
			article = a
			return nil
		})
	})
	switch {
	case err == nil:
		return article, nil
	case errors.Is(err, apperrors.ErrArticleNotFound):
		return nil, err
	case errors.Is(err, resilience.ErrCircuitOpen):
		return nil, fmt.Errorf("fetching %q: %w: %w", title, apperrors.ErrSourceUnavailable, err)
	}
	return nil, fmt.Errorf("fetching %q: %w", title, err)
}

// Check reports whether the upstream is currently usable, for readiness
// probes.
func (c *Client) Check(context.Context) error {
	if state := c.breaker.State(); state == resilience.StateOpen {
		return fmt.Errorf("wikipedia circuit %s", state)
	}
	return nil
}

func (c *Client) fetchOnce(ctx context.Context, title string) (*source.Article, error) {
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"prop":          {"extracts|links"},
		"explaintext":   {"1"},
		"redirects":     {"1"},
		"pllimit":       {"max"},
		"plnamespace":   {"0"},
		"titles":        {title},
	}

	var article *source.Article
	for page := 0; page < c.maxLinkPages; page++ {
		resp, err := c.query(ctx, params)
		if err != nil {
			return nil, err
		}
		if len(resp.Query.Pages) == 0 {
			return nil, fmt.Errorf("query for %q returned no pages", title)
		}
		p := resp.Query.Pages[0]
		if p.Missing || p.Invalid {
			return nil, apperrors.ArticleDoesNotExist(title)
		}
		if article == nil {
			article = &source.Article{Title: p.Title, Text: p.Extract}
		}
		for _, l := range p.Links {
			article.Links = append(article.Links, l.Title)
		}

		if resp.Continue.PLContinue == "" {
			break
		}
		params.Set("prop", "links")
		params.Set("plcontinue", resp.Continue.PLContinue)
		params.Set("continue", resp.Continue.Continue)
	}
	return article, nil
}

func (c *Client) query(ctx context.Context, params url.Values) (*queryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", errRetryable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", errRetryable, err)
	}
	c.logger.Debug("api request",
		"titles", params.Get("titles"),
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", errRetryable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out queryResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if out.Error != nil {
		if out.Error.Code == "maxlag" || out.Error.Code == "ratelimited" {
			return nil, fmt.Errorf("%w: api error %s: %s", errRetryable, out.Error.Code, out.Error.Info)
		}
		return nil, fmt.Errorf("api error %s: %s", out.Error.Code, out.Error.Info)
	}
	return &out, nil
}
