// Package app assembles the crawl pipeline from configuration so the API
// server and the command-line client run the same stack.
package app

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/crawler"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/normalizer"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/query"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/source"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/source/wikipedia"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/metrics"
)

// Pipeline is the wired crawl stack.
type Pipeline struct {
	Shared    *crawler.Shared
	Wikipedia *wikipedia.Client
	Engine    *crawler.Engine
	Queries   *query.Service
}

// Build wires a Pipeline against Wikipedia. m and tracker may be nil.
func Build(cfg *config.Config, m *metrics.Metrics, tracker query.Tracker) *Pipeline {
	wiki := wikipedia.New(cfg.Wikipedia, m)
	p := BuildWithSource(cfg, wiki, m, tracker)
	p.Wikipedia = wiki
	return p
}

// BuildWithSource wires a Pipeline against src.
func BuildWithSource(cfg *config.Config, src source.Source, m *metrics.Metrics, tracker query.Tracker) *Pipeline {
	shared := crawler.NewShared(cfg.Crawl, m)
	engine := crawler.New(src, normalizer.Normalize, shared, cfg.Crawl, m)
	return &Pipeline{
		Shared:  shared,
		Engine:  engine,
		Queries: query.New(engine, shared.Cache, tracker, cfg.Crawl.MaxDepth, m),
	}
}

// RegisterChecks adds the pipeline's readiness checks to checker. An open
// Wikipedia circuit degrades the service; cached articles are still served.
func (p *Pipeline) RegisterChecks(checker *health.Checker) {
	if p.Wikipedia != nil {
		checker.Register("wikipedia", health.FromError(p.Wikipedia.Check, health.StatusDegraded))
	}
	checker.Register("article_cache", func(context.Context) health.ComponentHealth {
		s := p.Shared.Cache.Stats()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d entries, hit rate %.2f", s.Entries, s.HitRate),
		}
	})
}
