// Package router wires the query API routes and applies the middleware
// chain.
package router

import (
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/handler"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/middleware"
)

// Options selects the optional parts of the chain. Nil fields are skipped.
type Options struct {
	Metrics        *metrics.Metrics
	Limiter        *middleware.Limiter
	Health         *health.Checker
	RequestTimeout time.Duration
}

// New builds the API handler.
//
// Route table:
//
//	GET    /                     → welcome message
//	GET    /docs                 → endpoint listing
//	GET    /word-frequency       → read query
//	POST   /keywords             → filtered query
//	GET    /api/v1/cache/stats   → article cache usage
//	GET    /health/live          → liveness
//	GET    /health/ready         → readiness
//
// Middleware chain (outermost first):
//
//	RequestID → AccessLog → CORS → RateLimit → Timeout → Metrics → mux
//
// Metrics sits next to the mux so it sees the matched route pattern.
func New(h *handler.Handler, opts Options) http.Handler {
	mux := http.NewServeMux()
	h.Register(mux)
	if opts.Health != nil {
		mux.HandleFunc("GET /health/live", opts.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", opts.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	chain = middleware.Timeout(opts.RequestTimeout)(chain)
	if opts.Limiter != nil {
		chain = middleware.RateLimit(opts.Limiter)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.AccessLog(chain)
	chain = middleware.RequestID(chain)
	return chain
}
