// Package handler exposes the word-frequency queries over HTTP.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/cache"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/logger"
)

const (
	welcomeMessage = "Welcome to Wikipedia Word-Frequency API! Go to /docs for API documentation."
	maxBodyBytes   = 1 << 20
)

// Querier answers read and filtered queries.
type Querier interface {
	ReadQuery(ctx context.Context, article string, depth int) (*query.ReadResult, error)
	FilteredQuery(ctx context.Context, req query.FilteredRequest) (*query.FilteredResult, error)
}

// CacheStatser reports article cache usage.
type CacheStatser interface {
	Stats() cache.Stats
}

type Handler struct {
	queries Querier
	cache   CacheStatser
	logger  *slog.Logger
}

func New(queries Querier, cacheStats CacheStatser) *Handler {
	return &Handler{
		queries: queries,
		cache:   cacheStats,
		logger:  slog.Default().With("component", "wordfreq-handler"),
	}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /docs", h.Docs)
	mux.HandleFunc("GET /word-frequency", h.WordFrequency)
	mux.HandleFunc("POST /keywords", h.Keywords)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"message": welcomeMessage})
}

// WordFrequency serves GET /word-frequency?article=<title>&depth=<n>. depth
// defaults to 0.
func (h *Handler) WordFrequency(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	article := q.Get("article")
	if article == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'article' is required")
		return
	}
	depth := 0
	if raw := q.Get("depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "depth must be an integer")
			return
		}
		depth = parsed
	}

	result, err := h.queries.ReadQuery(r.Context(), article, depth)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// Keywords serves POST /keywords with a JSON body of article, depth,
// ignore_list and percentile.
func (h *Handler) Keywords(w http.ResponseWriter, r *http.Request) {
	var req query.FilteredRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		case errors.Is(err, io.EOF):
			h.writeError(w, http.StatusBadRequest, "request body is required")
		default:
			h.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		}
		return
	}

	result, err := h.queries.FilteredQuery(r.Context(), req)
	if err != nil {
		h.writeQueryError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *Handler) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	switch status {
	case http.StatusBadRequest, http.StatusNotFound:
		h.writeError(w, status, apperrors.Message(err))
	case http.StatusGatewayTimeout:
		h.writeError(w, status, "request timed out")
	default:
		logger.FromContext(r.Context()).Error("query failed", "path", r.URL.Path, "error", err)
		h.writeError(w, status, "query failed")
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
