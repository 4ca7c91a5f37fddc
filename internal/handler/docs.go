package handler

import "net/http"

// Endpoint describes one API route in the /docs listing.
type Endpoint struct {
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	Description string            `json:"description"`
	Params      map[string]string `json:"params,omitempty"`
}

var endpoints = []Endpoint{
	{
		Method:      http.MethodGet,
		Path:        "/word-frequency",
		Description: "Word counts and percentages for an article and the articles it links to.",
		Params: map[string]string{
			"article": "article title (required)",
			"depth":   "link hops to follow, default 0",
		},
	},
	{
		Method:      http.MethodPost,
		Path:        "/keywords",
		Description: "Word counts with an ignore list removed, trimmed to the most frequent words below a percentile.",
		Params: map[string]string{
			"article":     "article title (required)",
			"depth":       "link hops to follow",
			"ignore_list": "words to drop before filtering",
			"percentile":  "0 to 100",
		},
	},
	{Method: http.MethodGet, Path: "/api/v1/cache/stats", Description: "Article cache hits, misses and entries."},
	{Method: http.MethodGet, Path: "/health/live", Description: "Liveness probe."},
	{Method: http.MethodGet, Path: "/health/ready", Description: "Readiness probe."},
}

// Docs serves GET /docs, the list of API endpoints.
func (h *Handler) Docs(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"endpoints": endpoints})
}
