package analytics

import "time"

// QueryKind identifies which query endpoint produced an event.
type QueryKind string

const (
	QueryRead     QueryKind = "read"
	QueryFiltered QueryKind = "filtered"
)

// Outcome values for QueryEvent.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeInvalid  = "invalid"
	OutcomeError    = "error"
)

// QueryEvent describes one answered word-frequency query.
type QueryEvent struct {
	Kind        QueryKind `json:"kind"`
	Article     string    `json:"article"`
	Depth       int       `json:"depth"`
	Percentile  float64   `json:"percentile,omitempty"`
	IgnoreCount int       `json:"ignore_count,omitempty"`
	Outcome     string    `json:"outcome"`
	UniqueWords int       `json:"unique_words"`
	TotalWords  int       `json:"total_words"`
	RootCached  bool      `json:"root_cached"`
	Shared      bool      `json:"shared"`
	LatencyMs   int64     `json:"latency_ms"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
}
