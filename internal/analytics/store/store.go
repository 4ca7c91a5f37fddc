// Package store persists analytics snapshots in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/internal/analytics"
)

const schema = `
CREATE TABLE IF NOT EXISTS wordfreq_analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB       NOT NULL,
    captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS wordfreq_analytics_snapshots_captured_at
    ON wordfreq_analytics_snapshots (captured_at DESC);
`

// Store reads and writes analytics.Stats snapshots.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

func New(db *sql.DB) *Store {
	return &Store{
		db:     db,
		now:    time.Now,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating snapshot schema: %w", err)
	}
	return nil
}

// SaveSnapshot stores stats with the current time.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.Stats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO wordfreq_analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
		data, s.now().UTC(),
	); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.logger.Debug("snapshot saved", "total_queries", stats.TotalQueries)
	return nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, data, captured_at FROM wordfreq_analytics_snapshots ORDER BY captured_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []analytics.Snapshot
	for rows.Next() {
		var (
			snap analytics.Snapshot
			data []byte
		)
		if err := rows.Scan(&snap.ID, &data, &snap.CapturedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		if err := json.Unmarshal(data, &snap.Stats); err != nil {
			s.logger.Warn("skipping undecodable snapshot", "id", snap.ID, "error", err)
			continue
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
