package analytics

import (
	"context"
	"log/slog"
	"time"
)

// SnapshotSaver persists a copy of Stats.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, stats Stats) error
}

// RunSnapshots saves agg's stats every interval until ctx is done, then saves
// one last time.
func RunSnapshots(ctx context.Context, agg *Aggregator, saver SnapshotSaver, interval time.Duration) {
	log := slog.Default().With("component", "analytics-snapshots")
	log.Info("periodic snapshots started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := saver.SaveSnapshot(ctx, agg.Stats()); err != nil {
				log.Error("saving snapshot", "error", err)
			}
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := saver.SaveSnapshot(finalCtx, agg.Stats()); err != nil {
				log.Error("saving final snapshot", "error", err)
			}
			return
		}
	}
}
