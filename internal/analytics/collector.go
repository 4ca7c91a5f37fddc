package analytics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wordfreq/pkg/kafka"
)

// Publisher writes a batch of events to the event bus.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// Collector buffers query events and publishes them in batches, flushing
// when a batch fills up or the flush interval passes. Track never blocks the
// query path: when the buffer is full the event is dropped.
type Collector struct {
	publisher     Publisher
	events        chan QueryEvent
	batchSize     int
	flushInterval time.Duration
	dropped       atomic.Int64
	done          chan struct{}
	logger        *slog.Logger
}

// NewCollector creates a Collector. Zero sizes fall back to a buffer of
// 10000 events, batches of 100 and a five second interval.
func NewCollector(publisher Publisher, bufferSize, batchSize int, flushInterval time.Duration) *Collector {
	if bufferSize <= 0 {
		bufferSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}
	return &Collector{
		publisher:     publisher,
		events:        make(chan QueryEvent, bufferSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		done:          make(chan struct{}),
		logger:        slog.Default().With("component", "analytics-collector"),
	}
}

// Track queues ev for publishing.
func (c *Collector) Track(ev QueryEvent) {
	select {
	case c.events <- ev:
	default:
		if c.dropped.Add(1)%1000 == 1 {
			c.logger.Warn("analytics buffer full, dropping events", "dropped_total", c.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded because the buffer was
// full.
func (c *Collector) Dropped() int64 {
	return c.dropped.Load()
}

// Start runs the publish loop in the background until ctx is done. Events
// still buffered at that point get one final flush.
func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
	c.logger.Info("analytics collector started",
		"buffer_size", cap(c.events),
		"batch_size", c.batchSize,
		"flush_interval", c.flushInterval,
	)
}

// Wait blocks until the publish loop has exited.
func (c *Collector) Wait() {
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	batch := make([]kafka.Event, 0, c.batchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := c.publisher.PublishBatch(ctx, batch); err != nil {
			c.logger.Error("publishing analytics batch", "events", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev := <-c.events:
			batch = append(batch, kafka.Event{Key: ev.Article, Value: ev})
			if len(batch) >= c.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
		drain:
			for {
				select {
				case ev := <-c.events:
					batch = append(batch, kafka.Event{Key: ev.Article, Value: ev})
					if len(batch) >= c.batchSize {
						flush(shutdownCtx)
					}
				default:
					break drain
				}
			}
			flush(shutdownCtx)
			return
		}
	}
}
