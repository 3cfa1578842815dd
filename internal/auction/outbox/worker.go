package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Worker drains the outbox into the broker on a polling loop. Records that
// fail to publish stay unpublished and are retried on the next tick, so
// delivery is at-least-once in event order.
type Worker struct {
	store     Store
	publisher Publisher
	config    Config
	clock     clockwork.Clock
}

// NewWorker creates an outbox worker.
func NewWorker(store Store, publisher Publisher, cfg Config, clk clockwork.Clock) *Worker {
	return &Worker{store: store, publisher: publisher, config: cfg, clock: clk}
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().
		Dur("poll_interval", w.config.PollInterval).
		Int("batch_size", w.config.BatchSize).
		Msg("outbox worker started")

	ticker := w.clock.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	// Drain whatever accumulated before startup.
	w.processBatch(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("outbox worker stopped")
			return ctx.Err()
		case <-ticker.Chan():
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	records, err := w.store.FetchUnpublished(ctx, w.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch unpublished events")
		return
	}
	if len(records) == 0 {
		return
	}

	var published []int64
	for _, rec := range records {
		if err := w.publishWithRetry(ctx, rec); err != nil {
			log.Error().
				Err(err).
				Str("event_id", rec.EventID).
				Str("event_type", rec.EventType).
				Msg("failed to publish event")
			// Stop at the first failure to preserve publish order.
			break
		}
		published = append(published, rec.Seq)
	}

	if len(published) > 0 {
		if err := w.store.MarkPublished(ctx, published); err != nil {
			log.Error().Err(err).Msg("failed to mark events published")
			return
		}
		log.Debug().
			Int("total", len(records)).
			Int("published", len(published)).
			Msg("processed outbox batch")
	}
}

func (w *Worker) publishWithRetry(ctx context.Context, rec Record) error {
	var lastErr error
	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-w.clock.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}
		if err := w.publisher.Publish(ctx, rec); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", rec.EventID).
				Int("attempt", attempt+1).
				Msg("publish failed, retrying")
			continue
		}
		return nil
	}
	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
