package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"payments/internal/metrics"
	"payments/internal/payment"
	"payments/internal/pkg/clock"
	"payments/internal/store"
)

// Queue is the unpublished-events view inside one transaction.
type Queue interface {
	Pending(ctx context.Context, limit int) ([]payment.DomainEvent, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Source runs fn in a transaction that commits when fn returns nil.
type Source interface {
	InTx(ctx context.Context, fn func(Queue) error) error
}

// StoreSource adapts *store.Store to Source.
type StoreSource struct {
	Store *store.Store
}

func (s StoreSource) InTx(ctx context.Context, fn func(Queue) error) error {
	return s.Store.InTx(ctx, func(q store.PendingQueue) error {
		return fn(q)
	})
}

// Relay delivers events written in outbox mode to the broker.
type Relay struct {
	source    Source
	publisher payment.Publisher
	clock     clock.Clock
	batchSize int
	interval  time.Duration
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(source Source, publisher payment.Publisher, batchSize int, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Relay {
	return &Relay{
		source:    source,
		publisher: publisher,
		clock:     clock.NewRealClock(),
		batchSize: batchSize,
		interval:  interval,
		metrics:   m,
		logger:    logger,
	}
}

// Run processes a batch every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := r.ProcessBatch(ctx)
			if err != nil {
				r.logger.Error("error processing outbox batch", slog.Int("published", n), slog.Any("error", err))
				continue
			}
			if n > 0 {
				r.logger.Info("outbox batch processed", slog.Int("published", n))
			}
		}
	}
}

// ProcessBatch publishes up to batchSize pending events, oldest first. A
// publish failure stops the batch; events published before it are still
// marked, the failed one stays pending for the next run. Events that cannot
// be turned into a message are marked too so they do not block the queue.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	var (
		handled    []uuid.UUID
		published  int
		publishErr error
	)

	err := r.source.InTx(ctx, func(q Queue) error {
		events, err := q.Pending(ctx, r.batchSize)
		if err != nil {
			return err
		}

		for _, e := range events {
			msg, err := payment.MessageFromEvent(e)
			if err != nil {
				r.metrics.Relayed("skipped")
				r.logger.Warn("skipping undeliverable event", slog.String("event_id", e.ID.String()), slog.Any("error", err))
				handled = append(handled, e.ID)
				continue
			}

			start := time.Now()
			err = r.publisher.Publish(ctx, msg)
			r.metrics.Published(err, time.Since(start))
			if err != nil {
				r.metrics.Relayed("error")
				publishErr = fmt.Errorf("publish event %s: %w: %w", e.ID, payment.ErrBrokerUnavailable, err)
				break
			}

			r.metrics.Relayed("ok")
			handled = append(handled, e.ID)
			published++
		}

		return q.MarkPublished(ctx, handled, r.clock.Now())
	})
	if err != nil {
		return 0, errors.Join(err, publishErr)
	}
	return published, publishErr
}
