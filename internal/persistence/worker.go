package persistence

import (
	"EscrowLedger/internal/observability"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Record pairs one event row with the journal rows its batch produced.
// The orchestrator bridges engine output into this shape so the worker
// stays decoupled from the engine types.
type Record struct {
	EventRow    EventRow
	JournalRows []JournalRow
}

// PersistenceWorker drains the persist channel and batch-writes to Postgres.
// The persist channel uses BLOCKING sends from the engine, so if this worker
// falls behind, the engine stalls. No event is ever dropped on this path.
type PersistenceWorker struct {
	writer        *EventLogWriter
	inputChan     <-chan Record
	batchSize     int
	flushInterval time.Duration
	logger        zerolog.Logger
	metrics       *observability.Metrics
}

func NewPersistenceWorker(
	db *sql.DB,
	inputChan <-chan Record,
	batchSize int,
	flushInterval time.Duration,
	logger zerolog.Logger,
	metrics *observability.Metrics,
) *PersistenceWorker {
	return &PersistenceWorker{
		writer:        NewEventLogWriter(db),
		inputChan:     inputChan,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger,
		metrics:       metrics,
	}
}

// Run starts the persistence worker loop. It batches incoming records
// and flushes either when the batch is full or the flush interval expires.
// Blocks until ctx is cancelled or the input channel closes.
func (pw *PersistenceWorker) Run(ctx context.Context) error {
	eventBatch := make([]EventRow, 0, pw.batchSize)
	journalBatch := make([]JournalRow, 0, pw.batchSize*4) // ~4 journals per event avg

	timer := time.NewTimer(pw.flushInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			// Graceful shutdown. The producer keeps forwarding until the
			// core is idle and then closes the channel, so consume to the
			// close marker and flush with a fresh context: the cancelled one
			// would abort the write mid-flight. Flushes stay chunked; one
			// statement must fit the Postgres parameter limit.
			flushCtx := context.Background()
			for record := range pw.inputChan {
				eventBatch = append(eventBatch, record.EventRow)
				journalBatch = append(journalBatch, record.JournalRows...)

				if len(eventBatch) >= pw.batchSize {
					if err := pw.flush(flushCtx, eventBatch, journalBatch); err != nil {
						pw.logger.Error().Err(err).Int("events", len(eventBatch)).
							Msg("final flush failed")
						return err
					}
					eventBatch = eventBatch[:0]
					journalBatch = journalBatch[:0]
				}
			}
			if len(eventBatch) > 0 {
				if err := pw.flush(flushCtx, eventBatch, journalBatch); err != nil {
					pw.logger.Error().Err(err).Int("events", len(eventBatch)).
						Msg("final flush failed")
					return err
				}
			}
			return ctx.Err()

		case record, ok := <-pw.inputChan:
			if !ok {
				if len(eventBatch) > 0 {
					if err := pw.flush(context.Background(), eventBatch, journalBatch); err != nil {
						pw.logger.Error().Err(err).Int("events", len(eventBatch)).
							Msg("final flush failed")
						return err
					}
				}
				return nil
			}

			eventBatch = append(eventBatch, record.EventRow)
			journalBatch = append(journalBatch, record.JournalRows...)

			if len(eventBatch) >= pw.batchSize {
				if err := pw.flushWithRetry(ctx, eventBatch, journalBatch); err != nil {
					return err
				}
				eventBatch = eventBatch[:0]
				journalBatch = journalBatch[:0]
				timer.Reset(pw.flushInterval)
			}

		case <-timer.C:
			if len(eventBatch) > 0 {
				if err := pw.flushWithRetry(ctx, eventBatch, journalBatch); err != nil {
					return err
				}
				eventBatch = eventBatch[:0]
				journalBatch = journalBatch[:0]
			}
			timer.Reset(pw.flushInterval)
		}
	}
}

// flushWithRetry retries with exponential backoff, capped at 30s. The worker
// never drops a batch: it retries until the write succeeds or the context is
// cancelled, and on cancellation makes one final attempt with a background
// context so a shutdown during a Postgres outage still lands the batch.
func (pw *PersistenceWorker) flushWithRetry(ctx context.Context, events []EventRow, journals []JournalRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			pw.logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).
				Int("events", len(events)).Msg("persistence retry")
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if finalErr := pw.flush(context.Background(), events, journals); finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := pw.flush(ctx, events, journals)
		if err == nil {
			if attempt > 0 {
				pw.logger.Info().Int("retries", attempt).Msg("persistence flush recovered")
			}
			return nil
		}

		pw.logger.Error().Err(err).Int("attempt", attempt).Msg("persistence flush failed")
	}
}

// flush writes events and journals in a single transaction, so a crash can
// never leave journals referencing an unwritten event.
func (pw *PersistenceWorker) flush(ctx context.Context, events []EventRow, journals []JournalRow) error {
	start := time.Now()

	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, events); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}

	if err := pw.writer.WriteJournalBatch(ctx, tx, journals); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_journals").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(events)))
		pw.metrics.PersistEventsWritten.Add(float64(len(events)))
		pw.metrics.PersistJournalsWritten.Add(float64(len(journals)))
		pw.metrics.PersistLastSequence.Set(float64(events[len(events)-1].Sequence))
	}

	return nil
}
