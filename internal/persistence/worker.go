package persistence

import (
	"context"
	"database/sql"
	"log"
	"time"

	"DexLedger/internal/event"
	"DexLedger/internal/eventlog"
	"DexLedger/internal/observability"
)

// Worker drains the event log into Postgres in batches. It subscribes from
// just past the archive watermark, so a restart resumes where the last run
// stopped and redelivered envelopes dedup on the sequence key.
//
// The worker never drops events: a failed flush retries with exponential
// backoff until it succeeds or the context is cancelled.
type Worker struct {
	writer       *ArchiveWriter
	log          *eventlog.Log
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewWorker(db *sql.DB, evlog *eventlog.Log, batchSize int, flushTimeout time.Duration, metrics *observability.Metrics) *Worker {
	return &Worker{
		writer:       NewArchiveWriter(db),
		log:          evlog,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Writer returns the underlying archive writer.
func (pw *Worker) Writer() *ArchiveWriter {
	return pw.writer
}

// Run batches incoming envelopes and flushes when the batch fills or the
// flush timeout expires. Blocks until ctx is cancelled.
func (pw *Worker) Run(ctx context.Context) error {
	watermark, err := pw.writer.Watermark(ctx)
	if err != nil {
		return err
	}

	events := pw.log.Subscribe(ctx, watermark+1)

	batch := make([]event.Envelope, 0, pw.batchSize)
	timer := time.NewTimer(pw.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				if err := pw.flush(context.Background(), batch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case env, ok := <-events:
			if !ok {
				if len(batch) > 0 {
					if err := pw.flush(context.Background(), batch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			batch = append(batch, env)
			if len(batch) >= pw.batchSize {
				pw.flushWithRetry(ctx, batch)
				batch = batch[:0]
				resetFlushTimer(timer, pw.flushTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				pw.flushWithRetry(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(pw.flushTimeout)
		}
	}
}

// resetFlushTimer restarts the flush timer, discarding a tick that fired
// while a size-triggered flush was running so it cannot cut the next batch
// short.
func resetFlushTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}

// flushWithRetry retries with exponential backoff until the flush succeeds.
// On shutdown one final attempt runs with a background context so the batch
// is not lost.
func (pw *Worker) flushWithRetry(ctx context.Context, batch []event.Envelope) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, events=%d)",
				attempt, backoff, len(batch))
			if pw.metrics != nil {
				pw.metrics.PersistRetry.Inc()
			}
			select {
			case <-ctx.Done():
				if err := pw.flush(context.Background(), batch); err != nil {
					log.Printf("ERROR: final flush on shutdown failed: %v", err)
				}
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		if err := pw.flush(ctx, batch); err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return
		}
	}
}

// flush writes the archive rows and projection updates in one transaction.
func (pw *Worker) flush(ctx context.Context, batch []event.Envelope) error {
	start := time.Now()

	rows := make([]EventRow, 0, len(batch))
	for _, env := range batch {
		row, err := RowFromEnvelope(env)
		if err != nil {
			// Payloads are produced in-process; a marshal failure is a bug,
			// not a transient condition.
			log.Printf("ERROR: skip unmarshalable envelope seq=%d: %v", env.Sequence, err)
			if pw.metrics != nil {
				pw.metrics.PersistErrors.WithLabelValues("marshal").Inc()
			}
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil
	}

	tx, err := pw.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := pw.writer.WriteEventBatch(ctx, tx, rows); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("write_events").Inc()
		}
		return err
	}

	for _, env := range batch {
		if err := pw.writer.ApplyProjection(ctx, tx, env); err != nil {
			if pw.metrics != nil {
				pw.metrics.PersistErrors.WithLabelValues("write_projections").Inc()
			}
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		if pw.metrics != nil {
			pw.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if pw.metrics != nil {
		pw.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		pw.metrics.PersistBatchSize.Observe(float64(len(rows)))
		pw.metrics.PersistEventsWritten.Add(float64(len(rows)))
		pw.metrics.PersistLastSequence.Set(float64(rows[len(rows)-1].Sequence))
	}
	return nil
}
