package service

import (
	"context"
	"time"

	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/logger"
	"github.com/keilo/catalogd/internal/pipeline"
	"github.com/keilo/catalogd/internal/queue"
	"github.com/keilo/catalogd/internal/repository"
)

// WorkerConfig holds consumer tuning.
type WorkerConfig struct {
	BatchSize    int           // messages claimed per poll
	Visibility   time.Duration // redelivery window per claimed message
	PollInterval time.Duration // sleep between empty polls
}

// Worker consumes chunk messages off the queue and drives them through the
// merge worker. Delivery is at-least-once, so everything downstream of the
// dequeue must tolerate redelivery: merges are idempotent and the job
// tracker's counter guard absorbs double-counted chunks.
type Worker struct {
	queue    taskQueue
	jobs     *repository.JobRepository
	merger   *pipeline.Merger
	notifier *Notifier
	cfg      WorkerConfig
}

// NewWorker creates a queue consumer. Zero config values fall back to
// defaults (batch 4, 1m visibility, 1s poll interval).
func NewWorker(taskq taskQueue, jobs *repository.JobRepository, merger *pipeline.Merger, notifier *Notifier, cfg WorkerConfig) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4
	}
	if cfg.Visibility <= 0 {
		cfg.Visibility = time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Worker{
		queue:    taskq,
		jobs:     jobs,
		merger:   merger,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Run polls the queue until ctx is cancelled. Safe to run from multiple
// processes concurrently; the queue's visibility window keeps claimed
// messages from being double-processed within the window.
func (w *Worker) Run(ctx context.Context) error {
	logger.CtxInfo(ctx, "Worker started: batch=%d, visibility=%s", w.cfg.BatchSize, w.cfg.Visibility)
	for {
		select {
		case <-ctx.Done():
			logger.CtxInfo(ctx, "Worker stopping: %v", ctx.Err())
			return ctx.Err()
		default:
		}

		deliveries, err := w.queue.Dequeue(ctx, w.cfg.BatchSize, w.cfg.Visibility)
		if err != nil {
			logger.CtxError(ctx, "Dequeue failed: %v", err)
			w.sleep(ctx)
			continue
		}
		if len(deliveries) == 0 {
			w.sleep(ctx)
			continue
		}

		for _, d := range deliveries {
			w.process(ctx, d)
		}
	}
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.PollInterval):
	}
}

// process handles one delivered chunk end to end: mark the job processing,
// merge the rows, record the outcome once per chunk, and finalize the job
// when its counters meet the total.
func (w *Worker) process(ctx context.Context, d queue.Delivery) {
	chunk := d.Chunk
	ctx = logger.WithFields(ctx, logger.Fields{
		logger.FieldJobID:    chunk.JobID,
		logger.FieldStoreID:  chunk.StoreID,
		logger.FieldChunkSeq: chunk.Seq,
	})
	started := time.Now()

	if err := w.jobs.MarkProcessing(ctx, chunk.JobID); err != nil {
		// Terminal or unknown job: the chunk is moot, drop it.
		logger.CtxWarn(ctx, "Dropping chunk for non-runnable job: %v", err)
		w.ack(ctx, d.MessageID)
		return
	}

	outcome, err := w.merger.MergeChunk(ctx, chunk)
	if err != nil {
		// Infrastructure failure, not row failures: leave the message for
		// redelivery after a delay.
		logger.CtxError(ctx, "Chunk merge failed, will redeliver: attempt=%d, error=%v", d.Attempt, err)
		if nerr := w.queue.Nack(ctx, d.MessageID, w.cfg.Visibility); nerr != nil {
			logger.CtxWarn(ctx, "Nack failed: %v", nerr)
		}
		return
	}

	job := w.record(ctx, chunk.JobID, outcome)
	w.ack(ctx, d.MessageID)

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(started).Milliseconds(),
		logger.FieldCount:      outcome.Succeeded + outcome.Failed,
	}).Info(ctx, "Chunk merged: succeeded=%d, failed=%d", outcome.Succeeded, outcome.Failed)

	if job != nil && job.ProcessedRows >= job.TotalRows {
		w.finalize(ctx, job.ID)
	}
}

// record reports the chunk outcome to the job tracker. A StateError here
// means a redelivered chunk was already counted; that is the guard working,
// not a fault.
func (w *Worker) record(ctx context.Context, jobID string, outcome pipeline.ChunkOutcome) *domain.ImportJob {
	var job *domain.ImportJob
	var err error

	if outcome.Succeeded > 0 {
		job, err = w.jobs.RecordOutcome(ctx, jobID, true, outcome.Succeeded)
		if err != nil {
			logger.CtxWarn(ctx, "Outcome record (succeeded) rejected: %v", err)
		}
	}
	if outcome.Failed > 0 {
		j, err := w.jobs.RecordOutcome(ctx, jobID, false, outcome.Failed)
		if err != nil {
			logger.CtxWarn(ctx, "Outcome record (failed) rejected: %v", err)
		} else {
			job = j
		}
	}

	if job == nil {
		job, err = w.jobs.Get(ctx, jobID)
		if err != nil {
			logger.CtxWarn(ctx, "Job refresh failed: %v", err)
			return nil
		}
	}
	return job
}

// finalize completes the job and fires the completion webhook. Losing the
// Finalize race to a sibling worker is fine; only the winner notifies.
func (w *Worker) finalize(ctx context.Context, jobID string) {
	if err := w.jobs.Finalize(ctx, jobID); err != nil {
		if domain.IsKind(err, domain.KindState) {
			return
		}
		logger.CtxError(ctx, "Job finalize failed: %v", err)
		return
	}

	job, err := w.jobs.Get(ctx, jobID)
	if err != nil {
		logger.CtxWarn(ctx, "Job refresh after finalize failed: %v", err)
		return
	}
	logger.CtxInfo(ctx, "Job completed: processed=%d, failed=%d", job.ProcessedRows, job.FailedRows)

	if w.notifier != nil {
		// Best-effort; a dead webhook never blocks completion.
		_ = w.notifier.Notify(ctx, job)
	}
}

func (w *Worker) ack(ctx context.Context, messageID string) {
	if err := w.queue.Ack(ctx, messageID); err != nil {
		logger.CtxWarn(ctx, "Ack failed, message may redeliver: %v", err)
	}
}
