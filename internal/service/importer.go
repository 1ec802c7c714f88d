package service

import (
	"bytes"
	"context"
	"time"

	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/feed"
	"github.com/keilo/catalogd/internal/logger"
	"github.com/keilo/catalogd/internal/pipeline"
	"github.com/keilo/catalogd/internal/queue"
	"github.com/keilo/catalogd/internal/repository"
	"github.com/keilo/catalogd/internal/storage"
)

// taskQueue extends the pipeline queue contract with the per-job backlog
// count the status endpoint reports.
type taskQueue interface {
	queue.Queue
	Pending(ctx context.Context, jobID string) (int64, error)
}

// ImporterConfig holds submission tuning.
type ImporterConfig struct {
	ChunkSize  int // rows per chunk
	Dispatcher pipeline.DispatcherConfig
}

// SubmitResult is the synchronous response to a feed submission. Dispatch
// continues in the background; callers follow progress via Status.
type SubmitResult struct {
	Job           *domain.ImportJob     `json:"job"`
	Failures      []pipeline.RowFailure `json:"failures,omitempty"`
	AcceptedRows  int                   `json:"accepted_rows"`
	PlannedChunks int                   `json:"planned_chunks"`
}

// JobStatusView is the job record augmented with the live queue backlog.
type JobStatusView struct {
	*domain.ImportJob
	PendingChunks int64 `json:"pending_chunks"`
}

// ImportService orchestrates a feed submission: validate and deduplicate,
// plan chunks, persist the job, archive the raw feed, and hand the chunks to
// the dispatcher.
type ImportService struct {
	jobs       *repository.JobRepository
	validator  *pipeline.Validator
	queue      taskQueue
	dispatcher *pipeline.Dispatcher
	store      storage.ObjectStorage
	chunkSize  int
}

// NewImportService creates a new import orchestrator.
// Parameters:
//   - jobs: durable job tracker.
//   - validator: row validator and deduplicator.
//   - taskq: chunk queue.
//   - store: object storage for feed archival, nil to disable.
//   - cfg: submission tuning.
//
// Returns:
//   - *ImportService: initialized orchestrator.
func NewImportService(
	jobs *repository.JobRepository,
	validator *pipeline.Validator,
	taskq taskQueue,
	store storage.ObjectStorage,
	cfg ImporterConfig,
) *ImportService {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = pipeline.DefaultChunkSize
	}
	return &ImportService{
		jobs:       jobs,
		validator:  validator,
		queue:      taskq,
		dispatcher: pipeline.NewDispatcher(taskq, cfg.Dispatcher),
		store:      store,
		chunkSize:  cfg.ChunkSize,
	}
}

// Submit accepts one feed for a store. Rows that fail validation are reported
// in the result and counted against the job; they never block the rest of the
// feed. The raw feed bytes, when provided, are archived to object storage for
// audit. Chunk dispatch runs in the background.
//
// A submission-level error (the category store unreachable, the job insert
// failing) returns error and creates nothing.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - storeID: owning store ID.
//   - actorID: identity of the submitting caller.
//   - raws: decoded feed rows.
//   - rawFeed: original feed bytes for archival, nil to skip.
//   - format: feed format, used for the archive key and content type.
//
// Returns:
//   - *SubmitResult: created job, per-row failures, and planning counts.
//   - error: non-nil on submission-level failure.
func (s *ImportService) Submit(ctx context.Context, storeID, actorID string, raws []pipeline.RawRow, rawFeed []byte, format feed.Format) (*SubmitResult, error) {
	rows, failures, err := s.validator.Validate(ctx, storeID, raws)
	if err != nil {
		return nil, err
	}

	job, err := s.jobs.Create(ctx, storeID, actorID, len(raws), len(failures))
	if err != nil {
		return nil, domain.NewTransportError("job create failed", err)
	}

	ctx = logger.SetJobID(ctx, job.ID)
	ctx = logger.SetStoreID(ctx, storeID)

	s.archiveFeed(ctx, job, rawFeed, format)

	chunks := pipeline.PlanChunks(job.ID, storeID, rows, s.chunkSize)

	if len(rows) == 0 {
		// Nothing dispatchable: the job is already fully accounted for by
		// its validation failures.
		if err := s.jobs.MarkProcessing(ctx, job.ID); err == nil {
			_ = s.jobs.Finalize(ctx, job.ID)
		}
		job, _ = s.jobs.Get(ctx, job.ID)
		return &SubmitResult{Job: job, Failures: failures}, nil
	}

	go s.dispatch(logger.FromContext(ctx).WithContext(context.Background()), job.ID, chunks)

	logger.With(logger.Fields{logger.FieldCount: len(rows)}).
		Info(ctx, "Feed accepted: rows=%d, rejected=%d, chunks=%d", len(raws), len(failures), len(chunks))
	return &SubmitResult{
		Job:           job,
		Failures:      failures,
		AcceptedRows:  len(rows),
		PlannedChunks: len(chunks),
	}, nil
}

// dispatch runs on a detached context so an HTTP client disconnect cannot
// orphan a half-dispatched submission.
func (s *ImportService) dispatch(ctx context.Context, jobID string, chunks []domain.Chunk) {
	abort := func(ctx context.Context) bool {
		flag, err := s.jobs.AbortRequested(ctx, jobID)
		if err != nil {
			logger.CtxWarn(ctx, "Abort flag check failed: %v", err)
			return false
		}
		return flag
	}

	result := s.dispatcher.Dispatch(ctx, chunks, abort)
	switch {
	case result.Aborted:
		logger.CtxInfo(ctx, "Dispatch aborted: enqueued=%d/%d chunks", result.EnqueuedChunks, result.TotalChunks)
		s.markAborted(ctx, jobID)
	case result.State == pipeline.StatePartial && result.EnqueuedChunks == 0:
		// Nothing made it onto the queue: the submission failed outright.
		logger.CtxError(ctx, "Dispatch failed, no chunks enqueued: %v", result.Err)
		if err := s.jobs.MarkFailed(ctx, jobID); err != nil {
			logger.CtxWarn(ctx, "Failed to mark job failed: %v", err)
		}
	case result.State == pipeline.StatePartial:
		// Enqueued chunks stay in flight; the job's counters will show the
		// shortfall and the caller decides whether to resubmit the rest.
		logger.CtxError(ctx, "Dispatch partial: enqueued=%d/%d chunks, error=%v",
			result.EnqueuedChunks, result.TotalChunks, result.Err)
	default:
		logger.CtxInfo(ctx, "Dispatch complete: chunks=%d, rows=%d", result.EnqueuedChunks, result.EnqueuedRows)
	}
}

// markAborted finalizes an aborted job once its in-flight chunks have
// drained. Polling keeps this crash-tolerant: a worker restart resumes the
// drain and the job converges regardless.
func (s *ImportService) markAborted(ctx context.Context, jobID string) {
	for i := 0; i < 60; i++ {
		pending, err := s.queue.Pending(ctx, jobID)
		if err == nil && pending == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}

	if err := s.jobs.MarkAborted(ctx, jobID); err != nil {
		logger.CtxWarn(ctx, "Failed to mark job aborted: %v", err)
	}
}

// archiveFeed uploads the raw feed bytes for audit. Archival is best-effort:
// a storage failure is logged and the import proceeds.
func (s *ImportService) archiveFeed(ctx context.Context, job *domain.ImportJob, rawFeed []byte, format feed.Format) {
	if s.store == nil || len(rawFeed) == 0 {
		return
	}

	key := storage.FeedKey(job.StoreID, job.ID, format.Ext())
	if err := s.store.Upload(ctx, key, bytes.NewReader(rawFeed), int64(len(rawFeed)), format.ContentType()); err != nil {
		logger.CtxWarn(ctx, "Feed archive upload failed: key=%s, error=%v", key, err)
		return
	}
	if err := s.jobs.SetFeedKey(ctx, job.ID, key); err != nil {
		logger.CtxWarn(ctx, "Feed key record failed: key=%s, error=%v", key, err)
		return
	}
	job.FeedKey = key
}

// Status returns the job record with its live queue backlog.
func (s *ImportService) Status(ctx context.Context, jobID string) (*JobStatusView, error) {
	job, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pending, err := s.queue.Pending(ctx, jobID)
	if err != nil {
		logger.CtxWarn(ctx, "Queue backlog count failed: %v", err)
		pending = 0
	}
	return &JobStatusView{ImportJob: job, PendingChunks: pending}, nil
}

// Abort raises the abort flag on a running job. Dispatch stops at the next
// batch boundary; chunks already enqueued run to completion.
func (s *ImportService) Abort(ctx context.Context, jobID string) error {
	return s.jobs.RequestAbort(ctx, jobID)
}
