package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/keilo/catalogd/internal/domain"
	"gorm.io/gorm"
)

// JobRepository is the durable job tracker. Counters live in the database so
// any worker instance observes the same state; increments are single UPDATE
// statements so concurrent workers never lose updates.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create persists a new import job in status pending. Rows rejected at
// validation are counted into both counters up front: they are already
// "processed" in the sense that no further work will touch them, so the
// processed==total completion check holds without special cases.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - storeID: owning store ID.
//   - actorID: identity of the submitting caller.
//   - total: total row count of the submission, rejected rows included.
//   - failed: rows rejected at validation.
// Returns:
//   - *domain.ImportJob: created job record.
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, storeID, actorID string, total, failed int) (*domain.ImportJob, error) {
	job := &domain.ImportJob{
		ID:            uuid.New().String(),
		StoreID:       storeID,
		ActorID:       actorID,
		Status:        domain.JobStatusPending,
		TotalRows:     total,
		ProcessedRows: failed,
		FailedRows:    failed,
	}
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// Get retrieves a job by ID.
func (r *JobRepository) Get(ctx context.Context, jobID string) (*domain.ImportJob, error) {
	var job domain.ImportJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", jobID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkProcessing transitions a pending job to processing and stamps its start
// time. Calling it again on a job already processing is a no-op so multiple
// workers may race on the first chunk safely.
func (r *JobRepository) MarkProcessing(ctx context.Context, jobID string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status IN ?", jobID, []domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing}).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusProcessing,
			"started_at": gorm.Expr("COALESCE(started_at, ?)", now),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NewStateError("job is terminal or unknown")
	}
	return nil
}

// RecordOutcome atomically adds count to the processed counter and, when
// succeeded is false, to the failed counter. The WHERE clause guards both the
// terminal-state rule and the counter ceiling: a job can never report more
// processed rows than its total.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - jobID: job to update.
//   - succeeded: whether the counted rows succeeded.
//   - count: number of rows in this outcome.
// Returns:
//   - *domain.ImportJob: the job after the increment.
//   - error: StateError if the job is terminal or the increment would
//     overflow the total.
func (r *JobRepository) RecordOutcome(ctx context.Context, jobID string, succeeded bool, count int) (*domain.ImportJob, error) {
	if count <= 0 {
		return r.Get(ctx, jobID)
	}

	updates := map[string]interface{}{
		"processed_rows": gorm.Expr("processed_rows + ?", count),
	}
	if !succeeded {
		updates["failed_rows"] = gorm.Expr("failed_rows + ?", count)
	}

	res := r.db.WithContext(ctx).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status = ? AND processed_rows + ? <= total_rows",
			jobID, domain.JobStatusProcessing, count).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.NewStateError("job is terminal, unknown, or the outcome exceeds its total")
	}
	return r.Get(ctx, jobID)
}

// Finalize transitions a processing job to its terminal state. A job with a
// non-zero failed counter still completes; partial failure is reported
// through the counter, not the status.
func (r *JobRepository) Finalize(ctx context.Context, jobID string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status = ?", jobID, domain.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NewStateError("job is terminal or unknown")
	}
	return nil
}

// MarkFailed records a submission-level failure (e.g. nothing could be
// dispatched). Row-level failures never take this path.
func (r *JobRepository) MarkFailed(ctx context.Context, jobID string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status IN ?", jobID,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing}).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusFailed,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NewStateError("job is terminal or unknown")
	}
	return nil
}

// MarkAborted transitions a non-terminal job to aborted once its in-flight
// work has drained.
func (r *JobRepository) MarkAborted(ctx context.Context, jobID string) error {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status IN ?", jobID,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing}).
		Updates(map[string]interface{}{
			"status":       domain.JobStatusAborted,
			"completed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NewStateError("job is terminal or unknown")
	}
	return nil
}

// RequestAbort raises the abort flag on a non-terminal job. The dispatcher
// checks the flag between batches; chunks already on the queue run to
// completion.
func (r *JobRepository) RequestAbort(ctx context.Context, jobID string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.ImportJob{}).
		Where("id = ? AND status IN ?", jobID,
			[]domain.JobStatus{domain.JobStatusPending, domain.JobStatusProcessing}).
		Update("abort_flag", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NewStateError("job is terminal or unknown")
	}
	return nil
}

// AbortRequested reads the job's abort flag. Unknown jobs report false with
// the lookup error.
func (r *JobRepository) AbortRequested(ctx context.Context, jobID string) (bool, error) {
	var flag bool
	err := r.db.WithContext(ctx).
		Model(&domain.ImportJob{}).
		Where("id = ?", jobID).
		Limit(1).
		Pluck("abort_flag", &flag).Error
	if err != nil {
		return false, err
	}
	return flag, nil
}

// SetFeedKey records the object-storage key of the archived raw feed.
func (r *JobRepository) SetFeedKey(ctx context.Context, jobID, key string) error {
	return r.db.WithContext(ctx).
		Model(&domain.ImportJob{}).
		Where("id = ?", jobID).
		Update("feed_key", key).Error
}
