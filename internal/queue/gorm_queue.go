package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/keilo/catalogd/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormQueue is a durable queue on the primary database. It shares the store
// with the job tracker, so queue state survives worker restarts and is
// visible to every worker instance. Claiming uses SELECT ... FOR UPDATE SKIP
// LOCKED on drivers that support it, so concurrent consumers never claim the
// same message twice.
type GormQueue struct {
	db *gorm.DB
}

// NewGormQueue creates a queue bound to db.
func NewGormQueue(db *gorm.DB) *GormQueue {
	return &GormQueue{db: db}
}

// Enqueue appends a batch of chunks in one insert.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - chunks: chunks to enqueue.
// Returns:
//   - error: non-nil if the insert fails; no chunk of the batch is enqueued.
func (q *GormQueue) Enqueue(ctx context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	now := time.Now()
	messages := make([]Message, 0, len(chunks))
	for _, chunk := range chunks {
		payload, err := EncodeChunk(chunk)
		if err != nil {
			return err
		}
		messages = append(messages, Message{
			ID:        uuid.New().String(),
			JobID:     chunk.JobID,
			StoreID:   chunk.StoreID,
			Payload:   payload,
			VisibleAt: now,
		})
	}
	return q.db.WithContext(ctx).Create(&messages).Error
}

// Dequeue claims up to max deliverable messages and hides them for the
// visibility window.
func (q *GormQueue) Dequeue(ctx context.Context, max int, visibility time.Duration) ([]Delivery, error) {
	if max <= 0 {
		return nil, nil
	}

	var claimed []Message
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.
			Where("visible_at <= ?", time.Now()).
			Order("created_at").
			Limit(max)
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := query.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}

		ids := make([]string, len(claimed))
		for i, m := range claimed {
			ids[i] = m.ID
		}
		return tx.Model(&Message{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"visible_at": time.Now().Add(visibility),
				"attempts":   gorm.Expr("attempts + 1"),
			}).Error
	})
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, len(claimed))
	for _, m := range claimed {
		chunk, err := DecodeChunk(m.Payload)
		if err != nil {
			// A payload that cannot decode will never succeed; drop it
			// rather than redeliver forever.
			_ = q.Ack(ctx, m.ID)
			continue
		}
		deliveries = append(deliveries, Delivery{
			MessageID: m.ID,
			Attempt:   m.Attempts + 1,
			Chunk:     chunk,
		})
	}
	return deliveries, nil
}

// Ack deletes a processed message. Acking an already-deleted message is a
// no-op, which keeps redelivered duplicates harmless.
func (q *GormQueue) Ack(ctx context.Context, messageID string) error {
	return q.db.WithContext(ctx).Delete(&Message{}, "id = ?", messageID).Error
}

// Nack makes a message deliverable again after delay.
func (q *GormQueue) Nack(ctx context.Context, messageID string, delay time.Duration) error {
	return q.db.WithContext(ctx).
		Model(&Message{}).
		Where("id = ?", messageID).
		Update("visible_at", time.Now().Add(delay)).Error
}

// Pending counts messages still on the queue for a job, deliverable or in
// flight. Used by status reporting.
func (q *GormQueue) Pending(ctx context.Context, jobID string) (int64, error) {
	var count int64
	if err := q.db.WithContext(ctx).
		Model(&Message{}).
		Where("job_id = ?", jobID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
