package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/keilo/catalogd/internal/domain"
)

// Message is one chunk on the durable queue. Payload is the JSON-encoded
// domain.Chunk. VisibleAt implements at-least-once delivery: a dequeued
// message is hidden for a visibility window and redelivered if it is not
// acked before the window expires.
type Message struct {
	ID        string    `gorm:"type:text;primaryKey"`
	JobID     string    `gorm:"type:text;not null;index:idx_queue_messages_job"`
	StoreID   string    `gorm:"type:text;not null"`
	Payload   []byte    `gorm:"not null"`
	Attempts  int       `gorm:"default:0"`
	VisibleAt time.Time `gorm:"not null;index:idx_queue_messages_visible"`
	CreatedAt time.Time
}

// TableName returns the database table name for Message.
func (Message) TableName() string {
	return "queue_messages"
}

// Delivery is one dequeued message together with its decoded chunk.
type Delivery struct {
	MessageID string
	Attempt   int
	Chunk     domain.Chunk
}

// Queue is the task queue contract the pipeline depends on. Delivery is
// at-least-once: consumers must ack after successful processing and be
// idempotent under redelivery.
type Queue interface {
	// Enqueue appends a batch of chunks to the queue.
	Enqueue(ctx context.Context, chunks []domain.Chunk) error

	// Dequeue claims up to max messages, hiding each for the visibility
	// window. An empty result means the queue has nothing deliverable.
	Dequeue(ctx context.Context, max int, visibility time.Duration) ([]Delivery, error)

	// Ack removes a successfully processed message.
	Ack(ctx context.Context, messageID string) error

	// Nack makes a message deliverable again after delay.
	Nack(ctx context.Context, messageID string, delay time.Duration) error
}

// EncodeChunk serializes a chunk for the queue payload.
func EncodeChunk(chunk domain.Chunk) ([]byte, error) {
	return json.Marshal(chunk)
}

// DecodeChunk deserializes a queue payload back into a chunk.
func DecodeChunk(payload []byte) (domain.Chunk, error) {
	var chunk domain.Chunk
	err := json.Unmarshal(payload, &chunk)
	return chunk, err
}
