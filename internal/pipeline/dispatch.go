package pipeline

import (
	"context"
	"time"

	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/logger"
	"golang.org/x/time/rate"
)

// DispatchState is the per-submission dispatcher state machine.
type DispatchState string

const (
	StatePlanned     DispatchState = "planned"
	StateDispatching DispatchState = "dispatching"
	StateDispatched  DispatchState = "dispatched"
	StatePartial     DispatchState = "partial"
)

// Enqueuer is the narrow queue contract the dispatcher needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, chunks []domain.Chunk) error
}

// AbortCheck reports whether further dispatch for the submission should stop.
// Chunks already enqueued are not affected.
type AbortCheck func(ctx context.Context) bool

// DispatcherConfig holds dispatch tuning.
type DispatcherConfig struct {
	BatchSize  int           // chunks per enqueue call
	Rate       rate.Limit    // enqueue batches per second
	MaxRetries int           // attempts per batch beyond the first
	Backoff    time.Duration // base backoff, doubled per retry
}

// Dispatcher hands planned chunks to the task queue in small rate-limited
// batches so a large submission cannot saturate the queue's ingress.
type Dispatcher struct {
	queue      Enqueuer
	limiter    *rate.Limiter
	batchSize  int
	maxRetries int
	backoff    time.Duration
}

// NewDispatcher creates a Dispatcher. Zero config values fall back to
// defaults (batch 4, 8 batches/s, 3 retries, 200ms base backoff).
func NewDispatcher(queue Enqueuer, cfg DispatcherConfig) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 8
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	return &Dispatcher{
		queue:      queue,
		limiter:    rate.NewLimiter(cfg.Rate, int(cfg.Rate)),
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}
}

// DispatchResult reports how much of a submission made it onto the queue.
// When State is StatePartial the caller decides whether to resubmit the
// remainder; retries are safe because merges are idempotent.
type DispatchResult struct {
	State          DispatchState `json:"state"`
	TotalChunks    int           `json:"total_chunks"`
	EnqueuedChunks int           `json:"enqueued_chunks"`
	EnqueuedRows   int           `json:"enqueued_rows"`
	Aborted        bool          `json:"aborted,omitempty"`
	Err            error         `json:"-"`
}

// Dispatch enqueues chunks batch by batch. A failed batch is retried with
// exponential backoff; once retries exhaust, dispatch stops and the result
// reports the partial count. Already-enqueued chunks stay in flight — there
// is no compensating rollback, they will be processed regardless.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - chunks: planned chunks in order.
//   - abort: optional abort check consulted between batches; nil means never.
// Returns:
//   - DispatchResult: final state and enqueued counts.
func (d *Dispatcher) Dispatch(ctx context.Context, chunks []domain.Chunk, abort AbortCheck) DispatchResult {
	result := DispatchResult{State: StatePlanned, TotalChunks: len(chunks)}
	if len(chunks) == 0 {
		result.State = StateDispatched
		return result
	}

	result.State = StateDispatching
	for start := 0; start < len(chunks); start += d.batchSize {
		if abort != nil && abort(ctx) {
			result.Aborted = true
			result.State = StatePartial
			return result
		}

		end := start + d.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		if err := d.enqueueWithRetry(ctx, batch); err != nil {
			result.State = StatePartial
			result.Err = domain.NewTransportError("enqueue batch failed after retries", err)
			logger.CtxError(ctx, "Dispatch stopped: enqueued=%d/%d chunks, error=%v",
				result.EnqueuedChunks, result.TotalChunks, err)
			return result
		}

		result.EnqueuedChunks += len(batch)
		for _, c := range batch {
			result.EnqueuedRows += len(c.Rows)
		}
	}

	result.State = StateDispatched
	return result
}

func (d *Dispatcher) enqueueWithRetry(ctx context.Context, batch []domain.Chunk) error {
	var lastErr error
	backoff := d.backoff
	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		lastErr = d.queue.Enqueue(ctx, batch)
		if lastErr == nil {
			return nil
		}
		logger.CtxWarn(ctx, "Enqueue batch failed: attempt=%d, size=%d, error=%v",
			attempt+1, len(batch), lastErr)
	}
	return lastErr
}
