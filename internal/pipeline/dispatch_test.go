package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keilo/catalogd/internal/domain"
)

// fakeQueue counts enqueue calls and fails on command.
type fakeQueue struct {
	enqueued  []domain.Chunk
	calls     int
	failFrom  int // fail every call starting at this call number (1-based), 0=never
	failCount int // how many consecutive failures before recovering, -1=forever
}

func (f *fakeQueue) Enqueue(ctx context.Context, chunks []domain.Chunk) error {
	f.calls++
	if f.failFrom > 0 && f.calls >= f.failFrom {
		if f.failCount < 0 || f.calls < f.failFrom+f.failCount {
			return errors.New("queue unavailable")
		}
	}
	f.enqueued = append(f.enqueued, chunks...)
	return nil
}

func fastDispatcher(q Enqueuer) *Dispatcher {
	return NewDispatcher(q, DispatcherConfig{
		BatchSize:  2,
		Rate:       1000,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})
}

func TestDispatchAllChunks(t *testing.T) {
	q := &fakeQueue{}
	d := fastDispatcher(q)

	chunks := PlanChunks("job-1", "store-1", makeRows(10), 2) // 5 chunks
	result := d.Dispatch(context.Background(), chunks, nil)

	if result.State != StateDispatched {
		t.Fatalf("Got state %s, want %s", result.State, StateDispatched)
	}
	if result.EnqueuedChunks != 5 || result.EnqueuedRows != 10 {
		t.Errorf("Got %d chunks / %d rows, want 5 / 10", result.EnqueuedChunks, result.EnqueuedRows)
	}
	if len(q.enqueued) != 5 {
		t.Errorf("Queue received %d chunks, want 5", len(q.enqueued))
	}
}

func TestDispatchRetriesTransientFailure(t *testing.T) {
	// Second call fails twice, then recovers; within the retry budget.
	q := &fakeQueue{failFrom: 2, failCount: 2}
	d := fastDispatcher(q)

	chunks := PlanChunks("job-1", "store-1", makeRows(8), 2) // 4 chunks, 2 batches
	result := d.Dispatch(context.Background(), chunks, nil)

	if result.State != StateDispatched {
		t.Fatalf("Got state %s, want %s (err=%v)", result.State, StateDispatched, result.Err)
	}
	if result.EnqueuedChunks != 4 {
		t.Errorf("Got %d chunks, want 4", result.EnqueuedChunks)
	}
}

func TestDispatchPartialOnExhaustedRetries(t *testing.T) {
	q := &fakeQueue{failFrom: 2, failCount: -1}
	d := fastDispatcher(q)

	chunks := PlanChunks("job-1", "store-1", makeRows(8), 2) // 4 chunks, 2 batches
	result := d.Dispatch(context.Background(), chunks, nil)

	if result.State != StatePartial {
		t.Fatalf("Got state %s, want %s", result.State, StatePartial)
	}
	if result.EnqueuedChunks != 2 {
		t.Errorf("Got %d enqueued chunks, want 2 (first batch only)", result.EnqueuedChunks)
	}
	if result.Err == nil || !domain.IsKind(result.Err, domain.KindTransport) {
		t.Errorf("Expected transport error, got %v", result.Err)
	}
	// Already-enqueued chunks are never rolled back.
	if len(q.enqueued) != 2 {
		t.Errorf("Queue holds %d chunks, want the 2 already enqueued", len(q.enqueued))
	}
}

func TestDispatchAbortStopsBetweenBatches(t *testing.T) {
	q := &fakeQueue{}
	d := fastDispatcher(q)

	aborts := 0
	abort := func(ctx context.Context) bool {
		aborts++
		return aborts > 1 // allow first batch, stop before second
	}

	chunks := PlanChunks("job-1", "store-1", makeRows(8), 2)
	result := d.Dispatch(context.Background(), chunks, abort)

	if !result.Aborted {
		t.Fatal("Expected aborted result")
	}
	if result.State != StatePartial {
		t.Errorf("Got state %s, want %s", result.State, StatePartial)
	}
	if result.EnqueuedChunks != 2 {
		t.Errorf("Got %d enqueued chunks, want 2", result.EnqueuedChunks)
	}
}

func TestDispatchEmpty(t *testing.T) {
	q := &fakeQueue{}
	d := fastDispatcher(q)

	result := d.Dispatch(context.Background(), nil, nil)
	if result.State != StateDispatched {
		t.Errorf("Empty dispatch should complete, got %s", result.State)
	}
	if q.calls != 0 {
		t.Errorf("Queue should not be touched, got %d calls", q.calls)
	}
}
