package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/logger"
)

// completionPayload is the webhook body sent when a job reaches a terminal
// state. Partial failure is visible through the counters, not the status.
type completionPayload struct {
	JobID         string           `json:"job_id"`
	StoreID       string           `json:"store_id"`
	Status        domain.JobStatus `json:"status"`
	TotalRows     int              `json:"total_rows"`
	ProcessedRows int              `json:"processed_rows"`
	FailedRows    int              `json:"failed_rows"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}

// Notifier delivers job-completion webhooks. Delivery is best-effort: a
// webhook that fails after retries is logged and dropped, never blocking
// job finalization.
type Notifier struct {
	client *resty.Client
	url    string
}

// NewNotifier creates a Notifier posting to url. An empty url disables
// notification entirely.
func NewNotifier(url string) *Notifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	return &Notifier{client: client, url: url}
}

// Notify posts the job's terminal state to the configured webhook.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: finalized job record.
//
// Returns:
//   - error: non-nil if delivery failed after retries; callers may ignore it.
func (n *Notifier) Notify(ctx context.Context, job *domain.ImportJob) error {
	if n.url == "" {
		return nil
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(completionPayload{
			JobID:         job.ID,
			StoreID:       job.StoreID,
			Status:        job.Status,
			TotalRows:     job.TotalRows,
			ProcessedRows: job.ProcessedRows,
			FailedRows:    job.FailedRows,
			CompletedAt:   job.CompletedAt,
		}).
		Post(n.url)
	if err != nil {
		logger.CtxWarn(ctx, "Completion webhook failed: job=%s, error=%v", job.ID, err)
		return err
	}
	if resp.IsError() {
		logger.CtxWarn(ctx, "Completion webhook rejected: job=%s, status=%d", job.ID, resp.StatusCode())
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}
