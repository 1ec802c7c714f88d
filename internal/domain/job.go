package domain

import "time"

// JobStatus represents the status of an import job.
// Values include JobStatusPending, JobStatusProcessing, JobStatusCompleted,
// JobStatusFailed, and JobStatusAborted.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusAborted    JobStatus = "aborted"
)

// Terminal reports whether the status permits no further mutation.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusAborted
}

// ImportJob tracks one bulk catalog submission and its progress counters.
//
// A job with failures still completes: partial failure is reported through
// the failed counter, not through the status. Counters only ever increase and
// never exceed TotalRows. Once the status is terminal the record is frozen.
type ImportJob struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	StoreID       string     `gorm:"type:text;not null;index:idx_import_jobs_store" json:"store_id"`
	ActorID       string     `gorm:"type:text" json:"actor_id,omitempty"`
	Status        JobStatus  `gorm:"type:text;default:pending;index:idx_import_jobs_status" json:"status"`
	TotalRows     int        `gorm:"default:0" json:"total_rows"`
	ProcessedRows int        `gorm:"default:0" json:"processed_rows"`
	FailedRows    int        `gorm:"default:0" json:"failed_rows"`
	AbortFlag     bool       `gorm:"default:false" json:"-"`
	FeedKey       string     `gorm:"type:text" json:"feed_key,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ImportJob.
func (ImportJob) TableName() string {
	return "import_jobs"
}
