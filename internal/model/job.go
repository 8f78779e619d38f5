package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the bulk job lifecycle state.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether the job reached a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// BulkJob groups the dispatch attempts of one batch invocation.
type BulkJob struct {
	Base
	TenantID     uuid.UUID   `json:"tenant_id" db:"tenant_id"`
	EventID      uuid.UUID   `json:"event_id" db:"event_id"`
	Type         MessageType `json:"type" db:"type"`
	Status       JobStatus   `json:"status" db:"status"`
	Total        int         `json:"total" db:"total"`
	Processed    int         `json:"processed" db:"processed"`
	Success      int         `json:"success" db:"success"`
	Failed       int         `json:"failed" db:"failed"`
	SkippedLimit int         `json:"skipped_limit" db:"skipped_limit"`
	FailReason   string      `json:"fail_reason,omitempty" db:"fail_reason"`
	// Per-job send overrides, applied to every attempt in the batch.
	ChannelOverride  Channel    `json:"channel_override,omitempty" db:"channel_override"`
	TemplateOverride string     `json:"template_override,omitempty" db:"template_override"`
	ScheduledAt      time.Time  `json:"scheduled_at" db:"scheduled_at"`
	StartedAt        *time.Time `json:"started_at,omitempty" db:"started_at"`
	FinishedAt       *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}

// Summary extracts the job's aggregate counters for API responses and
// notification emails.
func (j *BulkJob) Summary() JobSummary {
	return JobSummary{
		Status:       j.Status,
		Total:        j.Total,
		Processed:    j.Processed,
		Success:      j.Success,
		Failed:       j.Failed,
		SkippedLimit: j.SkippedLimit,
	}
}

// JobSummary is the aggregate result returned for bulk operations.
type JobSummary struct {
	Status       JobStatus `json:"status"`
	Total        int       `json:"total"`
	Processed    int       `json:"processed"`
	Success      int       `json:"success"`
	Failed       int       `json:"failed"`
	SkippedLimit int       `json:"skipped_limit"`
}
