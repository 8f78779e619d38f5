package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/model"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/repository"
)

type jobRepository struct {
	*BaseRepository
}

func NewJobRepository(base *BaseRepository) repository.JobRepository {
	return &jobRepository{BaseRepository: base}
}

const jobColumns = `
	id, tenant_id, event_id, type, status, total, processed, success, failed,
	skipped_limit, fail_reason, channel_override, template_override,
	scheduled_at, started_at, finished_at, created_at, updated_at, deleted_at
`

func (r *jobRepository) Create(ctx context.Context, job *model.BulkJob) error {
	query := `
		INSERT INTO bulk_jobs (
			id, tenant_id, event_id, type, status, total, processed, success,
			failed, skipped_limit, fail_reason, channel_override, template_override,
			scheduled_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
	`
	now := time.Now()
	job.ID = uuid.New()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}

	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.TenantID, job.EventID, job.Type, job.Status,
		job.Total, job.Processed, job.Success, job.Failed, job.SkippedLimit,
		job.FailReason, job.ChannelOverride, job.TemplateOverride,
		job.ScheduledAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bulk job: %w", err)
	}
	return nil
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*model.BulkJob, error) {
	query := `SELECT ` + jobColumns + ` FROM bulk_jobs WHERE id = $1`

	var job model.BulkJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("job %s not found", id)
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// GetStatus reads the persisted status fresh; the dispatcher polls this at
// window boundaries to observe cooperative cancellation.
func (r *jobRepository) GetStatus(ctx context.Context, id uuid.UUID) (model.JobStatus, error) {
	var status model.JobStatus
	if err := r.db.GetContext(ctx, &status, `SELECT status FROM bulk_jobs WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("job %s not found", id)
		}
		return "", fmt.Errorf("failed to get job status: %w", err)
	}
	return status, nil
}

func (r *jobRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE bulk_jobs
		SET status = $1, started_at = $2, updated_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, model.JobStatusProcessing, time.Now(), id, model.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark job processing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// Finish is a no-op once the job is terminal; a cancel that raced the
// final dispatch window must not be overwritten by COMPLETED.
func (r *jobRepository) Finish(ctx context.Context, id uuid.UUID, status model.JobStatus, failReason string) error {
	query := `
		UPDATE bulk_jobs
		SET status = $1, fail_reason = $2, finished_at = $3, updated_at = $3
		WHERE id = $4 AND status IN ($5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, status, failReason, time.Now(), id,
		model.JobStatusPending, model.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

func (r *jobRepository) AddCounters(ctx context.Context, id uuid.UUID, processed, success, failed, skipped int) error {
	query := `
		UPDATE bulk_jobs
		SET processed = processed + $1,
		    success = success + $2,
		    failed = failed + $3,
		    skipped_limit = skipped_limit + $4,
		    updated_at = $5
		WHERE id = $6
	`
	if _, err := r.db.ExecContext(ctx, query, processed, success, failed, skipped, time.Now(), id); err != nil {
		return fmt.Errorf("failed to update job counters: %w", err)
	}
	return nil
}

func (r *jobRepository) ListDue(ctx context.Context, before time.Time, limit int) ([]*model.BulkJob, error) {
	query := `SELECT ` + jobColumns + `
		FROM bulk_jobs
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3`

	var jobs []*model.BulkJob
	err := r.db.SelectContext(ctx, &jobs, query, model.JobStatusPending, before, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	return jobs, nil
}
