package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/audit"
	"github.com/markdave123-py/contexta-ingest/internal/core/messages"
	"github.com/markdave123-py/contexta-ingest/internal/core/quota"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// JobService answers job queries and applies retry and cancel commands.
type JobService struct {
	jobs   core.JobStore
	queue  core.JobQueue
	tx     core.TxRunner
	quota  *quota.Service
	audit  core.AuditPublisher
	logger *slog.Logger
}

func NewJobService(jobs core.JobStore, queue core.JobQueue, tx core.TxRunner, quotas *quota.Service, pub core.AuditPublisher, logger *slog.Logger) *JobService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobService{
		jobs:   jobs,
		queue:  queue,
		tx:     tx,
		quota:  quotas,
		audit:  pub,
		logger: logger.With("component", "job_service"),
	}
}

func (s *JobService) GetJob(ctx context.Context, organizationID, jobID string) (*models.IngestionJobResponse, error) {
	job, err := ownedJob(ctx, s.jobs, organizationID, jobID)
	if err != nil {
		return nil, err
	}
	resp := job.ToResponse()
	return &resp, nil
}

// ListJobs pages through a tenant's jobs, newest first.
func (s *JobService) ListJobs(ctx context.Context, organizationID string, filter models.JobFilter) (*models.JobPage, error) {
	if filter.Page < 0 {
		filter.Page = 0
	}
	if filter.Size <= 0 {
		filter.Size = defaultPageSize
	}
	filter.Size = min(filter.Size, maxPageSize)

	jobs, total, err := s.jobs.ListJobs(ctx, organizationID, filter)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %s: %w", organizationID, err)
	}
	page := &models.JobPage{
		Jobs:  make([]models.IngestionJobResponse, 0, len(jobs)),
		Page:  filter.Page,
		Size:  filter.Size,
		Total: total,
	}
	for i := range jobs {
		page.Jobs = append(page.Jobs, jobs[i].ToResponse())
	}
	return page, nil
}

// RetryJob puts a failed job with retry budget left back on the queue.
// The original charge still stands, so nothing is charged again.
func (s *JobService) RetryJob(ctx context.Context, organizationID, jobID string) (*models.IngestionJobResponse, error) {
	job, err := ownedJob(ctx, s.jobs, organizationID, jobID)
	if err != nil {
		return nil, err
	}
	if !job.CanRetry() {
		return nil, conflict(messages.CannotRetry, jobID)
	}

	retried, err := s.queue.Retry(ctx, jobID)
	if errors.Is(err, models.ErrNotRetryable) {
		return nil, conflict(messages.CannotRetry, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("retry %s: %w", jobID, err)
	}

	s.logger.Info("job retried", "tenant_id", organizationID, "job_id", jobID, "retry_count", retried.RetryCount, "max_retries", retried.MaxRetries)
	audit.Record(ctx, s.audit, s.logger, models.AuditJobRetried, retried, map[string]any{"retryCount": retried.RetryCount})

	resp := retried.ToResponse()
	return &resp, nil
}

func cancellable(status models.JobStatus) bool {
	return status == models.JobStatusPending || status == models.JobStatusUploading || status == models.JobStatusQueued
}

// CancelJob cancels a job that has not started processing and returns its
// charge to the tenant. Cancelling a batch also cancels its waiting files.
func (s *JobService) CancelJob(ctx context.Context, organizationID, jobID string) (*models.IngestionJobResponse, error) {
	job, err := ownedJob(ctx, s.jobs, organizationID, jobID)
	if err != nil {
		return nil, err
	}
	if !cancellable(job.Status) {
		return nil, conflict(messages.CannotCancel, jobID, job.Status)
	}

	var (
		cancelled *models.IngestionJob
		bytes     int64
		jobs      int64
	)
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if cancelled, err = s.queue.Cancel(ctx, jobID); err != nil {
			return err
		}
		if cancelled.JobType != models.JobTypeBatchImport {
			bytes, jobs, err = s.charged(ctx, cancelled)
			return err
		}

		children, err := s.jobs.ListChildren(ctx, cancelled.ID)
		if err != nil {
			return err
		}
		for _, child := range children {
			if !cancellable(child.Status) {
				continue
			}
			if _, err := s.queue.Cancel(ctx, child.ID); err != nil {
				return fmt.Errorf("cancel %s: %w", child.ID, err)
			}
			bytes += child.FileSize
			jobs++
		}
		return nil
	})
	if errors.Is(err, models.ErrInvalidTransition) {
		return nil, conflict(messages.CannotCancel, jobID, job.Status)
	}
	if err != nil {
		return nil, fmt.Errorf("cancel %s: %w", jobID, err)
	}

	if err := s.quota.Release(ctx, organizationID, bytes, jobs); err != nil {
		s.logger.Warn("quota release failed", "tenant_id", organizationID, "job_id", jobID, "error", err)
	}

	s.logger.Info("job cancelled", "tenant_id", organizationID, "job_id", jobID, "released_bytes", bytes, "released_jobs", jobs)
	audit.Record(ctx, s.audit, s.logger, models.AuditJobCancelled, cancelled, nil)

	resp := cancelled.ToResponse()
	return &resp, nil
}

// charged returns what the submission of job charged against the quota.
// Files of a batch were charged one by one; folder entries and embedding
// jobs were never charged.
func (s *JobService) charged(ctx context.Context, job *models.IngestionJob) (int64, int64, error) {
	if job.JobType == models.JobTypeEmbedding {
		return 0, 0, nil
	}
	if job.ParentJobID == nil {
		return job.FileSize, 1, nil
	}
	parent, err := s.jobs.GetJob(ctx, *job.ParentJobID)
	if err != nil {
		return 0, 0, fmt.Errorf("load parent of %s: %w", job.ID, err)
	}
	if parent.JobType != models.JobTypeBatchImport {
		return 0, 0, nil
	}
	return job.FileSize, 1, nil
}

// GetQuota reports a tenant's usage against its tier.
func (s *JobService) GetQuota(ctx context.Context, organizationID string) (*models.QuotaResponse, error) {
	q, err := s.quota.GetOrCreate(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	active, err := s.jobs.CountActiveJobs(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("count active jobs for %s: %w", organizationID, err)
	}
	limits := s.quota.Limits(q.Tier)
	return &models.QuotaResponse{
		OrganizationID:    q.OrganizationID,
		Tier:              q.Tier,
		StorageUsedBytes:  q.StorageUsedBytes,
		StorageLimitBytes: q.StorageLimitBytes,
		MonthlyJobsUsed:   q.MonthlyJobsUsed,
		MonthlyJobLimit:   q.MonthlyJobLimit,
		MaxConcurrentJobs: q.MaxConcurrentJobs,
		MaxFileSizeBytes:  limits.MaxFileSizeBytes,
		ActiveJobs:        active,
		PeriodResetAt:     q.PeriodResetAt,
	}, nil
}

func (s *JobService) QueueDepth(ctx context.Context) (models.QueueDepth, error) {
	return s.queue.Depth(ctx)
}
