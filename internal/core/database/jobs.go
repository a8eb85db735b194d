package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const jobColumns = `
	id, organization_id, parent_job_id, job_type, source_type, source_reference,
	file_name, file_size, mime_type, metadata, status, priority, progress,
	retry_count, max_retries, error_message, chunks_created, bytes_processed,
	embeddings_created, knowledge_base_id, knowledge_source_id, locked_at,
	locked_by, visible_after, created_at, updated_at, started_at, completed_at,
	processing_duration_ms`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*models.IngestionJob, error) {
	var j models.IngestionJob
	err := s.Scan(
		&j.ID, &j.OrganizationID, &j.ParentJobID, &j.JobType, &j.SourceType, &j.SourceReference,
		&j.FileName, &j.FileSize, &j.MimeType, &j.Metadata, &j.Status, &j.Priority, &j.Progress,
		&j.RetryCount, &j.MaxRetries, &j.ErrorMessage, &j.ChunksCreated, &j.BytesProcessed,
		&j.EmbeddingsCreated, &j.KnowledgeBaseID, &j.KnowledgeSourceID, &j.LockedAt,
		&j.LockedBy, &j.VisibleAfter, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.CompletedAt,
		&j.ProcessingDurationMs,
	)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func scanJobs(rows *sql.Rows) ([]models.IngestionJob, error) {
	defer rows.Close()
	var out []models.IngestionJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) CreateJob(ctx context.Context, job *models.IngestionJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	const q = `
		INSERT INTO ingestion_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
		        $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29)
	`
	_, err := c.conn(ctx).ExecContext(ctx, q,
		job.ID, job.OrganizationID, job.ParentJobID, job.JobType, job.SourceType, job.SourceReference,
		job.FileName, job.FileSize, job.MimeType, job.Metadata, job.Status, job.Priority, job.Progress,
		job.RetryCount, job.MaxRetries, job.ErrorMessage, job.ChunksCreated, job.BytesProcessed,
		job.EmbeddingsCreated, job.KnowledgeBaseID, job.KnowledgeSourceID, job.LockedAt,
		job.LockedBy, job.VisibleAfter, job.CreatedAt, job.UpdatedAt, job.StartedAt, job.CompletedAt,
		job.ProcessingDurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	return nil
}

func (c *DatabaseClient) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE id = $1`
	j, err := scanJob(c.conn(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

// getJobForUpdate locks the row for the surrounding transaction.
func (c *DatabaseClient) getJobForUpdate(ctx context.Context, id string) (*models.IngestionJob, error) {
	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE id = $1 FOR UPDATE`
	j, err := scanJob(c.conn(ctx).QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("lock job %s: %w", id, err)
	}
	return j, nil
}

// UpdateJob writes every mutable column. Progress never moves backwards.
const updateJobQuery = `
	UPDATE ingestion_jobs SET
		source_type = $2, source_reference = $3, file_name = $4, file_size = $5,
		mime_type = $6, metadata = $7, status = $8, priority = $9,
		progress = GREATEST(progress, $10), retry_count = $11, max_retries = $12,
		error_message = $13, chunks_created = $14, bytes_processed = $15,
		embeddings_created = $16, knowledge_source_id = $17, locked_at = $18,
		locked_by = $19, visible_after = $20, updated_at = $21, started_at = $22,
		completed_at = $23, processing_duration_ms = $24
	WHERE id = $1`

func updateJobArgs(job *models.IngestionJob) []any {
	return []any{
		job.ID, job.SourceType, job.SourceReference, job.FileName, job.FileSize,
		job.MimeType, job.Metadata, job.Status, job.Priority,
		job.Progress, job.RetryCount, job.MaxRetries,
		job.ErrorMessage, job.ChunksCreated, job.BytesProcessed,
		job.EmbeddingsCreated, job.KnowledgeSourceID, job.LockedAt,
		job.LockedBy, job.VisibleAfter, job.UpdatedAt, job.StartedAt,
		job.CompletedAt, job.ProcessingDurationMs,
	}
}

func (c *DatabaseClient) UpdateJob(ctx context.Context, job *models.IngestionJob) error {
	res, err := c.conn(ctx).ExecContext(ctx, updateJobQuery, updateJobArgs(job)...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, job.ID)
	}
	return nil
}

// UpdateLeasedJob fences the write on the claim taken at dequeue time, so a
// worker whose lease was released by the sweeper cannot overwrite the row.
func (c *DatabaseClient) UpdateLeasedJob(ctx context.Context, job *models.IngestionJob, lease models.Lease) error {
	q := updateJobQuery + ` AND status = $25 AND locked_by = $26 AND locked_at = $27`
	args := append(updateJobArgs(job), models.JobStatusProcessing, lease.WorkerID, lease.LockedAt)
	res, err := c.conn(ctx).ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", job.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s held by %s", core.ErrLeaseLost, job.ID, lease.WorkerID)
	}
	return nil
}

func (c *DatabaseClient) UpdateProgress(ctx context.Context, id string, progress int) error {
	const q = `
		UPDATE ingestion_jobs
		SET progress = GREATEST(progress, $2), updated_at = now()
		WHERE id = $1
	`
	res, err := c.conn(ctx).ExecContext(ctx, q, id, models.ClampProgress(progress))
	if err != nil {
		return fmt.Errorf("update progress %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	return nil
}

func (c *DatabaseClient) ListJobs(ctx context.Context, organizationID string, filter models.JobFilter) ([]models.IngestionJob, int, error) {
	size := filter.Size
	if size <= 0 {
		size = 20
	}
	page := max(filter.Page, 0)

	var status, kb *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}
	kb = filter.KnowledgeBaseID

	const where = `
		WHERE organization_id = $1
		  AND ($2::text IS NULL OR status = $2)
		  AND ($3::uuid IS NULL OR knowledge_base_id = $3)`

	var total int
	if err := c.conn(ctx).QueryRowContext(ctx, `SELECT count(*) FROM ingestion_jobs`+where, organizationID, status, kb).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs` + where + `
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5`
	rows, err := c.conn(ctx).QueryContext(ctx, q, organizationID, status, kb, size, page*size)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("scan jobs: %w", err)
	}
	return jobs, total, nil
}

func (c *DatabaseClient) ListChildren(ctx context.Context, parentID string) ([]models.IngestionJob, error) {
	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs WHERE parent_job_id = $1 ORDER BY created_at ASC`
	rows, err := c.conn(ctx).QueryContext(ctx, q, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parentID, err)
	}
	return scanJobs(rows)
}

func (c *DatabaseClient) ListProcessingParents(ctx context.Context, limit int) ([]models.IngestionJob, error) {
	q := `SELECT ` + jobColumns + ` FROM ingestion_jobs
		WHERE status = $1 AND job_type IN ($2, $3)
		ORDER BY updated_at ASC
		LIMIT $4`
	rows, err := c.conn(ctx).QueryContext(ctx, q,
		models.JobStatusProcessing, models.JobTypeBatchImport, models.JobTypeFolderImport, limit)
	if err != nil {
		return nil, fmt.Errorf("list processing parents: %w", err)
	}
	return scanJobs(rows)
}

func (c *DatabaseClient) CountActiveJobs(ctx context.Context, organizationID string) (int, error) {
	const q = `
		SELECT count(*) FROM ingestion_jobs
		WHERE organization_id = $1
		  AND parent_job_id IS NULL
		  AND job_type <> $2
		  AND status IN ($3, $4, $5, $6)
	`
	var n int
	err := c.conn(ctx).QueryRowContext(ctx, q, organizationID, models.JobTypeEmbedding,
		models.JobStatusPending, models.JobStatusUploading, models.JobStatusQueued, models.JobStatusProcessing,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active jobs: %w", err)
	}
	return n, nil
}
