package db

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Queue is the job queue over the ingestion_jobs table. Claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never share a job.
type Queue struct {
	c *DatabaseClient
}

func NewQueue(c *DatabaseClient) *Queue {
	return &Queue{c: c}
}

// Enqueue marks the job QUEUED and persists it, inserting it when it is new.
func (q *Queue) Enqueue(ctx context.Context, job *models.IngestionJob) error {
	if err := job.MarkQueued(); err != nil {
		return err
	}
	return q.c.WithTx(ctx, func(ctx context.Context) error {
		err := q.c.UpdateJob(ctx, job)
		if errors.Is(err, core.ErrJobNotFound) {
			return q.c.CreateJob(ctx, job)
		}
		return err
	})
}

func (q *Queue) Dequeue(ctx context.Context, workerID string, limit int) ([]*models.IngestionJob, error) {
	if limit <= 0 {
		limit = 1
	}
	query := `
		UPDATE ingestion_jobs SET
			status = $1, locked_at = now(), locked_by = $2,
			started_at = now(), updated_at = now()
		WHERE id IN (
			SELECT id FROM ingestion_jobs
			WHERE status = $3 AND (visible_after IS NULL OR visible_after <= now())
			ORDER BY priority DESC, created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns

	rows, err := q.c.conn(ctx).QueryContext(ctx, query,
		models.JobStatusProcessing, workerID, models.JobStatusQueued, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	claimed, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("scan claimed jobs: %w", err)
	}

	// RETURNING does not preserve the subquery order.
	sort.SliceStable(claimed, func(a, b int) bool {
		if claimed[a].Priority != claimed[b].Priority {
			return claimed[a].Priority > claimed[b].Priority
		}
		return claimed[a].CreatedAt.Before(claimed[b].CreatedAt)
	})

	out := make([]*models.IngestionJob, len(claimed))
	for i := range claimed {
		out[i] = &claimed[i]
	}
	return out, nil
}

func (q *Queue) Retry(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	return q.mutate(ctx, jobID, (*models.IngestionJob).Retry)
}

func (q *Queue) Cancel(ctx context.Context, jobID string) (*models.IngestionJob, error) {
	return q.mutate(ctx, jobID, (*models.IngestionJob).MarkCancelled)
}

func (q *Queue) mutate(ctx context.Context, jobID string, fn func(*models.IngestionJob) error) (*models.IngestionJob, error) {
	var job *models.IngestionJob
	err := q.c.WithTx(ctx, func(ctx context.Context) error {
		j, err := q.c.getJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		if err := fn(j); err != nil {
			return err
		}
		job = j
		return q.c.UpdateJob(ctx, j)
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ReleaseStale fails jobs whose worker has held them longer than lockTimeout.
func (q *Queue) ReleaseStale(ctx context.Context, lockTimeout time.Duration) (int, error) {
	const query = `
		UPDATE ingestion_jobs SET
			status = $1, error_message = $2,
			completed_at = now(), updated_at = now(),
			locked_at = NULL, locked_by = NULL,
			processing_duration_ms = CASE
				WHEN started_at IS NULL THEN NULL
				ELSE (EXTRACT(EPOCH FROM now() - started_at) * 1000)::bigint
			END
		WHERE status = $3
		  AND locked_at IS NOT NULL
		  AND locked_at < now() - make_interval(secs => $4)
	`
	res, err := q.c.conn(ctx).ExecContext(ctx, query,
		models.JobStatusFailed, models.LeaseExpiredMessage, models.JobStatusProcessing, lockTimeout.Seconds())
	if err != nil {
		return 0, fmt.Errorf("release stale jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (q *Queue) Depth(ctx context.Context) (models.QueueDepth, error) {
	const query = `
		SELECT priority, count(*) FROM ingestion_jobs
		WHERE status = $1
		GROUP BY priority
	`
	d := models.QueueDepth{ByPriority: make(map[int]int)}
	rows, err := q.c.conn(ctx).QueryContext(ctx, query, models.JobStatusQueued)
	if err != nil {
		return d, fmt.Errorf("queue depth: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var priority, n int
		if err := rows.Scan(&priority, &n); err != nil {
			return d, err
		}
		d.ByPriority[priority] = n
		d.Total += n
	}
	return d, rows.Err()
}
