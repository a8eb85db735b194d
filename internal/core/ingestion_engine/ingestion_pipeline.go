package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/audit"
	"github.com/markdave123-py/contexta-ingest/internal/core/processor"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// NewJobIngestor constructs the pool with a hand-off channel sized to the worker count.
func NewJobIngestor(
	jobs core.JobStore,
	queue core.JobQueue,
	proc processor.Processor,
	aggregator Aggregator,
	quota QuotaReleaser,
	pub core.AuditPublisher,
	cfg IngestConfig,
	logger *slog.Logger,
) *JobIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.normalized()
	return &JobIngestor{
		jobs:       jobs,
		queue:      queue,
		processor:  proc,
		aggregator: aggregator,
		quota:      quota,
		audit:      pub,
		cfg:        cfg,
		workerID:   WorkerID(),
		logger:     logger,
		work:       make(chan *models.IngestionJob, cfg.Workers),
	}
}

// WorkerID names this process in job leases, e.g. "ingest-7-3f2a9c1b".
func WorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// Run polls the queue, feeds the workers and sweeps until ctx is cancelled.
// Jobs already claimed are finished before Run returns.
func (i *JobIngestor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(i.work)
		return i.poll(gctx)
	})

	for w := 1; w <= i.cfg.Workers; w++ {
		g.Go(func() error {
			for job := range i.work {
				// Claimed jobs run to completion even during shutdown.
				if err := i.ProcessOne(context.WithoutCancel(gctx), job); err != nil {
					i.logger.Error("job processing failed", "worker", w, "job_id", job.ID, "error", err)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		return i.sweep(gctx)
	})

	i.logger.Info("ingestion workers started", "worker_id", i.workerID, "workers", i.cfg.Workers)
	err := g.Wait()
	i.logger.Info("ingestion workers stopped", "worker_id", i.workerID)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func (i *JobIngestor) poll(ctx context.Context) error {
	for {
		n, err := i.pollOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.logger.Error("dequeue failed", "worker_id", i.workerID, "error", err)
		}
		if n > 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(i.cfg.PollInterval):
		}
	}
}

// pollOnce claims no more jobs than there are free worker slots.
func (i *JobIngestor) pollOnce(ctx context.Context) (int, error) {
	free := min(cap(i.work)-len(i.work), i.cfg.BatchSize)
	if free <= 0 {
		return 0, nil
	}
	claimed, err := i.queue.Dequeue(ctx, i.workerID, free)
	if err != nil {
		return 0, err
	}
	for _, job := range claimed {
		i.work <- job
	}
	return len(claimed), nil
}

// ProcessOne runs a claimed job through its processor, records a failure on
// the job row and settles the job's parent.
func (i *JobIngestor) ProcessOne(ctx context.Context, job *models.IngestionJob) error {
	jctx, cancel := context.WithTimeout(ctx, i.cfg.JobTimeout)
	defer cancel()

	i.logger.Info("processing job",
		"job_id", job.ID,
		"job_type", job.JobType,
		"tenant_id", job.OrganizationID,
		"retry", job.RetryCount,
	)

	// Processors release or rewrite the claim on job as they go.
	lease := job.Lease()
	procErr := i.processor.Process(jctx, job)
	if procErr != nil && !errors.Is(procErr, core.ErrLeaseLost) {
		if err := i.fail(ctx, job.ID, lease, procErr); err != nil {
			if !errors.Is(err, core.ErrLeaseLost) {
				return errors.Join(procErr, err)
			}
			procErr = err
		}
	}
	if errors.Is(procErr, core.ErrLeaseLost) {
		// The sweeper or another worker owns the outcome now.
		i.logger.Warn("job lease lost", "job_id", job.ID, "worker_id", i.workerID, "error", procErr)
		return nil
	}

	current, err := i.jobs.GetJob(ctx, job.ID)
	if err != nil {
		return err
	}
	i.settled(ctx, current)
	return procErr
}

// fail records cause on the stored job unless the processor already finished
// it. A job claimed under lease is only failed while that lease still holds.
func (i *JobIngestor) fail(ctx context.Context, jobID string, lease *models.Lease, cause error) error {
	current, err := i.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if lease != nil && !current.Holds(*lease) {
		return fmt.Errorf("%w: %s claimed by %s", core.ErrLeaseLost, jobID, lease.WorkerID)
	}
	if current.Status.Terminal() {
		return nil
	}
	if err := current.MarkFailed(cause.Error()); err != nil {
		return err
	}
	if lease == nil {
		err = i.jobs.UpdateJob(ctx, current)
	} else {
		err = i.jobs.UpdateLeasedJob(ctx, current, *lease)
	}
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}

	if !current.CanRetry() && current.ParentJobID == nil && current.FileSize > 0 && i.quota != nil {
		if err := i.quota.Release(ctx, current.OrganizationID, current.FileSize, 0); err != nil {
			i.logger.Warn("quota release failed", "job_id", current.ID, "error", err)
		}
	}
	return nil
}

// settled publishes the outcome of a finished job and re-aggregates its parent.
func (i *JobIngestor) settled(ctx context.Context, job *models.IngestionJob) {
	switch job.Status {
	case models.JobStatusCompleted:
		audit.Record(ctx, i.audit, i.logger, models.AuditJobCompleted, job, map[string]any{
			"chunksCreated":     job.ChunksCreated,
			"bytesProcessed":    job.BytesProcessed,
			"embeddingsCreated": job.EmbeddingsCreated,
			"warning":           job.ErrorText(),
		})
	case models.JobStatusFailed:
		audit.Record(ctx, i.audit, i.logger, models.AuditJobFailed, job, map[string]any{
			"error":      job.ErrorText(),
			"retryCount": job.RetryCount,
			"canRetry":   job.CanRetry(),
		})
	default:
		return
	}

	if job.ParentJobID == nil || i.aggregator == nil {
		return
	}
	parent, err := i.jobs.GetJob(ctx, *job.ParentJobID)
	if err != nil {
		i.logger.Warn("parent lookup failed", "job_id", job.ID, "parent_id", *job.ParentJobID, "error", err)
		return
	}
	if !parent.JobType.Aggregate() || parent.Status != models.JobStatusProcessing {
		return
	}
	updated, err := i.aggregator.Aggregate(ctx, parent.ID)
	if err != nil {
		i.logger.Warn("aggregation failed", "parent_id", parent.ID, "error", err)
		return
	}
	if updated.Status.Terminal() {
		i.settled(ctx, updated)
	}
}
