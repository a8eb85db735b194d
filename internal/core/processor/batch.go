package processor

import (
	"context"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const (
	AllChildrenFailedMessage = "All child jobs failed"
	NoChildrenMessage        = "No child jobs found for batch import"
)

// BatchProcessor derives an aggregate job's state from its children.
// It serves BATCH_IMPORT jobs directly and any aggregate parent through Aggregate.
type BatchProcessor struct {
	Deps
}

func NewBatchProcessor(deps Deps) *BatchProcessor {
	return &BatchProcessor{Deps: deps}
}

func (p *BatchProcessor) Supports(jobType models.JobType) bool {
	return jobType == models.JobTypeBatchImport
}

func (p *BatchProcessor) Process(ctx context.Context, job *models.IngestionJob) error {
	lease := job.Lease()
	if lease == nil {
		return fmt.Errorf("batch job %s is not claimed", job.ID)
	}
	updated, err := p.aggregate(ctx, job.ID, lease)
	if err != nil {
		return err
	}
	*job = *updated
	return nil
}

// Aggregate recomputes the parent from its children and saves it. A parent
// with children still pending stays PROCESSING with its lease released.
// Parents in a terminal state, or still leased by a worker fanning out, are
// returned untouched.
func (p *BatchProcessor) Aggregate(ctx context.Context, parentID string) (*models.IngestionJob, error) {
	return p.aggregate(ctx, parentID, nil)
}

// aggregate settles parentID. With a lease the caller is the worker that
// claimed the parent, and the parent must still be held under it.
func (p *BatchProcessor) aggregate(ctx context.Context, parentID string, lease *models.Lease) (*models.IngestionJob, error) {
	var parent *models.IngestionJob
	err := p.withTx(ctx, func(ctx context.Context) error {
		var err error
		parent, err = p.Jobs.GetJob(ctx, parentID)
		if err != nil {
			return err
		}
		if !parent.JobType.Aggregate() {
			return fmt.Errorf("job %s is %s, not an aggregate", parent.ID, parent.JobType)
		}
		if lease != nil && (parent.Status != models.JobStatusProcessing || !parent.Holds(*lease)) {
			return fmt.Errorf("%w: %s held by %s", core.ErrLeaseLost, parent.ID, lease.WorkerID)
		}
		if parent.Status != models.JobStatusProcessing {
			return nil
		}
		if parent.LockedBy != nil && lease == nil {
			return nil
		}

		children, err := p.Jobs.ListChildren(ctx, parent.ID)
		if err != nil {
			return err
		}
		return p.apply(ctx, parent, children, lease)
	})
	if err != nil {
		return nil, err
	}
	return parent, nil
}

func (p *BatchProcessor) apply(ctx context.Context, parent *models.IngestionJob, children []models.IngestionJob, lease *models.Lease) error {
	total := len(children)
	if total == 0 {
		if err := parent.MarkFailed(NoChildrenMessage); err != nil {
			return err
		}
		return p.save(ctx, parent, lease)
	}

	var (
		completed, failed int
		chunks            int
		bytes             int64
	)
	for _, c := range children {
		switch c.Status {
		case models.JobStatusCompleted:
			completed++
			chunks += c.ChunksCreated
			bytes += c.BytesProcessed
		case models.JobStatusFailed, models.JobStatusCancelled:
			failed++
		}
	}

	if err := parent.UpdateProgress((completed + failed) * 100 / total); err != nil {
		return err
	}
	parent.ReleaseLease()

	switch {
	case completed+failed < total:
		return p.save(ctx, parent, lease)
	case failed == total:
		if err := parent.MarkFailed(AllChildrenFailedMessage); err != nil {
			return err
		}
	default:
		if err := parent.MarkCompleted(chunks, bytes); err != nil {
			return err
		}
		if failed > 0 {
			parent.SetError(fmt.Sprintf("%d of %d files failed to process", failed, total))
		}
	}

	if err := p.save(ctx, parent, lease); err != nil {
		return err
	}
	p.logger().Info("aggregate job finished",
		"job_id", parent.ID,
		"status", parent.Status,
		"completed", completed,
		"failed", failed,
	)
	return nil
}
