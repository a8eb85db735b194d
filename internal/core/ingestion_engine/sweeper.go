package ingestion_engine

import (
	"context"
	"time"
)

// sweepLimit bounds the aggregate parents revisited per sweep.
const sweepLimit = 200

// SweepResult reports what one sweep changed.
type SweepResult struct {
	Released int
	Settled  int
}

func (i *JobIngestor) sweep(ctx context.Context) error {
	ticker := time.NewTicker(i.cfg.SweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		res, err := i.SweepOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			i.logger.Error("sweep failed", "error", err)
			continue
		}
		if res.Released > 0 || res.Settled > 0 {
			i.logger.Info("sweep finished", "released", res.Released, "settled", res.Settled)
		}
	}
}

// SweepOnce fails jobs whose worker lease expired and settles aggregate
// parents whose children all finished. Parents are revisited here because a
// child can finish in another process, or fail through a lease expiry.
func (i *JobIngestor) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	released, err := i.queue.ReleaseStale(ctx, i.cfg.LockTimeout)
	if err != nil {
		return res, err
	}
	res.Released = released

	if i.aggregator == nil {
		return res, nil
	}
	parents, err := i.jobs.ListProcessingParents(ctx, sweepLimit)
	if err != nil {
		return res, err
	}
	for _, p := range parents {
		if p.LockedBy != nil {
			continue
		}
		updated, err := i.aggregator.Aggregate(ctx, p.ID)
		if err != nil {
			i.logger.Warn("aggregation failed", "parent_id", p.ID, "error", err)
			continue
		}
		if updated.Status.Terminal() {
			res.Settled++
			i.settled(ctx, updated)
		}
	}
	return res, nil
}
