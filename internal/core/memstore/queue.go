package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Enqueue persists the job as QUEUED, inserting it when it is new.
func (s *Store) Enqueue(_ context.Context, job *models.IngestionJob) error {
	if err := job.MarkQueued(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		s.next++
		s.seq[job.ID] = s.next
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *Store) Dequeue(_ context.Context, workerID string, limit int) ([]*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var ready []*models.IngestionJob
	for _, j := range s.jobs {
		if j.Status != models.JobStatusQueued {
			continue
		}
		if j.VisibleAfter != nil && j.VisibleAfter.After(now) {
			continue
		}
		ready = append(ready, j)
	}
	sort.Slice(ready, func(a, b int) bool {
		if ready[a].Priority != ready[b].Priority {
			return ready[a].Priority > ready[b].Priority
		}
		return s.seq[ready[a].ID] < s.seq[ready[b].ID]
	})
	if limit > 0 && len(ready) > limit {
		ready = ready[:limit]
	}

	out := make([]*models.IngestionJob, 0, len(ready))
	for _, j := range ready {
		if err := j.MarkProcessing(); err != nil {
			return out, err
		}
		worker := workerID
		locked := now
		j.LockedBy = &worker
		j.LockedAt = &locked
		out = append(out, copyJob(j))
	}
	return out, nil
}

func (s *Store) Retry(_ context.Context, jobID string) (*models.IngestionJob, error) {
	return s.mutate(jobID, (*models.IngestionJob).Retry)
}

func (s *Store) Cancel(_ context.Context, jobID string) (*models.IngestionJob, error) {
	return s.mutate(jobID, (*models.IngestionJob).MarkCancelled)
}

func (s *Store) mutate(jobID string, fn func(*models.IngestionJob) error) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, jobID)
	}
	c := copyJob(j)
	if err := fn(c); err != nil {
		return nil, err
	}
	s.jobs[jobID] = c
	return copyJob(c), nil
}

func (s *Store) ReleaseStale(_ context.Context, lockTimeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().UTC().Add(-lockTimeout)
	n := 0
	for _, j := range s.jobs {
		if j.Status != models.JobStatusProcessing {
			continue
		}
		if j.LockedAt == nil || j.LockedAt.After(cutoff) {
			continue
		}
		if err := j.MarkFailed(models.LeaseExpiredMessage); err == nil {
			n++
		}
	}
	return n, nil
}

func (s *Store) Depth(_ context.Context) (models.QueueDepth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := models.QueueDepth{ByPriority: make(map[int]int)}
	for _, j := range s.jobs {
		if j.Status == models.JobStatusQueued {
			d.Total++
			d.ByPriority[j.Priority]++
		}
	}
	return d, nil
}
