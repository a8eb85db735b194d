package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func (s *Store) CreateJob(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	s.next++
	s.seq[job.ID] = s.next
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	return copyJob(j), nil
}

func (s *Store) UpdateJob(_ context.Context, job *models.IngestionJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *Store) UpdateLeasedJob(_ context.Context, job *models.IngestionJob, lease models.Lease) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, job.ID)
	}
	if stored.Status != models.JobStatusProcessing || !stored.Holds(lease) {
		return fmt.Errorf("%w: %s held by %s", core.ErrLeaseLost, job.ID, lease.WorkerID)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

func (s *Store) UpdateProgress(_ context.Context, id string, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	j.Progress = max(j.Progress, models.ClampProgress(progress))
	return nil
}

func (s *Store) ListJobs(_ context.Context, organizationID string, filter models.JobFilter) ([]models.IngestionJob, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []*models.IngestionJob
	for _, j := range s.jobs {
		if j.OrganizationID != organizationID {
			continue
		}
		if filter.Status != nil && j.Status != *filter.Status {
			continue
		}
		if filter.KnowledgeBaseID != nil && models.Deref(j.KnowledgeBaseID) != *filter.KnowledgeBaseID {
			continue
		}
		matched = append(matched, j)
	}
	sort.Slice(matched, func(a, b int) bool { return s.seq[matched[a].ID] > s.seq[matched[b].ID] })

	total := len(matched)
	size := filter.Size
	if size <= 0 {
		size = 20
	}
	from := min(max(filter.Page, 0)*size, total)
	to := min(from+size, total)

	out := make([]models.IngestionJob, 0, to-from)
	for _, j := range matched[from:to] {
		out = append(out, *j)
	}
	return out, total, nil
}

func (s *Store) ListChildren(_ context.Context, parentID string) ([]models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IngestionJob
	for _, j := range s.jobs {
		if models.Deref(j.ParentJobID) == parentID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return s.seq[out[a].ID] < s.seq[out[b].ID] })
	return out, nil
}

func (s *Store) ListProcessingParents(_ context.Context, limit int) ([]models.IngestionJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.IngestionJob
	for _, j := range s.jobs {
		if j.Status == models.JobStatusProcessing && j.JobType.Aggregate() {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(a, b int) bool { return s.seq[out[a].ID] < s.seq[out[b].ID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountActiveJobs(_ context.Context, organizationID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.OrganizationID == organizationID && j.ParentJobID == nil &&
			j.JobType != models.JobTypeEmbedding && j.Status.Active() {
			n++
		}
	}
	return n, nil
}
