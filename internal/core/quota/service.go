// Package quota enforces per-tenant storage, monthly job and concurrency
// limits on every submission.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/lock"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Request describes what a submission will consume.
type Request struct {
	// Bytes is charged against storage.
	Bytes int64
	// LargestFile is checked against the tier's per-file ceiling.
	LargestFile int64
	// Jobs is charged against the monthly job counter.
	Jobs int64
}

// CommitFunc creates the submission's job rows. It runs inside the
// reservation's transaction and lock.
type CommitFunc func(ctx context.Context, res Result) error

type Service struct {
	store  core.QuotaStore
	tx     core.TxRunner
	locker lock.Locker
	tiers  map[models.QuotaTier]models.TierLimits
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store core.QuotaStore, tx core.TxRunner, locker lock.Locker, tiers map[models.QuotaTier]models.TierLimits, logger *slog.Logger) *Service {
	if tiers == nil {
		tiers = models.DefaultTierLimits()
	}
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		tx:     tx,
		locker: locker,
		tiers:  tiers,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Limits returns the limits of tier, or TRIAL limits for an unknown tier.
func (s *Service) Limits(tier models.QuotaTier) models.TierLimits {
	if l, ok := s.tiers[tier]; ok {
		return l
	}
	return s.tiers[models.TierTrial]
}

// MaxFileSize is the largest single file the tenant's tier accepts.
func (s *Service) MaxFileSize(ctx context.Context, organizationID string) (int64, error) {
	q, err := s.GetOrCreate(ctx, organizationID)
	if err != nil {
		return 0, err
	}
	return s.Limits(q.Tier).MaxFileSizeBytes, nil
}

// GetOrCreate loads the tenant's quota, creating a TRIAL row on first use and
// rolling the monthly period over when it is due.
func (s *Service) GetOrCreate(ctx context.Context, organizationID string) (*models.OrganizationQuota, error) {
	q, err := s.store.GetQuota(ctx, organizationID)
	if errors.Is(err, core.ErrQuotaNotFound) {
		q = models.NewQuota(organizationID, models.TierTrial, s.Limits(models.TierTrial), s.now())
		if err := s.store.SaveQuota(ctx, q); err != nil {
			return nil, fmt.Errorf("create quota for %s: %w", organizationID, err)
		}
		s.logger.Info("quota created", "tenant_id", organizationID, "tier", q.Tier)
		return q, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load quota for %s: %w", organizationID, err)
	}

	if q.ResetIfDue(s.now()) {
		if err := s.store.SaveQuota(ctx, q); err != nil {
			return nil, fmt.Errorf("reset quota for %s: %w", organizationID, err)
		}
		s.logger.Info("monthly quota reset", "tenant_id", organizationID, "next_reset", q.PeriodResetAt)
	}
	return q, nil
}

// ValidateUploadRequest checks a single-file submission without charging.
func (s *Service) ValidateUploadRequest(ctx context.Context, organizationID string, sizeBytes int64) (Result, error) {
	q, err := s.GetOrCreate(ctx, organizationID)
	if err != nil {
		return Result{}, err
	}
	return s.check(ctx, q, Request{Bytes: sizeBytes, LargestFile: sizeBytes, Jobs: 1})
}

// check applies the limits in order: file size, storage, monthly jobs,
// concurrency. The first failure wins.
func (s *Service) check(ctx context.Context, q *models.OrganizationQuota, req Request) (Result, error) {
	limits := s.Limits(q.Tier)

	if req.LargestFile > limits.MaxFileSizeBytes {
		return Result{Outcome: OutcomeFileSizeExceeded, MaxSize: limits.MaxFileSizeBytes, Requested: req.LargestFile}, nil
	}
	if !q.HasStorageCapacity(req.Bytes) {
		return Result{Outcome: OutcomeStorageQuotaExceeded, Used: q.StorageUsedBytes, Limit: q.StorageLimitBytes, Requested: req.Bytes}, nil
	}
	if !q.HasJobCapacity(req.Jobs) {
		return Result{Outcome: OutcomeMonthlyLimitExceeded, Used: q.MonthlyJobsUsed, Limit: q.MonthlyJobLimit}, nil
	}

	active, err := s.store.CountActiveJobs(ctx, q.OrganizationID)
	if err != nil {
		return Result{}, fmt.Errorf("count active jobs for %s: %w", q.OrganizationID, err)
	}
	if active >= limits.MaxConcurrentJobs {
		return Result{Outcome: OutcomeConcurrentJobsExceeded, Used: int64(active), Limit: int64(limits.MaxConcurrentJobs)}, nil
	}

	return Result{Outcome: OutcomeValid, Priority: limits.Priority, Tier: q.Tier}, nil
}

// Reserve validates req, runs commit and charges the quota as one unit under
// the tenant's lock. A rejected request returns its *Error and commit is not
// called; a failing commit leaves no charge behind.
func (s *Service) Reserve(ctx context.Context, organizationID string, req Request, commit CommitFunc) (Result, error) {
	unlock, err := s.locker.Lock(ctx, "quota:"+organizationID)
	if err != nil {
		return Result{}, fmt.Errorf("lock quota for %s: %w", organizationID, err)
	}
	defer unlock()

	var res Result
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := s.GetOrCreate(ctx, organizationID)
		if err != nil {
			return err
		}
		res, err = s.check(ctx, q, req)
		if err != nil {
			return err
		}
		if !res.Valid() {
			return res.Err()
		}
		if err := commit(ctx, res); err != nil {
			return err
		}
		if err := q.Charge(req.Bytes, req.Jobs); err != nil {
			return err
		}
		q.UpdatedAt = s.now()
		return s.store.SaveQuota(ctx, q)
	})
	if err != nil {
		var qe *Error
		if errors.As(err, &qe) {
			s.logger.Info("submission rejected by quota", "tenant_id", organizationID, "outcome", qe.Outcome)
		}
		return res, err
	}

	s.logger.Debug("quota charged", "tenant_id", organizationID, "bytes", req.Bytes, "jobs", req.Jobs)
	return res, nil
}

// Release undoes a charge, e.g. when a job is cancelled or fails for good.
func (s *Service) Release(ctx context.Context, organizationID string, bytes, jobs int64) error {
	if bytes <= 0 && jobs <= 0 {
		return nil
	}
	return s.update(ctx, organizationID, func(q *models.OrganizationQuota) {
		q.Release(bytes, jobs)
	})
}

// UpdateTier moves a tenant to tier and applies its limits. Usage is kept.
func (s *Service) UpdateTier(ctx context.Context, organizationID string, tier models.QuotaTier) (*models.OrganizationQuota, error) {
	if _, ok := s.tiers[tier]; !ok {
		return nil, fmt.Errorf("unknown tier %q", tier)
	}
	var out *models.OrganizationQuota
	err := s.update(ctx, organizationID, func(q *models.OrganizationQuota) {
		q.ApplyTier(tier, s.Limits(tier))
		out = q
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("quota tier updated", "tenant_id", organizationID, "tier", tier)
	return out, nil
}

func (s *Service) update(ctx context.Context, organizationID string, fn func(q *models.OrganizationQuota)) error {
	unlock, err := s.locker.Lock(ctx, "quota:"+organizationID)
	if err != nil {
		return fmt.Errorf("lock quota for %s: %w", organizationID, err)
	}
	defer unlock()

	return s.tx.WithTx(ctx, func(ctx context.Context) error {
		q, err := s.GetOrCreate(ctx, organizationID)
		if err != nil {
			return err
		}
		fn(q)
		q.UpdatedAt = s.now()
		return s.store.SaveQuota(ctx, q)
	})
}
