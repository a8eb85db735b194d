package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func (c *DatabaseClient) GetQuota(ctx context.Context, organizationID string) (*models.OrganizationQuota, error) {
	const q = `
		SELECT organization_id, tier, storage_used_bytes, storage_limit_bytes,
		       monthly_jobs_used, monthly_job_limit, max_concurrent_jobs,
		       period_reset_at, created_at, updated_at
		FROM organization_quotas
		WHERE organization_id = $1
	`
	var quota models.OrganizationQuota
	err := c.conn(ctx).QueryRowContext(ctx, q, organizationID).Scan(
		&quota.OrganizationID, &quota.Tier, &quota.StorageUsedBytes, &quota.StorageLimitBytes,
		&quota.MonthlyJobsUsed, &quota.MonthlyJobLimit, &quota.MaxConcurrentJobs,
		&quota.PeriodResetAt, &quota.CreatedAt, &quota.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrQuotaNotFound, organizationID)
	}
	if err != nil {
		return nil, fmt.Errorf("get quota %s: %w", organizationID, err)
	}
	return &quota, nil
}

func (c *DatabaseClient) SaveQuota(ctx context.Context, quota *models.OrganizationQuota) error {
	const q = `
		INSERT INTO organization_quotas (
			organization_id, tier, storage_used_bytes, storage_limit_bytes,
			monthly_jobs_used, monthly_job_limit, max_concurrent_jobs,
			period_reset_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (organization_id) DO UPDATE SET
			tier                = EXCLUDED.tier,
			storage_used_bytes  = EXCLUDED.storage_used_bytes,
			storage_limit_bytes = EXCLUDED.storage_limit_bytes,
			monthly_jobs_used   = EXCLUDED.monthly_jobs_used,
			monthly_job_limit   = EXCLUDED.monthly_job_limit,
			max_concurrent_jobs = EXCLUDED.max_concurrent_jobs,
			period_reset_at     = EXCLUDED.period_reset_at,
			updated_at          = EXCLUDED.updated_at
	`
	_, err := c.conn(ctx).ExecContext(ctx, q,
		quota.OrganizationID, quota.Tier, quota.StorageUsedBytes, quota.StorageLimitBytes,
		quota.MonthlyJobsUsed, quota.MonthlyJobLimit, quota.MaxConcurrentJobs,
		quota.PeriodResetAt, quota.CreatedAt, quota.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save quota %s: %w", quota.OrganizationID, err)
	}
	return nil
}
