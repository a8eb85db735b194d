package models

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// QuotaTier is a tenant's subscription plan.
type QuotaTier string

const (
	TierTrial        QuotaTier = "TRIAL"
	TierStarter      QuotaTier = "STARTER"
	TierProfessional QuotaTier = "PROFESSIONAL"
	TierEnterprise   QuotaTier = "ENTERPRISE"
)

// Unlimited marks a limit that is never reached.
const Unlimited = math.MaxInt64

// TierLimits are the resource ceilings and queue priority of a tier.
type TierLimits struct {
	StorageLimitBytes int64 `yaml:"storage_limit_bytes" json:"storageLimitBytes"`
	MaxConcurrentJobs int   `yaml:"max_concurrent_jobs" json:"maxConcurrentJobs"`
	MaxFileSizeBytes  int64 `yaml:"max_file_size_bytes" json:"maxFileSizeBytes"`
	Priority          int   `yaml:"priority" json:"priority"`
	MonthlyJobLimit   int64 `yaml:"monthly_job_limit" json:"monthlyJobLimit"`
}

// OrganizationQuota is one tenant's accounting row.
type OrganizationQuota struct {
	OrganizationID    string    `db:"organization_id" json:"organizationId"`
	Tier              QuotaTier `db:"tier" json:"tier"`
	StorageUsedBytes  int64     `db:"storage_used_bytes" json:"storageUsedBytes"`
	StorageLimitBytes int64     `db:"storage_limit_bytes" json:"storageLimitBytes"`
	MonthlyJobsUsed   int64     `db:"monthly_jobs_used" json:"monthlyJobsUsed"`
	MonthlyJobLimit   int64     `db:"monthly_job_limit" json:"monthlyJobLimit"`
	MaxConcurrentJobs int       `db:"max_concurrent_jobs" json:"maxConcurrentJobs"`
	PeriodResetAt     time.Time `db:"period_reset_at" json:"periodResetAt"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time `db:"updated_at" json:"updatedAt"`
}

// NewQuota creates a quota row for tier starting a fresh monthly period at now.
func NewQuota(organizationID string, tier QuotaTier, limits TierLimits, now time.Time) *OrganizationQuota {
	return &OrganizationQuota{
		OrganizationID:    organizationID,
		Tier:              tier,
		StorageLimitBytes: limits.StorageLimitBytes,
		MonthlyJobLimit:   limits.MonthlyJobLimit,
		MaxConcurrentJobs: limits.MaxConcurrentJobs,
		PeriodResetAt:     NextPeriodStart(now),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// HasStorageCapacity reports whether size more bytes fit under the limit.
func (q *OrganizationQuota) HasStorageCapacity(size int64) bool {
	if q.StorageLimitBytes == Unlimited {
		return true
	}
	return q.StorageUsedBytes+size <= q.StorageLimitBytes
}

// HasJobCapacity reports whether n more jobs fit in the current month.
func (q *OrganizationQuota) HasJobCapacity(n int64) bool {
	if q.MonthlyJobLimit == Unlimited {
		return true
	}
	return q.MonthlyJobsUsed+n <= q.MonthlyJobLimit
}

// ResetIfDue zeroes the monthly counter once the period has rolled over.
func (q *OrganizationQuota) ResetIfDue(now time.Time) bool {
	if now.Before(q.PeriodResetAt) {
		return false
	}
	q.MonthlyJobsUsed = 0
	q.PeriodResetAt = NextPeriodStart(now)
	q.UpdatedAt = now
	return true
}

// ApplyTier replaces the tier and its limits; usage is kept.
func (q *OrganizationQuota) ApplyTier(tier QuotaTier, limits TierLimits) {
	q.Tier = tier
	q.StorageLimitBytes = limits.StorageLimitBytes
	q.MonthlyJobLimit = limits.MonthlyJobLimit
	q.MaxConcurrentJobs = limits.MaxConcurrentJobs
}

// ErrNegativeCharge is returned when a charge would lower usage.
var ErrNegativeCharge = errors.New("quota charge must not be negative")

// Charge records size bytes and jobs against the quota.
func (q *OrganizationQuota) Charge(size, jobs int64) error {
	if size < 0 || jobs < 0 {
		return fmt.Errorf("%w: %d bytes, %d jobs", ErrNegativeCharge, size, jobs)
	}
	q.StorageUsedBytes += size
	q.MonthlyJobsUsed += jobs
	return nil
}

// Release undoes a charge, never going below zero.
func (q *OrganizationQuota) Release(size, jobs int64) {
	q.StorageUsedBytes = max(0, q.StorageUsedBytes-size)
	q.MonthlyJobsUsed = max(0, q.MonthlyJobsUsed-jobs)
}

// NextPeriodStart is the first instant of the month after t, in UTC.
func NextPeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

const (
	mb = int64(1024 * 1024)
	gb = 1024 * mb
)

// DefaultTierLimits is the built-in tier table; deployments may override it.
func DefaultTierLimits() map[QuotaTier]TierLimits {
	return map[QuotaTier]TierLimits{
		TierTrial:        {StorageLimitBytes: 100 * mb, MaxConcurrentJobs: 1, MaxFileSizeBytes: 10 * mb, Priority: 0, MonthlyJobLimit: 50},
		TierStarter:      {StorageLimitBytes: 1 * gb, MaxConcurrentJobs: 3, MaxFileSizeBytes: 50 * mb, Priority: 1, MonthlyJobLimit: 500},
		TierProfessional: {StorageLimitBytes: 10 * gb, MaxConcurrentJobs: 10, MaxFileSizeBytes: 100 * mb, Priority: 2, MonthlyJobLimit: 5000},
		TierEnterprise:   {StorageLimitBytes: Unlimited, MaxConcurrentJobs: 50, MaxFileSizeBytes: 500 * mb, Priority: 3, MonthlyJobLimit: Unlimited},
	}
}

// ParseTier accepts tier names case-insensitively.
func ParseTier(s string) (QuotaTier, bool) {
	switch t := QuotaTier(strings.ToUpper(strings.TrimSpace(s))); t {
	case TierTrial, TierStarter, TierProfessional, TierEnterprise:
		return t, true
	}
	return "", false
}
