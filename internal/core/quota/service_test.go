package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/core/memstore"
	"github.com/markdave123-py/contexta-ingest/internal/core/messages"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func newService(t *testing.T) (*Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return NewService(store, store, nil, nil, nil), store
}

func seed(t *testing.T, store *memstore.Store, q models.OrganizationQuota) {
	t.Helper()
	if q.Tier == "" {
		q.Tier = models.TierTrial
	}
	if q.PeriodResetAt.IsZero() {
		q.PeriodResetAt = time.Now().Add(24 * time.Hour)
	}
	require.NoError(t, store.SaveQuota(context.Background(), &q))
}

func TestValidateUploadRequestStorage(t *testing.T) {
	svc, store := newService(t)
	seed(t, store, models.OrganizationQuota{
		OrganizationID:    "org",
		StorageLimitBytes: 1000,
		StorageUsedBytes:  900,
		MonthlyJobLimit:   50,
	})
	ctx := context.Background()

	res, err := svc.ValidateUploadRequest(ctx, "org", 150)
	require.NoError(t, err)
	assert.Equal(t, OutcomeStorageQuotaExceeded, res.Outcome)
	assert.Equal(t, int64(900), res.Used)
	assert.Equal(t, int64(1000), res.Limit)

	res, err = svc.ValidateUploadRequest(ctx, "org", 50)
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.Equal(t, models.TierTrial, res.Tier)
	assert.Equal(t, 0, res.Priority)
}

func TestMaxFileSizeFollowsTier(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	got, err := svc.MaxFileSize(ctx, "new-org")
	require.NoError(t, err)
	assert.Equal(t, svc.Limits(models.TierTrial).MaxFileSizeBytes, got)

	seed(t, store, models.OrganizationQuota{OrganizationID: "big", Tier: models.TierEnterprise})
	got, err = svc.MaxFileSize(ctx, "big")
	require.NoError(t, err)
	assert.Equal(t, svc.Limits(models.TierEnterprise).MaxFileSizeBytes, got)
}

func TestValidationOrder(t *testing.T) {
	tests := []struct {
		name  string
		quota models.OrganizationQuota
		size  int64
		jobs  int
		want  Outcome
	}{
		{
			name:  "file size checked before storage",
			quota: models.OrganizationQuota{StorageLimitBytes: 10, MonthlyJobLimit: 0},
			size:  11 * 1024 * 1024,
			want:  OutcomeFileSizeExceeded,
		},
		{
			name:  "storage before monthly",
			quota: models.OrganizationQuota{StorageLimitBytes: 10, MonthlyJobLimit: 0},
			size:  20,
			want:  OutcomeStorageQuotaExceeded,
		},
		{
			name:  "monthly before concurrency",
			quota: models.OrganizationQuota{StorageLimitBytes: 1000, MonthlyJobsUsed: 50, MonthlyJobLimit: 50},
			size:  1,
			jobs:  1,
			want:  OutcomeMonthlyLimitExceeded,
		},
		{
			name:  "concurrency",
			quota: models.OrganizationQuota{StorageLimitBytes: 1000, MonthlyJobLimit: 50},
			size:  1,
			jobs:  1,
			want:  OutcomeConcurrentJobsExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newService(t)
			ctx := context.Background()
			tt.quota.OrganizationID = "org"
			seed(t, store, tt.quota)
			for i := 0; i < tt.jobs; i++ {
				require.NoError(t, store.CreateJob(ctx, models.NewJob("active", "org", models.JobTypeTextInput, nil, 0)))
			}

			res, err := svc.ValidateUploadRequest(ctx, "org", tt.size)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Outcome)
		})
	}
}

func TestMissingQuotaCreatedAtTrial(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	res, err := svc.ValidateUploadRequest(ctx, "fresh", 1024)
	require.NoError(t, err)
	assert.True(t, res.Valid())

	q, err := store.GetQuota(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.TierTrial, q.Tier)
	assert.Equal(t, int64(100*1024*1024), q.StorageLimitBytes)
	assert.Equal(t, int64(50), q.MonthlyJobLimit)
}

func TestMonthlyPeriodResets(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	seed(t, store, models.OrganizationQuota{
		OrganizationID:    "org",
		StorageLimitBytes: 1000,
		MonthlyJobsUsed:   50,
		MonthlyJobLimit:   50,
		PeriodResetAt:     time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }

	res, err := svc.ValidateUploadRequest(ctx, "org", 1)
	require.NoError(t, err)
	assert.True(t, res.Valid())

	q, err := store.GetQuota(ctx, "org")
	require.NoError(t, err)
	assert.Zero(t, q.MonthlyJobsUsed)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), q.PeriodResetAt)
}

func TestReserveChargesAfterCommit(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()

	var committed Result
	res, err := svc.Reserve(ctx, "org", Request{Bytes: 300, LargestFile: 300, Jobs: 1}, func(ctx context.Context, r Result) error {
		committed = r
		return nil
	})
	require.NoError(t, err)
	assert.True(t, res.Valid())
	assert.Equal(t, res, committed)

	q, err := store.GetQuota(ctx, "org")
	require.NoError(t, err)
	assert.Equal(t, int64(300), q.StorageUsedBytes)
	assert.Equal(t, int64(1), q.MonthlyJobsUsed)
}

func TestReserveFailedCommitLeavesNoCharge(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	boom := errors.New("insert failed")

	_, err := svc.Reserve(ctx, "org", Request{Bytes: 300, Jobs: 1}, func(context.Context, Result) error { return boom })
	assert.ErrorIs(t, err, boom)

	q, err := store.GetQuota(ctx, "org")
	require.NoError(t, err)
	assert.Zero(t, q.StorageUsedBytes)
	assert.Zero(t, q.MonthlyJobsUsed)
}

func TestReserveRejectionCarriesMessageKey(t *testing.T) {
	svc, store := newService(t)
	seed(t, store, models.OrganizationQuota{OrganizationID: "org", StorageLimitBytes: 100, MonthlyJobLimit: 50})

	called := false
	_, err := svc.Reserve(context.Background(), "org", Request{Bytes: 500, LargestFile: 500, Jobs: 1}, func(context.Context, Result) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)

	var qe *Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, messages.StorageQuotaExceeded, qe.Key)
	assert.Equal(t, "Storage quota exceeded: 0 of 100 bytes used", qe.Error())
}

func TestReserveSerializesPerTenant(t *testing.T) {
	svc, store := newService(t)
	seed(t, store, models.OrganizationQuota{
		OrganizationID:    "org",
		Tier:              models.TierEnterprise,
		StorageLimitBytes: 100,
		MonthlyJobLimit:   models.Unlimited,
	})

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), "org", Request{Bytes: 20, LargestFile: 20, Jobs: 1}, func(context.Context, Result) error {
				time.Sleep(time.Millisecond)
				return nil
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, accepted)
	q, err := store.GetQuota(context.Background(), "org")
	require.NoError(t, err)
	assert.Equal(t, int64(100), q.StorageUsedBytes)
}

func TestReleaseAndUpdateTier(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	seed(t, store, models.OrganizationQuota{OrganizationID: "org", StorageUsedBytes: 40, MonthlyJobsUsed: 2, StorageLimitBytes: 100, MonthlyJobLimit: 50})

	require.NoError(t, svc.Release(ctx, "org", 100, 1))
	q, err := store.GetQuota(ctx, "org")
	require.NoError(t, err)
	assert.Zero(t, q.StorageUsedBytes)
	assert.Equal(t, int64(1), q.MonthlyJobsUsed)

	updated, err := svc.UpdateTier(ctx, "org", models.TierProfessional)
	require.NoError(t, err)
	assert.Equal(t, models.TierProfessional, updated.Tier)
	assert.Equal(t, int64(10*1024*1024*1024), updated.StorageLimitBytes)
	assert.Equal(t, 10, updated.MaxConcurrentJobs)
	assert.Equal(t, int64(1), updated.MonthlyJobsUsed)

	_, err = svc.UpdateTier(ctx, "org", "GOLD")
	assert.Error(t, err)
}
