package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(jobType JobType) *IngestionJob {
	return NewJob("job-1", "org-1", jobType, nil, 0)
}

func TestJobRetry(t *testing.T) {
	job := newTestJob(JobTypeFileUpload)
	job.Status = JobStatusFailed
	job.RetryCount = 2
	job.MaxRetries = 3
	job.Progress = 50
	job.SetError("boom")

	require.True(t, job.CanRetry())
	require.NoError(t, job.Retry())

	assert.Equal(t, JobStatusQueued, job.Status)
	assert.Equal(t, 3, job.RetryCount)
	assert.Equal(t, 50, job.Progress, "retry keeps progress")
	assert.Equal(t, "boom", job.ErrorText(), "retry keeps the last error")

	assert.False(t, job.CanRetry())
	assert.ErrorIs(t, job.Retry(), ErrNotRetryable)

	// Even after failing again the budget is spent.
	require.NoError(t, job.MarkFailed("again"))
	assert.False(t, job.CanRetry())
	assert.ErrorIs(t, job.Retry(), ErrNotRetryable)
}

func TestJobRetryRequiresFailed(t *testing.T) {
	for _, status := range []JobStatus{JobStatusPending, JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			job := newTestJob(JobTypeTextInput)
			job.Status = status
			assert.False(t, job.CanRetry())
			assert.ErrorIs(t, job.Retry(), ErrNotRetryable)
		})
	}
}

func TestJobLifecycle(t *testing.T) {
	job := newTestJob(JobTypeFileUpload)

	require.NoError(t, job.MarkUploading())
	require.NoError(t, job.MarkQueued())
	require.NoError(t, job.MarkProcessing())
	require.NotNil(t, job.StartedAt)

	started := time.Now().Add(-2 * time.Second)
	job.StartedAt = &started

	require.NoError(t, job.MarkCompleted(4, 1200))
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, 4, job.ChunksCreated)
	assert.Equal(t, int64(1200), job.BytesProcessed)
	require.NotNil(t, job.CompletedAt)
	require.NotNil(t, job.ProcessingDurationMs)
	assert.GreaterOrEqual(t, *job.ProcessingDurationMs, int64(2000))
}

func TestJobTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		jobType JobType
		apply   func(*IngestionJob) error
		wantErr bool
	}{
		{"pending to queued", JobStatusPending, JobTypeTextInput, (*IngestionJob).MarkQueued, false},
		{"uploading to queued", JobStatusUploading, JobTypeFileUpload, (*IngestionJob).MarkQueued, false},
		{"processing cannot be queued", JobStatusProcessing, JobTypeFileUpload, (*IngestionJob).MarkQueued, true},
		{"cancel pending", JobStatusPending, JobTypeFileUpload, (*IngestionJob).MarkCancelled, false},
		{"cancel uploading", JobStatusUploading, JobTypeFileUpload, (*IngestionJob).MarkCancelled, false},
		{"cancel queued", JobStatusQueued, JobTypeFileUpload, (*IngestionJob).MarkCancelled, false},
		{"cannot cancel processing", JobStatusProcessing, JobTypeFileUpload, (*IngestionJob).MarkCancelled, true},
		{"cannot cancel completed", JobStatusCompleted, JobTypeFileUpload, (*IngestionJob).MarkCancelled, true},
		{"batch parent starts from uploading", JobStatusUploading, JobTypeBatchImport, (*IngestionJob).MarkProcessing, false},
		{"file job cannot skip the queue", JobStatusUploading, JobTypeFileUpload, (*IngestionJob).MarkProcessing, true},
		{"complete requires processing", JobStatusQueued, JobTypeFileUpload, func(j *IngestionJob) error { return j.MarkCompleted(1, 1) }, true},
		{"fail from processing", JobStatusProcessing, JobTypeFileUpload, func(j *IngestionJob) error { return j.MarkFailed("x") }, false},
		{"cannot fail a cancelled job", JobStatusCancelled, JobTypeFileUpload, func(j *IngestionJob) error { return j.MarkFailed("x") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := newTestJob(tt.jobType)
			job.Status = tt.from
			err := tt.apply(job)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, job.Status)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestJobUpdateProgress(t *testing.T) {
	job := newTestJob(JobTypeFileUpload)
	assert.ErrorIs(t, job.UpdateProgress(10), ErrInvalidTransition, "pending jobs have no progress")

	job.Status = JobStatusProcessing
	require.NoError(t, job.UpdateProgress(30))
	require.NoError(t, job.UpdateProgress(10))
	assert.Equal(t, 30, job.Progress, "progress never regresses")

	require.NoError(t, job.UpdateProgress(250))
	assert.Equal(t, 100, job.Progress)

	job.Progress = 0
	require.NoError(t, job.UpdateProgress(-5))
	assert.Equal(t, 0, job.Progress)
}

func TestNewChildJobInheritsOwner(t *testing.T) {
	kb := "kb-1"
	parent := NewJob("parent", "org-9", JobTypeBatchImport, &kb, 2)
	child := NewChildJob("child", parent, JobTypeFileUpload)

	assert.Equal(t, "org-9", child.OrganizationID)
	assert.Equal(t, 2, child.Priority)
	require.NotNil(t, child.ParentJobID)
	assert.Equal(t, "parent", *child.ParentJobID)
	assert.Equal(t, &kb, child.KnowledgeBaseID)
}

func TestQuotaPeriodReset(t *testing.T) {
	now := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	q := NewQuota("org-1", TierTrial, TierLimits{StorageLimitBytes: 1000, MonthlyJobLimit: 5, MaxConcurrentJobs: 1}, now)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), q.PeriodResetAt)

	require.NoError(t, q.Charge(100, 3))
	assert.False(t, q.ResetIfDue(now.Add(24*time.Hour)))
	assert.Equal(t, int64(3), q.MonthlyJobsUsed)

	assert.True(t, q.ResetIfDue(time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, int64(0), q.MonthlyJobsUsed)
	assert.Equal(t, int64(100), q.StorageUsedBytes, "storage is not periodic")
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC), q.PeriodResetAt)

	q.Release(500, 1)
	assert.Equal(t, int64(0), q.StorageUsedBytes)
}

func TestQuotaChargeRejectsNegative(t *testing.T) {
	q := NewQuota("org-1", TierTrial, TierLimits{StorageLimitBytes: 1000, MonthlyJobLimit: 5}, time.Now())
	require.NoError(t, q.Charge(400, 1))

	assert.ErrorIs(t, q.Charge(-300, 0), ErrNegativeCharge)
	assert.ErrorIs(t, q.Charge(0, -1), ErrNegativeCharge)
	assert.Equal(t, int64(400), q.StorageUsedBytes)
	assert.Equal(t, int64(1), q.MonthlyJobsUsed)
}
