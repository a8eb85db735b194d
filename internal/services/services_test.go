package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/memstore"
	"github.com/markdave123-py/contexta-ingest/internal/core/messages"
	"github.com/markdave123-py/contexta-ingest/internal/core/quota"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const (
	orgA = "0b6f6d1c-aaaa-4b7e-8d1e-00000000000a"
	orgB = "0b6f6d1c-bbbb-4b7e-8d1e-00000000000b"
)

type recorder struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (r *recorder) Publish(_ context.Context, e models.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) actions(jobID string) []models.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AuditAction
	for _, e := range r.events {
		if e.JobID == jobID {
			out = append(out, e.Action)
		}
	}
	return out
}

type env struct {
	store  *memstore.Store
	quota  *quota.Service
	audit  *recorder
	ingest *IngestService
	jobs   *JobService
}

func newEnv(t *testing.T, tiers map[models.QuotaTier]models.TierLimits) *env {
	t.Helper()
	store := memstore.New()
	rec := &recorder{}
	quotas := quota.NewService(store, store, nil, tiers, nil)
	return &env{
		store:  store,
		quota:  quotas,
		audit:  rec,
		ingest: NewIngestService(store, store, store, store.Objects(), quotas, rec, config.DefaultIngestion(), nil),
		jobs:   NewJobService(store, store, store, quotas, rec, nil),
	}
}

// newProEnv runs as a PROFESSIONAL tenant so concurrency limits stay out of the way.
func newProEnv(t *testing.T) *env {
	t.Helper()
	e := newEnv(t, nil)
	_, err := e.quota.UpdateTier(context.Background(), orgA, models.TierProfessional)
	require.NoError(t, err)
	return e
}

func (e *env) usage(t *testing.T) *models.OrganizationQuota {
	t.Helper()
	q, err := e.quota.GetOrCreate(context.Background(), orgA)
	require.NoError(t, err)
	return q
}

func (e *env) job(t *testing.T, id string) *models.IngestionJob {
	t.Helper()
	j, err := e.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	return j
}

func requireValidation(t *testing.T, err error, key string) *ValidationError {
	t.Helper()
	var v *ValidationError
	require.True(t, errors.As(err, &v), "want validation error, got %v", err)
	assert.Equal(t, key, v.Key)
	return v
}

func requireState(t *testing.T, err error, key string) {
	t.Helper()
	var s *StateError
	require.True(t, errors.As(err, &s), "want state error, got %v", err)
	assert.Equal(t, key, s.Key)
}

const sampleText = "Quarterly revenue grew by twelve percent across all regions."

func TestSubmitTextQueuesAndCharges(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	resp, err := e.ingest.SubmitText(ctx, orgA, models.TextInputRequest{Content: sampleText})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, resp.Status)
	assert.Equal(t, "text-input", resp.FileName)

	job := e.job(t, resp.ID)
	assert.Equal(t, sampleText, job.SourceReference)
	assert.Equal(t, 2, job.Priority)
	meta, err := models.DecodeMetadata(job)
	require.NoError(t, err)
	assert.Equal(t, "Text Input", meta.(models.TextInputMetadata).Title)

	q := e.usage(t)
	assert.Equal(t, int64(len(sampleText)), q.StorageUsedBytes)
	assert.Equal(t, int64(1), q.MonthlyJobsUsed)
	assert.Equal(t, []models.AuditAction{models.AuditJobInitiated}, e.audit.actions(resp.ID))
}

func TestSubmitTextValidation(t *testing.T) {
	e := newProEnv(t)
	tests := []struct {
		name    string
		content string
		key     string
	}{
		{"empty", "", messages.ContentEmpty},
		{"blank", "   \n\t", messages.ContentEmpty},
		{"too short", "tiny", messages.ContentTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ingest.SubmitText(context.Background(), orgA, models.TextInputRequest{Content: tt.content})
			requireValidation(t, err, tt.key)
		})
	}
	assert.Zero(t, e.usage(t).MonthlyJobsUsed)
}

func TestSubmitTextOverFileCeilingIsContentTooLarge(t *testing.T) {
	tiers := models.DefaultTierLimits()
	trial := tiers[models.TierTrial]
	trial.MaxFileSizeBytes = 40
	tiers[models.TierTrial] = trial
	e := newEnv(t, tiers)

	_, err := e.ingest.SubmitText(context.Background(), orgA, models.TextInputRequest{Content: sampleText})
	var qe *quota.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, messages.ContentTooLarge, qe.Key)
	assert.Equal(t, []any{int64(40)}, qe.Args)
}

func TestConcurrentJobLimit(t *testing.T) {
	e := newEnv(t, nil) // TRIAL allows one job in flight
	ctx := context.Background()

	_, err := e.ingest.SubmitText(ctx, orgA, models.TextInputRequest{Content: sampleText})
	require.NoError(t, err)

	_, err = e.ingest.SubmitText(ctx, orgA, models.TextInputRequest{Content: sampleText})
	var qe *quota.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, quota.OutcomeConcurrentJobsExceeded, qe.Outcome)

	page, err := e.jobs.ListJobs(ctx, orgA, models.JobFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, int64(1), e.usage(t).MonthlyJobsUsed)
}

func TestPresignedUploadThenConfirm(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	up, err := e.ingest.CreatePresignedUpload(ctx, orgA, models.PresignedUploadRequest{
		FileName: "handbook.pdf", ContentType: "application/pdf", FileSize: 4096,
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(up.Key, "uploads/"+orgA+"/"))
	assert.True(t, strings.HasSuffix(up.Key, ".pdf"))
	assert.Equal(t, int64(900), up.ExpiresIn)

	job := e.job(t, up.JobID)
	assert.Equal(t, models.JobStatusUploading, job.Status)
	assert.Equal(t, up.Key, job.SourceReference)
	assert.Equal(t, models.SourceTypePresignedUpload, job.SourceType)
	assert.Equal(t, int64(4096), e.usage(t).StorageUsedBytes)

	_, err = e.ingest.ConfirmUpload(ctx, orgB, up.JobID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)

	resp, err := e.ingest.ConfirmUpload(ctx, orgA, up.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, resp.Status)

	_, err = e.ingest.ConfirmUpload(ctx, orgA, up.JobID)
	requireState(t, err, messages.JobNotUploading)

	assert.Equal(t, []models.AuditAction{models.AuditJobInitiated, models.AuditJobConfirmed}, e.audit.actions(up.JobID))
}

func TestPresignedUploadRejectsUnsupportedType(t *testing.T) {
	e := newProEnv(t)
	_, err := e.ingest.CreatePresignedUpload(context.Background(), orgA, models.PresignedUploadRequest{
		FileName: "setup.exe", ContentType: "application/x-msdownload", FileSize: 10,
	})
	requireValidation(t, err, messages.UnsupportedType)

	_, err = e.ingest.CreatePresignedUpload(context.Background(), orgA, models.PresignedUploadRequest{
		FileName: "notes.md", ContentType: "text/markdown; charset=utf-8", FileSize: 10,
	})
	assert.NoError(t, err)
}

func TestPresignedUploadOverFileCeiling(t *testing.T) {
	e := newEnv(t, nil)
	_, err := e.ingest.CreatePresignedUpload(context.Background(), orgA, models.PresignedUploadRequest{
		FileName: "big.pdf", ContentType: "application/pdf", FileSize: 11 * 1024 * 1024,
	})
	var qe *quota.Error
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, quota.OutcomeFileSizeExceeded, qe.Outcome)
	assert.Equal(t, messages.FileSizeExceeded, qe.Key)
}

func TestUploadsRejectNonPositiveFileSize(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	for _, size := range []int64{0, -1, -5 << 30} {
		_, err := e.ingest.CreatePresignedUpload(ctx, orgA, models.PresignedUploadRequest{
			FileName: "a.pdf", ContentType: "application/pdf", FileSize: size,
		})
		v := requireValidation(t, err, messages.FileSizeInvalid)
		assert.Equal(t, []any{"a.pdf", size}, v.Args)

		batch := batchRequest(2)
		batch.Files[1].FileSize = size
		_, err = e.ingest.CreateBatchUpload(ctx, orgA, batch)
		requireValidation(t, err, messages.FileSizeInvalid)

		_, err = e.ingest.CreateFolderUpload(ctx, orgA, models.FolderUploadRequest{FileName: "docs.zip", FileSize: size})
		requireValidation(t, err, messages.FileSizeInvalid)
	}

	q := e.usage(t)
	assert.Zero(t, q.StorageUsedBytes)
	assert.Zero(t, q.MonthlyJobsUsed)
	jobs, total, err := e.store.ListJobs(ctx, orgA, models.JobFilter{Size: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, jobs)

	// A real upload after the rejected ones is still held to the storage limit.
	_, err = e.ingest.CreatePresignedUpload(ctx, orgA, models.PresignedUploadRequest{
		FileName: "b.pdf", ContentType: "application/pdf", FileSize: 4096,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4096), e.usage(t).StorageUsedBytes)
}

func batchRequest(n int) models.BatchUploadRequest {
	req := models.BatchUploadRequest{}
	for i := 0; i < n; i++ {
		req.Files = append(req.Files, models.BatchFileInfo{FileName: "doc.txt", ContentType: "text/plain", FileSize: 100})
	}
	return req
}

func TestBatchUploadLifecycle(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	batch, err := e.ingest.CreateBatchUpload(ctx, orgA, batchRequest(3))
	require.NoError(t, err)
	assert.Equal(t, 3, batch.TotalFiles)
	require.Len(t, batch.Files, 3)

	parent := e.job(t, batch.BatchJobID)
	assert.Equal(t, models.JobTypeBatchImport, parent.JobType)
	assert.Equal(t, "Batch upload (3 files)", parent.FileName)
	assert.Equal(t, models.JobStatusUploading, parent.Status)

	keys := map[string]bool{}
	for _, f := range batch.Files {
		child := e.job(t, f.JobID)
		assert.Equal(t, batch.BatchJobID, models.Deref(child.ParentJobID))
		assert.Equal(t, models.JobStatusUploading, child.Status)
		assert.Equal(t, parent.Priority, child.Priority)
		keys[f.Key] = true
	}
	assert.Len(t, keys, 3)

	q := e.usage(t)
	assert.Equal(t, int64(300), q.StorageUsedBytes)
	assert.Equal(t, int64(3), q.MonthlyJobsUsed)

	_, err = e.ingest.ConfirmUpload(ctx, orgA, batch.BatchJobID)
	requireState(t, err, messages.JobNotUploading)

	resp, err := e.ingest.ConfirmBatchUpload(ctx, orgA, batch.BatchJobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, resp.Status)
	for _, f := range batch.Files {
		assert.Equal(t, models.JobStatusQueued, e.job(t, f.JobID).Status)
	}

	_, err = e.ingest.ConfirmBatchUpload(ctx, orgA, batch.BatchJobID)
	requireState(t, err, messages.JobNotUploading)
}

func TestBatchUploadValidation(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	_, err := e.ingest.CreateBatchUpload(ctx, orgA, batchRequest(0))
	requireValidation(t, err, messages.BatchEmpty)

	_, err = e.ingest.CreateBatchUpload(ctx, orgA, batchRequest(51))
	v := requireValidation(t, err, messages.BatchTooLarge)
	assert.Equal(t, []any{51, 50}, v.Args)

	text, err := e.ingest.SubmitText(ctx, orgA, models.TextInputRequest{Content: sampleText})
	require.NoError(t, err)
	_, err = e.ingest.ConfirmBatchUpload(ctx, orgA, text.ID)
	requireState(t, err, messages.JobNotBatch)
}

func TestFolderUpload(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	_, err := e.ingest.CreateFolderUpload(ctx, orgA, models.FolderUploadRequest{FileName: "docs.tar", FileSize: 10})
	requireValidation(t, err, messages.FolderNotZip)

	up, err := e.ingest.CreateFolderUpload(ctx, orgA, models.FolderUploadRequest{FileName: "Docs.ZIP", FileSize: 2048})
	require.NoError(t, err)

	job := e.job(t, up.JobID)
	assert.Equal(t, models.JobTypeFolderImport, job.JobType)
	assert.Equal(t, models.SourceTypeZipArchive, job.SourceType)
	assert.Equal(t, "application/zip", job.MimeType)
	meta, err := models.DecodeMetadata(job)
	require.NoError(t, err)
	assert.True(t, meta.(models.FolderImportMetadata).PreserveStructure)

	resp, err := e.ingest.ConfirmUpload(ctx, orgA, up.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, resp.Status)
}

func TestSubmitScrape(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	tests := []struct {
		url string
		key string
	}{
		{"ftp://example.com/file", messages.InvalidURLScheme},
		{"example.com/page", messages.InvalidURLScheme},
		{"https://", messages.InvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			_, err := e.ingest.SubmitScrape(ctx, orgA, models.WebScrapeRequest{URL: tt.url})
			requireValidation(t, err, tt.key)
		})
	}

	resp, err := e.ingest.SubmitScrape(ctx, orgA, models.WebScrapeRequest{URL: "https://docs.example.com", Crawl: true, MaxPages: 5})
	require.NoError(t, err)
	job := e.job(t, resp.ID)
	assert.Equal(t, "https://docs.example.com", job.SourceReference)
	meta, err := models.DecodeMetadata(job)
	require.NoError(t, err)
	opts := meta.(models.WebScrapeMetadata)
	assert.Equal(t, models.ScrapeModeCrawl, opts.Mode)
	assert.Equal(t, 2, opts.MaxDepth)
	assert.Equal(t, 5, opts.MaxPages)
	assert.Equal(t, int64(1000), opts.DelayMs)
	assert.Zero(t, e.usage(t).StorageUsedBytes)
}

func TestSubmitRssFeedDefaults(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	_, err := e.ingest.SubmitRssFeed(ctx, orgA, models.RssFeedRequest{FeedURL: "file:///etc/passwd"})
	requireValidation(t, err, messages.InvalidFeedURLScheme)

	resp, err := e.ingest.SubmitRssFeed(ctx, orgA, models.RssFeedRequest{FeedURL: "https://blog.example.com/feed.xml"})
	require.NoError(t, err)
	meta, err := models.DecodeMetadata(e.job(t, resp.ID))
	require.NoError(t, err)
	feed := meta.(models.RssFeedMetadata)
	assert.Equal(t, "blog.example.com", feed.SourceName)
	assert.Equal(t, 50, feed.MaxItems)
	assert.True(t, feed.IncludeFullContent)
}

func TestSubmitQAPairs(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	_, err := e.ingest.SubmitQAPairs(ctx, orgA, models.QAPairsRequest{})
	requireValidation(t, err, messages.QAPairsEmpty)

	_, err = e.ingest.SubmitQAPairs(ctx, orgA, models.QAPairsRequest{Pairs: []models.QAPair{
		{Question: "What is RAG?", Answer: "Retrieval augmented generation."},
		{Question: "Who owns it?", Answer: "  "},
	}})
	v := requireValidation(t, err, messages.QAAnswerEmpty)
	assert.Equal(t, []any{1}, v.Args)

	pairs := []models.QAPair{{Question: "Q1?", Answer: "A1."}, {Question: "Q22?", Answer: "A22."}}
	resp, err := e.ingest.SubmitQAPairs(ctx, orgA, models.QAPairsRequest{Pairs: pairs})
	require.NoError(t, err)
	assert.Equal(t, "qa-pairs", resp.FileName)
	assert.Equal(t, int64(14), resp.FileSize)

	meta, err := models.DecodeMetadata(e.job(t, resp.ID))
	require.NoError(t, err)
	qa := meta.(models.QAPairsMetadata)
	assert.Equal(t, "Q&A Import", qa.SourceName)
	assert.Equal(t, 2, qa.PairCount)
}

func TestRetryJob(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	resp, err := e.ingest.SubmitText(ctx, orgA, models.TextInputRequest{Content: sampleText})
	require.NoError(t, err)

	_, err = e.jobs.RetryJob(ctx, orgA, resp.ID)
	requireState(t, err, messages.CannotRetry)

	claimed, err := e.store.Dequeue(ctx, "w", 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, claimed[0].MarkFailed("extract failed"))
	require.NoError(t, e.store.UpdateJob(ctx, claimed[0]))

	retried, err := e.jobs.RetryJob(ctx, orgA, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusQueued, retried.Status)
	assert.Equal(t, 1, retried.RetryCount)
	assert.Contains(t, e.audit.actions(resp.ID), models.AuditJobRetried)
	assert.Equal(t, int64(1), e.usage(t).MonthlyJobsUsed, "retry is not charged again")

	_, err = e.jobs.RetryJob(ctx, orgB, resp.ID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
}

func TestCancelReleasesQuota(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	up, err := e.ingest.CreatePresignedUpload(ctx, orgA, models.PresignedUploadRequest{
		FileName: "a.pdf", ContentType: "application/pdf", FileSize: 1000,
	})
	require.NoError(t, err)

	resp, err := e.jobs.CancelJob(ctx, orgA, up.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, resp.Status)

	q := e.usage(t)
	assert.Zero(t, q.StorageUsedBytes)
	assert.Zero(t, q.MonthlyJobsUsed)
	assert.Contains(t, e.audit.actions(up.JobID), models.AuditJobCancelled)

	_, err = e.jobs.CancelJob(ctx, orgA, up.JobID)
	requireState(t, err, messages.CannotCancel)
}

func TestCancelProcessingJobIsRejected(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	resp, err := e.ingest.SubmitText(ctx, orgA, models.TextInputRequest{Content: sampleText})
	require.NoError(t, err)
	_, err = e.store.Dequeue(ctx, "w", 1)
	require.NoError(t, err)

	_, err = e.jobs.CancelJob(ctx, orgA, resp.ID)
	requireState(t, err, messages.CannotCancel)
	assert.Equal(t, int64(len(sampleText)), e.usage(t).StorageUsedBytes)
}

func TestCancelBatchCancelsWaitingFiles(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	batch, err := e.ingest.CreateBatchUpload(ctx, orgA, batchRequest(2))
	require.NoError(t, err)

	_, err = e.jobs.CancelJob(ctx, orgA, batch.BatchJobID)
	require.NoError(t, err)
	for _, f := range batch.Files {
		assert.Equal(t, models.JobStatusCancelled, e.job(t, f.JobID).Status)
	}

	q := e.usage(t)
	assert.Zero(t, q.StorageUsedBytes)
	assert.Zero(t, q.MonthlyJobsUsed)
}

func TestListJobsAndQuota(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := e.ingest.SubmitText(ctx, orgA, models.TextInputRequest{Content: sampleText})
		require.NoError(t, err)
	}
	_, err := e.ingest.SubmitText(ctx, orgB, models.TextInputRequest{Content: sampleText})
	require.NoError(t, err)

	page, err := e.jobs.ListJobs(ctx, orgA, models.JobFilter{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Jobs, 1)

	page, err = e.jobs.ListJobs(ctx, orgA, models.JobFilter{Size: 500})
	require.NoError(t, err)
	assert.Equal(t, 100, page.Size)

	q, err := e.jobs.GetQuota(ctx, orgA)
	require.NoError(t, err)
	assert.Equal(t, models.TierProfessional, q.Tier)
	assert.Equal(t, 3, q.ActiveJobs)
	assert.Equal(t, int64(3), q.MonthlyJobsUsed)
	assert.Equal(t, int64(100*1024*1024), q.MaxFileSizeBytes)

	depth, err := e.jobs.QueueDepth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, depth.Total)
}

func TestGetJobHidesOtherTenants(t *testing.T) {
	e := newProEnv(t)
	ctx := context.Background()

	resp, err := e.ingest.SubmitText(ctx, orgA, models.TextInputRequest{Content: sampleText})
	require.NoError(t, err)

	got, err := e.jobs.GetJob(ctx, orgA, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, resp.ID, got.ID)

	_, err = e.jobs.GetJob(ctx, orgB, resp.ID)
	assert.ErrorIs(t, err, core.ErrJobNotFound)
	_, err = e.jobs.GetJob(ctx, orgA, "missing")
	assert.ErrorIs(t, err, core.ErrJobNotFound)
	assert.False(t, IsValidation(err))
}
