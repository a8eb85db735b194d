package models

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusUploading  JobStatus = "UPLOADING"
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCancelled  JobStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible without an explicit retry.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Active reports whether the job still occupies a concurrency slot.
func (s JobStatus) Active() bool {
	switch s {
	case JobStatusPending, JobStatusUploading, JobStatusQueued, JobStatusProcessing:
		return true
	}
	return false
}

// ActiveStatuses are the statuses counted against a tenant's concurrent job limit.
var ActiveStatuses = []JobStatus{JobStatusPending, JobStatusUploading, JobStatusQueued, JobStatusProcessing}

type JobType string

const (
	JobTypeFileUpload   JobType = "FILE_UPLOAD"
	JobTypeTextInput    JobType = "TEXT_INPUT"
	JobTypeWebScrape    JobType = "WEB_SCRAPE"
	JobTypeRssFeed      JobType = "RSS_FEED"
	JobTypeQAImport     JobType = "QA_IMPORT"
	JobTypeFolderImport JobType = "FOLDER_IMPORT"
	JobTypeBatchImport  JobType = "BATCH_IMPORT"
	JobTypeEmbedding    JobType = "EMBEDDING"
)

// Aggregate reports whether the job's outcome is derived from its children.
func (t JobType) Aggregate() bool {
	return t == JobTypeBatchImport || t == JobTypeFolderImport
}

type SourceType string

const (
	SourceTypePresignedUpload SourceType = "PRESIGNED_UPLOAD"
	SourceTypeZipArchive      SourceType = "ZIP_ARCHIVE"
	SourceTypeURL             SourceType = "URL"
	SourceTypeText            SourceType = "TEXT"
	SourceTypeQAPair          SourceType = "QA_PAIR"
	SourceTypeRssFeed         SourceType = "RSS_FEED"
	SourceTypeS3Key           SourceType = "S3_KEY"
)

// DefaultMaxRetries is applied to new jobs.
const DefaultMaxRetries = 3

// LeaseExpiredMessage is recorded on jobs held by a worker past the lock timeout.
const LeaseExpiredMessage = "job lease expired"

var (
	// ErrInvalidTransition is returned when a status change is not allowed from the current state.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrNotRetryable is returned when a retry is requested for a job that cannot be retried.
	ErrNotRetryable = errors.New("job cannot be retried")
)

// IngestionJob is the persistent record of one unit of ingestion work.
type IngestionJob struct {
	ID             string  `db:"id" json:"id"`
	OrganizationID string  `db:"organization_id" json:"organizationId"`
	ParentJobID    *string `db:"parent_job_id" json:"parentJobId,omitempty"`

	JobType    JobType    `db:"job_type" json:"jobType"`
	SourceType SourceType `db:"source_type" json:"sourceType,omitempty"`

	SourceReference string `db:"source_reference" json:"-"`
	FileName        string `db:"file_name" json:"fileName,omitempty"`
	FileSize        int64  `db:"file_size" json:"fileSize"`
	MimeType        string `db:"mime_type" json:"mimeType,omitempty"`
	Metadata        string `db:"metadata" json:"-"`

	Status       JobStatus `db:"status" json:"status"`
	Priority     int       `db:"priority" json:"priority"`
	Progress     int       `db:"progress" json:"progress"`
	RetryCount   int       `db:"retry_count" json:"retryCount"`
	MaxRetries   int       `db:"max_retries" json:"maxRetries"`
	ErrorMessage *string   `db:"error_message" json:"errorMessage,omitempty"`

	ChunksCreated     int     `db:"chunks_created" json:"chunksCreated"`
	BytesProcessed    int64   `db:"bytes_processed" json:"bytesProcessed"`
	EmbeddingsCreated int     `db:"embeddings_created" json:"embeddingsCreated"`
	KnowledgeBaseID   *string `db:"knowledge_base_id" json:"knowledgeBaseId,omitempty"`
	KnowledgeSourceID *string `db:"knowledge_source_id" json:"knowledgeSourceId,omitempty"`

	LockedAt     *time.Time `db:"locked_at" json:"-"`
	LockedBy     *string    `db:"locked_by" json:"-"`
	VisibleAfter *time.Time `db:"visible_after" json:"-"`

	CreatedAt            time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`
	StartedAt            *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt          *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	ProcessingDurationMs *int64     `db:"processing_duration_ms" json:"processingDurationMs,omitempty"`
}

// NewJob builds a PENDING job with the default retry budget.
func NewJob(id, organizationID string, jobType JobType, knowledgeBaseID *string, priority int) *IngestionJob {
	now := time.Now().UTC()
	return &IngestionJob{
		ID:              id,
		OrganizationID:  organizationID,
		JobType:         jobType,
		KnowledgeBaseID: knowledgeBaseID,
		Priority:        priority,
		Status:          JobStatusPending,
		MaxRetries:      DefaultMaxRetries,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// NewChildJob builds a PENDING job that inherits owner, knowledge base and priority from parent.
func NewChildJob(id string, parent *IngestionJob, jobType JobType) *IngestionJob {
	child := NewJob(id, parent.OrganizationID, jobType, parent.KnowledgeBaseID, parent.Priority)
	parentID := parent.ID
	child.ParentJobID = &parentID
	return child
}

func (j *IngestionJob) transition(to JobStatus, allowed ...JobStatus) error {
	for _, from := range allowed {
		if j.Status == from {
			j.Status = to
			j.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
}

// MarkUploading records that the client has been handed an upload locator.
func (j *IngestionJob) MarkUploading() error {
	return j.transition(JobStatusUploading, JobStatusPending)
}

// MarkQueued makes the job visible to workers.
func (j *IngestionJob) MarkQueued() error {
	if err := j.transition(JobStatusQueued, JobStatusPending, JobStatusUploading); err != nil {
		return err
	}
	j.VisibleAfter = nil
	return nil
}

// MarkProcessing claims the job. Aggregate parents may move straight from UPLOADING.
func (j *IngestionJob) MarkProcessing() error {
	allowed := []JobStatus{JobStatusQueued}
	if j.JobType.Aggregate() {
		allowed = append(allowed, JobStatusUploading)
	}
	if err := j.transition(JobStatusProcessing, allowed...); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.StartedAt = &now
	return nil
}

// MarkCompleted finishes the job successfully.
func (j *IngestionJob) MarkCompleted(chunksCreated int, bytesProcessed int64) error {
	if err := j.transition(JobStatusCompleted, JobStatusProcessing); err != nil {
		return err
	}
	j.ChunksCreated = chunksCreated
	j.BytesProcessed = bytesProcessed
	j.Progress = 100
	j.finish()
	return nil
}

// MarkFailed records a processing failure. The message overwrites any previous error.
func (j *IngestionJob) MarkFailed(message string) error {
	if err := j.transition(JobStatusFailed, JobStatusQueued, JobStatusProcessing); err != nil {
		return err
	}
	j.ErrorMessage = &message
	j.finish()
	return nil
}

// MarkCancelled is only possible before processing begins.
func (j *IngestionJob) MarkCancelled() error {
	if err := j.transition(JobStatusCancelled, JobStatusPending, JobStatusUploading, JobStatusQueued); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.CompletedAt = &now
	return nil
}

// CanRetry holds when the job failed and still has retry budget.
func (j *IngestionJob) CanRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// Retry consumes one retry and puts the job back on the queue.
// Progress and the last error message are kept.
func (j *IngestionJob) Retry() error {
	if !j.CanRetry() {
		return fmt.Errorf("%w: status=%s retries=%d/%d", ErrNotRetryable, j.Status, j.RetryCount, j.MaxRetries)
	}
	j.RetryCount++
	j.Status = JobStatusQueued
	j.LockedAt = nil
	j.LockedBy = nil
	j.VisibleAfter = nil
	j.CompletedAt = nil
	j.ProcessingDurationMs = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateProgress clamps to 0..100 and never moves backwards.
func (j *IngestionJob) UpdateProgress(percent int) error {
	if j.Status != JobStatusProcessing && j.Status != JobStatusQueued {
		return fmt.Errorf("%w: progress update while %s", ErrInvalidTransition, j.Status)
	}
	p := ClampProgress(percent)
	if p > j.Progress {
		j.Progress = p
		j.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// ClampProgress bounds a percentage to 0..100.
func ClampProgress(percent int) int {
	switch {
	case percent < 0:
		return 0
	case percent > 100:
		return 100
	}
	return percent
}

func (j *IngestionJob) finish() {
	now := time.Now().UTC()
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.LockedAt = nil
	j.LockedBy = nil
	if j.StartedAt != nil {
		d := now.Sub(*j.StartedAt).Milliseconds()
		j.ProcessingDurationMs = &d
	}
}

// Lease identifies one claim of a job by a worker.
type Lease struct {
	WorkerID string
	LockedAt time.Time
}

// Lease returns the job's current claim, or nil when no worker holds it.
func (j *IngestionJob) Lease() *Lease {
	if j.LockedBy == nil || j.LockedAt == nil {
		return nil
	}
	return &Lease{WorkerID: *j.LockedBy, LockedAt: *j.LockedAt}
}

// Holds reports whether the job is still claimed under l.
func (j *IngestionJob) Holds(l Lease) bool {
	cur := j.Lease()
	return cur != nil && cur.WorkerID == l.WorkerID && cur.LockedAt.Equal(l.LockedAt)
}

// ReleaseLease drops the worker claim while the job stays PROCESSING,
// used by aggregate parents that wait on their children.
func (j *IngestionJob) ReleaseLease() {
	j.LockedAt = nil
	j.LockedBy = nil
}

// SetError stores a non-fatal summary, used for partial batch failures.
func (j *IngestionJob) SetError(message string) {
	j.ErrorMessage = &message
}

// ErrorText returns the stored error message or "".
func (j *IngestionJob) ErrorText() string {
	if j.ErrorMessage == nil {
		return ""
	}
	return *j.ErrorMessage
}

// StringPtr is a small helper for optional columns.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
