package core

import (
	"context"
	"io"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// TxRunner runs fn inside one database transaction. Stores called with the
// context handed to fn join that transaction.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// JobStore persists ingestion jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.IngestionJob) error
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)
	UpdateJob(ctx context.Context, job *models.IngestionJob) error
	// UpdateLeasedJob writes job only while the stored row is still claimed
	// under lease, and fails with ErrLeaseLost otherwise.
	UpdateLeasedJob(ctx context.Context, job *models.IngestionJob, lease models.Lease) error
	// UpdateProgress never lowers the stored progress.
	UpdateProgress(ctx context.Context, id string, progress int) error

	ListJobs(ctx context.Context, organizationID string, filter models.JobFilter) ([]models.IngestionJob, int, error)
	ListChildren(ctx context.Context, parentID string) ([]models.IngestionJob, error)
	// ListProcessingParents returns aggregate jobs still waiting on their children.
	ListProcessingParents(ctx context.Context, limit int) ([]models.IngestionJob, error)
	// CountActiveJobs counts top-level jobs that hold a concurrency slot.
	CountActiveJobs(ctx context.Context, organizationID string) (int, error)
}

// JobQueue is the durable priority queue over job rows.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.IngestionJob) error
	// Dequeue claims up to limit visible jobs, highest priority first.
	Dequeue(ctx context.Context, workerID string, limit int) ([]*models.IngestionJob, error)
	Retry(ctx context.Context, jobID string) (*models.IngestionJob, error)
	Cancel(ctx context.Context, jobID string) (*models.IngestionJob, error)
	ReleaseStale(ctx context.Context, lockTimeout time.Duration) (int, error)
	Depth(ctx context.Context) (models.QueueDepth, error)
}

// QuotaStore persists per-tenant accounting rows.
type QuotaStore interface {
	GetQuota(ctx context.Context, organizationID string) (*models.OrganizationQuota, error)
	SaveQuota(ctx context.Context, quota *models.OrganizationQuota) error
	CountActiveJobs(ctx context.Context, organizationID string) (int, error)
}

// KnowledgeSourceRegistry records where a knowledge base's content came from.
type KnowledgeSourceRegistry interface {
	CreateKnowledgeSource(ctx context.Context, knowledgeBaseID string, req models.CreateKnowledgeSourceRequest) (*models.KnowledgeSource, error)
}

// EmbeddingModelStore resolves the embedding model of a knowledge base.
// A knowledge base without one yields (nil, nil).
type EmbeddingModelStore interface {
	FindByKnowledgeBase(ctx context.Context, knowledgeBaseID string) (*models.EmbeddingModel, error)
}

// VectorStore writes embedded chunks and returns their ids.
type VectorStore interface {
	StoreEmbeddings(ctx context.Context, knowledgeBaseID, sourceID string, chunks []models.TextChunk) ([]string, error)
}

// ObjectClient is the storage gateway for uploaded files.
type ObjectClient interface {
	GeneratePresignedUploadURL(ctx context.Context, fileName, contentType, category, ownerID string, expiry time.Duration) (*models.PresignedUpload, error)
	GetFileStream(ctx context.Context, key string) (io.ReadCloser, error)
	UploadFile(ctx context.Context, r io.Reader, fileName, contentType string, size int64, category, ownerID string) (key string, err error)
	DeleteFile(ctx context.Context, key string) error
}

// AuditPublisher forwards job lifecycle events to the accounting side.
type AuditPublisher interface {
	Publish(ctx context.Context, event models.AuditEvent) error
}
