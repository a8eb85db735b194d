package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/audit"
	"github.com/markdave123-py/contexta-ingest/internal/core/messages"
	"github.com/markdave123-py/contexta-ingest/internal/core/quota"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

const (
	defaultTextTitle    = "Text Input"
	defaultTextFileName = "text-input"
	defaultQASourceName = "Q&A Import"
	defaultQAFileName   = "qa-pairs"
	defaultFeedMaxItems = 50
)

// IngestService turns client submissions into queued jobs. Every submission
// is checked and charged against the tenant's quota in the same transaction
// that creates its rows.
type IngestService struct {
	jobs    core.JobStore
	queue   core.JobQueue
	tx      core.TxRunner
	objects core.ObjectClient
	quota   *quota.Service
	audit   core.AuditPublisher
	logger  *slog.Logger

	limits    config.Limits
	storage   config.Storage
	supported map[string]bool
}

func NewIngestService(
	jobs core.JobStore,
	queue core.JobQueue,
	tx core.TxRunner,
	objects core.ObjectClient,
	quotas *quota.Service,
	pub core.AuditPublisher,
	cfg config.Ingestion,
	logger *slog.Logger,
) *IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	supported := make(map[string]bool, len(cfg.Processing.SupportedMimeTypes))
	for _, m := range cfg.Processing.SupportedMimeTypes {
		supported[strings.ToLower(m)] = true
	}
	return &IngestService{
		jobs:      jobs,
		queue:     queue,
		tx:        tx,
		objects:   objects,
		quota:     quotas,
		audit:     pub,
		logger:    logger.With("component", "ingest_service"),
		limits:    cfg.Limits,
		storage:   cfg.Storage,
		supported: supported,
	}
}

// reserve charges req and runs create with the tenant's queue priority.
func (s *IngestService) reserve(ctx context.Context, organizationID string, req quota.Request, create func(ctx context.Context, priority int) error) error {
	_, err := s.quota.Reserve(ctx, organizationID, req, func(ctx context.Context, res quota.Result) error {
		return create(ctx, res.Priority)
	})
	return err
}

// contentQuotaError reports an oversized inline submission as a content error.
func contentQuotaError(err error) error {
	var qe *quota.Error
	if errors.As(err, &qe) && qe.Outcome == quota.OutcomeFileSizeExceeded && len(qe.Args) == 2 {
		return &quota.Error{Outcome: qe.Outcome, Key: messages.ContentTooLarge, Args: qe.Args[1:]}
	}
	return err
}

func (s *IngestService) newJob(organizationID string, jobType models.JobType, knowledgeBaseID *string, priority int) *models.IngestionJob {
	job := models.NewJob(uuid.NewString(), organizationID, jobType, knowledgeBaseID, priority)
	if s.limits.MaxRetries > 0 {
		job.MaxRetries = s.limits.MaxRetries
	}
	return job
}

// presign attaches an upload locator to job and moves it to UPLOADING.
func (s *IngestService) presign(ctx context.Context, job *models.IngestionJob) (*models.PresignedUpload, error) {
	up, err := s.objects.GeneratePresignedUploadURL(ctx, job.FileName, job.MimeType, s.storage.UploadsPrefix, job.OrganizationID, s.limits.PresignedURLExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign upload for %s: %w", job.FileName, err)
	}
	job.SourceReference = up.Key
	if err := job.MarkUploading(); err != nil {
		return nil, err
	}
	return up, nil
}

// CreatePresignedUpload registers a single file upload and returns where to PUT it.
func (s *IngestService) CreatePresignedUpload(ctx context.Context, organizationID string, req models.PresignedUploadRequest) (*models.PresignedUploadResponse, error) {
	if err := s.validateMimeType(req.ContentType); err != nil {
		return nil, err
	}
	if err := validateFileSize(req.FileName, req.FileSize); err != nil {
		return nil, err
	}

	var (
		job *models.IngestionJob
		up  *models.PresignedUpload
	)
	err := s.reserve(ctx, organizationID, quota.Request{Bytes: req.FileSize, LargestFile: req.FileSize, Jobs: 1}, func(ctx context.Context, priority int) error {
		job = s.newJob(organizationID, models.JobTypeFileUpload, req.KnowledgeBaseID, priority)
		job.SourceType = models.SourceTypePresignedUpload
		job.FileName = req.FileName
		job.FileSize = req.FileSize
		job.MimeType = req.ContentType

		var err error
		if up, err = s.presign(ctx, job); err != nil {
			return err
		}
		return s.jobs.CreateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("presigned upload created", "tenant_id", organizationID, "job_id", job.ID, "file", job.FileName, "size", job.FileSize, "priority", job.Priority)
	audit.Record(ctx, s.audit, s.logger, models.AuditJobInitiated, job, map[string]any{"fileName": job.FileName, "fileSize": job.FileSize})

	return &models.PresignedUploadResponse{JobID: job.ID, UploadURL: up.UploadURL, Key: up.Key, ExpiresIn: up.ExpiresIn}, nil
}

// CreateBatchUpload registers a BATCH_IMPORT parent with one FILE_UPLOAD child per file.
func (s *IngestService) CreateBatchUpload(ctx context.Context, organizationID string, req models.BatchUploadRequest) (*models.BatchUploadResponse, error) {
	if err := s.validateBatchSize(len(req.Files)); err != nil {
		return nil, err
	}
	var total, largest int64
	for _, f := range req.Files {
		if err := s.validateMimeType(f.ContentType); err != nil {
			return nil, err
		}
		if err := validateFileSize(f.FileName, f.FileSize); err != nil {
			return nil, err
		}
		total += f.FileSize
		largest = max(largest, f.FileSize)
	}

	var (
		parent *models.IngestionJob
		files  []models.BatchFileUploadInfo
	)
	reqQuota := quota.Request{Bytes: total, LargestFile: largest, Jobs: int64(len(req.Files))}
	err := s.reserve(ctx, organizationID, reqQuota, func(ctx context.Context, priority int) error {
		files = make([]models.BatchFileUploadInfo, 0, len(req.Files))

		parent = s.newJob(organizationID, models.JobTypeBatchImport, req.KnowledgeBaseID, priority)
		parent.SourceType = models.SourceTypePresignedUpload
		parent.FileName = fmt.Sprintf("Batch upload (%d files)", len(req.Files))
		parent.FileSize = total
		if err := parent.MarkUploading(); err != nil {
			return err
		}
		if err := s.jobs.CreateJob(ctx, parent); err != nil {
			return err
		}

		for _, f := range req.Files {
			child := models.NewChildJob(uuid.NewString(), parent, models.JobTypeFileUpload)
			child.MaxRetries = parent.MaxRetries
			child.SourceType = models.SourceTypePresignedUpload
			child.FileName = f.FileName
			child.FileSize = f.FileSize
			child.MimeType = f.ContentType

			up, err := s.presign(ctx, child)
			if err != nil {
				return err
			}
			if err := s.jobs.CreateJob(ctx, child); err != nil {
				return err
			}
			files = append(files, models.BatchFileUploadInfo{JobID: child.ID, FileName: f.FileName, UploadURL: up.UploadURL, Key: up.Key})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch upload created", "tenant_id", organizationID, "job_id", parent.ID, "files", len(files), "size", total)
	audit.Record(ctx, s.audit, s.logger, models.AuditJobInitiated, parent, map[string]any{"totalFiles": len(files), "totalSize": total})

	return &models.BatchUploadResponse{
		BatchJobID: parent.ID,
		Files:      files,
		ExpiresIn:  int64(s.limits.PresignedURLExpiry.Seconds()),
		TotalFiles: len(files),
	}, nil
}

// CreateFolderUpload registers a ZIP archive that is expanded into child jobs once confirmed.
func (s *IngestService) CreateFolderUpload(ctx context.Context, organizationID string, req models.FolderUploadRequest) (*models.PresignedUploadResponse, error) {
	if err := validateZipName(req.FileName); err != nil {
		return nil, err
	}
	if err := validateFileSize(req.FileName, req.FileSize); err != nil {
		return nil, err
	}
	preserve := true
	if req.PreserveStructure != nil {
		preserve = *req.PreserveStructure
	}
	meta, err := models.EncodeMetadata(models.FolderImportMetadata{PreserveStructure: preserve})
	if err != nil {
		return nil, err
	}

	var (
		job *models.IngestionJob
		up  *models.PresignedUpload
	)
	err = s.reserve(ctx, organizationID, quota.Request{Bytes: req.FileSize, LargestFile: req.FileSize, Jobs: 1}, func(ctx context.Context, priority int) error {
		job = s.newJob(organizationID, models.JobTypeFolderImport, req.KnowledgeBaseID, priority)
		job.SourceType = models.SourceTypeZipArchive
		job.FileName = req.FileName
		job.FileSize = req.FileSize
		job.MimeType = "application/zip"
		job.Metadata = meta

		var err error
		if up, err = s.presign(ctx, job); err != nil {
			return err
		}
		return s.jobs.CreateJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("folder upload created", "tenant_id", organizationID, "job_id", job.ID, "file", job.FileName, "preserve_structure", preserve)
	audit.Record(ctx, s.audit, s.logger, models.AuditJobInitiated, job, map[string]any{"fileName": job.FileName, "fileSize": job.FileSize})

	return &models.PresignedUploadResponse{JobID: job.ID, UploadURL: up.UploadURL, Key: up.Key, ExpiresIn: up.ExpiresIn}, nil
}

// ownedJob loads jobID and hides it unless organizationID owns it.
func ownedJob(ctx context.Context, jobs core.JobStore, organizationID, jobID string) (*models.IngestionJob, error) {
	job, err := jobs.GetJob(ctx, jobID)
	if errors.Is(err, core.ErrJobNotFound) {
		return nil, notFound(jobID)
	}
	if err != nil {
		return nil, err
	}
	if job.OrganizationID != organizationID {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, messages.Render(messages.JobNotOwned, jobID))
	}
	return job, nil
}

// ConfirmUpload queues an uploaded file or folder for processing.
func (s *IngestService) ConfirmUpload(ctx context.Context, organizationID, jobID string) (*models.IngestionJobResponse, error) {
	job, err := ownedJob(ctx, s.jobs, organizationID, jobID)
	if err != nil {
		return nil, err
	}
	// Batches are confirmed as a whole through ConfirmBatchUpload.
	if job.Status != models.JobStatusUploading || job.JobType == models.JobTypeBatchImport {
		return nil, conflict(messages.JobNotUploading, jobID)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", jobID, err)
	}

	s.logger.Info("upload confirmed", "tenant_id", organizationID, "job_id", job.ID, "job_type", job.JobType)
	audit.Record(ctx, s.audit, s.logger, models.AuditJobConfirmed, job, nil)

	resp := job.ToResponse()
	return &resp, nil
}

// ConfirmBatchUpload queues every child still awaiting upload and moves the
// parent to PROCESSING, where it waits on its children.
func (s *IngestService) ConfirmBatchUpload(ctx context.Context, organizationID, batchJobID string) (*models.IngestionJobResponse, error) {
	parent, err := ownedJob(ctx, s.jobs, organizationID, batchJobID)
	if err != nil {
		return nil, err
	}
	if parent.JobType != models.JobTypeBatchImport {
		return nil, conflict(messages.JobNotBatch, batchJobID)
	}
	if parent.Status != models.JobStatusUploading {
		return nil, conflict(messages.JobNotUploading, batchJobID)
	}

	children, err := s.jobs.ListChildren(ctx, parent.ID)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", parent.ID, err)
	}
	pending := make([]*models.IngestionJob, 0, len(children))
	for i := range children {
		if children[i].Status == models.JobStatusUploading {
			pending = append(pending, &children[i])
		}
	}
	if len(pending) == 0 {
		return nil, conflict(messages.BatchNoFiles, batchJobID)
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		for _, child := range pending {
			if err := s.queue.Enqueue(ctx, child); err != nil {
				return fmt.Errorf("enqueue %s: %w", child.ID, err)
			}
		}
		if err := parent.MarkProcessing(); err != nil {
			return err
		}
		return s.jobs.UpdateJob(ctx, parent)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("batch upload confirmed", "tenant_id", organizationID, "job_id", parent.ID, "enqueued", len(pending))
	audit.Record(ctx, s.audit, s.logger, models.AuditJobConfirmed, parent, map[string]any{"enqueued": len(pending)})

	resp := parent.ToResponse()
	return &resp, nil
}

// submit charges req, creates job with the granted priority and queues it.
func (s *IngestService) submit(ctx context.Context, job *models.IngestionJob, req quota.Request) error {
	return s.reserve(ctx, job.OrganizationID, req, func(ctx context.Context, priority int) error {
		job.Priority = priority
		if err := s.jobs.CreateJob(ctx, job); err != nil {
			return err
		}
		return s.queue.Enqueue(ctx, job)
	})
}

func (s *IngestService) submitted(ctx context.Context, job *models.IngestionJob, detail map[string]any) *models.IngestionJobResponse {
	s.logger.Info("job submitted", "tenant_id", job.OrganizationID, "job_id", job.ID, "job_type", job.JobType, "size", job.FileSize, "priority", job.Priority)
	audit.Record(ctx, s.audit, s.logger, models.AuditJobInitiated, job, detail)
	resp := job.ToResponse()
	return &resp
}

// SubmitText queues pasted text. The content travels in the job row.
func (s *IngestService) SubmitText(ctx context.Context, organizationID string, req models.TextInputRequest) (*models.IngestionJobResponse, error) {
	if err := s.validateContent(req.Content); err != nil {
		return nil, err
	}
	title, fileName := defaultTextTitle, defaultTextFileName
	if t := strings.TrimSpace(req.Title); t != "" {
		title, fileName = t, t
	}
	meta, err := models.EncodeMetadata(models.TextInputMetadata{Title: title, ContentLength: len(req.Content), Extra: req.Metadata})
	if err != nil {
		return nil, err
	}

	size := int64(len(req.Content))
	job := s.newJob(organizationID, models.JobTypeTextInput, req.KnowledgeBaseID, 0)
	job.SourceType = models.SourceTypeText
	job.SourceReference = req.Content
	job.FileName = fileName
	job.FileSize = size
	job.MimeType = "text/plain"
	job.Metadata = meta

	if err := s.submit(ctx, job, quota.Request{Bytes: size, LargestFile: size, Jobs: 1}); err != nil {
		return nil, contentQuotaError(err)
	}
	return s.submitted(ctx, job, map[string]any{"contentLength": size}), nil
}

// SubmitScrape queues a single page fetch or a bounded crawl.
func (s *IngestService) SubmitScrape(ctx context.Context, organizationID string, req models.WebScrapeRequest) (*models.IngestionJobResponse, error) {
	if err := validateURL(req.URL, messages.InvalidURL, messages.InvalidURLScheme); err != nil {
		return nil, err
	}
	opts := models.DefaultWebScrapeMetadata()
	if req.Crawl {
		opts.Mode = models.ScrapeModeCrawl
	}
	if req.MaxDepth > 0 {
		opts.MaxDepth = req.MaxDepth
	}
	if req.MaxPages > 0 {
		opts.MaxPages = req.MaxPages
	}
	opts.FollowExternalLinks = req.FollowExternalLinks
	opts.IncludePatterns = req.IncludePatterns
	opts.ExcludePatterns = req.ExcludePatterns
	meta, err := models.EncodeMetadata(opts)
	if err != nil {
		return nil, err
	}

	job := s.newJob(organizationID, models.JobTypeWebScrape, req.KnowledgeBaseID, 0)
	job.SourceType = models.SourceTypeURL
	job.SourceReference = strings.TrimSpace(req.URL)
	job.FileName = job.SourceReference
	job.MimeType = "text/html"
	job.Metadata = meta

	if err := s.submit(ctx, job, quota.Request{Jobs: 1}); err != nil {
		return nil, err
	}
	return s.submitted(ctx, job, map[string]any{"url": job.SourceReference, "mode": opts.Mode}), nil
}

// SubmitRssFeed queues an RSS or Atom feed import.
func (s *IngestService) SubmitRssFeed(ctx context.Context, organizationID string, req models.RssFeedRequest) (*models.IngestionJobResponse, error) {
	if err := validateURL(req.FeedURL, messages.InvalidFeedURL, messages.InvalidFeedURLScheme); err != nil {
		return nil, err
	}
	feedURL := strings.TrimSpace(req.FeedURL)
	name := strings.TrimSpace(req.SourceName)
	if name == "" {
		name = feedName(feedURL)
	}
	maxItems := req.MaxItems
	if maxItems <= 0 {
		maxItems = defaultFeedMaxItems
	}
	fullContent := true
	if req.IncludeFullContent != nil {
		fullContent = *req.IncludeFullContent
	}
	meta, err := models.EncodeMetadata(models.RssFeedMetadata{FeedURL: feedURL, SourceName: name, MaxItems: maxItems, IncludeFullContent: fullContent})
	if err != nil {
		return nil, err
	}

	job := s.newJob(organizationID, models.JobTypeRssFeed, req.KnowledgeBaseID, 0)
	job.SourceType = models.SourceTypeRssFeed
	job.SourceReference = feedURL
	job.FileName = name
	job.MimeType = "application/rss+xml"
	job.Metadata = meta

	if err := s.submit(ctx, job, quota.Request{Jobs: 1}); err != nil {
		return nil, err
	}
	return s.submitted(ctx, job, map[string]any{"feedUrl": feedURL, "maxItems": maxItems}), nil
}

// SubmitQAPairs queues curated question and answer pairs.
func (s *IngestService) SubmitQAPairs(ctx context.Context, organizationID string, req models.QAPairsRequest) (*models.IngestionJobResponse, error) {
	if err := s.validatePairs(req.Pairs); err != nil {
		return nil, err
	}
	sourceName, fileName := defaultQASourceName, defaultQAFileName
	if n := strings.TrimSpace(req.SourceName); n != "" {
		sourceName, fileName = n, n
	}
	meta, err := models.EncodeMetadata(models.QAPairsMetadata{Pairs: req.Pairs, SourceName: sourceName, PairCount: len(req.Pairs)})
	if err != nil {
		return nil, err
	}

	var size int64
	for _, p := range req.Pairs {
		size += int64(len(p.Question) + len(p.Answer))
	}

	job := s.newJob(organizationID, models.JobTypeQAImport, req.KnowledgeBaseID, 0)
	job.SourceType = models.SourceTypeQAPair
	job.FileName = fileName
	job.FileSize = size
	job.MimeType = "application/json"
	job.Metadata = meta

	if err := s.submit(ctx, job, quota.Request{Bytes: size, LargestFile: size, Jobs: 1}); err != nil {
		return nil, contentQuotaError(err)
	}
	return s.submitted(ctx, job, map[string]any{"pairCount": len(req.Pairs)}), nil
}
