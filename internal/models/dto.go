package models

import "time"

// IngestionJobResponse is the client view of a job.
type IngestionJobResponse struct {
	ID                   string     `json:"id"`
	OrganizationID       string     `json:"organizationId"`
	KnowledgeBaseID      *string    `json:"knowledgeBaseId,omitempty"`
	ParentJobID          *string    `json:"parentJobId,omitempty"`
	JobType              JobType    `json:"jobType"`
	Status               JobStatus  `json:"status"`
	SourceType           SourceType `json:"sourceType,omitempty"`
	FileName             string     `json:"fileName,omitempty"`
	FileSize             int64      `json:"fileSize"`
	MimeType             string     `json:"mimeType,omitempty"`
	Progress             int        `json:"progress"`
	ErrorMessage         *string    `json:"errorMessage,omitempty"`
	RetryCount           int        `json:"retryCount"`
	ChunksCreated        int        `json:"chunksCreated"`
	BytesProcessed       int64      `json:"bytesProcessed"`
	EmbeddingsCreated    int        `json:"embeddingsCreated"`
	CreatedAt            time.Time  `json:"createdAt"`
	StartedAt            *time.Time `json:"startedAt,omitempty"`
	CompletedAt          *time.Time `json:"completedAt,omitempty"`
	ProcessingDurationMs *int64     `json:"processingDurationMs,omitempty"`
}

// ToResponse maps a job row to its response DTO.
func (j *IngestionJob) ToResponse() IngestionJobResponse {
	return IngestionJobResponse{
		ID:                   j.ID,
		OrganizationID:       j.OrganizationID,
		KnowledgeBaseID:      j.KnowledgeBaseID,
		ParentJobID:          j.ParentJobID,
		JobType:              j.JobType,
		Status:               j.Status,
		SourceType:           j.SourceType,
		FileName:             j.FileName,
		FileSize:             j.FileSize,
		MimeType:             j.MimeType,
		Progress:             j.Progress,
		ErrorMessage:         j.ErrorMessage,
		RetryCount:           j.RetryCount,
		ChunksCreated:        j.ChunksCreated,
		BytesProcessed:       j.BytesProcessed,
		EmbeddingsCreated:    j.EmbeddingsCreated,
		CreatedAt:            j.CreatedAt,
		StartedAt:            j.StartedAt,
		CompletedAt:          j.CompletedAt,
		ProcessingDurationMs: j.ProcessingDurationMs,
	}
}

// PresignedUploadResponse is returned by single file and folder uploads.
type PresignedUploadResponse struct {
	JobID     string `json:"jobId"`
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
	ExpiresIn int64  `json:"expiresIn"`
}

type BatchFileUploadInfo struct {
	JobID     string `json:"jobId"`
	FileName  string `json:"fileName"`
	UploadURL string `json:"uploadUrl"`
	Key       string `json:"key"`
}

type BatchUploadResponse struct {
	BatchJobID string                `json:"batchJobId"`
	Files      []BatchFileUploadInfo `json:"files"`
	ExpiresIn  int64                 `json:"expiresIn"`
	TotalFiles int                   `json:"totalFiles"`
}

// JobPage is one page of a job listing.
type JobPage struct {
	Jobs  []IngestionJobResponse `json:"jobs"`
	Page  int                    `json:"page"`
	Size  int                    `json:"size"`
	Total int                    `json:"total"`
}

// JobFilter narrows a job listing.
type JobFilter struct {
	Status          *JobStatus
	KnowledgeBaseID *string
	Page            int
	Size            int
}

// QueueDepth reports queued work.
type QueueDepth struct {
	Total      int         `json:"total"`
	ByPriority map[int]int `json:"byPriority"`
}

type PresignedUploadRequest struct {
	FileName        string  `json:"fileName"`
	ContentType     string  `json:"contentType"`
	FileSize        int64   `json:"fileSize"`
	KnowledgeBaseID *string `json:"knowledgeBaseId,omitempty"`
}

type BatchFileInfo struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
}

type BatchUploadRequest struct {
	Files           []BatchFileInfo `json:"files"`
	KnowledgeBaseID *string         `json:"knowledgeBaseId,omitempty"`
}

type FolderUploadRequest struct {
	FileName          string  `json:"fileName"`
	FileSize          int64   `json:"fileSize"`
	KnowledgeBaseID   *string `json:"knowledgeBaseId,omitempty"`
	PreserveStructure *bool   `json:"preserveStructure,omitempty"`
}

type TextInputRequest struct {
	Content         string            `json:"content"`
	Title           string            `json:"title,omitempty"`
	KnowledgeBaseID *string           `json:"knowledgeBaseId,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// WebScrapeRequest leaves zero values to the scrape defaults.
type WebScrapeRequest struct {
	URL                 string   `json:"url"`
	KnowledgeBaseID     *string  `json:"knowledgeBaseId,omitempty"`
	Crawl               bool     `json:"crawl"`
	MaxDepth            int      `json:"maxDepth,omitempty"`
	MaxPages            int      `json:"maxPages,omitempty"`
	FollowExternalLinks bool     `json:"followExternalLinks"`
	IncludePatterns     []string `json:"includePatterns,omitempty"`
	ExcludePatterns     []string `json:"excludePatterns,omitempty"`
}

type RssFeedRequest struct {
	FeedURL            string  `json:"feedUrl"`
	SourceName         string  `json:"sourceName,omitempty"`
	MaxItems           int     `json:"maxItems,omitempty"`
	IncludeFullContent *bool   `json:"includeFullContent,omitempty"`
	KnowledgeBaseID    *string `json:"knowledgeBaseId,omitempty"`
}

type QAPairsRequest struct {
	Pairs           []QAPair `json:"pairs"`
	SourceName      string   `json:"sourceName,omitempty"`
	KnowledgeBaseID *string  `json:"knowledgeBaseId,omitempty"`
}

// QuotaResponse is a tenant's usage against its tier.
type QuotaResponse struct {
	OrganizationID    string    `json:"organizationId"`
	Tier              QuotaTier `json:"tier"`
	StorageUsedBytes  int64     `json:"storageUsedBytes"`
	StorageLimitBytes int64     `json:"storageLimitBytes"`
	MonthlyJobsUsed   int64     `json:"monthlyJobsUsed"`
	MonthlyJobLimit   int64     `json:"monthlyJobLimit"`
	MaxConcurrentJobs int       `json:"maxConcurrentJobs"`
	MaxFileSizeBytes  int64     `json:"maxFileSizeBytes"`
	ActiveJobs        int       `json:"activeJobs"`
	PeriodResetAt     time.Time `json:"periodResetAt"`
}

// ConfirmUploadRequest names the job whose upload finished.
type ConfirmUploadRequest struct {
	JobID string `json:"jobId"`
}

// CancelJobResponse reports the outcome of a cancel request.
type CancelJobResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
