package models

import "time"

// KnowledgeSource is one logical origin of content within a knowledge base.
type KnowledgeSource struct {
	ID              string         `db:"id" json:"id"`
	KnowledgeBaseID string         `db:"knowledge_base_id" json:"knowledgeBaseId"`
	SourceType      SourceType     `db:"source_type" json:"sourceType"`
	FileName        string         `db:"file_name" json:"fileName,omitempty"`
	SourceURL       string         `db:"source_url" json:"sourceUrl,omitempty"`
	Title           string         `db:"title" json:"title"`
	MimeType        string         `db:"mime_type" json:"mimeType,omitempty"`
	FileSize        int64          `db:"file_size" json:"fileSize"`
	S3Key           string         `db:"s3_key" json:"s3Key,omitempty"`
	IngestionJobID  string         `db:"ingestion_job_id" json:"ingestionJobId"`
	Metadata        map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"createdAt"`
}

// CreateKnowledgeSourceRequest registers a source under a knowledge base.
type CreateKnowledgeSourceRequest struct {
	SourceType     SourceType
	FileName       string
	SourceURL      string
	Title          string
	MimeType       string
	FileSize       int64
	S3Key          string
	IngestionJobID string
	Metadata       map[string]any
}

// EmbeddingModel is the embedding configuration of a knowledge base.
type EmbeddingModel struct {
	ID              string `db:"id" json:"id"`
	KnowledgeBaseID string `db:"knowledge_base_id" json:"knowledgeBaseId"`
	Provider        string `db:"provider" json:"provider"`
	ModelName       string `db:"model_name" json:"modelName"`
	Dimensions      int    `db:"dimensions" json:"dimensions"`
}

// TextChunk is one stored vector record.
type TextChunk struct {
	ID         string         `db:"id" json:"id"`
	Content    string         `db:"content" json:"content"`
	Embedding  []float32      `db:"embedding" json:"-"`
	ChunkIndex int            `db:"chunk_index" json:"chunkIndex"`
	Metadata   map[string]any `db:"metadata" json:"metadata"`
}

// PresignedUpload is what the storage gateway hands back for a client upload.
type PresignedUpload struct {
	UploadURL string
	Key       string
	ExpiresIn int64
}
