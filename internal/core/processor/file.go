package processor

import (
	"context"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/chunking"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// FileProcessor extracts, chunks and publishes an uploaded file.
type FileProcessor struct {
	Deps
	extractor core.DocumentExtractor
}

func NewFileProcessor(deps Deps, extractor core.DocumentExtractor) *FileProcessor {
	return &FileProcessor{Deps: deps, extractor: extractor}
}

func (p *FileProcessor) Supports(jobType models.JobType) bool {
	return jobType == models.JobTypeFileUpload
}

func (p *FileProcessor) Process(ctx context.Context, job *models.IngestionJob) error {
	if job.SourceReference == "" {
		return fmt.Errorf("no source reference for job %s", job.ID)
	}
	if err := p.progress(ctx, job, 10); err != nil {
		return err
	}

	body, err := p.Objects.GetFileStream(ctx, job.SourceReference)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", job.FileName, err)
	}
	defer body.Close()
	if err := p.progress(ctx, job, 30); err != nil {
		return err
	}

	mimeType := job.MimeType
	if mimeType == "" {
		mimeType = "text/plain"
	}
	extracted, err := p.extractor.ExtractText(ctx, body, mimeType)
	if err != nil {
		return fmt.Errorf("extract %s: %w", job.FileName, err)
	}
	if err := p.progress(ctx, job, 50); err != nil {
		return err
	}

	res := p.Chunker.Chunk(ctx, chunking.Document{
		ID:       job.ID,
		Content:  extracted.Text,
		MimeType: mimeType,
	}, p.Chunk)
	if err := p.progress(ctx, job, 80); err != nil {
		return err
	}
	p.logger().Info("file chunked",
		"job_id", job.ID,
		"file", job.FileName,
		"strategy", res.StrategyUsed,
		"chunks", len(res.Chunks),
		"duration", res.ProcessingTime,
	)

	if len(res.Chunks) > 0 {
		_, err = p.publish(ctx, job, models.CreateKnowledgeSourceRequest{
			SourceType: models.SourceTypePresignedUpload,
			FileName:   job.FileName,
			Title:      job.FileName,
			MimeType:   mimeType,
			FileSize:   job.FileSize,
			S3Key:      job.SourceReference,
			Metadata:   sourceMetadata(job, extracted),
		}, models.ChunkJobData{
			Chunks:           chunkInfos(chunkContents(res.Chunks)),
			SourceType:       "FILE",
			FileName:         job.FileName,
			Title:            job.FileName,
			ChunkingStrategy: res.StrategyUsed,
			QualityScore:     qualityScore(res),
		})
		if err != nil {
			return err
		}
	}

	return p.complete(ctx, job, len(res.Chunks), int64(len(extracted.Text)))
}

func sourceMetadata(job *models.IngestionJob, extracted *core.ExtractedText) map[string]any {
	meta := map[string]any{}
	if m, err := models.DecodeMetadata(job); err == nil {
		if fm, ok := m.(models.FolderChildMetadata); ok && fm.FolderPath != "" {
			meta["folderPath"] = fm.FolderPath
		}
	}
	if job.ParentJobID != nil {
		meta["parentJobId"] = *job.ParentJobID
	}
	for k, v := range extracted.Metadata {
		meta["doc."+k] = v
	}
	return meta
}
