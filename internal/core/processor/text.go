package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core/chunking"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// TextProcessor chunks pasted text. The text travels in SourceReference.
type TextProcessor struct {
	Deps
}

func NewTextProcessor(deps Deps) *TextProcessor {
	return &TextProcessor{Deps: deps}
}

func (p *TextProcessor) Supports(jobType models.JobType) bool {
	return jobType == models.JobTypeTextInput
}

func (p *TextProcessor) Process(ctx context.Context, job *models.IngestionJob) error {
	content := job.SourceReference
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("no content for text input job %s", job.ID)
	}
	if err := p.progress(ctx, job, 10); err != nil {
		return err
	}

	meta, err := models.DecodeMetadata(job)
	if err != nil {
		return err
	}
	title := meta.(models.TextInputMetadata).Title

	res := p.Chunker.Chunk(ctx, chunking.Document{ID: job.ID, Content: content, MimeType: "text/plain"}, p.Chunk)
	if err := p.progress(ctx, job, 30); err != nil {
		return err
	}

	if err := p.progress(ctx, job, 50); err != nil {
		return err
	}
	_, err = p.publish(ctx, job, models.CreateKnowledgeSourceRequest{
		SourceType: models.SourceTypeText,
		Title:      title,
		MimeType:   "text/plain",
		FileSize:   int64(len(content)),
		Metadata:   map[string]any{"type": "text_input"},
	}, models.ChunkJobData{
		Chunks:           chunkInfos(chunkContents(res.Chunks)),
		SourceType:       string(models.SourceTypeText),
		Title:            title,
		ChunkingStrategy: res.StrategyUsed,
		QualityScore:     qualityScore(res),
	})
	if err != nil {
		return err
	}
	if err := p.progress(ctx, job, 90); err != nil {
		return err
	}

	p.logger().Info("text input processed", "job_id", job.ID, "chunks", len(res.Chunks))
	return p.complete(ctx, job, len(res.Chunks), int64(len(content)))
}
