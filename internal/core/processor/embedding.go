package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// EmbeddingProcessor embeds the chunks carried by an EMBEDDING job and stores the vectors.
type EmbeddingProcessor struct {
	Deps
	modelStore core.EmbeddingModelStore
	gateway    core.EmbeddingGateway
	vectors    core.VectorStore
}

func NewEmbeddingProcessor(deps Deps, modelStore core.EmbeddingModelStore, gateway core.EmbeddingGateway, vectors core.VectorStore) *EmbeddingProcessor {
	return &EmbeddingProcessor{Deps: deps, modelStore: modelStore, gateway: gateway, vectors: vectors}
}

func (p *EmbeddingProcessor) Supports(jobType models.JobType) bool {
	return jobType == models.JobTypeEmbedding
}

func (p *EmbeddingProcessor) Process(ctx context.Context, job *models.IngestionJob) error {
	if job.KnowledgeBaseID == nil {
		return fmt.Errorf("embedding job %s has no knowledge base", job.ID)
	}
	if job.KnowledgeSourceID == nil {
		return fmt.Errorf("embedding job %s has no knowledge source", job.ID)
	}
	kbID, sourceID := *job.KnowledgeBaseID, *job.KnowledgeSourceID

	model, err := p.modelStore.FindByKnowledgeBase(ctx, kbID)
	if err != nil {
		return fmt.Errorf("load embedding model: %w", err)
	}
	if model == nil {
		return fmt.Errorf("%w for knowledge base %s", core.ErrEmbeddingModelNotFound, kbID)
	}
	if err := p.progress(ctx, job, 10); err != nil {
		return err
	}

	decoded, err := models.DecodeMetadata(job)
	if err != nil {
		return err
	}
	data := decoded.(models.ChunkJobData)
	if err := p.progress(ctx, job, 20); err != nil {
		return err
	}

	texts := make([]string, len(data.Chunks))
	var bytes int64
	for i, c := range data.Chunks {
		texts[i] = c.Content
		bytes += int64(len(c.Content))
	}
	vectors, err := p.gateway.GenerateEmbeddings(ctx, texts, model)
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("embedding count mismatch: got %d want %d", len(vectors), len(texts))
	}
	if err := p.progress(ctx, job, 60); err != nil {
		return err
	}

	createdAt := time.Now().UTC().Format(time.RFC3339)
	records := make([]models.TextChunk, len(data.Chunks))
	for i, c := range data.Chunks {
		records[i] = models.TextChunk{
			ID:         uuid.NewString(),
			Content:    c.Content,
			Embedding:  vectors[i],
			ChunkIndex: c.Index,
			Metadata: map[string]any{
				"sourceId":    sourceID,
				"sourceType":  data.SourceType,
				"fileName":    data.FileName,
				"sourceUrl":   data.SourceURL,
				"title":       data.Title,
				"totalChunks": len(data.Chunks),
				"createdAt":   createdAt,
			},
		}
	}
	if err := p.progress(ctx, job, 80); err != nil {
		return err
	}

	ids, err := p.vectors.StoreEmbeddings(ctx, kbID, sourceID, records)
	if err != nil {
		return fmt.Errorf("store embeddings: %w", err)
	}
	if err := p.progress(ctx, job, 90); err != nil {
		return err
	}

	job.EmbeddingsCreated = len(ids)
	p.logger().Info("embeddings stored",
		"job_id", job.ID,
		"knowledge_base_id", kbID,
		"model", model.ModelName,
		"count", len(ids),
	)
	return p.complete(ctx, job, len(records), bytes)
}
