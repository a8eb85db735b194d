package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func (c *DatabaseClient) CreateKnowledgeSource(ctx context.Context, knowledgeBaseID string, req models.CreateKnowledgeSourceRequest) (*models.KnowledgeSource, error) {
	meta, err := json.Marshal(orEmpty(req.Metadata))
	if err != nil {
		return nil, fmt.Errorf("encode source metadata: %w", err)
	}
	src := &models.KnowledgeSource{
		ID:              uuid.NewString(),
		KnowledgeBaseID: knowledgeBaseID,
		SourceType:      req.SourceType,
		FileName:        req.FileName,
		SourceURL:       req.SourceURL,
		Title:           req.Title,
		MimeType:        req.MimeType,
		FileSize:        req.FileSize,
		S3Key:           req.S3Key,
		IngestionJobID:  req.IngestionJobID,
		Metadata:        req.Metadata,
		CreatedAt:       time.Now().UTC(),
	}

	const q = `
		INSERT INTO knowledge_sources
			(id, knowledge_base_id, source_type, file_name, source_url, title,
			 mime_type, file_size, s3_key, ingestion_job_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12)
	`
	_, err = c.conn(ctx).ExecContext(ctx, q,
		src.ID, src.KnowledgeBaseID, src.SourceType, src.FileName, src.SourceURL, src.Title,
		src.MimeType, src.FileSize, src.S3Key, models.StringPtr(src.IngestionJobID), string(meta), src.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert knowledge source: %w", err)
	}
	return src, nil
}

// PutEmbeddingModel sets the embedding model of a knowledge base.
func (c *DatabaseClient) PutEmbeddingModel(ctx context.Context, m models.EmbeddingModel) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	const q = `
		INSERT INTO embedding_models (id, knowledge_base_id, provider, model_name, dimensions)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (knowledge_base_id) DO UPDATE SET
			provider = EXCLUDED.provider,
			model_name = EXCLUDED.model_name,
			dimensions = EXCLUDED.dimensions
	`
	if _, err := c.conn(ctx).ExecContext(ctx, q, m.ID, m.KnowledgeBaseID, m.Provider, m.ModelName, m.Dimensions); err != nil {
		return fmt.Errorf("put embedding model: %w", err)
	}
	return nil
}

func (c *DatabaseClient) FindByKnowledgeBase(ctx context.Context, knowledgeBaseID string) (*models.EmbeddingModel, error) {
	const q = `
		SELECT id, knowledge_base_id, provider, model_name, dimensions
		FROM embedding_models
		WHERE knowledge_base_id = $1
	`
	var m models.EmbeddingModel
	err := c.conn(ctx).QueryRowContext(ctx, q, knowledgeBaseID).Scan(
		&m.ID, &m.KnowledgeBaseID, &m.Provider, &m.ModelName, &m.Dimensions,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// StoreEmbeddings inserts chunks in a single transaction.
func (c *DatabaseClient) StoreEmbeddings(ctx context.Context, knowledgeBaseID, sourceID string, chunks []models.TextChunk) ([]string, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	const q = `
		INSERT INTO knowledge_chunks
			(id, knowledge_base_id, source_id, content, embedding, chunk_index, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
	`
	ids := make([]string, 0, len(chunks))
	err := c.WithTx(ctx, func(ctx context.Context) error {
		stmt, err := c.conn(ctx).PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range chunks {
			ch := &chunks[i]
			id := ch.ID
			if id == "" {
				id = uuid.NewString()
			}
			meta, err := json.Marshal(orEmpty(ch.Metadata))
			if err != nil {
				return fmt.Errorf("encode chunk metadata: %w", err)
			}
			vec := pgvector.NewVector(ch.Embedding)
			if _, err := stmt.ExecContext(ctx,
				id, knowledgeBaseID, sourceID, ch.Content, vec, ch.ChunkIndex, string(meta),
			); err != nil {
				return fmt.Errorf("insert chunk %d: %w", ch.ChunkIndex, err)
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ChunksBySource returns the stored chunks of a source in order.
func (c *DatabaseClient) ChunksBySource(ctx context.Context, sourceID string) ([]models.TextChunk, error) {
	const q = `
		SELECT id, content, embedding, chunk_index, metadata
		FROM knowledge_chunks
		WHERE source_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.conn(ctx).QueryContext(ctx, q, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TextChunk
	for rows.Next() {
		var (
			ch   models.TextChunk
			emb  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(&ch.ID, &ch.Content, &emb, &ch.ChunkIndex, &meta); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ch.Metadata); err != nil {
				return nil, fmt.Errorf("decode chunk metadata: %w", err)
			}
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
