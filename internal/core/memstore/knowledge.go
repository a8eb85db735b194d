package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func (s *Store) CreateKnowledgeSource(_ context.Context, knowledgeBaseID string, req models.CreateKnowledgeSourceRequest) (*models.KnowledgeSource, error) {
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[src.ID] = src
	return src, nil
}

// KnowledgeSources lists the sources of a knowledge base.
func (s *Store) KnowledgeSources(knowledgeBaseID string) []models.KnowledgeSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.KnowledgeSource
	for _, src := range s.sources {
		if src.KnowledgeBaseID == knowledgeBaseID {
			out = append(out, *src)
		}
	}
	return out
}

// PutEmbeddingModel configures the embedding model of a knowledge base.
func (s *Store) PutEmbeddingModel(m models.EmbeddingModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.embedCfg[m.KnowledgeBaseID] = &m
}

func (s *Store) FindByKnowledgeBase(_ context.Context, knowledgeBaseID string) (*models.EmbeddingModel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.embedCfg[knowledgeBaseID]
	if !ok {
		return nil, nil
	}
	c := *m
	return &c, nil
}

func (s *Store) StoreEmbeddings(_ context.Context, knowledgeBaseID, sourceID string, chunks []models.TextChunk) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		s.vectors[knowledgeBaseID] = append(s.vectors[knowledgeBaseID], c)
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Vectors returns the stored records of a knowledge base.
func (s *Store) Vectors(knowledgeBaseID string) []models.TextChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TextChunk(nil), s.vectors[knowledgeBaseID]...)
}
