package core

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingGateway embeds with the model configured for a knowledge base.
type EmbeddingGateway interface {
	GenerateEmbeddings(ctx context.Context, texts []string, model *models.EmbeddingModel) ([][]float32, error)
}
