package ingestion_engine

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type Ingestor interface {
	Run(ctx context.Context) error
	ProcessOne(ctx context.Context, job *models.IngestionJob) error
	SweepOnce(ctx context.Context) (SweepResult, error)
}

var _ Ingestor = (*JobIngestor)(nil)
