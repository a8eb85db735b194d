// Package memstore is an in-memory implementation of the job, queue, quota,
// knowledge and object stores. It backs unit tests and local runs without
// Postgres or S3. Transactions have no isolation or rollback.
package memstore

import (
	"context"
	"sync"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

type Store struct {
	mu sync.Mutex

	jobs     map[string]*models.IngestionJob
	seq      map[string]int64
	next     int64
	quotas   map[string]*models.OrganizationQuota
	sources  map[string]*models.KnowledgeSource
	embedCfg map[string]*models.EmbeddingModel
	vectors  map[string][]models.TextChunk
	objects  map[string]object
}

type object struct {
	data        []byte
	contentType string
}

func New() *Store {
	return &Store{
		jobs:     make(map[string]*models.IngestionJob),
		seq:      make(map[string]int64),
		quotas:   make(map[string]*models.OrganizationQuota),
		sources:  make(map[string]*models.KnowledgeSource),
		embedCfg: make(map[string]*models.EmbeddingModel),
		vectors:  make(map[string][]models.TextChunk),
		objects:  make(map[string]object),
	}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func copyJob(j *models.IngestionJob) *models.IngestionJob {
	c := *j
	return &c
}
