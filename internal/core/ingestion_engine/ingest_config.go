package ingestion_engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/processor"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// IngestConfig tunes the worker pool.
//
// Workers:      jobs processed concurrently.
// PollInterval: idle wait between empty dequeues.
// BatchSize:    most jobs claimed per dequeue.
// LockTimeout:  a claim older than this is considered abandoned.
// SweepEvery:   period of the stale-lease and aggregation sweep.
// JobTimeout:   upper bound for a single Process call, kept below LockTimeout
//               so a live worker gives up before the sweeper expires its claim.
type IngestConfig struct {
	Workers      int
	PollInterval time.Duration
	BatchSize    int
	LockTimeout  time.Duration
	SweepEvery   time.Duration
	JobTimeout   time.Duration
}

func (c IngestConfig) normalized() IngestConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 30 * time.Minute
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = time.Minute
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 25 * time.Minute
	}
	if c.JobTimeout >= c.LockTimeout {
		c.JobTimeout = c.LockTimeout - c.LockTimeout/10
	}
	return c
}

// Aggregator settles a batch or folder parent from its children.
type Aggregator interface {
	Aggregate(ctx context.Context, parentID string) (*models.IngestionJob, error)
}

// QuotaReleaser gives back storage charged for work that will never complete.
type QuotaReleaser interface {
	Release(ctx context.Context, organizationID string, bytes, jobs int64) error
}

// JobIngestor drives claimed jobs through their processors:
//
// jobs:       job rows, reloaded after each Process call.
// queue:      durable queue the poller claims from.
// processor:  dispatcher over the per-type processors.
// aggregator: settles aggregate parents when a child finishes.
// quota:      releases storage on final failure.
// audit:      lifecycle events for the accounting side.
type JobIngestor struct {
	jobs       core.JobStore
	queue      core.JobQueue
	processor  processor.Processor
	aggregator Aggregator
	quota      QuotaReleaser
	audit      core.AuditPublisher
	cfg        IngestConfig
	workerID   string
	logger     *slog.Logger
	work       chan *models.IngestionJob
}
