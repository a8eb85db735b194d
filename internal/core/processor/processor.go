// Package processor turns claimed ingestion jobs into knowledge sources and
// embedding work. Each job type has one Processor; the Dispatcher picks it.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/chunking"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// ErrNoProcessor is returned for a job type nothing handles.
var ErrNoProcessor = errors.New("no processor for job type")

// Processor handles one family of jobs. Process receives a PROCESSING job and
// leaves it COMPLETED, FAILED or, for aggregate parents, still PROCESSING.
// A returned error means the job should be failed with that message.
type Processor interface {
	Supports(jobType models.JobType) bool
	Process(ctx context.Context, job *models.IngestionJob) error
}

// Deps are the collaborators shared by the processors.
type Deps struct {
	Jobs    core.JobStore
	Queue   core.JobQueue
	Tx      core.TxRunner
	Objects core.ObjectClient
	Sources core.KnowledgeSourceRegistry
	Chunker *chunking.Service
	Chunk   chunking.Config
	Logger  *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func (d Deps) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if d.Tx == nil {
		return fn(ctx)
	}
	return d.Tx.WithTx(ctx, fn)
}

// progress moves the job forward and persists the value right away.
func (d Deps) progress(ctx context.Context, job *models.IngestionJob, percent int) error {
	if err := job.UpdateProgress(percent); err != nil {
		return err
	}
	return d.Jobs.UpdateProgress(ctx, job.ID, percent)
}

// save persists a job the worker is processing. A claimed job is only
// written while lease is still the stored claim.
func (d Deps) save(ctx context.Context, job *models.IngestionJob, lease *models.Lease) error {
	if lease == nil {
		return d.Jobs.UpdateJob(ctx, job)
	}
	return d.Jobs.UpdateLeasedJob(ctx, job, *lease)
}

// complete marks the job done and saves it.
func (d Deps) complete(ctx context.Context, job *models.IngestionJob, chunks int, bytes int64) error {
	lease := job.Lease()
	if err := job.MarkCompleted(chunks, bytes); err != nil {
		return err
	}
	return d.save(ctx, job, lease)
}

// publish registers a knowledge source for the job's knowledge base and
// enqueues an EMBEDDING child carrying the chunks. Both happen in one transaction,
// and only while the worker still holds the parent.
func (d Deps) publish(ctx context.Context, parent *models.IngestionJob, req models.CreateKnowledgeSourceRequest, data models.ChunkJobData) (*models.IngestionJob, error) {
	if parent.KnowledgeBaseID == nil {
		return nil, nil
	}
	payload, err := models.EncodeMetadata(data)
	if err != nil {
		return nil, err
	}
	req.IngestionJobID = parent.ID

	var child *models.IngestionJob
	err = d.withTx(ctx, func(ctx context.Context) error {
		src, err := d.Sources.CreateKnowledgeSource(ctx, *parent.KnowledgeBaseID, req)
		if err != nil {
			return fmt.Errorf("create knowledge source: %w", err)
		}
		sourceID := src.ID
		parent.KnowledgeSourceID = &sourceID
		if err := d.save(ctx, parent, parent.Lease()); err != nil {
			return err
		}

		child = models.NewChildJob(uuid.NewString(), parent, models.JobTypeEmbedding)
		child.KnowledgeSourceID = &sourceID
		child.Metadata = payload
		child.FileName = parent.FileName
		child.MimeType = parent.MimeType
		child.SourceType = req.SourceType
		if req.SourceURL != "" {
			child.SourceReference = req.SourceURL
		}
		if err := d.Queue.Enqueue(ctx, child); err != nil {
			return fmt.Errorf("enqueue embedding job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.logger().Info("embedding job created",
		"job_id", parent.ID,
		"child_id", child.ID,
		"chunks", len(data.Chunks),
	)
	return child, nil
}

// chunkInfos numbers chunk contents in order.
func chunkInfos(contents []string) []models.ChunkInfo {
	out := make([]models.ChunkInfo, len(contents))
	for i, c := range contents {
		out[i] = models.ChunkInfo{Index: i, Content: c}
	}
	return out
}

func chunkContents(chunks []models.DocumentChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}

func qualityScore(res chunking.Result) *float64 {
	if res.Quality == nil {
		return nil
	}
	s := res.Quality.OverallScore
	return &s
}

// Dispatcher routes a job to the first processor that supports its type.
type Dispatcher struct {
	processors []Processor
}

func NewDispatcher(processors ...Processor) *Dispatcher {
	return &Dispatcher{processors: processors}
}

func (d *Dispatcher) Supports(jobType models.JobType) bool {
	return d.find(jobType) != nil
}

func (d *Dispatcher) Process(ctx context.Context, job *models.IngestionJob) error {
	p := d.find(job.JobType)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNoProcessor, job.JobType)
	}
	return p.Process(ctx, job)
}

func (d *Dispatcher) find(jobType models.JobType) Processor {
	for _, p := range d.processors {
		if p.Supports(jobType) {
			return p
		}
	}
	return nil
}
