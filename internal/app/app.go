// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/api/handlers"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/audit"
	"github.com/markdave123-py/contexta-ingest/internal/core/chunking"
	db "github.com/markdave123-py/contexta-ingest/internal/core/database"
	"github.com/markdave123-py/contexta-ingest/internal/core/extractor"
	"github.com/markdave123-py/contexta-ingest/internal/core/feed"
	"github.com/markdave123-py/contexta-ingest/internal/core/ingestion_engine"
	"github.com/markdave123-py/contexta-ingest/internal/core/llm"
	"github.com/markdave123-py/contexta-ingest/internal/core/lock"
	"github.com/markdave123-py/contexta-ingest/internal/core/memstore"
	objectclient "github.com/markdave123-py/contexta-ingest/internal/core/object-client"
	"github.com/markdave123-py/contexta-ingest/internal/core/processor"
	"github.com/markdave123-py/contexta-ingest/internal/core/quota"
	"github.com/markdave123-py/contexta-ingest/internal/core/scraper"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

// stores groups the persistence ports. Postgres backs all of them in
// production; the in-memory store stands in when DATABASE_URL is unset.
type stores struct {
	tx      core.TxRunner
	jobs    core.JobStore
	queue   core.JobQueue
	quotas  core.QuotaStore
	sources core.KnowledgeSourceRegistry
	models  core.EmbeddingModelStore
	vectors core.VectorStore
	objects core.ObjectClient
}

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Ingest   *services.IngestService
	Jobs     *services.JobService
	Ingestor *ingestion_engine.JobIngestor
	Server   *Server

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	st, err := a.openStores(appCtx)
	if err != nil {
		a.Close()
		return nil, err
	}

	locker, err := a.openLocker(appCtx)
	if err != nil {
		a.Close()
		return nil, err
	}

	pub, err := a.openPublisher()
	if err != nil {
		a.Close()
		return nil, err
	}

	quotas := quota.NewService(st.quotas, st.tx, locker, cfg.Tiers, logger)
	a.Ingest = services.NewIngestService(st.jobs, st.queue, st.tx, st.objects, quotas, pub, cfg.Ingestion, logger)
	a.Jobs = services.NewJobService(st.jobs, st.queue, st.tx, quotas, pub, logger)

	dispatcher, batch, err := a.processors(appCtx, st, quotas)
	if err != nil {
		a.Close()
		return nil, err
	}

	q := cfg.Ingestion.Queue
	a.Ingestor = ingestion_engine.NewJobIngestor(st.jobs, st.queue, dispatcher, batch, quotas, pub, ingestion_engine.IngestConfig{
		Workers:      cfg.Workers,
		PollInterval: q.PollInterval,
		BatchSize:    q.BatchSize,
		LockTimeout:  q.LockTimeout,
		SweepEvery:   q.SweepEvery,
		JobTimeout:   cfg.Ingestion.Limits.JobTimeout,
	}, logger.With("component", "ingestor"))

	a.Server = NewServer(cfg, handlers.NewIngestionHandler(a.Ingest, a.Jobs, logger), logger)
	return a, nil
}

func (a *App) openStores(ctx context.Context) (stores, error) {
	cfg := a.Config
	var st stores

	if cfg.DatabaseURL == "" {
		a.Logger.Warn("DATABASE_URL not set, using in-memory stores")
		mem := memstore.New()
		st = stores{tx: mem, jobs: mem, queue: mem, quotas: mem, sources: mem, models: mem, vectors: mem, objects: mem.Objects()}
	} else {
		client, err := db.NewDatabaseClient(ctx, cfg)
		if err != nil {
			return st, err
		}
		a.closers = append(a.closers, client.Close)
		if err := client.Bootstrap(ctx); err != nil {
			return st, err
		}
		a.Logger.Info("database initialized and ready")
		st = stores{tx: client, jobs: client, queue: db.NewQueue(client), quotas: client, sources: client, models: client, vectors: client}
	}

	if cfg.AwsAccessKey == "" {
		if st.objects == nil {
			a.Logger.Warn("AWS credentials not set, uploads are kept in memory")
			st.objects = memstore.New().Objects()
		}
		return st, nil
	}
	s3, err := objectclient.NewS3Client(ctx, cfg, a.Logger)
	if err != nil {
		return st, err
	}
	a.Logger.Info("object client initialized and ready", "bucket", cfg.BucketName)
	st.objects = s3
	return st, nil
}

// openLocker returns nil without Redis; quota then serializes in process.
func (a *App) openLocker(ctx context.Context) (lock.Locker, error) {
	if a.Config.RedisAddr == "" {
		return nil, nil
	}
	client, err := lock.NewRedisClient(ctx, a.Config.RedisAddr, a.Config.RedisDB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)
	return lock.NewRedisLocker(client, "contexta:lock:", a.Logger), nil
}

func (a *App) openPublisher() (core.AuditPublisher, error) {
	if a.Config.AMQPURL == "" {
		return audit.NewLogPublisher(a.Logger), nil
	}
	pub, err := audit.NewRabbitPublisher(a.Config.AMQPURL, a.Config.AMQPExchange)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pub.Close)
	return pub, nil
}

func (a *App) processors(ctx context.Context, st stores, quotas *quota.Service) (*processor.Dispatcher, *processor.BatchProcessor, error) {
	cfg := a.Config
	ing := cfg.Ingestion

	var (
		embedder chunking.Embedder
		gemini   *llm.GeminiEmbedder
	)
	if cfg.AIAPIKey != "" {
		var err error
		gemini, err = llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel, a.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
		}
		a.closers = append(a.closers, gemini.Close)
		embedder = gemini
	}

	chunkCfg := chunking.DefaultConfig()
	chunkCfg.ChunkSize = ing.Processing.ChunkSize
	chunkCfg.ChunkOverlap = ing.Processing.ChunkOverlap

	deps := processor.Deps{
		Jobs:    st.jobs,
		Queue:   st.queue,
		Tx:      st.tx,
		Objects: st.objects,
		Sources: st.sources,
		Chunker: chunking.NewService(embedder, a.Logger),
		Chunk:   chunkCfg,
		Logger:  a.Logger.With("component", "processor"),
	}

	web := scraper.New(scraper.Options{
		UserAgent:        ing.Scraping.UserAgent,
		Timeout:          ing.Scraping.Timeout,
		MaxContentLength: ing.Scraping.MaxContentLength,
	}, a.Logger)
	a.closers = append(a.closers, func() error { web.Close(); return nil })

	feeds := feed.NewParser(&http.Client{Timeout: ing.Scraping.Timeout}, ing.Scraping.UserAgent, a.Logger)
	batch := processor.NewBatchProcessor(deps)

	procs := []processor.Processor{
		processor.NewFileProcessor(deps, extractor.NewDocconvExtractor(false, ing.Scraping.MaxContentLength, a.Logger)),
		processor.NewTextProcessor(deps),
		processor.NewScrapeProcessor(deps, web),
		processor.NewRssProcessor(deps, feeds),
		processor.NewQAProcessor(deps),
		processor.NewFolderProcessor(deps, ing.Processing.SupportedMimeTypes, ing.Storage.UploadsPrefix, quotas),
		batch,
	}
	if gemini != nil {
		procs = append(procs, processor.NewEmbeddingProcessor(deps, st.models, gemini, st.vectors))
	} else {
		a.Logger.Warn("GEMINI_API_KEY not set, embedding jobs will fail")
	}
	return processor.NewDispatcher(procs...), batch, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.Logger.Warn("shutdown incomplete", "error", err)
	}
}

// Migrate applies the database schema and exits.
func Migrate(ctx context.Context, cfg *config.Config) error {
	client, err := db.NewDatabaseClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer client.Close()
	return client.Bootstrap(ctx)
}
