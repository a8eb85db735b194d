package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/chunking"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// pageSeparator joins scraped pages before chunking.
const pageSeparator = "\n\n---\n\n"

// ScrapeProcessor fetches a page or crawls a site and publishes the text as one source.
type ScrapeProcessor struct {
	Deps
	scraper core.WebScraper
}

func NewScrapeProcessor(deps Deps, scraper core.WebScraper) *ScrapeProcessor {
	return &ScrapeProcessor{Deps: deps, scraper: scraper}
}

func (p *ScrapeProcessor) Supports(jobType models.JobType) bool {
	return jobType == models.JobTypeWebScrape
}

func (p *ScrapeProcessor) Process(ctx context.Context, job *models.IngestionJob) error {
	if job.SourceReference == "" {
		return fmt.Errorf("no url for web scrape job %s", job.ID)
	}
	decoded, err := models.DecodeMetadata(job)
	if err != nil {
		return err
	}
	meta := decoded.(models.WebScrapeMetadata)
	if err := p.progress(ctx, job, 10); err != nil {
		return err
	}

	pages, err := p.scraper.Scrape(ctx, job.SourceReference, meta)
	if err != nil {
		return fmt.Errorf("scrape %s: %w", job.SourceReference, err)
	}
	if err := p.progress(ctx, job, 70); err != nil {
		return err
	}

	texts := make([]string, 0, len(pages))
	urls := make([]string, 0, len(pages))
	for _, pg := range pages {
		if strings.TrimSpace(pg.Content) == "" {
			continue
		}
		texts = append(texts, pg.Content)
		urls = append(urls, pg.URL)
	}
	content := strings.Join(texts, pageSeparator)

	title := job.SourceReference
	if len(pages) > 0 && pages[0].Title != "" {
		title = pages[0].Title
	}

	res := p.Chunker.Chunk(ctx, chunking.Document{ID: job.ID, Content: content, MimeType: "text/html"}, p.Chunk)
	if len(res.Chunks) > 0 {
		_, err = p.publish(ctx, job, models.CreateKnowledgeSourceRequest{
			SourceType: models.SourceTypeURL,
			SourceURL:  job.SourceReference,
			Title:      title,
			MimeType:   "text/html",
			FileSize:   int64(len(content)),
			Metadata: map[string]any{
				"mode":      string(meta.Mode),
				"pageCount": len(urls),
				"pages":     urls,
			},
		}, models.ChunkJobData{
			Chunks:           chunkInfos(chunkContents(res.Chunks)),
			SourceType:       string(models.SourceTypeURL),
			SourceURL:        job.SourceReference,
			Title:            title,
			ChunkingStrategy: res.StrategyUsed,
			QualityScore:     qualityScore(res),
		})
		if err != nil {
			return err
		}
	}
	if err := p.progress(ctx, job, 90); err != nil {
		return err
	}

	p.logger().Info("web scrape processed", "job_id", job.ID, "pages", len(pages), "chunks", len(res.Chunks))
	return p.complete(ctx, job, len(res.Chunks), int64(len(content)))
}
