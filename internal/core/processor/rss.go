package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// RssProcessor publishes one chunk per feed entry.
type RssProcessor struct {
	Deps
	feeds core.FeedParser
}

func NewRssProcessor(deps Deps, feeds core.FeedParser) *RssProcessor {
	return &RssProcessor{Deps: deps, feeds: feeds}
}

func (p *RssProcessor) Supports(jobType models.JobType) bool {
	return jobType == models.JobTypeRssFeed
}

func (p *RssProcessor) Process(ctx context.Context, job *models.IngestionJob) error {
	decoded, err := models.DecodeMetadata(job)
	if err != nil {
		return err
	}
	meta := decoded.(models.RssFeedMetadata)
	if meta.FeedURL == "" {
		return fmt.Errorf("no feed url for job %s", job.ID)
	}
	if err := p.progress(ctx, job, 10); err != nil {
		return err
	}

	feed, err := p.feeds.Parse(ctx, meta.FeedURL, meta.MaxItems)
	if err != nil {
		return err
	}
	if err := p.progress(ctx, job, 30); err != nil {
		return err
	}

	chunks := make([]string, len(feed.Items))
	var total, bytes int64
	for i, item := range feed.Items {
		chunks[i] = FormatFeedItem(item, meta.IncludeFullContent)
		total += int64(len(chunks[i]))
		bytes += int64(len(item.Title) + len(item.Content))
	}
	if err := p.progress(ctx, job, 50); err != nil {
		return err
	}

	title := feed.Title
	if meta.SourceName != "" {
		title = meta.SourceName
	}
	if len(chunks) > 0 {
		_, err = p.publish(ctx, job, models.CreateKnowledgeSourceRequest{
			SourceType: models.SourceTypeRssFeed,
			SourceURL:  meta.FeedURL,
			Title:      title,
			MimeType:   "application/rss+xml",
			FileSize:   total,
			Metadata: map[string]any{
				"type":       "rss_feed",
				"entryCount": len(chunks),
				"feedUrl":    meta.FeedURL,
			},
		}, models.ChunkJobData{
			Chunks:     chunkInfos(chunks),
			SourceType: string(models.SourceTypeRssFeed),
			SourceURL:  meta.FeedURL,
			Title:      title,
		})
		if err != nil {
			return err
		}
	}
	if err := p.progress(ctx, job, 90); err != nil {
		return err
	}

	p.logger().Info("rss feed processed", "job_id", job.ID, "feed", title, "entries", len(chunks))
	return p.complete(ctx, job, len(chunks), bytes)
}

// FormatFeedItem renders an entry with its headers above the body.
func FormatFeedItem(item models.FeedItem, fullContent bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n\n", item.Title)
	if item.Author != "" {
		fmt.Fprintf(&b, "Author: %s\n", item.Author)
	}
	if item.Published != nil {
		fmt.Fprintf(&b, "Published: %s\n", item.Published.UTC().Format(time.RFC3339))
	}
	if item.Link != "" {
		fmt.Fprintf(&b, "Link: %s\n", item.Link)
	}
	if len(item.Categories) > 0 {
		fmt.Fprintf(&b, "Categories: %s\n", strings.Join(item.Categories, ", "))
	}
	b.WriteString("\n")

	body := item.Description
	if fullContent && strings.TrimSpace(item.Content) != "" || body == "" {
		body = item.Content
	}
	b.WriteString(body)
	return b.String()
}
