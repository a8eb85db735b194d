package core

import (
	"context"
	"io"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// ExtractedText represents the result of text extraction, potentially with metadata.
type ExtractedText struct {
	Text     string
	Metadata map[string]string
}

// DocumentExtractor turns an uploaded file into plain text.
// The mimeType hint helps the extractor choose the right parser.
type DocumentExtractor interface {
	ExtractText(ctx context.Context, r io.Reader, mimeType string) (*ExtractedText, error)
}

// FeedParser fetches and normalizes an RSS or Atom feed.
type FeedParser interface {
	Parse(ctx context.Context, feedURL string, maxItems int) (*models.ParsedFeed, error)
}

// WebScraper fetches one page or crawls a site.
type WebScraper interface {
	Scrape(ctx context.Context, url string, opts models.WebScrapeMetadata) ([]models.ScrapedPage, error)
}
