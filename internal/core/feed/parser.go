package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var _ core.FeedParser = (*Parser)(nil)

// Parser fetches RSS and Atom feeds and strips entry HTML to text.
type Parser struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

func NewParser(client *http.Client, userAgent string, logger *slog.Logger) *Parser {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{client: client, userAgent: userAgent, logger: logger}
}

// Parse returns at most maxItems entries. Entries without title and content are skipped.
func (p *Parser) Parse(ctx context.Context, feedURL string, maxItems int) (*models.ParsedFeed, error) {
	fp := gofeed.NewParser()
	fp.Client = p.client
	if p.userAgent != "" {
		fp.UserAgent = p.userAgent
	}

	f, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	out := &models.ParsedFeed{
		Title:       f.Title,
		Description: f.Description,
		Link:        f.Link,
	}
	if out.Title == "" {
		out.Title = feedURL
	}

	for _, item := range f.Items {
		if maxItems > 0 && len(out.Items) >= maxItems {
			break
		}
		entry, ok := toEntry(item)
		if !ok {
			continue
		}
		out.Items = append(out.Items, entry)
	}

	p.logger.Info("feed parsed", "url", feedURL, "title", out.Title, "entries", len(out.Items))
	return out, nil
}

func toEntry(item *gofeed.Item) (models.FeedItem, bool) {
	content := StripHTML(item.Content)
	if content == "" {
		content = StripHTML(item.Description)
	}
	if strings.TrimSpace(item.Title) == "" && content == "" {
		return models.FeedItem{}, false
	}

	entry := models.FeedItem{
		Title:       item.Title,
		Link:        item.Link,
		Description: StripHTML(item.Description),
		Content:     content,
		Published:   item.PublishedParsed,
		Categories:  item.Categories,
		GUID:        item.GUID,
	}
	if entry.Title == "" {
		entry.Title = "Untitled"
	}
	if item.Author != nil {
		entry.Author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		entry.Author = item.Authors[0].Name
	}
	return entry, true
}

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed.
func StripHTML(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}
