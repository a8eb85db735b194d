package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// boilerplate is removed before page text is taken.
const boilerplate = `script, style, noscript, iframe, nav, header, footer, aside, form,
	.advertisement, .ads, [role="banner"], [role="navigation"]`

var (
	ErrNotHTML     = errors.New("response is not HTML")
	ErrNoPages     = errors.New("no pages could be scraped")
	errBadResponse = errors.New("unexpected response status")
)

var _ core.WebScraper = (*Scraper)(nil)

type Options struct {
	UserAgent        string
	Timeout          time.Duration
	MaxContentLength int64
}

// Scraper fetches pages over one shared HTTP client. Close releases idle
// connections once the process is done scraping.
type Scraper struct {
	client *http.Client
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Scraper {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		logger: logger,
	}
}

func (s *Scraper) Close() {
	s.client.CloseIdleConnections()
}

// Scrape fetches one page, or crawls breadth-first from startURL when opts.Mode is CRAWL.
func (s *Scraper) Scrape(ctx context.Context, startURL string, opts models.WebScrapeMetadata) ([]models.ScrapedPage, error) {
	start, err := url.Parse(startURL)
	if err != nil || start.Host == "" {
		return nil, fmt.Errorf("invalid url %q", startURL)
	}

	if opts.Mode != models.ScrapeModeCrawl {
		page, _, err := s.fetch(ctx, start, 0)
		if err != nil {
			return nil, err
		}
		return []models.ScrapedPage{*page}, nil
	}
	return s.crawl(ctx, start, opts)
}

type target struct {
	u     *url.URL
	depth int
}

func (s *Scraper) crawl(ctx context.Context, start *url.URL, opts models.WebScrapeMetadata) ([]models.ScrapedPage, error) {
	filter, err := newURLFilter(opts.IncludePatterns, opts.ExcludePatterns)
	if err != nil {
		return nil, err
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = models.DefaultWebScrapeMetadata().MaxPages
	}
	delay := time.Duration(opts.DelayMs) * time.Millisecond

	visited := map[string]bool{}
	queue := []target{{u: start}}
	var pages []models.ScrapedPage

	for len(queue) > 0 && len(pages) < maxPages {
		if err := ctx.Err(); err != nil {
			return pages, err
		}
		next := queue[0]
		queue = queue[1:]

		key := normalize(next.u)
		if visited[key] {
			continue
		}
		visited[key] = true

		if next.depth > 0 && !filter.allows(key) {
			s.logger.Debug("url filtered", "url", key)
			continue
		}

		page, links, err := s.fetch(ctx, next.u, next.depth)
		if err != nil {
			s.logger.Warn("scrape failed", "url", key, "error", err)
			continue
		}
		pages = append(pages, *page)

		if next.depth < opts.MaxDepth {
			for _, link := range links {
				if !opts.FollowExternalLinks && link.Host != start.Host {
					continue
				}
				if !visited[normalize(link)] {
					queue = append(queue, target{u: link, depth: next.depth + 1})
				}
			}
		}

		if delay > 0 && len(queue) > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return pages, ctx.Err()
			}
		}
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w from %s", ErrNoPages, start)
	}
	s.logger.Info("crawl completed", "start", start.String(), "pages", len(pages))
	return pages, nil
}

func (s *Scraper) fetch(ctx context.Context, u *url.URL, depth int) (*models.ScrapedPage, []*url.URL, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	if s.opts.UserAgent != "" {
		req.Header.Set("User-Agent", s.opts.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("%w: %s returned %d", errBadResponse, u, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrNotHTML, u, ct)
	}

	var body io.Reader = resp.Body
	if s.opts.MaxContentLength > 0 {
		body = io.LimitReader(resp.Body, s.opts.MaxContentLength)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", u, err)
	}

	base := resp.Request.URL
	links := extractLinks(doc, base)

	title := strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find(boilerplate).Remove()

	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}
	text := cleanText(root)
	if title == "" {
		title = base.String()
	}

	return &models.ScrapedPage{URL: base.String(), Title: title, Content: text, Depth: depth}, links, nil
}

func extractLinks(doc *goquery.Document, base *url.URL) []*url.URL {
	seen := map[string]bool{}
	var out []*url.URL
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		key := abs.String()
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, abs)
	})
	return out
}

// cleanText keeps one line per block of text and collapses inner whitespace.
func cleanText(sel *goquery.Selection) string {
	var lines []string
	for _, line := range strings.Split(sel.Text(), "\n") {
		if l := strings.Join(strings.Fields(line), " "); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

func normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	s := c.String()
	if c.Path == "/" && c.RawQuery == "" {
		s = strings.TrimSuffix(s, "/")
	}
	return s
}

type urlFilter struct {
	include []*regexp.Regexp
	exclude []*regexp.Regexp
}

func newURLFilter(include, exclude []string) (*urlFilter, error) {
	f := &urlFilter{}
	for _, p := range include {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("include pattern %q: %w", p, err)
		}
		f.include = append(f.include, re)
	}
	for _, p := range exclude {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		f.exclude = append(f.exclude, re)
	}
	return f, nil
}

// allows rejects any excluded url, then requires a match when include patterns are set.
// The start url is never filtered.
func (f *urlFilter) allows(u string) bool {
	for _, re := range f.exclude {
		if re.MatchString(u) {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, re := range f.include {
		if re.MatchString(u) {
			return true
		}
	}
	return false
}
