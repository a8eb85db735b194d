package models

import "time"

// ParsedFeed is the normalized form of an RSS or Atom document.
type ParsedFeed struct {
	Title       string
	Description string
	Link        string
	Items       []FeedItem
}

type FeedItem struct {
	Title       string
	Link        string
	Description string
	Content     string
	Author      string
	Published   *time.Time
	Categories  []string
	GUID        string
}

// ScrapedPage is the cleaned text of one fetched web page.
type ScrapedPage struct {
	URL     string
	Title   string
	Content string
	Depth   int
}
