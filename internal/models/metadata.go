package models

import (
	"encoding/json"
	"fmt"
)

// Job metadata is stored as opaque JSON text and decoded by job type.

type TextInputMetadata struct {
	Title         string            `json:"title"`
	ContentLength int               `json:"contentLength"`
	Extra         map[string]string `json:"extra,omitempty"`
}

type ScrapeMode string

const (
	ScrapeModeSingle ScrapeMode = "SINGLE"
	ScrapeModeCrawl  ScrapeMode = "CRAWL"
)

type WebScrapeMetadata struct {
	Mode                ScrapeMode `json:"mode"`
	MaxDepth            int        `json:"maxDepth"`
	MaxPages            int        `json:"maxPages"`
	FollowExternalLinks bool       `json:"followExternalLinks"`
	DelayMs             int64      `json:"delayBetweenRequestsMs"`
	IncludePatterns     []string   `json:"includePatterns,omitempty"`
	ExcludePatterns     []string   `json:"excludePatterns,omitempty"`
}

// DefaultWebScrapeMetadata mirrors the submission defaults.
func DefaultWebScrapeMetadata() WebScrapeMetadata {
	return WebScrapeMetadata{Mode: ScrapeModeSingle, MaxDepth: 2, MaxPages: 10, DelayMs: 1000}
}

type RssFeedMetadata struct {
	FeedURL            string `json:"feedUrl"`
	SourceName         string `json:"sourceName"`
	MaxItems           int    `json:"maxItems"`
	IncludeFullContent bool   `json:"includeFullContent"`
}

type QAPair struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type QAPairsMetadata struct {
	Pairs      []QAPair `json:"pairs"`
	SourceName string   `json:"sourceName"`
	PairCount  int      `json:"pairCount"`
}

type FolderImportMetadata struct {
	PreserveStructure bool `json:"preserveStructure"`
}

type FolderChildMetadata struct {
	FolderPath string `json:"folderPath"`
}

type ChunkInfo struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
}

// ChunkJobData is the payload of an EMBEDDING job.
type ChunkJobData struct {
	Chunks           []ChunkInfo `json:"chunks"`
	SourceType       string      `json:"sourceType"`
	FileName         string      `json:"fileName,omitempty"`
	SourceURL        string      `json:"sourceUrl,omitempty"`
	Title            string      `json:"title,omitempty"`
	ChunkingStrategy string      `json:"chunkingStrategy,omitempty"`
	QualityScore     *float64    `json:"qualityScore,omitempty"`
}

// legacyScrapeMetadata is the flat shape older clients submitted.
type legacyScrapeMetadata struct {
	Crawl    bool `json:"crawl"`
	MaxDepth *int `json:"maxDepth"`
	MaxPages *int `json:"maxPages"`
}

// DecodeMetadata returns the typed payload for the job's type. Empty metadata yields defaults.
func DecodeMetadata(j *IngestionJob) (any, error) {
	raw := []byte(j.Metadata)
	empty := len(raw) == 0

	switch j.JobType {
	case JobTypeTextInput:
		var m TextInputMetadata
		if !empty {
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode text metadata: %w", err)
			}
		}
		if m.Title == "" {
			m.Title = "Text Input"
		}
		return m, nil

	case JobTypeWebScrape:
		return decodeScrapeMetadata(raw)

	case JobTypeRssFeed:
		m := RssFeedMetadata{MaxItems: 50}
		if !empty {
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode rss metadata: %w", err)
			}
		}
		if m.FeedURL == "" {
			m.FeedURL = j.SourceReference
		}
		return m, nil

	case JobTypeQAImport:
		var m QAPairsMetadata
		if empty {
			return nil, fmt.Errorf("no Q&A pairs in job %s", j.ID)
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode qa metadata: %w", err)
		}
		return m, nil

	case JobTypeFolderImport:
		m := FolderImportMetadata{PreserveStructure: true}
		if !empty {
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode folder metadata: %w", err)
			}
		}
		return m, nil

	case JobTypeFileUpload:
		var m FolderChildMetadata
		if !empty {
			if err := json.Unmarshal(raw, &m); err != nil {
				return nil, fmt.Errorf("decode file metadata: %w", err)
			}
		}
		return m, nil

	case JobTypeEmbedding:
		var m ChunkJobData
		if empty {
			return nil, fmt.Errorf("no chunk data in job %s", j.ID)
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode chunk data: %w", err)
		}
		return m, nil
	}
	return nil, nil
}

func decodeScrapeMetadata(raw []byte) (WebScrapeMetadata, error) {
	m := DefaultWebScrapeMetadata()
	if len(raw) == 0 {
		return m, nil
	}
	var shape struct {
		Mode ScrapeMode `json:"mode"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return m, fmt.Errorf("decode scrape metadata: %w", err)
	}
	if shape.Mode != "" {
		if err := json.Unmarshal(raw, &m); err != nil {
			return m, fmt.Errorf("decode scrape metadata: %w", err)
		}
		return m, nil
	}

	var legacy legacyScrapeMetadata
	if err := json.Unmarshal(raw, &legacy); err != nil {
		return m, fmt.Errorf("decode scrape metadata: %w", err)
	}
	m = DefaultWebScrapeMetadata()
	if legacy.Crawl {
		m.Mode = ScrapeModeCrawl
	}
	if legacy.MaxDepth != nil {
		m.MaxDepth = *legacy.MaxDepth
	}
	if legacy.MaxPages != nil {
		m.MaxPages = *legacy.MaxPages
	}
	return m, nil
}

// EncodeMetadata serializes a payload for storage on the job row.
func EncodeMetadata(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}
