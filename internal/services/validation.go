package services

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-ingest/internal/core/messages"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

func (s *IngestService) validateMimeType(mimeType string) error {
	base := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(base, ';'); i >= 0 {
		base = strings.TrimSpace(base[:i])
	}
	if !s.supported[base] {
		return invalid(messages.UnsupportedType, mimeType)
	}
	return nil
}

// validateFileSize rejects sizes that could not be charged against storage.
func validateFileSize(fileName string, size int64) error {
	if size <= 0 {
		return invalid(messages.FileSizeInvalid, fileName, size)
	}
	return nil
}

func (s *IngestService) validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return invalid(messages.ContentEmpty)
	}
	n := utf8.RuneCountInString(content)
	if n < s.limits.MinTextLength {
		return invalid(messages.ContentTooShort, s.limits.MinTextLength)
	}
	if s.limits.MaxTextLength > 0 && n > s.limits.MaxTextLength {
		return invalid(messages.ContentTooLarge, s.limits.MaxTextLength)
	}
	return nil
}

func (s *IngestService) validateBatchSize(n int) error {
	if n == 0 {
		return invalid(messages.BatchEmpty)
	}
	if n > s.limits.MaxBatchSize {
		return invalid(messages.BatchTooLarge, n, s.limits.MaxBatchSize)
	}
	return nil
}

// validateURL accepts absolute http(s) URLs with a host.
func validateURL(raw, invalidKey, schemeKey string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return invalid(invalidKey, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid(schemeKey, raw)
	}
	if u.Hostname() == "" {
		return invalid(invalidKey, raw)
	}
	return nil
}

func validateZipName(name string) error {
	if !strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), ".zip") {
		return invalid(messages.FolderNotZip, name)
	}
	return nil
}

func (s *IngestService) validatePairs(pairs []models.QAPair) error {
	if len(pairs) == 0 {
		return invalid(messages.QAPairsEmpty)
	}
	if len(pairs) > s.limits.MaxQAPairs {
		return invalid(messages.QAPairsTooMany, len(pairs), s.limits.MaxQAPairs)
	}
	for i, p := range pairs {
		if strings.TrimSpace(p.Question) == "" {
			return invalid(messages.QAQuestionEmpty, i)
		}
		if strings.TrimSpace(p.Answer) == "" {
			return invalid(messages.QAAnswerEmpty, i)
		}
	}
	return nil
}

// feedName falls back to the feed's host.
func feedName(feedURL string) string {
	if u, err := url.Parse(feedURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	return "RSS Feed"
}
