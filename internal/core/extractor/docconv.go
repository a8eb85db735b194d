package extractor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"code.sajari.com/docconv"

	"github.com/markdave123-py/contexta-ingest/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
// Plain text formats are read as-is.
type DocconvExtractor struct {
	useReadability bool
	maxBytes       int64
	logger         *slog.Logger
}

func NewDocconvExtractor(useReadability bool, maxBytes int64, logger *slog.Logger) *DocconvExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocconvExtractor{useReadability: useReadability, maxBytes: maxBytes, logger: logger}
}

// ExtractText converts r to plain text based on mimeType.
func (e *DocconvExtractor) ExtractText(ctx context.Context, r io.Reader, mimeType string) (*core.ExtractedText, error) {
	if e.maxBytes > 0 {
		r = io.LimitReader(r, e.maxBytes)
	}
	base := baseMime(mimeType)

	if isPlainText(base) {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", base, err)
		}
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%s content is not valid UTF-8", base)
		}
		return &core.ExtractedText{Text: string(data)}, nil
	}

	res, err := docconv.Convert(r, base, e.useReadability)
	if err != nil {
		e.logger.Warn("docconv extraction failed", "mime_type", base, "error", err)
		return nil, fmt.Errorf("extract %s: %w", base, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	text := strings.TrimSpace(res.Body)
	if text == "" {
		return nil, fmt.Errorf("no text extracted from %s", base)
	}
	return &core.ExtractedText{Text: text, Metadata: res.Meta}, nil
}

func baseMime(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func isPlainText(mime string) bool {
	switch mime {
	case "text/plain", "text/markdown", "text/x-markdown", "text/csv", "application/json":
		return true
	}
	return false
}
