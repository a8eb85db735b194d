package chunking

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// span is a byte range of the source text.
type span struct {
	start, end int
}

// draft is a chunk before trimming, merging and numbering.
type draft struct {
	start, end  int
	contentType models.ContentType
	hierarchy   []string
	strategy    string
	additional  map[string]any
}

var (
	codeBlockPattern = regexp.MustCompile("(?s)```.*?```")
	listItemPattern  = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)
)

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// trimSpan narrows [s, e) to exclude surrounding whitespace.
func trimSpan(src string, s, e int) (int, int) {
	for s < e {
		r, size := utf8.DecodeRuneInString(src[s:e])
		if !unicode.IsSpace(r) {
			break
		}
		s += size
	}
	for e > s {
		r, size := utf8.DecodeLastRuneInString(src[s:e])
		if !unicode.IsSpace(r) {
			break
		}
		e -= size
	}
	return s, e
}

// fitsWhole reports whether the trimmed document fits in a single chunk.
func fitsWhole(content string, cfg Config) bool {
	s, e := trimSpan(content, 0, len(content))
	return runeLen(content[s:e]) <= cfg.ChunkSize
}

// runeIndex returns the byte offset of every rune plus a trailing len(s).
func runeIndex(s string) []int {
	idx := make([]int, 0, len(s)+1)
	for i := range s {
		idx = append(idx, i)
	}
	return append(idx, len(s))
}

func detectContentType(content string) models.ContentType {
	trimmed := strings.TrimSpace(content)
	switch {
	case codeBlockPattern.MatchString(trimmed):
		return models.ContentCode
	case listItemPattern.MatchString(trimmed):
		return models.ContentList
	case strings.HasPrefix(trimmed, "|") && strings.Contains(trimmed, "---"):
		return models.ContentTable
	case strings.HasPrefix(trimmed, ">"):
		return models.ContentQuote
	default:
		return models.ContentProse
	}
}

// absorb folds b into a, keeping a's labels unless a has no heading context.
func absorb(a, b draft) draft {
	out := a
	out.start = min(a.start, b.start)
	out.end = max(a.end, b.end)
	if len(a.hierarchy) == 0 {
		out.hierarchy = b.hierarchy
	}
	if a.contentType != b.contentType {
		out.contentType = ""
	}
	return out
}

// mergeSmall folds chunks shorter than minSize into their predecessor.
// A short leading chunk folds into its successor.
func mergeSmall(src string, drafts []draft, minSize int) []draft {
	out := make([]draft, 0, len(drafts))
	for _, d := range drafts {
		if len(out) > 0 && runeLen(src[d.start:d.end]) < minSize {
			out[len(out)-1] = absorb(out[len(out)-1], d)
			continue
		}
		out = append(out, d)
	}
	if len(out) > 1 && runeLen(src[out[0].start:out[0].end]) < minSize {
		out[1] = absorb(out[0], out[1])
		out = out[1:]
	}
	return out
}

func chunkID(docID string, index, start int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%d:%d", docID, index, start))).String()
}

func tailRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := len(s); i > 0; {
		_, size := utf8.DecodeLastRuneInString(s[:i])
		i -= size
		count++
		if count == n {
			return s[i:]
		}
	}
	return s
}

func headRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// build turns drafts into numbered chunks. Every chunk's content is the
// trimmed source text between its offsets.
func build(doc Document, cfg Config, strategy string, confidence float64, drafts []draft) []models.DocumentChunk {
	src := doc.Content
	trimmed := make([]draft, 0, len(drafts))
	lastStart := 0
	for _, d := range drafts {
		d.start = max(d.start, 0)
		d.end = min(d.end, len(src))
		s, e := trimSpan(src, d.start, d.end)
		if s >= e {
			continue
		}
		if s < lastStart {
			s = lastStart
			if s >= e {
				continue
			}
		}
		d.start, d.end = s, e
		lastStart = s
		trimmed = append(trimmed, d)
	}
	merged := mergeSmall(src, trimmed, cfg.MinChunkSize)

	language := doc.Language
	if language == "" {
		language = "en"
	}

	chunks := make([]models.DocumentChunk, 0, len(merged))
	for i, d := range merged {
		content := src[d.start:d.end]
		contentType := d.contentType
		if contentType == "" {
			contentType = detectContentType(content)
		}
		used := strategy
		if d.strategy != "" {
			used = d.strategy
		}
		meta := models.ChunkMetadata{
			SourceID:         doc.ID,
			SourceType:       contentType,
			HeadingHierarchy: d.hierarchy,
			Language:         language,
			Confidence:       confidence,
			StrategyUsed:     used,
			Additional:       d.additional,
		}
		if n := len(d.hierarchy); n > 0 {
			meta.SectionTitle = d.hierarchy[n-1]
		}

		chunk := models.DocumentChunk{
			ID:          chunkID(doc.ID, i, d.start),
			Content:     content,
			Index:       i,
			StartOffset: d.start,
			EndOffset:   d.end,
			Metadata:    meta,
		}
		if cfg.IncludeContext {
			chunk.ContextBefore = strings.TrimSpace(tailRunes(src[:d.start], cfg.ContextSize))
			chunk.ContextAfter = strings.TrimSpace(headRunes(src[d.end:], cfg.ContextSize))
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// whole returns the single-chunk rendition of a document that fits.
func whole(doc Document, cfg Config, strategy string, confidence float64) []models.DocumentChunk {
	return build(doc, cfg, strategy, confidence, []draft{{start: 0, end: len(doc.Content)}})
}

// relabel tags chunks produced on behalf of another strategy.
func relabel(chunks []models.DocumentChunk, strategy string, confidence float64) []models.DocumentChunk {
	for i := range chunks {
		chunks[i].Metadata.StrategyUsed = strategy
		chunks[i].Metadata.Confidence = confidence
	}
	return chunks
}

// sizeBoundaries places a boundary wherever the running length of sentences
// would exceed size.
func sizeBoundaries(sentences []string, size int) []int {
	var out []int
	acc := 0
	for i, s := range sentences {
		n := runeLen(s)
		if acc > 0 && acc+n > size {
			out = append(out, i)
			acc = 0
		}
		acc += n
	}
	return out
}
