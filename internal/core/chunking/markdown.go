package chunking

import (
	"context"
	"regexp"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var (
	headingPattern   = regexp.MustCompile(`(?m)^(#{1,6})[ \t]+(.+?)[ \t#]*$`)
	paragraphPattern = regexp.MustCompile(`\n[ \t]*\n\s*`)
)

// Markdown chunks a document section by section, keeping the heading path of
// every chunk and never splitting inside a fenced code block.
type Markdown struct{}

func NewMarkdown() *Markdown { return &Markdown{} }

func (m *Markdown) Name() string { return NameMarkdown }

type section struct {
	start, end int
	hierarchy  []string
}

func (m *Markdown) Chunk(_ context.Context, doc Document, cfg Config) []models.DocumentChunk {
	cfg = cfg.normalized()
	src := doc.Content
	if isBlank(src) {
		return nil
	}

	fences := codeBlockPattern.FindAllStringIndex(src, -1)
	sections := splitSections(src, fences)

	if fitsWhole(src, cfg) {
		d := draft{start: 0, end: len(src)}
		if n := len(sections); n > 0 {
			d.hierarchy = sections[n-1].hierarchy
		}
		return build(doc, cfg, m.Name(), 1.0, []draft{d})
	}

	var drafts []draft
	for i, sec := range sections {
		for _, d := range m.chunkSection(src, sec, fences, cfg) {
			d.hierarchy = sec.hierarchy
			d.additional = map[string]any{"section": i}
			drafts = append(drafts, d)
		}
	}
	return build(doc, cfg, m.Name(), 1.0, drafts)
}

// splitSections cuts the document at heading lines outside code fences. Text
// before the first heading forms its own section.
func splitSections(src string, fences [][]int) []section {
	var headings [][]int
	for _, h := range headingPattern.FindAllStringSubmatchIndex(src, -1) {
		if !insideAny(h[0], fences) {
			headings = append(headings, h)
		}
	}
	if len(headings) == 0 {
		return []section{{start: 0, end: len(src)}}
	}

	var out []section
	if first := headings[0][0]; first > 0 && !isBlank(src[:first]) {
		out = append(out, section{start: 0, end: first})
	}

	var stack []string
	for i, h := range headings {
		level := h[3] - h[2]
		title := strings.TrimSpace(src[h[4]:h[5]])
		for len(stack) >= level {
			stack = stack[:len(stack)-1]
		}
		stack = append(stack, title)

		end := len(src)
		if i+1 < len(headings) {
			end = headings[i+1][0]
		}
		out = append(out, section{
			start:     h[0],
			end:       end,
			hierarchy: append([]string(nil), stack...),
		})
	}
	return out
}

func insideAny(pos int, ranges [][]int) bool {
	for _, r := range ranges {
		if pos > r[0] && pos < r[1] {
			return true
		}
	}
	return false
}

// chunkSection keeps a section whole when it fits, otherwise regroups its
// paragraphs. A paragraph that is still too long is split by sentences
// unless it holds a code block.
func (m *Markdown) chunkSection(src string, sec section, fences [][]int, cfg Config) []draft {
	if runeLen(strings.TrimSpace(src[sec.start:sec.end])) <= cfg.ChunkSize {
		return []draft{{start: sec.start, end: sec.end}}
	}

	var (
		out        []draft
		curS, curE = -1, -1
	)
	flush := func() {
		if curS >= 0 {
			out = append(out, draft{start: curS, end: curE})
			curS, curE = -1, -1
		}
	}

	for _, p := range paragraphs(src, sec.start, sec.end, fences) {
		length := runeLen(strings.TrimSpace(src[p.start:p.end]))
		if length > cfg.ChunkSize && !containsFence(p, fences) {
			flush()
			out = append(out, packSentences(src, p.start, p.end, cfg)...)
			continue
		}
		if curS >= 0 && runeLen(strings.TrimSpace(src[curS:p.end])) > cfg.ChunkSize {
			flush()
		}
		if curS < 0 {
			curS = p.start
		}
		curE = p.end
	}
	flush()
	return out
}

// paragraphs splits [s, e) at blank lines that are not inside a code fence.
func paragraphs(src string, s, e int, fences [][]int) []span {
	var out []span
	cur := s
	for _, gap := range paragraphPattern.FindAllStringIndex(src[s:e], -1) {
		at := s + gap[0]
		if insideAny(at, fences) {
			continue
		}
		if at > cur {
			out = append(out, span{cur, at})
		}
		cur = s + gap[1]
	}
	if cur < e {
		out = append(out, span{cur, e})
	}
	return out
}

func containsFence(p span, fences [][]int) bool {
	for _, f := range fences {
		if f[0] < p.end && f[1] > p.start {
			return true
		}
	}
	return false
}

func (m *Markdown) DetectBoundaries(_ context.Context, _ string, sentences []string) []int {
	var out []int
	for i, s := range sentences {
		if i > 0 && strings.HasPrefix(strings.TrimSpace(s), "#") {
			out = append(out, i)
		}
	}
	return out
}
