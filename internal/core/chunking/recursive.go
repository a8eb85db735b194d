package chunking

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

var (
	DefaultSeparators  = []string{"\n\n\n", "\n\n", "\n", ". ", "! ", "? ", "; ", ", ", " ", ""}
	MarkdownSeparators = []string{"\n## ", "\n### ", "\n#### ", "\n##### ", "\n###### ", "\n\n", "\n", ". ", " ", ""}
	CodeSeparators     = []string{"\n\nclass ", "\n\nfun ", "\n\ndef ", "\n\nfunction ", "\n\n", "\n", " ", ""}
)

// Recursive splits on the coarsest separator present and retries finer
// separators on pieces that are still too long, then merges pieces back up
// to ChunkSize.
type Recursive struct {
	name       string
	separators []string
}

func NewRecursive() *Recursive {
	return NewRecursiveWithSeparators(NameRecursive, DefaultSeparators)
}

func NewRecursiveWithSeparators(name string, separators []string) *Recursive {
	return &Recursive{name: name, separators: separators}
}

func (r *Recursive) Name() string { return r.name }

func (r *Recursive) Chunk(_ context.Context, doc Document, cfg Config) []models.DocumentChunk {
	cfg = cfg.normalized()
	if isBlank(doc.Content) {
		return nil
	}
	if fitsWhole(doc.Content, cfg) {
		return whole(doc, cfg, r.Name(), 1.0)
	}
	src := doc.Content
	pieces := r.split(src, 0, len(src), r.separators, cfg.ChunkSize)
	return build(doc, cfg, r.Name(), 1.0, mergePieces(src, pieces, cfg))
}

func (r *Recursive) DetectBoundaries(_ context.Context, _ string, sentences []string) []int {
	return sizeBoundaries(sentences, DefaultConfig().ChunkSize)
}

func (r *Recursive) split(src string, s, e int, separators []string, size int) []span {
	sep, finer, found := "", []string(nil), false
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(src[s:e], candidate) {
			sep, finer, found = candidate, separators[i+1:], true
			break
		}
	}

	var pieces []span
	if !found || sep == "" {
		return hardCut(src, s, e, size)
	}
	pieces = cutOn(src, s, e, sep)

	out := make([]span, 0, len(pieces))
	for _, p := range pieces {
		if runeLen(src[p.start:p.end]) <= size {
			out = append(out, p)
			continue
		}
		if len(finer) == 0 {
			out = append(out, hardCut(src, p.start, p.end, size)...)
			continue
		}
		out = append(out, r.split(src, p.start, p.end, finer, size)...)
	}
	return out
}

// cutOn splits [s, e) at every occurrence of sep. Structural separators
// ("\n## ", "\n\nclass ") open the following piece; the rest close the
// preceding one. Pieces are contiguous.
func cutOn(src string, s, e int, sep string) []span {
	leading := opensPiece(sep)
	var out []span
	cur, pos := s, s
	for pos < e {
		at := strings.Index(src[pos:e], sep)
		if at < 0 {
			break
		}
		at += pos
		if leading {
			if at > cur {
				out = append(out, span{cur, at})
				cur = at
			}
		} else {
			out = append(out, span{cur, at + len(sep)})
			cur = at + len(sep)
		}
		pos = at + len(sep)
	}
	if cur < e {
		out = append(out, span{cur, e})
	}
	return out
}

func opensPiece(sep string) bool {
	return strings.HasPrefix(sep, "\n") && strings.TrimSpace(sep) != ""
}

// mergePieces greedily joins contiguous pieces up to ChunkSize characters.
// Each new chunk starts ChunkOverlap characters before the previous end.
func mergePieces(src string, pieces []span, cfg Config) []draft {
	var out []draft
	curStart, curEnd := -1, -1
	for _, p := range pieces {
		if curStart < 0 {
			if isBlank(src[p.start:p.end]) {
				continue
			}
			curStart, curEnd = p.start, p.end
			continue
		}
		if runeLen(src[curStart:p.end]) <= cfg.ChunkSize {
			curEnd = p.end
			continue
		}

		out = append(out, draft{start: curStart, end: curEnd})
		next := overlapStart(src, curStart, curEnd, cfg.ChunkOverlap)
		if next <= curStart || runeLen(src[next:p.end]) > cfg.ChunkSize {
			next = p.start
		}
		curStart, curEnd = next, p.end
	}
	if curStart >= 0 {
		out = append(out, draft{start: curStart, end: curEnd})
	}
	return out
}

// overlapStart walks back n characters from e, then forward to the next word
// start so the overlap does not begin mid-word.
func overlapStart(src string, s, e, n int) int {
	if n <= 0 {
		return e
	}
	pos := e
	for count := 0; pos > s && count < n; count++ {
		_, size := utf8.DecodeLastRuneInString(src[s:pos])
		pos -= size
	}
	if pos == s {
		return s
	}
	if ws := strings.IndexFunc(src[pos:e], unicode.IsSpace); ws >= 0 {
		return pos + ws
	}
	return pos
}
