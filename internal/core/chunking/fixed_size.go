package chunking

import (
	"context"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// sentenceEnders are the terminators a fixed-size window may snap back to.
var sentenceEnders = []string{". ", "! ", "? ", ".\n", "!\n", "?\n"}

// snapWindow is how far back from the window end a terminator is searched.
const snapWindow = 100

// FixedSize slides a window of ChunkSize characters over the text.
type FixedSize struct{}

func NewFixedSize() *FixedSize { return &FixedSize{} }

func (f *FixedSize) Name() string { return NameFixedSize }

func (f *FixedSize) Chunk(_ context.Context, doc Document, cfg Config) []models.DocumentChunk {
	cfg = cfg.normalized()
	if isBlank(doc.Content) {
		return nil
	}
	if fitsWhole(doc.Content, cfg) {
		return whole(doc, cfg, f.Name(), 1.0)
	}
	return build(doc, cfg, f.Name(), 1.0, f.windows(doc.Content, cfg))
}

func (f *FixedSize) windows(src string, cfg Config) []draft {
	idx := runeIndex(src)
	n := len(idx) - 1

	var out []draft
	start := 0
	for start < n {
		end := min(start+cfg.ChunkSize, n)
		if cfg.PreserveSentences && end < n {
			end = snapToSentence(src, idx, start, end, cfg.ChunkSize)
		}
		out = append(out, draft{start: idx[start], end: idx[end]})
		if end >= n {
			break
		}

		next := end - cfg.ChunkOverlap
		if next <= start {
			next = end
		}
		// A tail too short to stand alone stays with the last window.
		if n-next < cfg.MinChunkSize {
			out[len(out)-1].end = len(src)
			break
		}
		start = next
	}
	return out
}

// snapToSentence moves end back to the last terminator in the final
// snapWindow characters, provided that stays past the window midpoint.
// Positions are rune indices.
func snapToSentence(src string, idx []int, start, end, size int) int {
	from := max(end-snapWindow, start)
	region := src[idx[from]:idx[end]]

	best := -1
	for _, ender := range sentenceEnders {
		if at := strings.LastIndex(region, ender); at >= 0 && at+len(ender) > best {
			best = at + len(ender)
		}
	}
	if best < 0 {
		return end
	}
	cut := from + runeLen(region[:best])
	if cut > start+size/2 {
		return cut
	}
	return end
}

func (f *FixedSize) DetectBoundaries(_ context.Context, _ string, sentences []string) []int {
	return sizeBoundaries(sentences, DefaultConfig().ChunkSize)
}
