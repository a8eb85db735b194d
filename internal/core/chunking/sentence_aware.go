package chunking

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// SentenceAware packs whole sentences into chunks and re-seeds each chunk
// with trailing sentences of the previous one.
type SentenceAware struct{}

func NewSentenceAware() *SentenceAware { return &SentenceAware{} }

func (s *SentenceAware) Name() string { return NameSentenceAware }

func (s *SentenceAware) Chunk(_ context.Context, doc Document, cfg Config) []models.DocumentChunk {
	cfg = cfg.normalized()
	if isBlank(doc.Content) {
		return nil
	}
	if fitsWhole(doc.Content, cfg) {
		return whole(doc, cfg, s.Name(), 1.0)
	}
	return build(doc, cfg, s.Name(), 1.0, packSentences(doc.Content, 0, len(doc.Content), cfg))
}

func (s *SentenceAware) DetectBoundaries(_ context.Context, _ string, sentences []string) []int {
	return sizeBoundaries(sentences, DefaultConfig().ChunkSize)
}

// packSentences groups the sentences of src[from:to] into drafts of at most
// ChunkSize characters. A sentence longer than MaxChunkSize is hard cut.
func packSentences(src string, from, to int, cfg Config) []draft {
	sentences := sentenceSpans(src[from:to])
	for i := range sentences {
		sentences[i].start += from
		sentences[i].end += from
	}
	sentences = splitLong(src, sentences, cfg.MaxChunkSize, cfg.ChunkSize)

	var (
		out []draft
		cur []span
	)
	width := func(first, last span) int { return runeLen(src[first.start:last.end]) }

	for _, sent := range sentences {
		if len(cur) > 0 && width(cur[0], sent) > cfg.ChunkSize {
			out = append(out, draft{start: cur[0].start, end: cur[len(cur)-1].end})
			cur = overlapSentences(src, cur, cfg.ChunkOverlap)
			if len(cur) > 0 && width(cur[0], sent) > cfg.ChunkSize {
				cur = nil
			}
		}
		cur = append(cur, sent)
	}
	if len(cur) > 0 {
		out = append(out, draft{start: cur[0].start, end: cur[len(cur)-1].end})
	}
	return out
}

// overlapSentences returns the longest run of trailing sentences that spans
// at most overlap characters.
func overlapSentences(src string, cur []span, overlap int) []span {
	if overlap <= 0 || len(cur) < 2 {
		return nil
	}
	last := cur[len(cur)-1].end
	keep := len(cur)
	for i := len(cur) - 1; i > 0; i-- {
		if runeLen(src[cur[i].start:last]) > overlap {
			break
		}
		keep = i
	}
	return append([]span(nil), cur[keep:]...)
}
