package chunking

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Breakpoint places chunk boundaries where adjacent sentence embeddings
// drift apart. Without a working embedder it falls back to sentence packing.
type Breakpoint struct {
	SimilarityThreshold float64
	Percentile          int
	MinSentences        int
	MaxSentences        int

	embedder Embedder
	fallback *SentenceAware
	logger   *slog.Logger
}

func NewBreakpoint(embedder Embedder, fallback *SentenceAware, logger *slog.Logger) *Breakpoint {
	if logger == nil {
		logger = slog.Default()
	}
	return &Breakpoint{
		SimilarityThreshold: 0.5,
		Percentile:          95,
		MinSentences:        2,
		MaxSentences:        20,
		embedder:            embedder,
		fallback:            fallback,
		logger:              logger,
	}
}

func (b *Breakpoint) Name() string { return NameBreakpoint }

func (b *Breakpoint) Chunk(ctx context.Context, doc Document, cfg Config) []models.DocumentChunk {
	cfg = cfg.normalized()
	src := doc.Content
	if isBlank(src) {
		return nil
	}
	sentences := sentenceSpans(src)
	if len(sentences) <= b.MinSentences || fitsWhole(src, cfg) {
		return whole(doc, cfg, b.Name(), 1.0)
	}
	if b.embedder == nil {
		return b.fallbackChunk(ctx, doc, cfg)
	}

	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = src[s.start:s.end]
	}
	vectors, err := b.embedder.EmbedTexts(ctx, texts)
	if err == nil && len(vectors) != len(texts) {
		err = errVectorCount(len(texts), len(vectors))
	}
	if err != nil {
		b.logger.Warn("sentence embedding failed, using sentence-aware chunking", "error", err, "doc_id", doc.ID)
		return b.fallbackChunk(ctx, doc, cfg)
	}

	breakpoints := b.breakpoints(adjacentDistances(vectors))
	return build(doc, cfg, b.Name(), 0.9, b.runs(src, sentences, breakpoints, cfg))
}

func (b *Breakpoint) fallbackChunk(ctx context.Context, doc Document, cfg Config) []models.DocumentChunk {
	return relabel(b.fallback.Chunk(ctx, doc, cfg), b.Name()+"-fallback", 0.7)
}

// runs turns breakpoints into sentence runs capped by MaxSentences and
// MaxChunkSize.
func (b *Breakpoint) runs(src string, sentences []span, breakpoints []int, cfg Config) []draft {
	var out []draft
	start := 0
	for _, bp := range append(breakpoints, len(sentences)) {
		for start < bp {
			end := min(bp, start+b.MaxSentences)
			for end-1 > start && runeLen(src[sentences[start].start:sentences[end-1].end]) > cfg.MaxChunkSize {
				end--
			}
			out = append(out, draft{start: sentences[start].start, end: sentences[end-1].end})
			start = end
		}
	}
	return out
}

func (b *Breakpoint) breakpoints(distances []float64) []int {
	if len(distances) == 0 {
		return nil
	}
	threshold := percentileThreshold(distances, b.Percentile, b.SimilarityThreshold)

	var out []int
	last := 0
	for i, d := range distances {
		boundary := i + 1
		if d >= threshold && boundary-last >= b.MinSentences {
			out = append(out, boundary)
			last = boundary
		}
	}
	return out
}

// DetectBoundaries embeds the sentences when an embedder is configured and
// otherwise proposes a single midpoint boundary.
func (b *Breakpoint) DetectBoundaries(ctx context.Context, _ string, sentences []string) []int {
	if len(sentences) < 3 {
		return nil
	}
	if b.embedder == nil {
		return []int{len(sentences) / 2}
	}
	vectors, err := b.embedder.EmbedTexts(ctx, sentences)
	if err != nil || len(vectors) != len(sentences) {
		b.logger.Warn("boundary detection skipped", "strategy", b.Name(), "error", err)
		return nil
	}
	return b.breakpoints(adjacentDistances(vectors))
}

// SlidingWindow emits overlapping windows of sentences.
type SlidingWindow struct {
	Window int
	Step   int
}

func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{Window: 5, Step: 3}
}

func (w *SlidingWindow) Name() string { return NameSlidingWindow }

func (w *SlidingWindow) Chunk(_ context.Context, doc Document, cfg Config) []models.DocumentChunk {
	cfg = cfg.normalized()
	src := doc.Content
	if isBlank(src) {
		return nil
	}
	sentences := sentenceSpans(src)
	if len(sentences) <= w.Window || fitsWhole(src, cfg) {
		return whole(doc, cfg, w.Name(), 1.0)
	}

	step := max(w.Step, 1)
	var drafts []draft
	for start := 0; ; start += step {
		end := min(start+w.Window, len(sentences))
		drafts = append(drafts, draft{start: sentences[start].start, end: sentences[end-1].end})
		if end == len(sentences) {
			break
		}
	}
	return build(doc, cfg, w.Name(), 1.0, drafts)
}

func (w *SlidingWindow) DetectBoundaries(_ context.Context, _ string, sentences []string) []int {
	step := max(w.Step, 1)
	var out []int
	for pos := step; pos < len(sentences); pos += step {
		out = append(out, pos)
	}
	return out
}

func percentileThreshold(values []float64, percentile int, floor float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	i := int(float64(percentile) / 100 * float64(len(sorted)))
	i = max(0, min(i, len(sorted)-1))
	return math.Max(sorted[i], floor)
}

func adjacentDistances(vectors [][]float32) []float64 {
	if len(vectors) < 2 {
		return nil
	}
	out := make([]float64, len(vectors)-1)
	for i := 0; i+1 < len(vectors); i++ {
		out[i] = 1 - CosineSimilarity(vectors[i], vectors[i+1])
	}
	return out
}

// CosineSimilarity returns 0 for zero-length or zero-norm vectors.
func CosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return 0
	}
	return dot / den
}
