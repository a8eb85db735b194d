package chunking

import (
	"context"
	"log/slog"
	"math"
	"sort"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// WeightedStrategy is one voter of a Composite.
type WeightedStrategy struct {
	Strategy Strategy
	Weight   float64
}

// Composite accepts a boundary when the normalized weight of the strategies
// proposing it reaches BoundaryThreshold.
type Composite struct {
	BoundaryThreshold float64

	strategies []WeightedStrategy
	fallback   *SentenceAware
	logger     *slog.Logger
}

func NewComposite(fallback *SentenceAware, logger *slog.Logger, strategies ...WeightedStrategy) *Composite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composite{
		BoundaryThreshold: 0.5,
		strategies:        strategies,
		fallback:          fallback,
		logger:            logger,
	}
}

func (c *Composite) Name() string { return NameComposite }

func (c *Composite) Chunk(ctx context.Context, doc Document, cfg Config) []models.DocumentChunk {
	cfg = cfg.normalized()
	src := doc.Content
	if isBlank(src) {
		return nil
	}
	if fitsWhole(src, cfg) {
		return whole(doc, cfg, c.Name(), 1.0)
	}
	sentences := sentenceSpans(src)
	if len(c.strategies) == 0 || len(sentences) < 3 {
		return relabel(c.fallback.Chunk(ctx, doc, cfg), c.Name()+"+"+c.fallback.Name(), 1.0)
	}

	texts := make([]string, len(sentences))
	for i, s := range sentences {
		texts[i] = src[s.start:s.end]
	}
	voted := c.vote(ctx, src, texts)
	boundaries := voted
	if len(boundaries) == 0 {
		boundaries = uniformBoundaries(len(sentences))
	}

	accepted := make(map[int]bool, len(voted))
	for _, b := range voted {
		accepted[b] = true
	}

	var drafts []draft
	edges := append(append([]int{0}, boundaries...), len(sentences))
	for i := 0; i+1 < len(edges); i++ {
		from, to := edges[i], edges[i+1]
		if to <= from {
			continue
		}
		start, end := sentences[from].start, sentences[to-1].end
		confidence := "estimated"
		if accepted[to] {
			confidence = "high"
		}
		if runeLen(src[start:end]) > cfg.MaxChunkSize {
			for _, d := range packSentences(src, start, end, cfg) {
				d.strategy = c.Name() + "+" + c.fallback.Name()
				drafts = append(drafts, d)
			}
			continue
		}
		drafts = append(drafts, draft{
			start: start,
			end:   end,
			additional: map[string]any{
				"sentenceCount":      to - from,
				"boundaryConfidence": confidence,
			},
		})
	}
	return build(doc, cfg, c.Name(), 1.0, drafts)
}

// vote collects weighted boundary proposals and merges accepted boundaries
// closer than two sentences.
func (c *Composite) vote(ctx context.Context, content string, sentences []string) []int {
	total := 0.0
	for _, ws := range c.strategies {
		total += ws.Weight
	}
	if total <= 0 {
		return nil
	}

	votes := make(map[int]float64)
	for _, ws := range c.strategies {
		seen := make(map[int]bool)
		for _, b := range ws.Strategy.DetectBoundaries(ctx, content, sentences) {
			if b <= 0 || b >= len(sentences) || seen[b] {
				continue
			}
			seen[b] = true
			votes[b] += ws.Weight / total
		}
	}

	var accepted []int
	for b, w := range votes {
		if w >= c.BoundaryThreshold {
			accepted = append(accepted, b)
		}
	}
	sort.Ints(accepted)

	var merged []int
	last := -2
	for _, b := range accepted {
		if b-last >= 2 {
			merged = append(merged, b)
			last = b
		}
	}
	return merged
}

// uniformBoundaries assumes roughly five sentences per chunk.
func uniformBoundaries(n int) []int {
	chunks := max(int(math.Round(float64(n)/5)), 1)
	step := max(n/chunks, 1)
	var out []int
	for b := step; b < n; b += step {
		out = append(out, b)
	}
	return out
}

func (c *Composite) DetectBoundaries(ctx context.Context, content string, sentences []string) []int {
	return c.vote(ctx, content, sentences)
}
