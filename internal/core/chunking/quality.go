package chunking

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Metric names and their weight in the overall score.
const (
	MetricSizeDistribution        = "size_distribution"
	MetricInformationPreservation = "information_preservation"
	MetricContextSufficiency      = "context_sufficiency"
	MetricBoundaryQuality         = "boundary_quality"
)

var metricWeights = map[string]float64{
	MetricSizeDistribution:        0.25,
	MetricInformationPreservation: 0.25,
	MetricContextSufficiency:      0.25,
	MetricBoundaryQuality:         0.15,
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

type MetricResult struct {
	Name            string         `json:"name"`
	Score           float64        `json:"score"`
	Details         map[string]any `json:"details,omitempty"`
	Recommendations []string       `json:"recommendations,omitempty"`
}

type QualityReport struct {
	OverallScore     float64                 `json:"overallScore"`
	Metrics          map[string]MetricResult `json:"metrics"`
	Recommendations  []string                `json:"recommendations,omitempty"`
	ChunkCount       int                     `json:"chunkCount"`
	AverageChunkSize float64                 `json:"averageChunkSize"`
}

// Evaluator scores a chunk sequence. Embedding based metrics are only
// computed when chunk embeddings are supplied.
type Evaluator struct {
	TargetSize      int
	Tolerance       float64
	MinimumOverall  float64
	MinWordCount    int
	MinSentenceRuns int
}

func NewEvaluator(targetSize int) *Evaluator {
	if targetSize <= 0 {
		targetSize = DefaultConfig().ChunkSize
	}
	return &Evaluator{
		TargetSize:      targetSize,
		Tolerance:       0.3,
		MinimumOverall:  0.6,
		MinWordCount:    20,
		MinSentenceRuns: 2,
	}
}

func (e *Evaluator) Evaluate(chunks []models.DocumentChunk, embeddings [][]float32) QualityReport {
	report := QualityReport{
		Metrics:    make(map[string]MetricResult),
		ChunkCount: len(chunks),
	}
	if len(chunks) == 0 {
		return report
	}

	results := []MetricResult{
		e.sizeDistribution(chunks),
		e.informationPreservation(chunks),
		e.contextSufficiency(chunks),
	}
	if len(embeddings) >= 2 {
		results = append(results, boundaryQuality(embeddings))
	}

	var weighted, total float64
	seen := make(map[string]bool)
	for _, r := range results {
		report.Metrics[r.Name] = r
		weighted += r.Score * metricWeights[r.Name]
		total += metricWeights[r.Name]
		for _, rec := range r.Recommendations {
			if !seen[rec] {
				seen[rec] = true
				report.Recommendations = append(report.Recommendations, rec)
			}
		}
	}
	if total > 0 {
		report.OverallScore = weighted / total
	}
	if report.OverallScore < e.MinimumOverall {
		report.Recommendations = append([]string{
			fmt.Sprintf("Overall quality score (%.2f) is below threshold (%.2f)", report.OverallScore, e.MinimumOverall),
		}, report.Recommendations...)
	}

	sum := 0
	for _, c := range chunks {
		sum += c.Len()
	}
	report.AverageChunkSize = float64(sum) / float64(len(chunks))
	return report
}

func (e *Evaluator) sizeDistribution(chunks []models.DocumentChunk) MetricResult {
	lo := int(float64(e.TargetSize) * (1 - e.Tolerance))
	hi := int(float64(e.TargetSize) * (1 + e.Tolerance))

	sizes := make([]int, len(chunks))
	within, sum := 0, 0
	minSize, maxSize := math.MaxInt, 0
	for i, c := range chunks {
		n := c.Len()
		sizes[i] = n
		sum += n
		minSize = min(minSize, n)
		maxSize = max(maxSize, n)
		if n >= lo && n <= hi {
			within++
		}
	}
	mean := float64(sum) / float64(len(sizes))
	variance := 0.0
	for _, n := range sizes {
		variance += (float64(n) - mean) * (float64(n) - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(sizes)))
	score := float64(within) / float64(len(sizes))

	var recs []string
	if score < 0.7 {
		recs = append(recs, "Many chunks are outside the target size range")
	}
	if stdDev > float64(e.TargetSize)*0.5 {
		recs = append(recs, "High variance in chunk sizes - consider adjusting chunking parameters")
	}
	if minSize < 100 {
		recs = append(recs, "Some chunks are very small and may lack context")
	}
	if maxSize > e.TargetSize*2 {
		recs = append(recs, "Some chunks are very large and may reduce retrieval precision")
	}

	return MetricResult{
		Name:  MetricSizeDistribution,
		Score: score,
		Details: map[string]any{
			"targetSize":           e.TargetSize,
			"meanSize":             mean,
			"stdDev":               stdDev,
			"minSize":              minSize,
			"maxSize":              maxSize,
			"withinToleranceCount": within,
		},
		Recommendations: recs,
	}
}

func (e *Evaluator) informationPreservation(chunks []models.DocumentChunk) MetricResult {
	complete, withContext := 0, 0
	for _, c := range chunks {
		content := strings.TrimSpace(c.Content)
		if content != "" && strings.ContainsAny(content[len(content)-1:], `.!?"'`) {
			complete++
		}
		if c.ContextBefore != "" || c.ContextAfter != "" {
			withContext++
		}
	}
	n := float64(len(chunks))
	completion := float64(complete) / n
	contextRatio := float64(withContext) / n

	var recs []string
	if completion < 0.8 {
		recs = append(recs, "Many chunks don't end with complete sentences")
	}
	if contextRatio < 0.5 && len(chunks) > 1 {
		recs = append(recs, "Consider enabling context preservation for better retrieval")
	}

	return MetricResult{
		Name:  MetricInformationPreservation,
		Score: completion*0.7 + contextRatio*0.3,
		Details: map[string]any{
			"sentenceCompletionRatio": completion,
			"contextRatio":            contextRatio,
		},
		Recommendations: recs,
	}
}

func (e *Evaluator) contextSufficiency(chunks []models.DocumentChunk) MetricResult {
	sufficient, words := 0, 0
	for _, c := range chunks {
		w := len(strings.Fields(c.Content))
		s := 0
		for _, part := range sentenceSplit.Split(c.Content, -1) {
			if !isBlank(part) {
				s++
			}
		}
		words += w
		if w >= e.MinWordCount && s >= e.MinSentenceRuns {
			sufficient++
		}
	}
	score := float64(sufficient) / float64(len(chunks))
	avgWords := float64(words) / float64(len(chunks))

	var recs []string
	if score < 0.8 {
		recs = append(recs, "Some chunks may lack sufficient context - consider increasing chunk size")
	}
	if avgWords < float64(e.MinWordCount) {
		recs = append(recs, "Average word count is low - chunks may be too small")
	}

	return MetricResult{
		Name:  MetricContextSufficiency,
		Score: score,
		Details: map[string]any{
			"sufficientChunks": sufficient,
			"averageWordCount": avgWords,
		},
		Recommendations: recs,
	}
}

// boundaryQuality rewards semantic distance between neighbouring chunks.
func boundaryQuality(embeddings [][]float32) MetricResult {
	distances := adjacentDistances(embeddings)
	sum, lo := 0.0, math.Inf(1)
	for _, d := range distances {
		sum += d
		lo = math.Min(lo, d)
	}
	avg := sum / float64(len(distances))

	var recs []string
	if avg < 0.3 {
		recs = append(recs, "Chunks are very similar - consider merging adjacent chunks")
	}
	if lo < 0.1 {
		recs = append(recs, "Some chunk boundaries have low semantic distance")
	}
	return MetricResult{
		Name:            MetricBoundaryQuality,
		Score:           math.Max(0, math.Min(1, avg)),
		Details:         map[string]any{"averageDistance": avg, "minDistance": lo},
		Recommendations: recs,
	}
}
