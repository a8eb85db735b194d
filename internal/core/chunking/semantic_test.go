package chunking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// topicEmbedder maps each text onto one of two orthogonal topics.
var topicEmbedder = EmbedderFunc(func(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "rocket") {
			out[i] = []float32{0, 1}
		} else {
			out[i] = []float32{1, 0}
		}
	}
	return out, nil
})

func twoTopics() string {
	var parts []string
	for i := 0; i < 6; i++ {
		parts = append(parts, fmt.Sprintf("The cat sat on the mat number %d.", i))
	}
	for i := 0; i < 6; i++ {
		parts = append(parts, fmt.Sprintf("The rocket left the pad at hour %d.", i))
	}
	return strings.Join(parts, " ")
}

func TestBreakpointSplitsOnTopicShift(t *testing.T) {
	doc := Document{ID: "sem", Content: twoTopics()}
	cfg := Config{ChunkSize: 100, ChunkOverlap: 0, MinChunkSize: 10, MaxChunkSize: 2000}

	chunks := NewBreakpoint(topicEmbedder, NewSentenceAware(), nil).Chunk(context.Background(), doc, cfg)
	require.Len(t, chunks, 2)
	assert.NotContains(t, chunks[0].Content, "rocket")
	assert.NotContains(t, chunks[1].Content, "cat")
	assert.Equal(t, NameBreakpoint, chunks[0].Metadata.StrategyUsed)
	assert.InDelta(t, 0.9, chunks[0].Metadata.Confidence, 1e-9)
}

func TestBreakpointFallsBackOnEmbeddingError(t *testing.T) {
	failing := EmbedderFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("quota exhausted")
	})
	doc := Document{Content: twoTopics()}
	cfg := Config{ChunkSize: 100, ChunkOverlap: 0, MinChunkSize: 10}

	chunks := NewBreakpoint(failing, NewSentenceAware(), nil).Chunk(context.Background(), doc, cfg)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, "semantic-breakpoint-fallback", c.Metadata.StrategyUsed)
		assert.InDelta(t, 0.7, c.Metadata.Confidence, 1e-9)
	}
}

func TestBreakpointMinimumRun(t *testing.T) {
	b := NewBreakpoint(nil, NewSentenceAware(), nil)
	// A shift after the first sentence would leave a one-sentence run.
	distances := []float64{0.9, 0.9, 0.1, 0.1, 0.9, 0.1}
	b.Percentile = 50
	assert.Equal(t, []int{2, 5}, b.breakpoints(distances))
}

func TestPercentileThresholdFloor(t *testing.T) {
	assert.InDelta(t, 0.5, percentileThreshold([]float64{0.1, 0.2, 0.3}, 95, 0.5), 1e-9)
	assert.InDelta(t, 0.8, percentileThreshold([]float64{0.1, 0.8, 0.3}, 95, 0.5), 1e-9)
}

func TestSlidingWindowBoundaries(t *testing.T) {
	w := NewSlidingWindow()
	assert.Equal(t, []int{3, 6, 9}, w.DetectBoundaries(context.Background(), "", make([]string, 10)))

	doc := Document{Content: numberedSentences(12)}
	chunks := w.Chunk(context.Background(), doc, Config{ChunkSize: 100, MinChunkSize: 10})
	require.NotEmpty(t, chunks)
	assert.True(t, strings.HasSuffix(chunks[len(chunks)-1].Content, "Sentence number 11 is here."))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity(nil, []float32{1}))
}
