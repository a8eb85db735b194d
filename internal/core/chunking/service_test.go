package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// fixedVoter proposes the same boundaries for any input.
type fixedVoter struct {
	name       string
	boundaries []int
}

func (f fixedVoter) Name() string { return f.name }

func (f fixedVoter) Chunk(context.Context, Document, Config) []models.DocumentChunk { return nil }

func (f fixedVoter) DetectBoundaries(context.Context, string, []string) []int { return f.boundaries }

func TestCompositeVoting(t *testing.T) {
	sentences := make([]string, 12)
	tests := []struct {
		name   string
		voters []WeightedStrategy
		want   []int
	}{
		{
			name: "heavier voter wins alone",
			voters: []WeightedStrategy{
				{Strategy: fixedVoter{"a", []int{3}}, Weight: 0.6},
				{Strategy: fixedVoter{"b", []int{6}}, Weight: 0.4},
			},
			want: []int{3},
		},
		{
			name: "agreement reaches threshold",
			voters: []WeightedStrategy{
				{Strategy: fixedVoter{"a", []int{4, 8}}, Weight: 0.3},
				{Strategy: fixedVoter{"b", []int{8}}, Weight: 0.3},
			},
			want: []int{4, 8},
		},
		{
			name: "close boundaries merge",
			voters: []WeightedStrategy{
				{Strategy: fixedVoter{"a", []int{3, 4, 8}}, Weight: 1},
			},
			want: []int{3, 8},
		},
		{
			name: "out of range ignored",
			voters: []WeightedStrategy{
				{Strategy: fixedVoter{"a", []int{0, 12, 40}}, Weight: 1},
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewComposite(NewSentenceAware(), nil, tt.voters...)
			assert.Equal(t, tt.want, c.DetectBoundaries(context.Background(), "", sentences))
		})
	}
}

func TestUniformBoundaries(t *testing.T) {
	assert.Equal(t, []int{5}, uniformBoundaries(10))
	assert.Equal(t, []int{6}, uniformBoundaries(12))
	assert.Nil(t, uniformBoundaries(2))
}

func TestCompositeChunksOnAcceptedBoundary(t *testing.T) {
	doc := Document{Content: numberedSentences(12)}
	c := NewComposite(NewSentenceAware(), nil, WeightedStrategy{Strategy: fixedVoter{"a", []int{6}}, Weight: 1})

	chunks := c.Chunk(context.Background(), doc, Config{ChunkSize: 100, MinChunkSize: 10, MaxChunkSize: 400})
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[1].Content, "Sentence number 06"))
	assert.Equal(t, "high", chunks[0].Metadata.Additional["boundaryConfidence"])
	assert.Equal(t, 6, chunks[0].Metadata.Additional["sentenceCount"])
}

func TestRouterSelect(t *testing.T) {
	router := NewService(nil, nil).Router()
	tests := []struct {
		mime string
		want string
	}{
		{"text/markdown; charset=utf-8", NameMarkdown},
		{"TEXT/X-MARKDOWN", NameMarkdown},
		{"text/plain", NameSentenceAware},
		{"text/csv", NameFixedSize},
		{"application/pdf", NameComposite},
		{"application/json", NameRecursive},
		{"application/ld+json", NameRecursive},
		{"text/x-python", NameRecursive},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", NameSentenceAware},
		{"application/octet-stream", NameSentenceAware},
		{"", NameSentenceAware},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			assert.Equal(t, tt.want, router.Select(tt.mime).Name())
		})
	}

	require.NoError(t, router.Register("text/x-log", "fixed-size"))
	assert.Equal(t, NameFixedSize, router.Select("text/x-log").Name())
	assert.ErrorIs(t, router.Register("text/x-log", "nope"), ErrUnknownStrategy)
}

func TestServiceChunk(t *testing.T) {
	svc := NewService(nil, nil)
	content := strings.Repeat("a", 499) + "."
	res := svc.Chunk(context.Background(), Document{ID: "t", Content: content, MimeType: "text/plain"}, DefaultConfig())

	require.Len(t, res.Chunks, 1)
	assert.Equal(t, content, res.Chunks[0].Content)
	assert.Equal(t, NameSentenceAware, res.StrategyUsed)
	require.NotNil(t, res.Quality)
	assert.Equal(t, 1, res.Quality.ChunkCount)

	_, err := svc.ChunkWith(context.Background(), "nope", Document{Content: content}, DefaultConfig())
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	assert.ElementsMatch(t, []string{
		NameFixedSize, NameSentenceAware, NameRecursive, NameMarkdown,
		NameBreakpoint, NameSlidingWindow, NameComposite, NameRouter,
	}, svc.Names())
}

func TestQualityReport(t *testing.T) {
	chunks := NewSentenceAware().Chunk(context.Background(), Document{Content: longText(6)}, Config{ChunkSize: 300, MinChunkSize: 50})
	require.Greater(t, len(chunks), 1)

	ev := NewEvaluator(300)
	report := ev.Evaluate(chunks, nil)
	assert.Len(t, report.Metrics, 3)
	assert.GreaterOrEqual(t, report.OverallScore, 0.0)
	assert.LessOrEqual(t, report.OverallScore, 1.0)
	assert.InDelta(t, 1.0, report.Metrics[MetricInformationPreservation].Score/0.7, 1e-9, "every chunk ends a sentence")

	embeddings := make([][]float32, len(chunks))
	for i := range embeddings {
		embeddings[i] = []float32{float32(i % 2), float32((i + 1) % 2)}
	}
	withVectors := ev.Evaluate(chunks, embeddings)
	assert.Len(t, withVectors.Metrics, 4)
	assert.InDelta(t, 1.0, withVectors.Metrics[MetricBoundaryQuality].Score, 1e-9)

	assert.Zero(t, ev.Evaluate(nil, nil).OverallScore)
}
