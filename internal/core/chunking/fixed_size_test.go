package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offsets(t *testing.T, content string, cfg Config) (starts, ends []int) {
	t.Helper()
	chunks := NewFixedSize().Chunk(context.Background(), Document{ID: "f", Content: content}, cfg)
	for _, c := range chunks {
		starts = append(starts, c.StartOffset)
		ends = append(ends, c.EndOffset)
		assert.Equal(t, NameFixedSize, c.Metadata.StrategyUsed)
	}
	return starts, ends
}

func TestFixedSizeWindowsStepByOverlap(t *testing.T) {
	content := strings.Repeat("abcdefghij", 25)
	cfg := Config{ChunkSize: 100, ChunkOverlap: 20, MinChunkSize: 10, PreserveSentences: false}

	starts, ends := offsets(t, content, cfg)
	assert.Equal(t, []int{0, 80, 160}, starts)
	assert.Equal(t, []int{100, 180, 250}, ends)
}

func TestFixedSizeShortTailJoinsLastWindow(t *testing.T) {
	content := strings.Repeat("abcdefghij", 25)
	cfg := Config{ChunkSize: 100, ChunkOverlap: 20, MinChunkSize: 100}

	starts, ends := offsets(t, content, cfg)
	assert.Equal(t, []int{0, 80}, starts)
	assert.Equal(t, []int{100, 250}, ends, "no characters are dropped")
}

func TestFixedSizeSnapsToSentenceEnd(t *testing.T) {
	content := "First sentence. Second sentence. Third sentence. Fourth sentence. Fifth sentence."
	cfg := Config{ChunkSize: 50, ChunkOverlap: 10, MinChunkSize: 10, PreserveSentences: true}

	chunks := NewFixedSize().Chunk(context.Background(), Document{Content: content}, cfg)
	require.Len(t, chunks, 2)
	assert.Equal(t, "First sentence. Second sentence. Third sentence.", chunks[0].Content)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c.Content, "."), c.Content)
	}
}

func TestFixedSizeIgnoresEarlyTerminator(t *testing.T) {
	// The only terminator sits before the window midpoint.
	content := "Short. " + strings.Repeat("x", 150)
	cfg := Config{ChunkSize: 100, ChunkOverlap: 0, MinChunkSize: 10, PreserveSentences: true}

	chunks := NewFixedSize().Chunk(context.Background(), Document{Content: content}, cfg)
	require.NotEmpty(t, chunks)
	assert.Equal(t, 100, chunks[0].EndOffset)
}

func TestFixedSizeLargeOverlapStillAdvances(t *testing.T) {
	content := strings.Repeat("abcdefghij", 30)
	cfg := Config{ChunkSize: 50, ChunkOverlap: 500, MinChunkSize: 1}

	chunks := NewFixedSize().Chunk(context.Background(), Document{Content: content}, cfg)
	require.NotEmpty(t, chunks)
	assert.Equal(t, len(content), chunks[len(chunks)-1].EndOffset)
}
