package chunking

import (
	"context"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Registered strategy names.
const (
	NameFixedSize     = "fixed-size"
	NameSentenceAware = "sentence-aware"
	NameRecursive     = "recursive-character"
	NameMarkdown      = "markdown"
	NameBreakpoint    = "semantic-breakpoint"
	NameSlidingWindow = "semantic-sliding-window"
	NameComposite     = "composite-semantic"
	NameRouter        = "content-type-router"
)

// Document is the text handed to a strategy.
type Document struct {
	ID       string
	Content  string
	MimeType string
	Language string
}

// Config controls chunk sizes. Sizes are counted in characters (runes).
type Config struct {
	ChunkSize          int
	ChunkOverlap       int
	MinChunkSize       int
	MaxChunkSize       int
	PreserveSentences  bool
	PreserveParagraphs bool
	IncludeContext     bool
	ContextSize        int
}

func DefaultConfig() Config {
	return Config{
		ChunkSize:          1000,
		ChunkOverlap:       200,
		MinChunkSize:       100,
		MaxChunkSize:       2000,
		PreserveSentences:  true,
		PreserveParagraphs: true,
		IncludeContext:     false,
		ContextSize:        100,
	}
}

// normalized repairs values that would stall the window loops.
func (c Config) normalized() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultConfig().ChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 5
	}
	if c.MinChunkSize < 0 {
		c.MinChunkSize = 0
	}
	if c.MaxChunkSize < c.ChunkSize {
		c.MaxChunkSize = c.ChunkSize * 2
	}
	if c.ContextSize <= 0 {
		c.ContextSize = DefaultConfig().ContextSize
	}
	return c
}

// Strategy splits a document into ordered chunks.
//
// DetectBoundaries returns the sentence indices at which a new chunk would
// begin; the composite strategy votes over them.
type Strategy interface {
	Name() string
	Chunk(ctx context.Context, doc Document, cfg Config) []models.DocumentChunk
	DetectBoundaries(ctx context.Context, content string, sentences []string) []int
}

// Embedder turns texts into vectors, one per input and in order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, texts []string) ([][]float32, error)

func (f EmbedderFunc) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return f(ctx, texts)
}
