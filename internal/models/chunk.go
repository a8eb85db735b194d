package models

// ContentType classifies what a chunk contains.
type ContentType string

const (
	ContentProse    ContentType = "PROSE"
	ContentCode     ContentType = "CODE"
	ContentTable    ContentType = "TABLE"
	ContentList     ContentType = "LIST"
	ContentHeader   ContentType = "HEADER"
	ContentQuote    ContentType = "QUOTE"
	ContentMetadata ContentType = "METADATA"
	ContentMixed    ContentType = "MIXED"
)

// ChunkMetadata travels with every chunk.
type ChunkMetadata struct {
	SourceID         string         `json:"sourceId,omitempty"`
	SourceType       ContentType    `json:"sourceType"`
	HeadingHierarchy []string       `json:"headingHierarchy,omitempty"`
	SectionTitle     string         `json:"sectionTitle,omitempty"`
	Language         string         `json:"language"`
	Confidence       float64        `json:"confidence"`
	StrategyUsed     string         `json:"strategyUsed"`
	Additional       map[string]any `json:"additional,omitempty"`
}

// DocumentChunk is a bounded span of source text prepared for embedding.
// It is never persisted on its own.
type DocumentChunk struct {
	ID            string        `json:"id"`
	Content       string        `json:"content"`
	Index         int           `json:"index"`
	StartOffset   int           `json:"startOffset"`
	EndOffset     int           `json:"endOffset"`
	Metadata      ChunkMetadata `json:"metadata"`
	ContextBefore string        `json:"contextBefore,omitempty"`
	ContextAfter  string        `json:"contextAfter,omitempty"`
}

// Len is the chunk length in characters.
func (c DocumentChunk) Len() int {
	return len([]rune(c.Content))
}
