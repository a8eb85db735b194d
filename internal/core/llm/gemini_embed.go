package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// maxBatch is the most contents Gemini accepts in one BatchEmbedContents call.
const maxBatch = 100

const DefaultEmbeddingModel = "text-embedding-004"

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	logger    *slog.Logger
}

var (
	_ core.EmbeddingProvider = (*GeminiEmbedder)(nil)
	_ core.EmbeddingGateway  = (*GeminiEmbedder)(nil)
)

func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, logger *slog.Logger) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = DefaultEmbeddingModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, logger: logger}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// EmbedTexts embeds with the default model.
func (g *GeminiEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return g.embed(ctx, g.modelName, texts)
}

// GenerateEmbeddings embeds with the knowledge base's model and checks the
// returned dimension against it.
func (g *GeminiEmbedder) GenerateEmbeddings(ctx context.Context, texts []string, model *models.EmbeddingModel) ([][]float32, error) {
	name := g.modelName
	if model != nil && model.ModelName != "" {
		name = model.ModelName
	}
	vectors, err := g.embed(ctx, name, texts)
	if err != nil {
		return nil, err
	}
	if model != nil && model.Dimensions > 0 {
		for i, v := range vectors {
			if len(v) != model.Dimensions {
				return nil, fmt.Errorf("embedding %d has dimension %d, model %s expects %d", i, len(v), name, model.Dimensions)
			}
		}
	}
	return vectors, nil
}

func (g *GeminiEmbedder) embed(ctx context.Context, modelName string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(modelName)
	em.TaskType = genai.TaskTypeRetrievalDocument

	out := make([][]float32, 0, len(texts))
	for _, part := range batches(texts, maxBatch) {
		batch := em.NewBatch()
		for _, t := range part {
			batch.AddContent(genai.Text(t))
		}

		resp, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("gemini batch embed: %w", err)
		}
		if len(resp.Embeddings) != len(part) {
			return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(resp.Embeddings), len(part))
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	g.logger.Debug("texts embedded", "model", modelName, "count", len(out))
	return out, nil
}

func batches(texts []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		out = append(out, texts[start:end])
	}
	return out
}
