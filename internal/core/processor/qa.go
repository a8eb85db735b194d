package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// QAProcessor turns each question and answer pair into one chunk.
type QAProcessor struct {
	Deps
}

func NewQAProcessor(deps Deps) *QAProcessor {
	return &QAProcessor{Deps: deps}
}

func (p *QAProcessor) Supports(jobType models.JobType) bool {
	return jobType == models.JobTypeQAImport
}

func (p *QAProcessor) Process(ctx context.Context, job *models.IngestionJob) error {
	decoded, err := models.DecodeMetadata(job)
	if err != nil {
		return err
	}
	meta := decoded.(models.QAPairsMetadata)
	if len(meta.Pairs) == 0 {
		return fmt.Errorf("no Q&A pairs in job %s", job.ID)
	}
	if err := p.progress(ctx, job, 10); err != nil {
		return err
	}

	chunks := make([]string, len(meta.Pairs))
	var total, bytes int64
	for i, pair := range meta.Pairs {
		chunks[i] = FormatQAPair(pair)
		total += int64(len(chunks[i]))
		bytes += int64(len(pair.Question) + len(pair.Answer))
	}
	if err := p.progress(ctx, job, 30); err != nil {
		return err
	}

	title := meta.SourceName
	if title == "" {
		title = "Q&A Pairs"
	}
	_, err = p.publish(ctx, job, models.CreateKnowledgeSourceRequest{
		SourceType: models.SourceTypeQAPair,
		Title:      title,
		MimeType:   "application/json",
		FileSize:   total,
		Metadata:   map[string]any{"type": "qa_pairs", "pairCount": len(meta.Pairs)},
	}, models.ChunkJobData{
		Chunks:     chunkInfos(chunks),
		SourceType: string(models.SourceTypeQAPair),
		Title:      title,
	})
	if err != nil {
		return err
	}
	if err := p.progress(ctx, job, 80); err != nil {
		return err
	}

	return p.complete(ctx, job, len(meta.Pairs), bytes)
}

// FormatQAPair renders a pair as "Category: …\nTags: …\nQuestion: q\n\nAnswer: a".
func FormatQAPair(pair models.QAPair) string {
	var b strings.Builder
	if pair.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", pair.Category)
	}
	if len(pair.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(pair.Tags, ", "))
	}
	fmt.Fprintf(&b, "Question: %s\n\nAnswer: %s", pair.Question, pair.Answer)
	return b.String()
}
