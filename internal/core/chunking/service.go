package chunking

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Result is the outcome of one chunking run.
type Result struct {
	Chunks         []models.DocumentChunk
	StrategyUsed   string
	ProcessingTime time.Duration
	Quality        *QualityReport
}

// Service holds the strategy registry. The zero embedder is allowed; the
// semantic strategies then fall back to sentence packing.
type Service struct {
	strategies map[string]Strategy
	router     *Router
	evaluator  *Evaluator
	logger     *slog.Logger

	// QualityEnabled attaches a quality report to every non-empty result.
	QualityEnabled bool
}

func NewService(embedder Embedder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	fixed := NewFixedSize()
	sentence := NewSentenceAware()
	recursive := NewRecursive()
	markdown := NewMarkdown()
	breakpoint := NewBreakpoint(embedder, sentence, logger)
	window := NewSlidingWindow()
	composite := NewComposite(sentence, logger,
		WeightedStrategy{Strategy: breakpoint, Weight: 0.6},
		WeightedStrategy{Strategy: window, Weight: 0.4},
	)
	router := NewRouter(fixed, sentence, recursive, markdown, composite)

	s := &Service{
		strategies:     make(map[string]Strategy),
		router:         router,
		evaluator:      NewEvaluator(DefaultConfig().ChunkSize),
		logger:         logger,
		QualityEnabled: true,
	}
	for _, st := range []Strategy{fixed, sentence, recursive, markdown, breakpoint, window, composite, router} {
		s.Register(st)
	}
	return s
}

// Register adds or replaces a strategy under its name.
func (s *Service) Register(st Strategy) {
	s.strategies[st.Name()] = st
}

func (s *Service) Strategy(name string) (Strategy, bool) {
	st, ok := s.strategies[name]
	return st, ok
}

func (s *Service) Names() []string {
	names := make([]string, 0, len(s.strategies))
	for n := range s.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Service) Router() *Router { return s.router }

// Chunk routes the document by MIME type.
func (s *Service) Chunk(ctx context.Context, doc Document, cfg Config) Result {
	st := s.router.Select(doc.MimeType)
	return s.run(ctx, st, doc, cfg)
}

// ChunkWith runs a named strategy.
func (s *Service) ChunkWith(ctx context.Context, name string, doc Document, cfg Config) (Result, error) {
	st, ok := s.strategies[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s.run(ctx, st, doc, cfg), nil
}

func (s *Service) run(ctx context.Context, st Strategy, doc Document, cfg Config) Result {
	started := time.Now()
	chunks := st.Chunk(ctx, doc, cfg)
	res := Result{
		Chunks:         chunks,
		StrategyUsed:   st.Name(),
		ProcessingTime: time.Since(started),
	}
	if s.QualityEnabled && len(chunks) > 0 {
		target := cfg.normalized().ChunkSize
		ev := *s.evaluator
		ev.TargetSize = target
		report := ev.Evaluate(chunks, nil)
		res.Quality = &report
	}
	s.logger.Debug("document chunked",
		"doc_id", doc.ID,
		"strategy", res.StrategyUsed,
		"chunks", len(chunks),
		"duration", res.ProcessingTime,
	)
	return res
}
