package chunking

import (
	"context"
	"mime"
	"strings"

	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// route keys
const (
	routeFixed     = "fixed-size"
	routeSentence  = "sentence-aware"
	routeRecursive = "recursive"
	routeMarkdown  = "markdown"
	routeComposite = "composite"
	routeCode      = "code"
)

var defaultMimeRoutes = map[string]string{
	"text/markdown":    routeMarkdown,
	"text/x-markdown":  routeMarkdown,
	"text/html":        routeRecursive,
	"text/plain":       routeSentence,
	"text/csv":         routeFixed,
	"application/pdf":  routeComposite,
	"application/json": routeRecursive,
	"application/xml":  routeRecursive,
	"text/xml":         routeRecursive,

	"application/msword": routeSentence,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   routeSentence,
	"application/vnd.ms-excel":                                                  routeFixed,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         routeFixed,
	"application/vnd.ms-powerpoint":                                             routeSentence,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": routeSentence,

	"text/x-python":          routeCode,
	"text/javascript":        routeCode,
	"application/javascript": routeCode,
	"text/x-java":            routeCode,
	"text/x-kotlin":          routeCode,
	"text/x-c":               routeCode,
	"text/x-cpp":             routeCode,
	"text/x-go":              routeCode,
	"text/x-rust":            routeCode,
	"text/x-typescript":      routeCode,
}

var (
	pythonSeparators = []string{"\nclass ", "\ndef ", "\n\ndef ", "\n\n", "\n", " ", ""}
	jvmSeparators    = []string{"\nclass ", "\ninterface ", "\nfun ", "\npublic ", "\nprivate ", "\n\n", "\n", " ", ""}
	scriptSeparators = []string{"\nfunction ", "\nclass ", "\nconst ", "\nlet ", "\nexport ", "\n\n", "\n", " ", ""}
)

// Router picks a strategy from the document's MIME type.
type Router struct {
	routes     map[string]string
	strategies map[string]Strategy
	code       map[string]*Recursive
	fallback   Strategy
}

func NewRouter(fixed *FixedSize, sentence *SentenceAware, recursive *Recursive, markdown *Markdown, composite *Composite) *Router {
	routes := make(map[string]string, len(defaultMimeRoutes))
	for k, v := range defaultMimeRoutes {
		routes[k] = v
	}
	return &Router{
		routes: routes,
		strategies: map[string]Strategy{
			routeFixed:     fixed,
			routeSentence:  sentence,
			routeRecursive: recursive,
			routeMarkdown:  markdown,
			routeComposite: composite,
		},
		code: map[string]*Recursive{
			"python": NewRecursiveWithSeparators(NameRecursive, pythonSeparators),
			"jvm":    NewRecursiveWithSeparators(NameRecursive, jvmSeparators),
			"script": NewRecursiveWithSeparators(NameRecursive, scriptSeparators),
			"":       NewRecursiveWithSeparators(NameRecursive, CodeSeparators),
		},
		fallback: sentence,
	}
}

func (r *Router) Name() string { return NameRouter }

// Register maps a MIME type to one of the route keys.
func (r *Router) Register(mimeType, route string) error {
	if _, ok := r.strategies[route]; !ok && route != routeCode {
		return ErrUnknownStrategy
	}
	r.routes[normalizeMime(mimeType)] = route
	return nil
}

// Select returns the strategy for a MIME type.
func (r *Router) Select(mimeType string) Strategy {
	mt := normalizeMime(mimeType)
	route, ok := r.routes[mt]
	if !ok {
		switch {
		case strings.Contains(mt, "markdown"):
			route = routeMarkdown
		case strings.HasSuffix(mt, "+xml"), strings.HasSuffix(mt, "+json"):
			route = routeRecursive
		default:
			return r.fallback
		}
	}
	if route == routeCode {
		return r.code[codeFamily(mt)]
	}
	if s, ok := r.strategies[route]; ok {
		return s
	}
	return r.fallback
}

func (r *Router) Chunk(ctx context.Context, doc Document, cfg Config) []models.DocumentChunk {
	return r.Select(doc.MimeType).Chunk(ctx, doc, cfg)
}

func (r *Router) DetectBoundaries(ctx context.Context, content string, sentences []string) []int {
	return r.fallback.DetectBoundaries(ctx, content, sentences)
}

func codeFamily(mt string) string {
	switch {
	case strings.Contains(mt, "python"):
		return "python"
	case strings.Contains(mt, "java"), strings.Contains(mt, "kotlin"):
		if strings.Contains(mt, "javascript") {
			return "script"
		}
		return "jvm"
	case strings.Contains(mt, "script"):
		return "script"
	}
	return ""
}

// normalizeMime lowercases and drops parameters such as charset.
func normalizeMime(mimeType string) string {
	if mt, _, err := mime.ParseMediaType(mimeType); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}
