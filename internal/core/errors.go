package core

import "errors"

var (
	ErrJobNotFound            = errors.New("ingestion job not found")
	ErrQuotaNotFound          = errors.New("organization quota not found")
	ErrKnowledgeBaseNotFound  = errors.New("knowledge base not found")
	ErrEmbeddingModelNotFound = errors.New("no embedding model configured")
	// ErrLeaseLost means the worker's claim on a job expired or passed to
	// another worker; the job row was left untouched.
	ErrLeaseLost = errors.New("job lease lost")
)
