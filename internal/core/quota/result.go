package quota

import (
	"github.com/markdave123-py/contexta-ingest/internal/core/messages"
	"github.com/markdave123-py/contexta-ingest/internal/models"
)

// Outcome is the verdict of a quota check.
type Outcome string

const (
	OutcomeValid                  Outcome = "VALID"
	OutcomeFileSizeExceeded       Outcome = "FILE_SIZE_EXCEEDED"
	OutcomeStorageQuotaExceeded   Outcome = "STORAGE_QUOTA_EXCEEDED"
	OutcomeMonthlyLimitExceeded   Outcome = "MONTHLY_LIMIT_EXCEEDED"
	OutcomeConcurrentJobsExceeded Outcome = "CONCURRENT_JOBS_EXCEEDED"
)

// Result carries the fields relevant to its Outcome:
// Valid sets Priority and Tier, FileSizeExceeded sets MaxSize and Requested,
// the others set Used and Limit.
type Result struct {
	Outcome   Outcome
	Priority  int
	Tier      models.QuotaTier
	MaxSize   int64
	Requested int64
	Used      int64
	Limit     int64
}

func (r Result) Valid() bool { return r.Outcome == OutcomeValid }

// Err returns nil for a valid result and an *Error otherwise.
func (r Result) Err() error {
	switch r.Outcome {
	case OutcomeFileSizeExceeded:
		return &Error{Outcome: r.Outcome, Key: messages.FileSizeExceeded, Args: []any{r.Requested, r.MaxSize}}
	case OutcomeStorageQuotaExceeded:
		return &Error{Outcome: r.Outcome, Key: messages.StorageQuotaExceeded, Args: []any{r.Used, r.Limit}}
	case OutcomeMonthlyLimitExceeded:
		return &Error{Outcome: r.Outcome, Key: messages.MonthlyLimitExceeded, Args: []any{r.Limit}}
	case OutcomeConcurrentJobsExceeded:
		return &Error{Outcome: r.Outcome, Key: messages.ConcurrentJobsExceeded, Args: []any{r.Limit}}
	}
	return nil
}

// Error is a quota rejection with a client message key.
type Error struct {
	Outcome Outcome
	Key     string
	Args    []any
}

func (e *Error) Error() string { return messages.Render(e.Key, e.Args...) }
