package services

import (
	"errors"
	"fmt"

	"github.com/markdave123-py/contexta-ingest/internal/core"
	"github.com/markdave123-py/contexta-ingest/internal/core/messages"
)

// ValidationError rejects malformed input before any job exists.
type ValidationError struct {
	Key  string
	Args []any
}

func (e *ValidationError) Error() string { return messages.Render(e.Key, e.Args...) }

func invalid(key string, args ...any) error {
	return &ValidationError{Key: key, Args: args}
}

// StateError rejects a command the job's current status does not allow.
type StateError struct {
	Key  string
	Args []any
}

func (e *StateError) Error() string { return messages.Render(e.Key, e.Args...) }

func conflict(key string, args ...any) error {
	return &StateError{Key: key, Args: args}
}

// notFound hides jobs owned by other tenants behind the same error as missing ones.
func notFound(jobID string) error {
	return fmt.Errorf("%w: %s", core.ErrJobNotFound, messages.Render(messages.JobNotFound, jobID))
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
