// Package errs defines the error taxonomy shared across services. Callers
// classify failures with errors.Is / errors.As rather than string matching.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation rejects malformed input before any state change.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers unknown documents and sessions. No side effects.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition rejects an operation against an entity in the wrong
	// state, e.g. ingesting a document that is not in uploading.
	ErrPrecondition = errors.New("precondition failed")

	// ErrConflict signals a lost compare-and-swap race; callers may retry.
	ErrConflict = errors.New("conflict")

	// ErrAmbiguousScope means a query had no document scope and unscoped
	// retrieval is disallowed by policy.
	ErrAmbiguousScope = errors.New("ambiguous retrieval scope")

	// ErrUpstreamTimeout is returned when a collaborator call exceeds its
	// deadline instead of hanging the session.
	ErrUpstreamTimeout = errors.New("upstream timeout")
)

// UpstreamError wraps a failure from an external collaborator
// (extractor, embedder, vector index, generator).
type UpstreamError struct {
	Collaborator string
	Err          error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream tags err with the collaborator that produced it.
func Upstream(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Collaborator: collaborator, Err: err}
}

// Validationf builds a wrapped validation error with a reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
