package responder

import (
	"errors"
	"fmt"

	"github.com/Rene-Zhou/Astinus-sub001/internal/extract"
	"github.com/Rene-Zhou/Astinus-sub001/pkg/provider/llm"
)

// Error-kind tags recorded in [MetaErrorKind]. Together with
// [*extract.Error] and [*llm.ProviderError] they form the full failure
// taxonomy of the turn engine.
const (
	// ErrKindExtraction tags malformed or unrecoverable model output.
	ErrKindExtraction = "extraction"

	// ErrKindProvider tags upstream text/similarity service failures.
	ErrKindProvider = "provider"

	// ErrKindValidation tags parsed structures that do not match the
	// expected shape (e.g. missing CheckSpec fields).
	ErrKindValidation = "validation"

	// ErrKindInput tags empty or invalid caller-supplied input.
	ErrKindInput = "input"

	// ErrKindState tags operations attempted in the wrong turn phase.
	ErrKindState = "state"

	// ErrKindInternal tags recovered panics and anything unclassified.
	ErrKindInternal = "internal"
)

// ErrNoActionProvided is returned when a responder requiring an action text
// receives an empty one.
var ErrNoActionProvided = &InputError{Reason: "no action provided"}

// InputError indicates the caller supplied empty or invalid input.
type InputError struct {
	// Reason describes what was wrong with the input.
	Reason string
}

// Error implements the error interface.
func (e *InputError) Error() string { return "input: " + e.Reason }

// ValidationError indicates a parsed structure does not match the expected
// shape.
type ValidationError struct {
	// Field names the offending field, when known.
	Field string

	// Reason describes the shape mismatch.
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: field %q: %s", e.Field, e.Reason)
	}
	return "validation: " + e.Reason
}

// StateError indicates an operation was attempted in the wrong turn phase.
type StateError struct {
	// Op is the attempted operation.
	Op string

	// Phase is the phase the session was in.
	Phase string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("state: %s not allowed in phase %s", e.Op, e.Phase)
}

// KindOf maps err onto its taxonomy tag for [MetaErrorKind].
func KindOf(err error) string {
	var (
		ee *extract.Error
		pe *llm.ProviderError
		ve *ValidationError
		ie *InputError
		se *StateError
	)
	switch {
	case errors.As(err, &ee):
		return ErrKindExtraction
	case errors.As(err, &pe):
		return ErrKindProvider
	case errors.As(err, &ve):
		return ErrKindValidation
	case errors.As(err, &ie):
		return ErrKindInput
	case errors.As(err, &se):
		return ErrKindState
	default:
		return ErrKindInternal
	}
}
