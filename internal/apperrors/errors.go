// Package apperrors defines the error kinds shared by the email pipeline.
// Callers branch on the kind with errors.Is rather than on message text.
package apperrors

import (
	"errors"
	"fmt"
)

// Error kinds
var (
	// ErrProvider indicates the mailbox API was unreachable, unauthorized or returned garbage
	ErrProvider = errors.New("mail provider error")

	// ErrEmbeddingAPI indicates embedding or summary generation failed
	ErrEmbeddingAPI = errors.New("embedding api error")

	// ErrStorage indicates a read or write against persistence failed
	ErrStorage = errors.New("storage error")

	// ErrValidation indicates malformed input parameters
	ErrValidation = errors.New("validation error")

	// ErrNotFound indicates the referenced record does not exist
	ErrNotFound = errors.New("not found")
)

// Error carries the kind, the failing operation and the underlying cause
type Error struct {
	Kind error
	Op   string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Provider wraps a mailbox API failure
func Provider(op string, err error) error {
	return &Error{Kind: ErrProvider, Op: op, Err: err}
}

// EmbeddingAPI wraps an embedding/LLM API failure
func EmbeddingAPI(op string, err error) error {
	return &Error{Kind: ErrEmbeddingAPI, Op: op, Err: err}
}

// Storage wraps a persistence failure
func Storage(op string, err error) error {
	return &Error{Kind: ErrStorage, Op: op, Err: err}
}

// Validation builds a validation failure from a message
func Validation(op, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Err: errors.New(msg)}
}

// IsProvider reports whether err is a mail provider failure
func IsProvider(err error) bool {
	return errors.Is(err, ErrProvider)
}

// IsValidation reports whether err is a validation failure
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err (or its cause) is a not-found condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
