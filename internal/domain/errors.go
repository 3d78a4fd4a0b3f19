package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks requests rejected before any engine invocation.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a failure to store a completed analysis.
	ErrPersistence = errors.New("persisting analysis failed")
	// ErrCompletion marks a failed call to the chat completion provider.
	ErrCompletion = errors.New("chat completion failed")
	// ErrInvalidCompletionResponse is returned when the provider answered without usable content.
	ErrInvalidCompletionResponse = errors.New("invalid response format from completion provider")
)

// PersistenceError wraps the store failure for a job whose analysis already completed.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", ErrPersistence.Error(), e.Err)
}

// Is lets errors.Is match ErrPersistence.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
