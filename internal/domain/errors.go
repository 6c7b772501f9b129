package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity does not exist
type ErrNotFound struct {
	Entity string
	ID     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found with ID: %s", e.Entity, e.ID)
}

// ValidationError represents an error that occurs due to invalid input or parameters
type ValidationError struct {
	Message string
}

// Error implements the error interface
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// NewValidationError creates a new validation error with the given message
func NewValidationError(message string) error {
	return ValidationError{
		Message: message,
	}
}

// IsValidationError reports whether err wraps a ValidationError
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// ErrLeaseLost is returned when a worker writes to a queue item it no longer owns,
// either because the reaper reclaimed it or another worker completed it.
var ErrLeaseLost = errors.New("queue item lease lost")

// TransientSendError wraps a mail transport failure. Every transport failure goes through
// the queue backoff path; Kind is informational only.
type TransientSendError struct {
	Transport string
	Kind      string
	Err       error
}

func (e *TransientSendError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("%s send failed (%s): %v", e.Transport, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s send failed: %v", e.Transport, e.Err)
}

func (e *TransientSendError) Unwrap() error {
	return e.Err
}
