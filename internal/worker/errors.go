package worker

import "errors"

// ErrUnknownHandler is returned when a message names a handler the worker
// has no registration for.
var ErrUnknownHandler = errors.New("no handler registered for task")

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
