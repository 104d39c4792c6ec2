package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a scheduled job cannot be found
	ErrNotFound = errors.New("job not found")

	// ErrAlreadyExists is returned on a duplicate job_id during registration
	ErrAlreadyExists = errors.New("job already exists")

	// ErrConcurrentRun is returned when opening a run while another run
	// for the same (tenant, event class) is still active
	ErrConcurrentRun = errors.New("another run is already active for this tenant and event class")

	// ErrUnconfigured is returned when no executor backend is configured
	ErrUnconfigured = errors.New("executor backend not configured")

	// ErrInvalidInput is returned for unparseable cron expressions,
	// unknown event classes, and malformed payloads
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTransition is returned when a status update violates the
	// run transition graph
	ErrInvalidTransition = errors.New("invalid run status transition")
)

// LimitExceededError is a quota gate denial with the reason attached.
type LimitExceededError struct {
	Reason string
}

func (e *LimitExceededError) Error() string {
	return "limit exceeded: " + e.Reason
}

// NewLimitExceeded creates a quota denial error
func NewLimitExceeded(reason string) error {
	return &LimitExceededError{Reason: reason}
}

// IsLimitExceeded reports whether err is a quota denial and returns the reason.
func IsLimitExceeded(err error) (string, bool) {
	var le *LimitExceededError
	if errors.As(err, &le) {
		return le.Reason, true
	}
	return "", false
}

// SubmissionError wraps adaptor failures where the task never started.
type SubmissionError struct {
	Cause error
}

func (e *SubmissionError) Error() string {
	return "submission failed: " + e.Cause.Error()
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// NewSubmissionError wraps a cause as a submission failure
func NewSubmissionError(cause error) error {
	return &SubmissionError{Cause: cause}
}

// ExecutionError wraps failures where the task started but did not
// complete. It surfaces only through the event log, never synchronously.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string {
	return "execution failed: " + e.Cause.Error()
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// NewExecutionError wraps a cause as an execution failure
func NewExecutionError(cause error) error {
	return &ExecutionError{Cause: cause}
}

// InvalidInputf wraps ErrInvalidInput with a formatted detail message.
func InvalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
