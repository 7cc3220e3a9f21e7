package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound marks a missing reference (user, preference, template, row).
// Callers degrade per the pipeline contract instead of retrying.
var ErrNotFound = errors.New("not found")

// ErrorCode classifies a pipeline error; each code maps onto exactly one
// ack policy.
type ErrorCode string

const (
	// ErrCodeValidation marks a malformed message: log, count, ack-drop.
	ErrCodeValidation ErrorCode = "VALIDATION"
	// ErrCodeTransient marks an infrastructure blip: redeliver.
	ErrCodeTransient ErrorCode = "TRANSIENT"
	// ErrCodeTerminal marks a failure that must not be retried: DLQ.
	ErrCodeTerminal ErrorCode = "TERMINAL"
)

// PipelineError carries the classification a consumer needs to pick an ack
// policy.
type PipelineError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// NewValidationError creates a drop-on-arrival error.
func NewValidationError(message string) *PipelineError {
	return &PipelineError{Code: ErrCodeValidation, Message: message}
}

// NewTransientError creates a redeliverable error.
func NewTransientError(message string, err error) *PipelineError {
	return &PipelineError{Code: ErrCodeTransient, Message: message, Err: err}
}

// NewTerminalError creates a dead-letter error.
func NewTerminalError(message string, err error) *PipelineError {
	return &PipelineError{Code: ErrCodeTerminal, Message: message, Err: err}
}

// IsValidation reports whether err classifies as a validation error.
func IsValidation(err error) bool { return hasCode(err, ErrCodeValidation) }

// IsTransient reports whether err classifies as a transient error. Unknown
// errors count as transient so an unclassified blip is redelivered rather
// than dropped.
func IsTransient(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code == ErrCodeTransient
	}
	return err != nil
}

func hasCode(err error, code ErrorCode) bool {
	var pe *PipelineError
	return errors.As(err, &pe) && pe.Code == code
}
