// Package store provides standardized error types for storage operations.
package store

import (
	"errors"
	"fmt"
)

// Standard store error types that all implementations should use.
var (
	// ErrTraceNotFound indicates no trace row exists for the given identifier.
	ErrTraceNotFound = errors.New("trace not found")

	// ErrExecutionNotFound indicates no execution exists for the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")
)

// TraceError wraps trace-related errors with operation context.
type TraceError struct {
	Op      string // Operation being performed (e.g., "Create", "ListTraces")
	TraceID string
	Err     error
}

func (e *TraceError) Error() string {
	return fmt.Sprintf("%s operation failed for trace %s: %v", e.Op, e.TraceID, e.Err)
}

func (e *TraceError) Unwrap() error {
	return e.Err
}

func (e *TraceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// ExecutionError wraps execution-related errors with operation context.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// TopicError wraps used-topic ledger errors with operation context.
type TopicError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *TopicError) Error() string {
	if e.WorkflowID == "" {
		return fmt.Sprintf("%s operation failed for used topics: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s operation failed for used topics of workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *TopicError) Unwrap() error {
	return e.Err
}

func (e *TopicError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsTraceNotFound checks if an error indicates a trace was not found.
func IsTraceNotFound(err error) bool {
	return errors.Is(err, ErrTraceNotFound)
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}
