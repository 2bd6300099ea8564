// Package errors provides structured error handling for GridKit with error
// categorization, key-value context, and stack traces.
//
// # Overview
//
// The errors package extends Go's standard error handling with:
//   - Error categorization through ErrorType
//   - Structured context with key-value details
//   - Automatic stack trace capture
//   - Error wrapping with cause preservation
//
// # Basic Usage
//
//	// Fail fast on table misconfiguration
//	if len(opts.Columns) == 0 {
//	    return errors.New(errors.ErrorTypeConfig, "table requires at least one column")
//	}
//
//	// Wrap evaluation failures with context
//	if err := agg.Apply(values); err != nil {
//	    return errors.Wrap(err, errors.ErrorTypeData, "aggregate failed").
//	        WithDetail("column", col.ID).
//	        WithDetail("aggregator", name)
//	}
//
// # Error Types
//
// Errors are categorized by type, which drives the engine's error policy:
// config errors are fatal at setup time, data errors degrade gracefully per
// value, and cancelled errors are dropped silently.
//
// # Thread Safety
//
// Error instances are not thread-safe for modification. Use WithDetail
// before sharing across goroutines.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error, used to select an error
// handling strategy.
type ErrorType string

const (
	// ErrorTypeInternal represents internal engine errors
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents input validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents unknown references (column ids, aggregator keys)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeConfig represents configuration errors, fatal at setup time
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeData represents per-value evaluation or conversion errors
	ErrorTypeData ErrorType = "data"
	// ErrorTypeQuery represents row-model query errors
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeCancelled represents superseded or cancelled operations
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Error represents a structured error with context.
//
// Fields:
//   - Type: Categorizes the error for handling strategies
//   - Message: Human-readable error description
//   - Cause: The underlying error that caused this error
//   - Details: Key-value pairs providing additional context
//   - Stack: Call stack at the point of error creation
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack, capturing
// the function name, file path, and line number for debugging.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface, returning a formatted error message
// that includes the error type, message, and cause (if present).
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error, enabling compatibility with errors.Is
// and errors.As for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error, providing additional
// context for debugging. This method can be chained.
//
// Example:
//
//	err := errors.New(errors.ErrorTypeNotFound, "unregistered aggregator").
//	    WithDetail("key", aggKey).
//	    WithDetail("column", col.ID)
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message, automatically
// capturing the call stack at the point of creation.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf creates a new error with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context, preserving the
// original error as the cause. If the error is already a structured Error,
// its stack trace is preserved. Returns nil if the input error is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	// If already our error type, preserve the stack
	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsType checks if the error is of the given type, useful for conditional
// logic based on error categories.
//
// Example:
//
//	if errors.IsType(err, errors.ErrorTypeCancelled) {
//	    return // superseded fetch, drop silently
//	}
func IsType(err error, errType ErrorType) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Type == errType
}

// IsFatal returns true if the error must abort setup rather than degrade.
// Configuration and validation errors are fatal; per-value data errors and
// cancellations are not.
func IsFatal(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	switch e.Type {
	case ErrorTypeConfig, ErrorTypeValidation:
		return true
	case ErrorTypeInternal, ErrorTypeNotFound, ErrorTypeData, ErrorTypeQuery, ErrorTypeCancelled:
		return false
	default:
		return false
	}
}

// captureStack captures the current call stack up to maxFrames deep,
// skipping the specified number of frames from the top.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
